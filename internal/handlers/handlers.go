package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"uchat/internal/auth"
	"uchat/internal/endpoint"
	"uchat/internal/images"
	"uchat/internal/logging"
	"uchat/internal/query"
)

// PooledConn is a connection checked out for the lifetime of one request.
type PooledConn interface {
	query.DB
	Release()
}

type Pool interface {
	Acquire(ctx context.Context) (PooledConn, error)
	Ping(ctx context.Context) error
}

type pgxPool struct{ p *pgxpool.Pool }

// PgxPool adapts a pgx pool to Pool.
func PgxPool(p *pgxpool.Pool) Pool { return pgxPool{p: p} }

func (p pgxPool) Acquire(ctx context.Context) (PooledConn, error) {
	c, err := p.p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p pgxPool) Ping(ctx context.Context) error { return p.p.Ping(ctx) }

// AppState is shared by every request.
type AppState struct {
	pool     Pool
	sessions *auth.Manager
	images   *images.Store
	maxBody  int64
}

// bodyOverhead leaves room for the JSON around an uploaded data URL.
const bodyOverhead = 64 << 10

func New(pool Pool, sessions *auth.Manager, imgs *images.Store) *AppState {
	// base64 grows the payload by a third.
	maxBody := imgs.MaxBytes()*4/3 + bodyOverhead
	return &AppState{pool: pool, sessions: sessions, images: imgs, maxBody: maxBody}
}

type ctxKey int

const (
	connKey ctxKey = iota
	fingerprintKey
)

var errNoConn = errors.New("no database connection in request context")

// WithConn checks out one pooled connection per request and releases it once
// the handler returns.
func (st *AppState) WithConn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		conn, err := st.pool.Acquire(ctx)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("acquire connection")
			writeJSON(ctx, w, http.StatusInternalServerError,
				endpoint.RequestFailed{Msg: "failed to connect to database"})
			return
		}
		defer conn.Release()
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, connKey, conn)))
	})
}

func connFrom(ctx context.Context) (query.DB, error) {
	conn, ok := ctx.Value(connKey).(query.DB)
	if !ok {
		return nil, errNoConn
	}
	return conn, nil
}

func fingerprintFrom(ctx context.Context) []byte {
	fp, _ := ctx.Value(fingerprintKey).([]byte)
	return fp
}

// Reply is what a processor hands back to be written to the client.
type Reply[T any] struct {
	Status  int
	Body    T
	Cookies []*http.Cookie
}

func okReply[T any](body T) Reply[T] { return Reply[T]{Status: http.StatusOK, Body: body} }

func (rp Reply[T]) write(ctx context.Context, w http.ResponseWriter) {
	for _, c := range rp.Cookies {
		http.SetCookie(w, c)
	}
	status := rp.Status
	if status == 0 {
		status = http.StatusOK
	}
	writeJSON(ctx, w, status, rp.Body)
}

type PublicRequest[Resp any] interface {
	Process(ctx context.Context, conn query.DB, st *AppState) (Reply[Resp], error)
}

type AuthorizedRequest[Resp any] interface {
	Process(ctx context.Context, conn query.DB, session auth.UserSession, st *AppState) (Reply[Resp], error)
}

// validator is implemented by requests with checks beyond field decoding,
// such as required fields the client left out.
type validator interface {
	Validate() error
}

// WithPublicHandler serves Req without authentication.
func WithPublicHandler[Req PublicRequest[Resp], Resp any](st *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		conn, err := connFrom(ctx)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		var req Req
		if err := st.decode(w, r, &req); err != nil {
			writeError(ctx, w, err)
			return
		}
		ctx = context.WithValue(ctx, fingerprintKey, auth.Fingerprint(r))
		reply, err := req.Process(ctx, conn, st)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		reply.write(ctx, w)
	}
}

// WithHandler serves Req for callers holding a live signed session.
func WithHandler[Req AuthorizedRequest[Resp], Resp any](st *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		conn, err := connFrom(ctx)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		session, err := st.sessions.Authenticate(ctx, conn, r)
		if err != nil {
			writeError(ctx, w, auth.ErrUnauthorized)
			return
		}
		ctx = logging.ContextWithUserID(ctx, session.UserID.String())

		var req Req
		if err := st.decode(w, r, &req); err != nil {
			writeError(ctx, w, err)
			return
		}
		reply, err := req.Process(ctx, conn, session, st)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		reply.write(ctx, w)
	}
}

// decode reads a JSON request body into v. An empty body decodes as the zero
// request, which is what unit requests such as TrendingPosts send.
func (st *AppState) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, st.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return NewApiErr(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return decodeErr(err)
	}
	if val, ok := v.(validator); ok {
		return val.Validate()
	}
	return nil
}
