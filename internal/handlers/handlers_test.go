package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"uchat/internal/auth"
	"uchat/internal/crypto"
	"uchat/internal/domain"
	"uchat/internal/endpoint"
	"uchat/internal/images"
	"uchat/internal/metrics"
	"uchat/internal/models"
	"uchat/internal/query"
)

var errFakeDB = errors.New("database unavailable")

type errRow struct{}

func (errRow) Scan(...any) error { return errFakeDB }

// fakeConn fails every query and counts releases.
type fakeConn struct {
	released int
}

func (*fakeConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errFakeDB
}
func (*fakeConn) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, errFakeDB }
func (*fakeConn) QueryRow(context.Context, string, ...any) pgx.Row        { return errRow{} }
func (*fakeConn) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults  { return nil }
func (*fakeConn) Begin(context.Context) (pgx.Tx, error)                   { return nil, errFakeDB }
func (c *fakeConn) Release()                                              { c.released++ }

type fakePool struct {
	conn       *fakeConn
	acquireErr error
}

func (p *fakePool) Acquire(context.Context) (PooledConn, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	return p.conn, nil
}

func (p *fakePool) Ping(context.Context) error { return p.acquireErr }

type memSessions struct {
	sessions map[domain.SessionID]models.Session
}

func (s *memSessions) NewSession(_ context.Context, _ query.DB, user domain.UserID, d time.Duration, fp []byte) (models.Session, error) {
	sess := models.Session{ID: domain.NewSessionID(), UserID: user, ExpiresAt: time.Now().Add(d), Fingerprint: fp}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *memSessions) GetSession(_ context.Context, _ query.DB, id domain.SessionID) (models.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return models.Session{}, query.ErrNotFound
	}
	return sess, nil
}

func (s *memSessions) DeleteSession(_ context.Context, _ query.DB, id domain.SessionID) (query.DeleteStatus, error) {
	delete(s.sessions, id)
	return query.Deleted, nil
}

type testServer struct {
	handler  http.Handler
	pool     *fakePool
	sessions *auth.Manager
	store    *memSessions
	images   *images.Store
	imageDir string
}

func newTestServer(c *qt.C) *testServer {
	return newTestServerWith(c, RouterConfig{CORSOrigins: []string{"http://app.test"}})
}

func newTestServerWith(c *qt.C, cfg RouterConfig) *testServer {
	keys, err := crypto.GenerateSigningKeys(rand.Reader)
	c.Assert(err, qt.IsNil)
	store := &memSessions{sessions: map[domain.SessionID]models.Session{}}
	sessions := auth.NewManager(keys, time.Hour, false).WithStore(store)
	dir := c.TempDir()
	imgs, err := images.NewStore(dir, "http://api.test", 1024)
	c.Assert(err, qt.IsNil)
	pool := &fakePool{conn: &fakeConn{}}
	st := New(pool, sessions, imgs)
	return &testServer{
		handler:  st.Routes(cfg),
		pool:     pool,
		sessions: sessions,
		store:    store,
		images:   imgs,
		imageDir: dir,
	}
}

// login issues a session for a fresh user and returns its cookies.
func (ts *testServer) login(c *qt.C) (domain.UserID, []*http.Cookie) {
	user := domain.NewUserID()
	issued, err := ts.sessions.NewSession(context.Background(), nil, user, []byte(`{}`))
	c.Assert(err, qt.IsNil)
	return user, ts.sessions.SessionCookies(issued)
}

func (ts *testServer) post(url, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func errMsg(c *qt.C, rec *httptest.ResponseRecorder) string {
	var body endpoint.RequestFailed
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &body), qt.IsNil, qt.Commentf("body %q", rec.Body.String()))
	return body.Msg
}

func TestErrResponse(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"api error", NewApiErr(http.StatusTeapot, "short and stout"), http.StatusTeapot, "short and stout"},
		{"wrapped api error", fmt.Errorf("outer: %w", NewApiErr(http.StatusNotFound, "post not found")), http.StatusNotFound, "post not found"},
		{"missing login", ErrMissingLogin, http.StatusNotFound, "Missing login"},
		{"wrong password", ErrWrongPassword, http.StatusBadRequest, "Invalid password"},
		{"account exists", ErrAccountExists, http.StatusConflict, "Account already exists"},
		{"validation", &domain.ValidationError{Field: "username", Reason: "User name cannot be empty"}, http.StatusBadRequest, "User name cannot be empty"},
		{"unauthorized", auth.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"anything else", errors.New("connection reset"), http.StatusInternalServerError, "server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			code, msg := errResponse(tt.err)
			c.Assert(code, qt.Equals, tt.code)
			c.Assert(msg, qt.Equals, tt.msg)
		})
	}
}

func TestAcquireFailure(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c)
	ts.pool.acquireErr = errFakeDB

	rec := ts.post(endpoint.LoginURL, `{"username":"alice","password":"password1"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusInternalServerError)
	c.Assert(errMsg(c, rec), qt.Equals, "failed to connect to database")
}

func TestConnectionReleased(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c)

	ts.post(endpoint.HomePostsURL, `{}`)
	ts.post(endpoint.HomePostsURL, `{}`)
	c.Assert(ts.pool.conn.released, qt.Equals, 2)
}

func TestUnauthorized(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c)

	for _, url := range []string{
		endpoint.LogoutURL, endpoint.GetMyProfileURL, endpoint.UpdateProfileURL, endpoint.ViewProfileURL,
		endpoint.FollowUserURL, endpoint.IsFollowingURL, endpoint.NewPostURL, endpoint.BookmarkURL,
		endpoint.BoostURL, endpoint.ReactURL, endpoint.VoteURL, endpoint.TrendingPostsURL,
		endpoint.HomePostsURL, endpoint.LikedPostsURL, endpoint.BookmarkedPostsURL,
	} {
		rec := ts.post(url, `{}`)
		c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized, qt.Commentf(url))
		c.Assert(rec.Body.String(), qt.JSONEquals, map[string]string{"msg": "unauthorized"})
	}

	// A session signed by another server.
	other := newTestServer(c)
	_, cookies := other.login(c)
	rec := ts.post(endpoint.GetMyProfileURL, `{}`, cookies...)
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		url  string
		body string
		code int
		msg  string
	}{
		{"short password", endpoint.CreateUserURL, `{"username":"alice","password":"short"}`, http.StatusBadRequest, "Password must be at least 8 characters"},
		{"short username", endpoint.LoginURL, `{"username":"al","password":"password1"}`, http.StatusBadRequest, "User name must be at least 3 characters"},
		{"missing username", endpoint.CreateUserURL, `{"password":"password1"}`, http.StatusBadRequest, "User name cannot be empty"},
		{"empty body", endpoint.CreateUserURL, ``, http.StatusBadRequest, "User name cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			ts := newTestServer(c)
			rec := ts.post(tt.url, tt.body)
			c.Assert(rec.Code, qt.Equals, tt.code)
			c.Assert(errMsg(c, rec), qt.Equals, tt.msg)
		})
	}

	c := qt.New(t)
	ts := newTestServer(c)
	rec := ts.post(endpoint.LoginURL, `{"username":`)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(errMsg(c, rec), qt.Contains, "invalid request")
}

func TestAuthorizedValidation(t *testing.T) {
	tests := []struct {
		name string
		url  string
		body string
		msg  string
	}{
		{"follow self", endpoint.FollowUserURL, `{"follows":"%s","action":"Follow"}`, "cannot follow self"},
		{"remove password", endpoint.UpdateProfileURL, `{"password":"SetNull"}`, "password cannot be removed"},
		{"short new password", endpoint.UpdateProfileURL, `{"password":{"Change":"abc"}}`, "Password must be at least 8 characters"},
		{"bad email", endpoint.UpdateProfileURL, `{"email":{"Change":"nope"}}`, "Email is not valid. Format: your_name@example.com"},
		{"poll with one choice", endpoint.NewPostURL,
			`{"content":{"Poll":{"headline":"lunch?","choices":[{"id":"00000000-0000-0000-0000-000000000001","num_votes":0,"description":"pizza"}],"voted":null}},"options":{}}`,
			"poll needs at least two choices"},
		{"empty chat", endpoint.NewPostURL, `{"content":{"Chat":{"headline":null}},"options":{}}`, "Message cannot be empty"},
		{"image by url", endpoint.NewPostURL, `{"content":{"Image":{"kind":{"Url":"http://x/y.png"},"caption":null}},"options":{}}`, "image must be uploaded as a data url"},
		{"missing content", endpoint.NewPostURL, `{"options":{}}`, "post content is required"},
		{"missing bookmark action", endpoint.BookmarkURL, `{"post_id":"00000000-0000-0000-0000-000000000001"}`, "action must be Add or Remove"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			ts := newTestServer(c)
			user, cookies := ts.login(c)
			body := tt.body
			if strings.Contains(body, "%s") {
				body = fmt.Sprintf(body, user)
			}
			rec := ts.post(tt.url, body, cookies...)
			c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
			c.Assert(errMsg(c, rec), qt.Equals, tt.msg)
		})
	}
}

func TestUnknownVariantRejected(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c)
	_, cookies := ts.login(c)

	rec := ts.post(endpoint.NewPostURL, `{"content":{"Video":{}},"options":{}}`, cookies...)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
}

func TestDatabaseFailureIsServerError(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c)
	_, cookies := ts.login(c)

	rec := ts.post(endpoint.IsFollowingURL, fmt.Sprintf(`{"follows":"%s"}`, domain.NewUserID()), cookies...)
	c.Assert(rec.Code, qt.Equals, http.StatusInternalServerError)
	c.Assert(errMsg(c, rec), qt.Equals, "server error")
}

func TestLogoutClearsSession(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c)
	_, cookies := ts.login(c)
	c.Assert(ts.store.sessions, qt.HasLen, 1)

	rec := ts.post(endpoint.LogoutURL, `{}`, cookies...)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(ts.store.sessions, qt.HasLen, 0)

	cleared := rec.Result().Cookies()
	c.Assert(cleared, qt.HasLen, 2)
	for _, ck := range cleared {
		c.Assert(ck.MaxAge, qt.Equals, -1)
	}

	rec = ts.post(endpoint.GetMyProfileURL, `{}`, cookies...)
	c.Assert(rec.Code, qt.Equals, http.StatusUnauthorized)
}

func TestRecover(t *testing.T) {
	c := qt.New(t)
	h := WithRecover(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusInternalServerError)
	c.Assert(errMsg(c, rec), qt.Equals, "server error")
}

func TestPlainRoutes(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Equals, "this is the uchat api")

	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)

	ts.pool.acquireErr = errFakeDB
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusServiceUnavailable)

	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Contains, "uchat_http_requests_total")
}

func TestServeImage(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c)

	png := []byte("\x89PNG\r\n\x1a\n0000")
	id := domain.NewImageID()
	c.Assert(ts.images.SaveDataURL(id, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(png)), qt.IsNil)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint.UserContentImages+"/"+id.String(), nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "image/png")
	body, err := io.ReadAll(rec.Body)
	c.Assert(err, qt.IsNil)
	c.Assert(body, qt.DeepEquals, png)

	for _, path := range []string{"/not-a-uuid", "/" + domain.NewImageID().String()} {
		rec = httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint.UserContentImages+path, nil))
		c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
	}
}

func TestCORSPreflight(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c)

	req := httptest.NewRequest(http.MethodOptions, endpoint.LoginURL, nil)
	req.Header.Set("Origin", "http://app.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	c.Assert(rec.Header().Get("Access-Control-Allow-Origin"), qt.Equals, "http://app.test")
	c.Assert(rec.Header().Get("Access-Control-Allow-Credentials"), qt.Equals, "true")
}

func pngDataURL(payload string) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestServeImageHeaders(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c)

	id := domain.NewImageID()
	c.Assert(ts.images.SaveDataURL(id, pngDataURL("GIF89a pixels")), qt.IsNil)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint.UserContentImages+"/"+id.String(), nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "image/gif")
	c.Assert(rec.Header().Get("X-Content-Type-Options"), qt.Equals, "nosniff")
	c.Assert(rec.Header().Get("Content-Security-Policy"), qt.Equals, "default-src 'none'; sandbox")
}

func TestScriptUploadRejected(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c)
	_, cookies := ts.login(c)

	html := pngDataURL("<html><script>fetch('/profile/me')</script></html>")
	body := fmt.Sprintf(`{"content":{"Image":{"kind":{"DataUrl":%q},"caption":null}},"options":{}}`, html)
	rec := ts.post(endpoint.NewPostURL, body, cookies...)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(errMsg(c, rec), qt.Matches, "data url is not an image: content is text/html.*")

	// A file that slipped into the store is never served as a document.
	id := domain.NewImageID()
	c.Assert(os.WriteFile(ts.imageDir+"/"+id.String(), []byte("<html><script></script></html>"), 0o644), qt.IsNil)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, endpoint.UserContentImages+"/"+id.String(), nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "application/octet-stream")
	c.Assert(rec.Header().Get("X-Content-Type-Options"), qt.Equals, "nosniff")
}

func TestFailedWriteRemovesImage(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c)
	_, cookies := ts.login(c)
	png := pngDataURL("\x89PNG\r\n\x1a\npixels")

	rec := ts.post(endpoint.NewPostURL,
		fmt.Sprintf(`{"content":{"Image":{"kind":{"DataUrl":%q},"caption":null}},"options":{}}`, png), cookies...)
	c.Assert(rec.Code, qt.Equals, http.StatusInternalServerError)

	rec = ts.post(endpoint.UpdateProfileURL,
		fmt.Sprintf(`{"display_name":"NoChange","email":"NoChange","password":"NoChange","profile_image":{"Change":%q}}`, png), cookies...)
	c.Assert(rec.Code, qt.Equals, http.StatusInternalServerError)

	entries, err := os.ReadDir(ts.imageDir)
	c.Assert(err, qt.IsNil)
	c.Assert(entries, qt.HasLen, 0)
}

func TestRecoveredPanicIsCounted(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(c)
	ts.handler.(chi.Router).Get("/panic", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/panic", "500")
	before := testutil.ToFloat64(counter)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusInternalServerError)
	c.Assert(testutil.ToFloat64(counter)-before, qt.Equals, float64(1))
}

func TestLoginRateLimitIgnoresForwardedFor(t *testing.T) {
	login := `{"username":"alice","password":"password1"}`
	send := func(ts *testServer, forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, endpoint.LoginURL, strings.NewReader(login))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("direct", func(t *testing.T) {
		c := qt.New(t)
		ts := newTestServerWith(c, RouterConfig{LoginRateLimit: 1})
		c.Assert(send(ts, "198.51.100.1"), qt.Not(qt.Equals), http.StatusTooManyRequests)
		c.Assert(send(ts, "198.51.100.2"), qt.Equals, http.StatusTooManyRequests)
	})

	t.Run("behind proxy", func(t *testing.T) {
		c := qt.New(t)
		ts := newTestServerWith(c, RouterConfig{LoginRateLimit: 1, TrustProxy: true})
		c.Assert(send(ts, "198.51.100.1"), qt.Not(qt.Equals), http.StatusTooManyRequests)
		c.Assert(send(ts, "198.51.100.2"), qt.Not(qt.Equals), http.StatusTooManyRequests)
		c.Assert(send(ts, "198.51.100.2"), qt.Equals, http.StatusTooManyRequests)
	})
}
