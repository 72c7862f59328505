package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"uchat/internal/crypto"
	"uchat/internal/domain"
	"uchat/internal/models"
	"uchat/internal/query"
)

const (
	SessionIDCookie  = "session_id"
	SessionSigCookie = "session_sig"
)

// ErrUnauthorized covers every reason a request fails authentication.
var ErrUnauthorized = errors.New("unauthorized")

// UserSession identifies the caller of an authorized request.
type UserSession struct {
	SessionID domain.SessionID
	UserID    domain.UserID
}

// SessionStore is the subset of query used by Manager.
type SessionStore interface {
	NewSession(ctx context.Context, db query.DB, user domain.UserID, duration time.Duration, fingerprint []byte) (models.Session, error)
	GetSession(ctx context.Context, db query.DB, id domain.SessionID) (models.Session, error)
	DeleteSession(ctx context.Context, db query.DB, id domain.SessionID) (query.DeleteStatus, error)
}

type pgStore struct{}

func (pgStore) NewSession(ctx context.Context, db query.DB, user domain.UserID, d time.Duration, fp []byte) (models.Session, error) {
	return query.NewSession(ctx, db, user, d, fp)
}

func (pgStore) GetSession(ctx context.Context, db query.DB, id domain.SessionID) (models.Session, error) {
	return query.GetSession(ctx, db, id)
}

func (pgStore) DeleteSession(ctx context.Context, db query.DB, id domain.SessionID) (query.DeleteStatus, error) {
	return query.DeleteSession(ctx, db, id)
}

type Manager struct {
	keys         *crypto.SigningKeys
	maxAge       time.Duration
	secureCookie bool
	store        SessionStore
}

func NewManager(keys *crypto.SigningKeys, maxAge time.Duration, secureCookie bool) *Manager {
	return &Manager{keys: keys, maxAge: maxAge, secureCookie: secureCookie, store: pgStore{}}
}

// WithStore swaps the session store, used by tests.
func (m *Manager) WithStore(s SessionStore) *Manager {
	m.store = s
	return m
}

// Issued is a freshly created session with its signature.
type Issued struct {
	Session   models.Session
	Signature string
}

// NewSession creates or refreshes the session for user and signs its ID.
func (m *Manager) NewSession(ctx context.Context, db query.DB, user domain.UserID, fingerprint []byte) (Issued, error) {
	s, err := m.store.NewSession(ctx, db, user, m.maxAge, fingerprint)
	if err != nil {
		return Issued{}, fmt.Errorf("new session: %w", err)
	}
	sig := crypto.EncodeBase64(m.keys.Sign(s.ID.Bytes()))
	return Issued{Session: s, Signature: sig}, nil
}

// Fingerprint describes the client a session is issued to. Sessions from the
// same user and client share a row.
func Fingerprint(r *http.Request) []byte {
	b, err := json.Marshal(map[string]string{"user_agent": r.UserAgent()})
	if err != nil {
		return []byte(`{}`)
	}
	return b
}

// SessionCookies are the cookies that carry an issued session.
func (m *Manager) SessionCookies(is Issued) []*http.Cookie {
	return []*http.Cookie{
		m.cookie(SessionIDCookie, is.Session.ID.String(), is.Session.ExpiresAt),
		m.cookie(SessionSigCookie, is.Signature, is.Session.ExpiresAt),
	}
}

// ExpiredCookies overwrite and expire the session cookies.
func (m *Manager) ExpiredCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, 2)
	for _, name := range []string{SessionIDCookie, SessionSigCookie} {
		c := m.cookie(name, "", time.Unix(0, 0))
		c.MaxAge = -1
		out = append(out, c)
	}
	return out
}

func (m *Manager) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secureCookie,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	}
}

// Verify checks the cookie pair signature without touching the database.
func (m *Manager) Verify(r *http.Request) (domain.SessionID, error) {
	idCookie, err := r.Cookie(SessionIDCookie)
	if err != nil || idCookie.Value == "" {
		return domain.SessionID{}, ErrUnauthorized
	}
	sigCookie, err := r.Cookie(SessionSigCookie)
	if err != nil || sigCookie.Value == "" {
		return domain.SessionID{}, ErrUnauthorized
	}
	id, err := domain.ParseSessionID(idCookie.Value)
	if err != nil {
		return domain.SessionID{}, ErrUnauthorized
	}
	sig, err := crypto.DecodeBase64(sigCookie.Value)
	if err != nil {
		return domain.SessionID{}, ErrUnauthorized
	}
	if !m.keys.Verify(id.Bytes(), sig) {
		return domain.SessionID{}, ErrUnauthorized
	}
	return id, nil
}

// Authenticate verifies the signed cookies and that the session is still live.
func (m *Manager) Authenticate(ctx context.Context, db query.DB, r *http.Request) (UserSession, error) {
	id, err := m.Verify(r)
	if err != nil {
		return UserSession{}, err
	}
	s, err := m.store.GetSession(ctx, db, id)
	if err != nil {
		return UserSession{}, ErrUnauthorized
	}
	return UserSession{SessionID: s.ID, UserID: s.UserID}, nil
}

// Destroy removes the session row. Missing rows are not an error.
func (m *Manager) Destroy(ctx context.Context, db query.DB, id domain.SessionID) error {
	if _, err := m.store.DeleteSession(ctx, db, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
