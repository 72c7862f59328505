package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"uchat/internal/domain"
	"uchat/internal/endpoint"
	"uchat/internal/images"
	"uchat/internal/logging"
	"uchat/internal/metrics"
)

type RouterConfig struct {
	CORSOrigins []string
	// LoginRateLimit is the number of login and registration attempts
	// allowed per client IP per minute. Zero disables the limit.
	LoginRateLimit int
	// TrustProxy takes the client IP from X-Forwarded-For and friends. Only
	// enable it behind a proxy that overwrites those headers, otherwise
	// clients can pick their own address and dodge the rate limit.
	TrustProxy bool
}

// Routes builds the API router.
func (st *AppState) Routes(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(RequestLogger)
	if cfg.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	// Outside WithRecover so recovered panics are counted.
	r.Use(metrics.Middleware)
	r.Use(WithRecover)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "this is the uchat api")
	})
	r.Get("/healthz", st.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get(endpoint.UserContentImages+"/{id}", st.serveImage)

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.LoginRateLimit > 0 {
		limit = httprate.LimitByIP(cfg.LoginRateLimit, time.Minute)
	}

	r.Group(func(r chi.Router) {
		r.Use(st.WithConn)

		r.With(limit).Post(endpoint.CreateUserURL, WithPublicHandler[createUser, endpoint.CreateUserOk](st))
		r.With(limit).Post(endpoint.LoginURL, WithPublicHandler[login, endpoint.LoginOk](st))

		r.Post(endpoint.LogoutURL, WithHandler[logout, endpoint.LogoutOk](st))
		r.Post(endpoint.GetMyProfileURL, WithHandler[getMyProfile, endpoint.GetMyProfileOk](st))
		r.Post(endpoint.UpdateProfileURL, WithHandler[updateProfile, endpoint.UpdateProfileOk](st))
		r.Post(endpoint.ViewProfileURL, WithHandler[viewProfile, endpoint.ViewProfileOk](st))
		r.Post(endpoint.FollowUserURL, WithHandler[followUser, endpoint.FollowUserOk](st))
		r.Post(endpoint.IsFollowingURL, WithHandler[isFollowing, endpoint.IsFollowingOk](st))

		r.Post(endpoint.NewPostURL, WithHandler[newPost, endpoint.NewPostOk](st))
		r.Post(endpoint.BookmarkURL, WithHandler[bookmark, endpoint.BookmarkOk](st))
		r.Post(endpoint.BoostURL, WithHandler[boost, endpoint.BoostOk](st))
		r.Post(endpoint.ReactURL, WithHandler[react, endpoint.ReactOk](st))
		r.Post(endpoint.VoteURL, WithHandler[vote, endpoint.VoteOk](st))

		r.Post(endpoint.TrendingPostsURL, WithHandler[trendingPosts, endpoint.TrendingPostsOk](st))
		r.Post(endpoint.HomePostsURL, WithHandler[homePosts, endpoint.HomePostsOk](st))
		r.Post(endpoint.LikedPostsURL, WithHandler[likedPosts, endpoint.LikedPostsOk](st))
		r.Post(endpoint.BookmarkedPostsURL, WithHandler[bookmarkedPosts, endpoint.BookmarkedPostsOk](st))
	})

	return r
}

func (st *AppState) health(w http.ResponseWriter, r *http.Request) {
	if err := st.pool.Ping(r.Context()); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
		writeJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

func (st *AppState) serveImage(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseImageID(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	f, contentType, err := st.images.Open(id)
	if errors.Is(err, images.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	defer f.Close()
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; sandbox")
	h.Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, id.String(), time.Time{}, f)
}
