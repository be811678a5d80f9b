package server

import (
	"net/http"
	"time"

	"github.com/brk3/streakmate/internal/config"
	"github.com/brk3/streakmate/internal/logger"
	"github.com/brk3/streakmate/internal/partnership"
	"github.com/brk3/streakmate/internal/storage"
	"github.com/brk3/streakmate/internal/streak"
	"github.com/brk3/streakmate/internal/tracker"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
)

type AuthProvider struct {
	name       string
	oauth2     *oauth2.Config
	oidcProv   *oidc.Provider
	idVerifier *oidc.IDTokenVerifier
	state      *StateStore
}

type Server struct {
	cfg           *config.Config
	store         storage.Store
	streaks       *streak.Engine
	partners      *partnership.Engine
	tracker       *tracker.Service
	authProviders map[string]*AuthProvider
	sessionCookie *securecookie.SecureCookie
	acceptLimiter *userLimiter
	now           func() time.Time
}

func New(cfg *config.Config, store storage.Store) (*Server, error) {
	s := &Server{
		cfg:           cfg,
		store:         store,
		streaks:       streak.New(store),
		partners:      partnership.New(store, cfg.Partnership.InviteTTL),
		tracker:       tracker.New(store),
		acceptLimiter: newUserLimiter(cfg.Partnership.AcceptPerMinute, cfg.Partnership.AcceptBurst),
		now:           time.Now,
	}

	if cfg.AuthEnabled {
		providers, cookie, err := ConfigureOIDCProviders(cfg)
		if err != nil {
			return nil, err
		}
		s.authProviders = providers
		s.sessionCookie = cookie
	}

	logger.Info("Server configured", "auth_enabled", cfg.AuthEnabled, "providers", len(s.authProviders))
	return s, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(metricsMiddleware)

	r.Get("/version", s.getVersionInfo)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", s.simpleLogin)
		r.Get("/login/{id}", s.login)
		r.Get("/callback/{id}", s.callback)
		r.Post("/logout", s.logout)
		r.Get("/token", s.getAPIToken)

		r.Group(func(r chi.Router) {
			s.protect(r)
			r.Get("/api_keys", s.listAPIKeys)
			r.Post("/api_keys", s.generateAPIKey)
			r.Delete("/api_keys/{hash}", s.deleteAPIKey)
		})
	})

	r.Group(func(r chi.Router) {
		s.protect(r)

		r.Route("/habits", func(r chi.Router) {
			r.Get("/", s.listHabits)
			r.Post("/", s.createHabit)
			r.Route("/{habit_id}", func(r chi.Router) {
				r.Get("/", s.getHabit)
				r.Patch("/", s.updateHabit)
				r.Delete("/", s.deleteHabit)
				r.Post("/archive", s.archiveHabit)
				r.Post("/share", s.shareHabit)
				r.Get("/summary", s.getHabitSummary)
				r.Get("/logs", s.listLogs)
				r.Put("/logs/{date}", s.markStatus)
				r.Post("/streak/increment", s.incrementStreak)
				r.Post("/streak/reset", s.resetStreak)
				r.Get("/items", s.listItems)
				r.Post("/items", s.addItem)
				r.Put("/items/order", s.reorderItems)
				r.Delete("/items/{item_id}", s.removeItem)
			})
		})

		r.Get("/me", s.getMe)
		r.Put("/me", s.updateMe)

		r.Route("/partnerships", func(r chi.Router) {
			r.Get("/", s.listPartnerships)
			r.Post("/", s.createPartnership)
			r.With(s.rateLimitAccept).Post("/accept", s.acceptPartnership)
			r.Post("/{partnership_id}/revoke", s.revokePartnership)
		})
		r.Get("/partners/{owner_id}/habits", s.getPartnerView)
	})

	return r
}

// protect installs authentication on a route group when auth is enabled.
func (s *Server) protect(r chi.Router) {
	if !s.cfg.AuthEnabled {
		return
	}
	r.Use(s.authMiddleware)
	r.Use(s.userAwareMetricsMiddleware)
}
