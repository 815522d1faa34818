package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"barter/internal/config"
	"barter/internal/constants"
	"barter/internal/models"
	"barter/internal/ratelimit"
	"barter/internal/ws"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Database      Pinger
	Tokens        AccessTokenValidator
	Accounts      AccountService
	Trades        TradeService
	Notifications NotificationService
	Limiter       ratelimit.Limiter
	Hub           *ws.Hub
}

type Server struct {
	router  *chi.Mux
	gateway *RateLimitGateway
}

func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	resolver, err := NewClientIPResolver(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return nil, err
	}
	gateway := NewRateLimitGateway(deps.Limiter, resolver, cfg.RateLimit.SkipPaths)

	authHandler := NewAuthHandler(deps.Accounts)
	tradeHandler := NewTradeHandler(deps.Trades)
	notificationHandler := NewNotificationHandler(deps.Notifications)
	wsHandler := NewWebSocketHandler(deps.Hub, deps.Tokens, cfg.WebSocket)
	healthHandler := NewHealthHandler(deps.Database, gateway, deps.Hub)

	authMiddleware := NewAuthMiddleware(deps.Tokens)

	r := chi.NewRouter()
	r.Use(slogRequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.WebSocket.AllowedOrigins))
	r.Use(securityHeadersMiddleware)
	r.Use(gateway.Middleware)

	r.Get("/health", healthHandler.Check)
	r.Get("/ws", wsHandler.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(maxBodySizeMiddleware(1 << 20)) // 1 MB

		r.Route("/auth", func(r chi.Router) {
			r.With(authRouteLimit(resolver, 10, time.Minute)).Post("/register", authHandler.Register)
			r.With(authRouteLimit(resolver, 10, time.Minute)).Post("/login", authHandler.Login)
			r.With(authRouteLimit(resolver, 30, time.Minute)).Post("/refresh", authHandler.Refresh)
			r.With(authRouteLimit(resolver, 5, time.Minute)).Post("/forgot-password", authHandler.ForgotPassword)
			r.With(authRouteLimit(resolver, 10, time.Minute)).Post("/reset-password", authHandler.ResetPassword)

			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireAuth)
				r.Get("/session", authHandler.Session)
				r.Post("/logout", authHandler.Logout)
			})
		})

		r.Route("/trades", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Get("/", tradeHandler.List)
			r.Post("/", tradeHandler.Create)

			r.Route("/{tradeID}", func(r chi.Router) {
				r.Get("/", tradeHandler.Get)
				r.Post("/status", tradeHandler.UpdateStatus)
				r.Post("/accept", tradeHandler.StatusAction(models.TradeAccepted))
				r.Post("/reject", tradeHandler.StatusAction(models.TradeRejected))
				r.Post("/cancel", tradeHandler.StatusAction(models.TradeCancelled))
				r.Post("/complete", tradeHandler.StatusAction(models.TradeCompleted))
				r.Get("/messages", tradeHandler.ListMessages)
				r.Post("/messages", tradeHandler.PostMessage)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(authMiddleware.RequireAuth)
			r.Get("/", notificationHandler.List)
			r.Post("/read", notificationHandler.MarkRead)
			r.Post("/read-all", notificationHandler.MarkAllRead)
		})
	})

	return &Server{
		router:  r,
		gateway: gateway,
	}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) RateLimitStats() RateLimitStats {
	return s.gateway.Stats()
}

// corsMiddleware echoes allowed origins and rejects the rest. Loopback
// origins are always allowed for local development.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if !originAllowed(origin, allowedOrigins) {
					writeError(w, http.StatusForbidden, constants.ErrCodeInvalidRequest, "Origin not allowed")
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, allowedOrigins []string) bool {
	if isLoopbackOrigin(origin) {
		return true
	}
	for _, allowed := range allowedOrigins {
		if originMatchesAllowed(origin, allowed) {
			return true
		}
	}
	return false
}

func maxBodySizeMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"component", "api",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr,
		)
	})
}
