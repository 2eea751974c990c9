package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"crm-automation-api/internal/api/common"
	"crm-automation-api/internal/api/execution"
	"crm-automation-api/internal/api/health"
	apimonitor "crm-automation-api/internal/api/monitor"
	"crm-automation-api/internal/api/rule"
	"crm-automation-api/internal/api/user"
	"crm-automation-api/internal/logger"
	"crm-automation-api/internal/preset"
	"crm-automation-api/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps bundelt alles wat de server nodig heeft.
type Deps struct {
	Store          store.Storer
	Executor       rule.Executor
	Monitors       apimonitor.Controller
	Presets        []preset.Preset
	Health         health.Checker
	Gatherer       prometheus.Gatherer
	JWTSecret      string
	AllowedOrigins []string
	Logger         *zap.Logger
}

type Server struct {
	Router *chi.Mux
	deps   Deps
	log    *zap.Logger
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Presets == nil {
		d.Presets = preset.Defaults()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	server := &Server{
		Router: chi.NewRouter(),
		deps:   d,
		log:    logger.WithContext(d.Logger, zap.String("component", "api")),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.RealIP)
	s.Router.Use(s.requestLogger)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	log := s.log
	st := s.deps.Store

	s.Router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.HandleHealth(s.deps.Health, log))

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/me", user.HandleGetMe(st, log))

			r.Route("/rules", func(r chi.Router) {
				r.Get("/", rule.HandleGetRules(st, log))
				r.Post("/", rule.HandleCreateRule(st, log))
				r.Post("/presets/apply", rule.HandleApplyPresets(st, s.deps.Presets, log))

				r.Route("/{ruleId}", func(r chi.Router) {
					r.Get("/", rule.HandleGetRule(st, log))
					r.Put("/", rule.HandleUpdateRule(st, log))
					r.Delete("/", rule.HandleDeleteRule(st, log))
					r.Put("/toggle", rule.HandleToggleRule(st, log))
					r.Post("/execute", rule.HandleExecuteRule(st, s.deps.Executor, log))
					r.Get("/executions", execution.HandleGetExecutionsForRule(st, log))
				})
			})

			r.Get("/executions", execution.HandleGetExecutions(st, log))

			r.Route("/monitors", func(r chi.Router) {
				r.Get("/", apimonitor.HandleList(s.deps.Monitors, log))
				r.Get("/{name}", apimonitor.HandleStatus(s.deps.Monitors, log))
				r.Post("/{name}/start", apimonitor.HandleStart(s.deps.Monitors, log))
				r.Post("/{name}/stop", apimonitor.HandleStop(s.deps.Monitors, log))
				r.Post("/{name}/scan", apimonitor.HandleRunNow(s.deps.Monitors, log))
			})
		})
	})
}

// requestLogger logt elke request met status en duur.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.Debug("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// authMiddleware valideert JWT en zet user ID in context
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	jwtKey := []byte(s.deps.JWTSecret)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			common.WriteJSONError(w, http.StatusUnauthorized, "Geen authenticatie header", s.log)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("ongeldige signing method")
			}
			return jwtKey, nil
		})

		if err != nil || !token.Valid {
			common.WriteJSONError(w, http.StatusUnauthorized, "Ongeldige token", s.log)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			common.WriteJSONError(w, http.StatusUnauthorized, "Ongeldige claims", s.log)
			return
		}

		userIDStr, ok := claims["user_id"].(string)
		if !ok {
			common.WriteJSONError(w, http.StatusUnauthorized, "Geen user ID in token", s.log)
			return
		}

		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			common.WriteJSONError(w, http.StatusUnauthorized, "Ongeldig user ID", s.log)
			return
		}

		ctx := context.WithValue(r.Context(), common.UserContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
