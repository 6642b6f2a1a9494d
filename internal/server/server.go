package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/db"
	"github.com/jjudge-oj/accounts/internal/handlers"
	"github.com/jjudge-oj/accounts/internal/mq"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/rs/zerolog"
)

// Services is the set of use-cases the HTTP layer is built on.
type Services struct {
	Auth         *services.AuthService
	Users        *services.UserService
	Tokens       *services.TokenIssuer
	Verification *services.VerificationService
}

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	logger     zerolog.Logger
}

// New opens the database and broker, wires the services and builds the
// router.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue, err := mq.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	svc, err := NewServices(cfg, dbConn, queue, logger)
	if err != nil {
		_ = dbConn.Close()
		if queue != nil {
			_ = queue.Close()
		}
		return nil, err
	}

	router := NewRouter(cfg, svc, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		logger:     logger,
	}, nil
}

// NewServices wires repositories and services over an open database. queue
// may be nil, in which case no events are published.
func NewServices(cfg config.Config, dbConn *sql.DB, queue *mq.MQ, logger zerolog.Logger) (Services, error) {
	userRepo := store.NewUserRepository(dbConn)
	tokenRepo := store.NewTokenRepository(dbConn)
	attemptRepo := store.NewLoginAttemptRepository(dbConn)

	var publisher services.EventPublisher
	if queue != nil {
		publisher = queue
	}

	hasher := services.NewBcryptHasher(cfg.Auth.BcryptCost)
	users := services.NewUserService(userRepo, hasher, cfg.Auth.MinPasswordLength, logger)
	verifier, err := services.NewCredentialVerifier(users, hasher)
	if err != nil {
		return Services{}, err
	}
	tokens := services.NewTokenIssuer(tokenRepo, users, cfg.Auth.TokenKey, cfg.Auth.TokenTTL, logger)
	attempts := services.NewLoginAttemptLogger(attemptRepo, publisher, cfg.MQ.LoginAttemptsChannel, logger)

	return Services{
		Auth:   services.NewAuthService(users, verifier, tokens, attempts, logger),
		Users:  users,
		Tokens: tokens,
		Verification: services.NewVerificationService(
			users,
			publisher,
			cfg.MQ.EmailVerificationChannel,
			cfg.Auth.VerificationSecret(),
			cfg.Auth.VerificationTTL,
			logger,
		),
	}, nil
}

// NewRouter builds the chi router with the middleware stack and all routes.
func NewRouter(cfg config.Config, svc Services, logger zerolog.Logger) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		handlers.RequestLogger(logger),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	requireAuth := handlers.RequireAuth(svc.Tokens, logger)
	authHandler := handlers.NewAuthHandler(svc.Auth, svc.Users, svc.Verification, logger)
	userHandler := handlers.NewUserHandler(svc.Users, logger)

	router.Get("/healthz", handlers.Healthz)
	router.Get("/docs/openapi.yaml", handlers.OpenAPI)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, requireAuth)
	})
	router.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/user", userHandler.Profile)
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userHandler)
		})
		r.Route("/profile", func(r chi.Router) {
			handlers.ProfileRouter(r, userHandler)
		})
	})

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and releases the database and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
