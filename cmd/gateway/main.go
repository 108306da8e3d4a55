package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	api "github.com/openclass/openclass-lms/internal/api/http"
	"github.com/openclass/openclass-lms/internal/archive"
	"github.com/openclass/openclass-lms/internal/auth"
	"github.com/openclass/openclass-lms/internal/config"
	"github.com/openclass/openclass-lms/internal/docstore"
	"github.com/openclass/openclass-lms/internal/grading"
	"github.com/openclass/openclass-lms/internal/hierarchy"
	"github.com/openclass/openclass-lms/internal/visibility"
	"github.com/openclass/openclass-lms/pkg/logger"
	"github.com/openclass/openclass-lms/pkg/monitoring"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.File)
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("store open failed", zap.Error(err))
	}

	hier := hierarchy.NewRepo(store)
	archSvc := archive.NewService(store, hier, log)
	filt := visibility.NewFilter(hier, log)
	eng := grading.NewEngine(store, hier, grading.VersionGuard{}, log)
	authSvc := auth.NewService(cfg.Auth.Secret, time.Duration(cfg.Auth.TokenHours)*time.Hour, hier)

	monitoring.Init()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(monitoring.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Auth.EnableLogin {
		r.Post("/auth/login", authSvc.LoginHandler())
	}

	r.Group(func(pr chi.Router) {
		pr.Use(authSvc.JWTMiddleware())
		api.Mount(pr, archSvc, filt, eng)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", monitoring.Handler())

	log.Info("listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("store", cfg.Store.Driver))
	if err := http.ListenAndServe(cfg.Server.Addr, r); err != nil {
		log.Fatal("serve", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return docstore.NewMemoryStore(), nil
	case "mongo":
		return docstore.OpenMongo(ctx, cfg.Store.DSN, cfg.Store.MongoDB)
	case "postgres":
		return docstore.OpenSQL(ctx, docstore.DriverPostgres, cfg.Store.DSN)
	default:
		return docstore.OpenSQL(ctx, docstore.DriverSQLite, cfg.Store.DSN)
	}
}
