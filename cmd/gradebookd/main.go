package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/labstack/gommon/log"

	api "github.com/coachdiary/gradebook/internal/api/http"
	auth "github.com/coachdiary/gradebook/internal/auth/middleware"
	"github.com/coachdiary/gradebook/internal/config"
	"github.com/coachdiary/gradebook/internal/db"
	"github.com/coachdiary/gradebook/internal/gradebook"
	"github.com/coachdiary/gradebook/internal/rbac"
	"github.com/coachdiary/gradebook/internal/roster"
	"github.com/coachdiary/gradebook/internal/transfer"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := func(prefix string) *log.Logger {
		l := log.New(prefix)
		l.SetLevel(cfg.Level())
		return l
	}
	lg := logger("gradebookd")

	// --- DB ---
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		lg.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	cancel()
	if err != nil {
		lg.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	// --- Services ---
	eng := gradebook.New(gradebook.NewSQLStore(dbh),
		gradebook.WithSiteID(cfg.SiteID),
		gradebook.WithLogger(logger("engine")))
	rs := roster.NewService(roster.NewSQLStore(dbh), eng, logger("roster"))
	handlers := api.New(eng, rs, transfer.NewImporter(eng, logger("import")), logger("api"))

	authSvc := auth.NewAuthService(cfg.AuthSecret, cfg.TokenTTL)
	users := auth.NewUserStore(dbh)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, users))

	// Protected API (JWT -> role from DB -> RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(users, cfg.Mode == config.ModeOffline))

		pr.With(rbac.Require(rbac.PermAccount)).
			Post("/auth/password", auth.ChangePasswordHandler(users))
		handlers.Mount(pr)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// signal handler for shutdown
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-sigCtx.Done()
		lg.Info("shutting down")
		shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			lg.Errorf("shutdown: %v", err)
		}
	}()

	lg.Infof("listening on %s (mode=%s, db=%s, site=%s)", cfg.HTTPAddr, cfg.Mode, driver, cfg.SiteID)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		lg.Fatal(err)
	}
}
