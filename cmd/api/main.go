package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sparoodata/mainai-sub000/internal/aiquery"
	"github.com/sparoodata/mainai-sub000/internal/blob"
	"github.com/sparoodata/mainai-sub000/internal/config"
	"github.com/sparoodata/mainai-sub000/internal/dispatch"
	"github.com/sparoodata/mainai-sub000/internal/httpapi"
	"github.com/sparoodata/mainai-sub000/internal/obs"
	"github.com/sparoodata/mainai-sub000/internal/token"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pool, err := aiquery.NewCredentialPool(cfg.AIAPIKeys)
	if err != nil {
		log.Fatalf("ai credentials: %v", err)
	}
	assistant := aiquery.NewClient(pool, cfg.AIBaseURL, cfg.AIModel,
		time.Duration(cfg.AITimeoutSeconds)*time.Second,
		aiquery.WithContextCap(cfg.AIContextMaxBytes))

	var uploads blob.ObjectStore
	if cfg.OSSProvider != "" {
		uploads, err = blob.New(blob.Config{
			Provider:        cfg.OSSProvider,
			Endpoint:        cfg.OSSEndpoint,
			Bucket:          cfg.OSSBucket,
			BasePrefix:      cfg.OSSBasePrefix,
			AccessKeyID:     cfg.OSSAccessKeyID,
			AccessKeySecret: cfg.OSSAccessKeySecret,
			LocalDir:        cfg.OSSLocalDir,
		})
		if err != nil {
			log.Fatalf("object store: %v", err)
		}
	}

	api := httpapi.New(
		httpapi.ReadyProbe{DB: db},
		version,
		token.NewPGStore(db),
		dispatch.NewPGQueue(db),
		assistant,
		uploads,
		httpapi.Options{
			PublicBaseURL: cfg.PublicBaseURL,
			CommandPrefix: cfg.AICommandPrefix,
			TokenTTL:      time.Duration(cfg.TokenTTLMinutes) * time.Minute,
		},
	)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting mainai-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
