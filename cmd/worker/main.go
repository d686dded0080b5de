package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sparoodata/mainai-sub000/internal/aiquery"
	"github.com/sparoodata/mainai-sub000/internal/blob"
	"github.com/sparoodata/mainai-sub000/internal/config"
	"github.com/sparoodata/mainai-sub000/internal/dispatch"
	"github.com/sparoodata/mainai-sub000/internal/obs"
	"github.com/sparoodata/mainai-sub000/internal/token"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

const purgeInterval = 10 * time.Minute

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
	defer db.Close()
	db.SetMaxOpenConns(cfg.WorkerConcurrency + 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pool, err := aiquery.NewCredentialPool(cfg.AIAPIKeys)
	if err != nil {
		log.Fatalf("ai credentials: %v", err)
	}
	assistant := aiquery.NewClient(pool, cfg.AIBaseURL, cfg.AIModel,
		time.Duration(cfg.AITimeoutSeconds)*time.Second,
		aiquery.WithContextCap(cfg.AIContextMaxBytes))

	var messenger dispatch.Messenger = dispatch.LogMessenger{}
	if cfg.GatewayURL != "" {
		messenger = dispatch.NewHTTPMessenger(cfg.GatewayURL, cfg.GatewayToken)
	}

	var archive blob.ObjectStore
	if cfg.OSSProvider != "" {
		archive, err = blob.New(blob.Config{
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue := dispatch.NewPGQueue(db)
	tick := time.Duration(cfg.WorkerTickSeconds) * time.Second

	log.Printf("Starting mainai-worker %s (concurrency=%d, tick=%s)", version, cfg.WorkerConcurrency, tick)

	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatch.NewWorker(queue, assistant, messenger, archive).Run(ctx, tick)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		purgeTokens(ctx, token.NewPGStore(db))
	}()

	<-ctx.Done()
	wg.Wait()
	log.Println("Stopped")
}

// purgeTokens trims expired capability tokens on a slow cadence. Expiry
// checks in the store remain the correctness mechanism; this only keeps
// the table from growing without bound.
func purgeTokens(ctx context.Context, store token.Store) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				log.Printf("purge tokens: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("purged %d expired tokens", n)
			}
		}
	}
}
