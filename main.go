package main

import (
	"bidding-core/internal/biddingerrors"
	bidding "bidding-core/internal/biddingService"
	"bidding-core/internal/config"
	model "bidding-core/internal/models"
	"bidding-core/internal/notifier"
	"bidding-core/internal/repository"
	"bidding-core/internal/server"
	"bidding-core/utils"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		utils.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		utils.Warn("unknown log level, keeping default", map[string]any{"level": cfg.LogLevel})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		utils.Fatal("failed to open auction store", map[string]any{"backend": cfg.StorageBackend, "error": err.Error()})
	}
	defer closeRepo()

	broker, err := openBroker(cfg)
	if err != nil {
		utils.Fatal("failed to open notifier", map[string]any{"backend": cfg.NotifierBackend, "error": err.Error()})
	}
	defer broker.Close()

	if cfg.SeedDemo {
		prepopulateAuctions(ctx, repo, time.Now().UTC())
	}

	biddingSvc := bidding.NewBiddingService(repo, broker,
		bidding.WithLimits(bidding.Limits{MaxAmount: cfg.MaxBid}),
		bidding.WithRetry(cfg.SubmitRetries, cfg.SubmitRetryBase),
	)

	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.SetupRouter(biddingSvc),
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with the process so event streams close on shutdown.
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		utils.Info("starting auction server", map[string]any{
			"addr":     srv.Addr,
			"storage":  cfg.StorageBackend,
			"notifier": cfg.NotifierBackend,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return biddingSvc.RunEndWatcher(gctx, cfg.EndWatchInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		utils.Info("shutting down auction server", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		utils.Error("auction server stopped with error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	utils.Info("auction server stopped", nil)
}

// openRepository selects the ledger backend named in cfg
func openRepository(ctx context.Context, cfg *config.Config) (repository.AuctionDB, func(), error) {
	if cfg.StorageBackend != config.BackendPostgres {
		return repository.NewMemoryRepo(), func() {}, nil
	}

	db, err := repository.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RunMigrations {
		if err := repository.Migrate(db); err != nil {
			db.Close()
			return nil, nil, err
		}
	}

	repo := repository.NewPostgresRepo(db)
	return repo, func() {
		if err := repo.Close(); err != nil {
			utils.Warn("failed to close postgres pool", map[string]any{"error": err.Error()})
		}
	}, nil
}

// openBroker selects the event transport named in cfg
func openBroker(cfg *config.Config) (notifier.Broker, error) {
	if cfg.NotifierBackend != config.BackendRedis {
		return notifier.NewHub(cfg.SubscriberBuffer), nil
	}

	client, err := notifier.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	return notifier.NewRedisBroker(client, cfg.SubscriberBuffer), nil
}

// prepopulateAuctions adds sample auctions so a fresh server has something to bid on
func prepopulateAuctions(ctx context.Context, repo repository.AuctionDB, now time.Time) {
	auctions := []model.Auction{
		{ID: "auction1", Title: "Vintage film camera", StartingBid: decimal.NewFromInt(100), EndTime: now.Add(24 * time.Hour)},
		{ID: "auction2", Title: "Signed first edition", StartingBid: decimal.NewFromInt(200), EndTime: now.Add(48 * time.Hour)},
		{ID: "auction3", Title: "Mid-century armchair", StartingBid: decimal.RequireFromString("150.50"), EndTime: now.Add(2 * time.Hour)},
	}

	for _, auction := range auctions {
		if _, err := repo.CreateAuction(ctx, auction); err != nil {
			if errors.Is(err, biddingerrors.ErrAuctionExists) {
				continue
			}
			utils.Warn("failed to seed auction", map[string]any{"auction_id": auction.ID, "error": err.Error()})
		}
	}
}
