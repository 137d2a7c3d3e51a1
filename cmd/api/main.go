package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storefront/internal/audit"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/httpserver"
	"storefront/internal/migrate"
	"storefront/internal/repository/cartstore"
	orderrepo "storefront/internal/repository/order"
	productrepo "storefront/internal/repository/product"
	userrepo "storefront/internal/repository/user"
	cartsvc "storefront/internal/service/cart"
	ordersvc "storefront/internal/service/order"
	productsvc "storefront/internal/service/product"
	usersvc "storefront/internal/service/user"
)

const sweepEvery = time.Minute

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbpool, err := db.Connect(ctx, cfg.DBConnString, logger)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	if err := migrate.Apply(ctx, dbpool, logger); err != nil {
		return err
	}

	readiness := map[string]httpserver.Pinger{"postgres": dbpool}

	var carts cartstore.Backend
	switch cfg.CartBackend {
	case "redis":
		rdb := cartstore.NewRedis(cartstore.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.SessionTTL,
		}, logger)
		defer rdb.Close()
		readiness["redis"] = rdb
		carts = rdb
	case "postgres":
		carts = cartstore.NewPostgres(dbpool, logger)
	case "memory":
		carts = cartstore.NewMemory()
	default:
		return errors.New("unknown CART_BACKEND " + cfg.CartBackend)
	}
	logger.Info("cart backend selected", zap.String("backend", cfg.CartBackend))

	var recorder audit.Recorder = audit.NewMemory()
	if cfg.MongoURI != "" {
		mongoRec, err := audit.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoAuditCollection, logger)
		if err != nil {
			return err
		}
		defer func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoRec.Close(cctx); err != nil {
				logger.Warn("mongo close failed", zap.Error(err))
			}
		}()
		readiness["mongo"] = mongoRec
		recorder = mongoRec
	}

	productRepo := productrepo.NewPostgres(dbpool, logger)
	userRepo := userrepo.NewPostgres(dbpool, logger)
	orderRepo := orderrepo.NewPostgres(dbpool, logger)

	orderService := ordersvc.New(orderRepo, productRepo, recorder, logger, ordersvc.Options{
		CommitTimeout: cfg.CommitTimeout,
	})
	sessions := cartsvc.NewManager(carts, cfg.SessionTTL, logger)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, httpserver.Deps{
		ProductSvc:  productsvc.New(productRepo),
		CartSvc:     cartsvc.New(productRepo),
		Sessions:    sessions,
		OrderSvc:    orderService,
		UserSvc:     usersvc.New(userRepo, cfg.AdminKeyHash),
		TaxRate:     cfg.TaxRate,
		CORSOrigins: cfg.CORSOrigins,
		Readiness:   readiness,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sessions.Run(gctx, sweepEvery)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
		}
		orderService.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
