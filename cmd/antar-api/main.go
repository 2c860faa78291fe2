// README: Entry point; loads config, wires services, starts HTTP server and background jobs.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"antar/internal/config"
	"antar/internal/geo"
	httptransport "antar/internal/http"
	"antar/internal/infra"
	"antar/internal/jobs"
	"antar/internal/logger"
	"antar/internal/modules/dispatch"
	"antar/internal/modules/driver"
	"antar/internal/modules/order"
	"antar/internal/modules/wallet"
	"antar/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger.Init(cfg.Env)
	defer logger.Sync()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal("postgres init failed", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	emitter := notify.NewRedisEmitter(redisClient, log, cfg.Notify.BufferSize)
	defer emitter.Close()

	pickupIndex := geo.NewIndex(redisClient, geo.PickupIndexKey)
	driverIndex := geo.NewIndex(redisClient, geo.DriverIndexKey)

	orderStore := order.NewStore(dbPool)
	orderSvc := order.NewService(orderStore, pickupIndex, emitter)

	driverStore := driver.NewStore(dbPool)
	driverSvc := driver.NewService(driverStore, driverIndex, emitter)

	dispatchStore := dispatch.NewStore(dbPool)
	dispatchSvc := dispatch.NewService(dispatchStore, driverSvc, pickupIndex, emitter, cfg.Dispatch)

	walletStore := wallet.NewStore(dbPool)
	walletSvc := wallet.NewService(walletStore, emitter)

	jobManager := jobs.NewManager(dispatchStore, walletStore, emitter, cfg.Jobs, log)
	if err := jobManager.StartAll(); err != nil {
		log.Fatal("job startup failed", zap.Error(err))
	}
	defer jobManager.StopAll()

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Order:      orderSvc,
		Dispatch:   dispatchSvc,
		Driver:     driverSvc,
		Wallet:     walletSvc,
		AuthSecret: cfg.Auth.Secret,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
	}()

	log.Info("listening", zap.String("addr", cfg.HTTP.Addr), zap.String("env", cfg.Env))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("http server failed", zap.Error(err))
	}
}
