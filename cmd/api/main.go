package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	"storefront/internal/infra/publisher"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/infra/shopapi"
	"storefront/internal/pricing"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsDev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	//.envは無くてもよい（本番は環境変数）
	_ = godotenv.Load("../.env")

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	if err := db.Migrate(gormDB); err != nil {
		log.Fatal("db migrate failed", zap.Error(err))
	}

	//Redis（商品キャッシュ・二重送信ロック）
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, catalog cache disabled until it recovers", zap.Error(err))
	}

	//リモートAPI
	shop := shopapi.NewClient(shopapi.Options{
		BaseURL:         cfg.ShopAPIURL,
		Timeout:         cfg.ShopAPITimeout,
		TransferTimeout: cfg.TransferTimeout,
		Logger:          log,
	})
	catalog := cache.NewCatalogCache(shop, rdb, cfg.CatalogCacheTTL, log)
	locker := cache.NewInflightLock(rdb, cfg.InflightLockTTL)

	//Repository（GORM実装）生成
	snapshots := infraRepo.NewSnapshotGormRepository(gormDB)
	attempts := infraRepo.NewPaymentAttemptGormRepository(gormDB)
	steps := infraRepo.NewCleanupStepGormRepository(gormDB)
	recon := infraRepo.NewReconciliationGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	policy := pricing.Policy{
		FreeDeliveryThreshold: cfg.FreeDeliveryThreshold,
		DeliveryFee:           cfg.DeliveryFee,
		Vouchers:              cfg.Vouchers,
	}

	//Usecase生成
	cleanupUC := usecase.NewCleanupUsecase(txm, steps, snapshots, catalog, shop, log)
	paymentUC := usecase.NewPaymentUsecase(txm, snapshots, attempts, shop, shop, locker, cleanupUC, log)
	checkoutUC := usecase.NewCheckoutUsecase(catalog, shop, shop, snapshots, locker, paymentUC, policy, log)
	walletUC := usecase.NewWalletUsecase(shop, log)

	//照合イベントをKafkaへ
	if len(cfg.KafkaBrokers) > 0 {
		poller := publisher.NewOutboxPoller(recon, log, cfg.KafkaBrokers...)
		defer poller.Close()
		go poller.Run(ctx)
	} else {
		log.Info("KAFKA_BROKERS not set, reconciliation events stay in the database")
	}

	//Handler生成
	e := server.New(cfg, log, server.Handlers{
		Checkout: handler.NewCheckoutHandler(checkoutUC),
		Payment:  handler.NewPaymentHandler(paymentUC, walletUC),
		Wallet:   handler.NewWalletHandler(walletUC),
	})

	//Server起動
	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}
	log.Info("storefront listening", zap.String("addr", addr), zap.String("shop_api", cfg.ShopAPIURL))

	if err := server.Start(ctx, e, addr); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
	log.Info("storefront stopped")
}
