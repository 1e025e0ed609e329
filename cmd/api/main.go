package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/gateway"
	"app/internal/handler"
	"app/internal/infra/db"
	infraRepo "app/internal/infra/repository"
	"app/internal/server"
	"app/internal/usecase"
	"app/internal/worker"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
)

func main() {
	//.envは無くても環境変数だけで動く
	_ = godotenv.Load("../.env")

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		panic(err)
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.Flower{},
		&model.Order{},
		&model.OrderItem{},
		&model.Transaction{},
	); err != nil {
		panic(err)
	}

	//Repository（GORM実装）生成
	flowerRepo := infraRepo.NewFlowerGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	txRepo := infraRepo.NewTransactionGormRepository(gormDB)
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//決済ゲートウェイ
	payos := gateway.NewPayOSClient(cfg.PayOSBaseURL, cfg.PayOSClientID, cfg.PayOSAPIKey, cfg.PayOSChecksumKey)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(userRepo, cfg.JWTSecret)
	flowerUC := usecase.NewFlowerUsecase(flowerRepo)
	orderUC := usecase.NewOrderUsecase(txManager)
	paymentUC := usecase.NewPaymentUsecase(txManager, payos)
	transactionUC := usecase.NewTransactionUsecase(txRepo)

	//Handler生成
	h := server.Handlers{
		Auth:        handler.NewAuthHandler(authUC),
		Flower:      handler.NewFlowerHandler(flowerUC),
		Order:       handler.NewOrderHandler(orderUC),
		Payment:     handler.NewPaymentHandler(paymentUC, cfg.FEURL),
		Transaction: handler.NewTransactionHandler(transactionUC),
	}

	e := server.New(cfg, h)

	//タイムアウトリーパー起動（SIGINT/SIGTERMで止まる）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reaper := worker.NewPaymentReaper(txManager, orderRepo, cfg.ReaperInterval, cfg.PaymentTimeout, log.New("reaper"))
	reaper.Start(ctx)

	//Server起動
	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal(err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Error(err)
	}
}
