package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend/internal/api"
	"backend/internal/bank"
	"backend/internal/engine"
	"backend/internal/logger"
	"backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/tonkeeper/tongo/ton"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		panic("no .env file found")
	}

	logger.Initialize(logger.Configuration{
		LogFile: os.Getenv("LOG_FILE"),
		Level:   os.Getenv("LOG_LEVEL"),
		Console: true,
	})

	databasePath := os.Getenv("DATABASE_PATH")
	if databasePath == "" {
		databasePath = "lottery.db"
	}
	sqliteStore := store.NewSqliteStore(databasePath)

	var tonBank *bank.TonBank
	var funds engine.FundsVerifier
	if os.Getenv("WALLET_MNEMONIC") != "" {
		tonBank = bank.NewTonBank(
			os.Getenv("TONAPI_TOKEN"),
			os.Getenv("WALLET_MNEMONIC"),
			os.Getenv("WALLET_VERSION"),
		)
		funds = tonBank
	}

	lotteryEngine := engine.New(sqliteStore, funds)
	if err := bootstrap(ctx, sqliteStore, lotteryEngine, tonBank); err != nil {
		panic(err)
	}

	var handlerBank api.Bank
	if tonBank != nil {
		handlerBank = tonBank
	}
	httpHandler := api.NewHTTPHandler(lotteryEngine, handlerBank)

	router := gin.Default()
	httpHandler.RegisterRoutes(router)

	address := os.Getenv("LISTEN_ADDRESS")
	if address == "" {
		address = ":8080"
	}
	server := &http.Server{
		Addr:    address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("address", address))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		fmt.Printf("stopping due to error: %v\n", err)
		cancel()
	case <-waitForInterrupt():
		fmt.Println("interrupt signal received")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}

// bootstrap sets up the campaign from LOTTERY_CONFIG on first start. An
// already initialized database is left untouched.
func bootstrap(ctx context.Context, s engine.Store, lotteryEngine *engine.Engine, tonBank *bank.TonBank) error {
	configPath := os.Getenv("LOTTERY_CONFIG")
	if configPath == "" {
		return nil
	}
	existing, err := s.GetLottery()
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	var msg engine.InitMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}

	ownerID, err := ton.ParseAccountID(os.Getenv("OWNER_ADDRESS"))
	if err != nil {
		return fmt.Errorf("invalid OWNER_ADDRESS: %w", err)
	}

	var height int64
	if tonBank != nil {
		height, err = tonBank.Height(ctx)
		if err != nil {
			return err
		}
	}

	_, err = lotteryEngine.Initialize(engine.Env{
		Sender: ownerID.ToRaw(),
		Time:   time.Now().UTC(),
		Height: height,
	}, msg)
	return err
}

func waitForInterrupt() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	return sigCh
}
