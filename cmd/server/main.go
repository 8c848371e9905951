package main // Entry point package

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/clubops/treasury/internal/capacity"
	"github.com/clubops/treasury/internal/config"
	"github.com/clubops/treasury/internal/database"
	"github.com/clubops/treasury/internal/handler"
	"github.com/clubops/treasury/internal/ledger"
	"github.com/clubops/treasury/internal/model"
	"github.com/clubops/treasury/internal/orchestrator"
	"github.com/clubops/treasury/internal/payment"
	"github.com/clubops/treasury/internal/queue"
	"github.com/clubops/treasury/internal/repository"
	"github.com/clubops/treasury/internal/router"
	queuepublisher "github.com/clubops/treasury/internal/service"
	"github.com/clubops/treasury/internal/store"

	"github.com/shopspring/decimal"
)

func main() {
	_ = godotenv.Load() // load .env when present; real env wins

	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	st, err := openStore(cfg)
	if err != nil {
		zap.L().Fatal("store init failed", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	led := ledger.New(st)
	cap := capacity.New(st)

	gateway := payment.NewClient(payment.ClientConfig{
		BaseURL:      cfg.GatewayBaseURL,
		ClientID:     cfg.GatewayClientID,
		ClientSecret: cfg.GatewayClientSecret,
		Destination:  cfg.GatewayDestination,
		Timeout:      cfg.GatewayTimeout,
		TokenMargin:  cfg.GatewayTokenMargin,
	})

	accounts, err := settlementAccounts(st, cfg)
	if err != nil {
		zap.L().Fatal("settlement account setup failed", zap.Error(err))
	}

	engine := payment.NewEngine(st, gateway, led, cap, accounts, cfg.Currency, cfg.ConfirmWait)
	orch := orchestrator.New(st, led, cap, engine, queuepublisher.PublishPaymentSettled)

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Handlers{
		Enrollment: handler.NewEnrollmentHandler(orch, cap, st),
		Event:      handler.NewEventHandler(st),
		Treasury:   handler.NewTreasuryHandler(st, led),
		Webhook:    handler.NewWebhookHandler(orch),
	}, cfg.JWTSecret, config.NewRedisClient())

	// Background consumer mirrors settlements into logs/payments.log.
	go func() {
		if err := queue.StartSettlementConsumer(); err != nil {
			zap.L().Warn("settlement consumer stopped", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Port
	zap.L().Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env),
		zap.String("store", cfg.StoreBackend))
	if err := e.Start(addr); err != nil {
		zap.L().Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// openStore selects the persistence backend.  The memory backend exists
// for local development and demos; everything else runs on MySQL.
func openStore(cfg config.Config) (store.Store, error) {
	if cfg.StoreBackend == "memory" {
		return store.NewMemory(), nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, err
	}
	if err := repository.InitSchema(context.Background(), db); err != nil {
		return nil, err
	}
	return repository.New(db), nil
}

// settlementAccounts resolves the configured account names to ids,
// creating any that do not exist yet.
func settlementAccounts(st store.Store, cfg config.Config) (payment.SettlementAccounts, error) {
	var out payment.SettlementAccounts
	ctx := context.Background()
	err := st.InTx(ctx, func(tx store.Tx) error {
		byName := make(map[string]uint64)
		existing, err := tx.Accounts(ctx)
		if err != nil {
			return err
		}
		for _, a := range existing {
			byName[a.Name] = a.ID
		}
		ensure := func(name string) (uint64, error) {
			if id, ok := byName[name]; ok {
				return id, nil
			}
			a := &model.Account{Name: name, Status: model.AccountOpen, Balance: decimal.Zero}
			if err := tx.CreateAccount(ctx, a); err != nil {
				return 0, err
			}
			byName[name] = a.ID
			return a.ID, nil
		}
		if out.Fee, err = ensure(cfg.FeeAccount); err != nil {
			return err
		}
		if out.Deposit, err = ensure(cfg.DepositAccount); err != nil {
			return err
		}
		out.Service, err = ensure(cfg.ServiceAccount)
		return err
	})
	return out, err
}
