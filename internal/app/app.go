// Package app wires configuration, storage and services into a runnable
// settlement node. Both the API server and settlectl build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"wallet-settlement/config"
	httpHandler "wallet-settlement/internal/adapter/http/handler"
	"wallet-settlement/internal/adapter/http/middleware"
	pgStorage "wallet-settlement/internal/adapter/storage/postgres"
	redisStorage "wallet-settlement/internal/adapter/storage/redis"
	"wallet-settlement/internal/core/domain"
	"wallet-settlement/internal/core/ports"
	"wallet-settlement/internal/service"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Services are the settlement components built from one configuration.
type Services struct {
	QR         *service.QRServiceImpl
	Payments   *service.PaymentClientImpl
	Ledger     *service.LedgerWriterImpl
	Reconciler *service.PaymentReconciler
	Directory  *service.Directory
	Router     *service.Router
	Audit      *service.AuditServiceImpl
}

// Stores are the infrastructure adapters the services run on.
type Stores struct {
	Wallets    ports.WalletRepository
	Merchants  ports.MerchantRepository
	Devices    ports.DeviceRepository
	QRCodes    ports.QRCodeRepository
	Ledger     ports.LedgerRepository
	Payments   ports.PaymentRepository
	Audit      ports.AuditRepository
	Transactor ports.DBTransactor
	Cache      ports.IdempotencyCache
	Nonces     ports.NonceStore
	RateLimit  ports.RateLimitStore // nil when rate limiting is disabled
	Health     []ports.HealthChecker
}

// App is a fully wired settlement node.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Stores   Stores
	Services Services
	SigSvc   *service.HMACSignatureService

	closers []func()
}

// New connects to PostgreSQL and Redis and builds every service.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	a, err := Build(ctx, cfg, log, PostgresStores(pool), rdb)
	if err != nil {
		_ = rdb.Close()
		pool.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() }, pool.Close)
	return a, nil
}

// PostgresStores builds the repositories over a connection pool.
func PostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		Wallets:    pgStorage.NewWalletRepo(pool),
		Merchants:  pgStorage.NewMerchantRepo(pool),
		Devices:    pgStorage.NewDeviceRepo(pool),
		QRCodes:    pgStorage.NewQRCodeRepo(pool),
		Ledger:     pgStorage.NewLedgerRepo(pool),
		Payments:   pgStorage.NewPaymentRepo(pool),
		Audit:      pgStorage.NewAuditRepo(pool),
		Transactor: pgStorage.NewTransactor(pool),
		Health:     []ports.HealthChecker{pgStorage.NewHealthCheck(pool)},
	}
}

// Build wires the services over the given repositories. Redis-backed stores
// are attached to rdb.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, stores Stores, rdb goredis.UniversalClient) (*App, error) {
	stores.Cache = redisStorage.NewPaymentCache(rdb)
	stores.Nonces = redisStorage.NewNonceStore(rdb)
	if cfg.Security.RateLimiting {
		stores.RateLimit = redisStorage.NewRateLimitStore(rdb)
	}
	stores.Health = append(stores.Health, redisStorage.NewHealthCheck(rdb))

	encSvc, err := service.NewAESEncryptionService(cfg.Security.AESKey)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption service: %w", err)
	}
	codec, err := service.NewJWTQRCodec(cfg.QR.SigningSecret, cfg.QR.Issuer)
	if err != nil {
		return nil, fmt.Errorf("initializing qr codec: %w", err)
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()

	directory := service.NewDirectory(service.FileParticipantLoader{Path: cfg.Directory.File}, log)
	if err := directory.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("loading participant directory: %w", err)
	}
	stores.Health = append(stores.Health, directory)

	routing, err := paymentRouting(cfg)
	if err != nil {
		return nil, err
	}
	router := service.NewRouter(directory, routing)

	auditSvc := service.NewAuditService(stores.Audit, log)
	ledger := service.NewLedgerWriter(stores.Wallets, stores.Ledger, stores.Payments, stores.Transactor, log)

	transport := service.NewHTTPPaymentTransport(
		&http.Client{Timeout: cfg.Gateway.Timeout},
		sigSvc,
		service.TransportConfig{
			SelfParticipantID: cfg.IPS.SelfParticipantID,
			Timeout:           cfg.Gateway.Timeout,
			MaxAttempts:       cfg.Gateway.MaxAttempts,
			Backoff:           cfg.Gateway.Backoff,
		},
		log,
	)

	qrSvc := service.NewQRService(
		stores.QRCodes,
		stores.Merchants,
		stores.Wallets,
		stores.Devices,
		ledger,
		codec,
		hashSvc,
		auditSvc,
		service.QRPolicy{
			DefaultExpiry:       time.Duration(cfg.QR.DefaultExpiry) * time.Minute,
			OfflineExpiry:       time.Duration(cfg.QR.OfflineExpiry) * time.Minute,
			MaxExpiry:           time.Duration(cfg.QR.MaxExpiry) * time.Minute,
			SupportedCurrencies: cfg.QR.SupportedCurrencies,
		},
		log,
	)

	payments := service.NewPaymentClient(stores.Payments, ledger, transport, router, stores.Cache, encSvc, auditSvc, routing, log)

	reconciler := service.NewPaymentReconciler(stores.Payments, ledger, transport, router, service.ReconcilerConfig{
		After: cfg.IPS.ReconcileAfter,
		Batch: cfg.IPS.ReconcileBatch,
	}, log)

	return &App{
		Config: cfg,
		Log:    log,
		Stores: stores,
		Services: Services{
			QR:         qrSvc,
			Payments:   payments,
			Ledger:     ledger,
			Reconciler: reconciler,
			Directory:  directory,
			Router:     router,
			Audit:      auditSvc,
		},
		SigSvc:  sigSvc,
		closers: []func(){auditSvc.Close},
	}, nil
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	deps := httpHandler.RouterDeps{
		QRSvc:          a.Services.QR,
		PaymentClient:  a.Services.Payments,
		Directory:      a.Services.Directory,
		CallbackSecret: a.Services.Router,
		SigSvc:         a.SigSvc,
		NonceStore:     a.Stores.Nonces,
		CallbackAuth: middleware.CallbackAuthConfig{
			MaxDrift: a.Config.Security.CallbackMaxDrift,
			NonceTTL: a.Config.Security.CallbackNonceTTL,
		},
		RateLimitStore: a.Stores.RateLimit,
		AuditSvc:       a.Services.Audit,
		HealthCheckers: a.Stores.Health,
		Logger:         a.Log,
	}
	return httpHandler.SetupRouter(deps)
}

// StartWorkers runs the directory refresher and the payment reconciler until
// ctx is done.
func (a *App) StartWorkers(ctx context.Context) {
	go a.Services.Directory.Run(ctx, a.Config.Directory.RefreshInterval)
	go a.Services.Reconciler.Run(ctx, a.Config.IPS.ReconcileInterval)
}

// Close flushes the audit queue and releases connections.
func (a *App) Close() {
	for _, fn := range a.closers {
		fn()
	}
}

// Validate rejects configurations the node cannot run with.
func Validate(cfg *config.Config) error {
	var errs []error
	if cfg.QR.SigningSecret == "" {
		errs = append(errs, errors.New("qr.signing_secret is required"))
	}
	if cfg.IPS.SelfParticipantID == "" {
		errs = append(errs, errors.New("ips.self_participant_id is required"))
	}
	if cfg.Security.AESKey == "" {
		errs = append(errs, errors.New("security.aes_key is required"))
	}
	if cfg.Gateway.Enabled() && cfg.Gateway.Secret == "" {
		errs = append(errs, errors.New("gateway.secret is required when gateway.url is set"))
	}
	if cfg.IPS.SuspenseWalletID != "" {
		if _, err := uuid.Parse(cfg.IPS.SuspenseWalletID); err != nil {
			errs = append(errs, fmt.Errorf("ips.suspense_wallet_id: %w", err))
		}
	}
	return errors.Join(errs...)
}

func paymentRouting(cfg *config.Config) (service.PaymentRouting, error) {
	routing := service.PaymentRouting{
		SelfParticipantID: cfg.IPS.SelfParticipantID,
		SimulationEnabled: cfg.IPS.SimulationEnabled,
	}
	if cfg.Gateway.Enabled() {
		routing.Gateway = &domain.RouteTarget{
			Route:         domain.PaymentRouteGateway,
			ParticipantID: cfg.Gateway.ParticipantID,
			Endpoint:      cfg.Gateway.URL,
			Secret:        cfg.Gateway.Secret,
		}
	}
	if cfg.IPS.SuspenseWalletID != "" {
		id, err := uuid.Parse(cfg.IPS.SuspenseWalletID)
		if err != nil {
			return routing, fmt.Errorf("parsing suspense wallet id: %w", err)
		}
		routing.SuspenseWalletID = id
	}
	return routing, nil
}
