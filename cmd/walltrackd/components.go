package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/walltrack/walltrack/internal/admission"
	"github.com/walltrack/walltrack/internal/api"
	"github.com/walltrack/walltrack/internal/config"
	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/enrichment"
	"github.com/walltrack/walltrack/internal/exits"
	"github.com/walltrack/walltrack/internal/ingress"
	"github.com/walltrack/walltrack/internal/orders"
	"github.com/walltrack/walltrack/internal/ports"
	"github.com/walltrack/walltrack/internal/pricing"
	"github.com/walltrack/walltrack/internal/risk"
	"github.com/walltrack/walltrack/internal/signalpipe"
	"github.com/walltrack/walltrack/internal/sizing"
	"github.com/walltrack/walltrack/internal/storage"
	"github.com/walltrack/walltrack/internal/walletprofile"
)

// initComponents builds every module and wires its collaborators,
// mirroring the teacher's single initComponents() helper that returns
// everything main needs rather than scattering construction across
// main() itself.
func initComponents() (*application, error) {
	cfg, err := config.NewManager(envOrDefault("CONFIG_PATH", "config/config.yaml"))
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.Get().Storage.SQLitePath)
	if err != nil {
		return nil, err
	}

	wallets := storage.NewWalletStore(db)
	orderStore := storage.NewOrderStore(db)
	positionStore := storage.NewPositionStore(db)
	signalLog := storage.NewSignalLog(db)
	queueStore := storage.NewQueueStore(db)
	eventLog := storage.NewEventLog(db)
	strategies := storage.NewExitStrategyStore(db)

	stateStore, err := storage.NewSystemStateStore(context.Background(), db)
	if err != nil {
		return nil, err
	}
	stateManager, err := risk.NewStateManager(context.Background(), stateStore, eventLog)
	if err != nil {
		return nil, err
	}

	ingressCfg := cfg.Get().Ingress
	webhook := ingress.NewWebhook(ingressCfg.ListenHost, ingressCfg.ListenPort, 256)
	walletMonitor := ingress.NewWalletMonitor(
		envOrDefault("WALLET_MONITOR_URL", "ws://localhost:8084/stream"),
		time.Duration(ingressCfg.ReconnectDelayMs)*time.Millisecond,
		time.Duration(ingressCfg.PingIntervalMs)*time.Millisecond,
		256,
	)
	historyFetcher := ingress.NewHistoryFetcher(envOrDefault("SWAP_HISTORY_URL", "http://localhost:8085"))
	tokenFetcher := ingress.NewHTTPTokenFetcher(envOrDefault("TOKEN_FEED_URL", "http://localhost:8083"))

	var clusterService ports.ClusterService = ingress.NeutralClusterService{}
	if url := os.Getenv("CLUSTER_SERVICE_URL"); url != "" {
		clusterService = ingress.NewClusterClient(url)
	}

	enricher := enrichment.New(wallets, tokenFetcher, enrichment.DefaultWalletCacheTTL)

	gate := newWalletGate(wallets)
	filter := signalpipe.NewFilter(gate, dupeChecker{signals: signalLog}, envFloatOrDefault("DUST_THRESHOLD_SOL", 0.01))
	scorer := signalpipe.NewScorer(cfg.Get().Scoring)
	gateDecision := signalpipe.NewGate(cfg.Get().Scoring, cfg.Get().Sizing.HighConvictionMultiplier, cfg.Get().Sizing.StandardConvictionMultiplier)

	priceProviders := []ports.PriceProvider{
		ingress.NewHTTPPriceProvider(domain.SourcePrimaryFeed, envOrDefault("PRICE_FEED_URL", "http://localhost:8082")),
	}
	if secondary := os.Getenv("PRICE_FEED_SECONDARY_URL"); secondary != "" {
		priceProviders = append(priceProviders, ingress.NewHTTPPriceProvider(domain.SourceSecondaryFeed, secondary))
	}
	oracle := pricing.New(priceProviders, 10*time.Second, 5*time.Second, 3*time.Second)

	openPositions := openPositionsAdapter{positions: positionStore}
	concentration := sizing.NewConcentrationChecker(cfg.Get().Concentration, openPositions)
	sizer := sizing.NewSizer(cfg.Get().Sizing, concentration)

	positionCount := positionCounter{positions: positionStore}
	admissionQueue := admission.New(
		positionCount, queueStore, eventLog,
		cfg.Get().Risk.MaxConcurrentPositions, cfg.Get().Queue.MaxQueueSize,
		time.Duration(cfg.Get().Queue.QueueExpiryMinutes)*time.Minute, cfg.Get().Queue.EnableQueue,
	)

	tradeClient := orders.NewSimulatedTradeClient(oracle)
	executor := orders.NewExecutor(orderStore, tradeClient)
	positionBinder := orders.NewPositionBinder(positionStore, strategies, activeExitStrategyName)
	portfolio := portfolioAdapter{cfg: cfg, positions: positionStore}
	entryService := orders.NewEntryService(stateManager, oracle, sizer, orderStore, signalLog, executor, positionBinder, portfolio, cfg.Get().Risk.MaxConcurrentPositions)

	retryWorker := orders.NewRetryWorker(orderStore, signalLog, executor, orders.RetryWorkerConfig{
		PollInterval: time.Duration(cfg.Get().Retries.RetryWorkerPollSeconds) * time.Second,
		BatchSize:    cfg.Get().Retries.RetryWorkerBatchSize,
		LeaseTTL:     time.Duration(cfg.Get().Retries.LeaseTTLSeconds) * time.Second,
	})

	exitManager := exits.New(positionStore, strategies, executor, orderStore)

	riskMonitor := risk.NewMonitor(stateManager, riskMetrics{events: eventLog, positions: positionStore, cfg: cfg, window: cfg.Get().Risk.WinRateWindowSize}, eventLog, risk.MonitorConfig{
		DrawdownThresholdPct:     cfg.Get().Risk.DrawdownThresholdPct,
		WinRateThresholdPct:      cfg.Get().Risk.WinRateThresholdPct,
		WinRateWindowSize:        cfg.Get().Risk.WinRateWindowSize,
		ConsecutiveLossThreshold: cfg.Get().Risk.ConsecutiveLossThreshold,
		PollInterval:             10 * time.Second,
	})

	profilingWorker := walletprofile.NewWorker(wallets, historyFetcher, cfg.Get().Profiling)
	decayRunner := walletprofile.NewDecayRunner(wallets, historyFetcher, eventLog, cfg.Get().Decay)

	apiServer := api.NewServer(
		envOrDefault("CONTROL_API_HOST", "0.0.0.0"),
		envIntOrDefault("CONTROL_API_PORT", 8090),
		stateManager, riskMonitor, orderStore, positionStore,
	)

	app := &application{
		cfg: cfg, db: db,
		wallets: wallets, orderStore: orderStore, positionStore: positionStore,
		signalLog: signalLog, queueStore: queueStore, eventLog: eventLog, strategies: strategies,
		webhook: webhook, walletMonitor: walletMonitor, cluster: clusterService,
		enricher: enricher, filter: filter, scorer: scorer, gate: gateDecision,
		oracle: oracle, concentration: concentration, sizer: sizer,
		admissionQueue: admissionQueue, entryService: entryService, executor: executor,
		retryWorker: retryWorker, positionBinder: positionBinder, exitManager: exitManager,
		stateManager: stateManager, riskMonitor: riskMonitor,
		profilingWorker: profilingWorker, decayRunner: decayRunner,
		wallGate:  gate,
		apiServer: apiServer,
	}
	return app, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloatOrDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
