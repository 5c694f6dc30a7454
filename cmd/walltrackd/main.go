// Command walltrackd is WallTrack's composition root: it wires every
// module (C1-C16) named in spec.md into one running process, the way
// the teacher pack's cmd/bot/main.go wires blockchain/trading/tui
// components together — with the operator dashboard attached by
// default, or headless when HEADLESS=1.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/walltrack/walltrack/internal/admission"
	"github.com/walltrack/walltrack/internal/api"
	"github.com/walltrack/walltrack/internal/cli"
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

// activeExitStrategyName is the single named, versioned exit strategy
// this deployment runs (see DESIGN.md's cmd/walltrackd entry for
// why the binder resolves one configured name rather than per-signal).
const activeExitStrategyName = "default"

func main() {
	setupLogger()
	log.Info().Msg("walltrackd starting...")

	app, err := initComponents()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize components")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.start(ctx)

	headless := os.Getenv("HEADLESS") == "1"
	if headless {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
	} else {
		runDashboard(app)
	}

	log.Info().Msg("shutting down...")
	cancel()
	if err := app.apiServer.Shutdown(); err != nil {
		log.Error().Err(err).Msg("api server shutdown error")
	}
	if err := app.webhook.Shutdown(); err != nil {
		log.Error().Err(err).Msg("webhook shutdown error")
	}
	log.Info().Msg("goodbye")
}

func runDashboard(app *application) {
	logFile, err := os.OpenFile("data/walltrackd.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open log file: %v\n", err)
		log.Logger = zerolog.Nop()
	} else {
		log.Logger = zerolog.New(logFile).With().Timestamp().Logger()
	}

	dashboard := cli.NewDashboard(app.stateManager, app.orderStore, app.positionStore)
	p := tea.NewProgram(dashboard, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard exited with error: %v\n", err)
	}
}

func setupLogger() {
	log.Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"},
	).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// application bundles every wired component the two run modes share.
type application struct {
	cfg *config.Manager
	db  *storage.DB

	wallets    *storage.WalletStore
	orderStore *storage.OrderStore
	positionStore *storage.PositionStore
	signalLog  *storage.SignalLog
	queueStore *storage.QueueStore
	eventLog   *storage.EventLog
	strategies *storage.ExitStrategyStore

	webhook       *ingress.Webhook
	walletMonitor *ingress.WalletMonitor
	cluster       ports.ClusterService

	enricher *enrichment.Enricher
	filter   *signalpipe.Filter
	scorer   *signalpipe.Scorer
	gate     *signalpipe.Gate

	oracle          *pricing.Oracle
	concentration   *sizing.ConcentrationChecker
	sizer           *sizing.Sizer
	admissionQueue  *admission.Queue
	entryService    *orders.EntryService
	executor        *orders.Executor
	retryWorker     *orders.RetryWorker
	positionBinder  *orders.PositionBinder
	exitManager     *exits.Manager

	stateManager    *risk.StateManager
	riskMonitor     *risk.Monitor
	profilingWorker *walletprofile.Worker
	decayRunner     *walletprofile.DecayRunner

	wallGate *walletGate

	apiServer *api.Server
}

func (a *application) start(ctx context.Context) {
	a.wallGate.Start(ctx, 30*time.Second)
	a.riskMonitor.Start(ctx)
	a.profilingWorker.Start(ctx)
	a.decayRunner.Start(ctx, time.Duration(a.cfg.Get().Profiling.PollIntervalSeconds)*time.Second)
	a.retryWorker.Start(ctx)

	go a.runIngestLoop(ctx)
	go a.runExitTickLoop(ctx)
	go a.walletMonitor.Run(ctx)

	go func() {
		if err := a.webhook.Start(); err != nil {
			log.Error().Err(err).Msg("webhook server failed")
		}
	}()
	go func() {
		if err := a.apiServer.Start(); err != nil {
			log.Error().Err(err).Msg("control/query API server failed")
		}
	}()
}

// runIngestLoop drains both ingress channels through C2-C8's pipeline:
// filter, enrich, score, gate, then admission.
func (a *application) runIngestLoop(ctx context.Context) {
	a.admissionQueue.SetExecuteCallback(func(ctx context.Context, signal domain.ScoredSignal) {
		if _, err := a.entryService.ProcessSignal(ctx, &signal); err != nil {
			log.Error().Err(err).Str("signal_id", signal.SignalID).Msg("entry service failed processing queued signal")
		}
	})

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-a.webhook.Events:
			if !ok {
				return
			}
			a.processSwapEvent(ctx, ev)
		case ev, ok := <-a.walletMonitor.Events:
			if !ok {
				return
			}
			a.processSwapEvent(ctx, ev)
		}
	}
}

func (a *application) processSwapEvent(ctx context.Context, ev domain.SwapEvent) {
	result := a.filter.Run(ctx, ev)
	if !result.Passed() {
		log.Debug().Str("tx", ev.TxSignature).Str("status", string(result.Status)).Msg("signal filtered")
		return
	}

	wallet := a.enricher.WalletProfile(ctx, ev.WalletAddr)
	token := a.enricher.TokenCharacteristics(ctx, ev.TokenAddr)
	cluster, err := a.cluster.GetClusterFor(ctx, ev.WalletAddr)
	if err != nil {
		cluster = domain.ClusterInfo{ClusterID: ev.WalletAddr, Multiplier: 1.0}
	}

	scored := a.scorer.Score(wallet, token, cluster)
	scored.SignalID = domain.NewID()
	scored.Event = ev
	scored = a.gate.Apply(scored, token)

	if err := a.signalLog.Append(ctx, &scored); err != nil {
		log.Error().Err(err).Str("signal_id", scored.SignalID).Msg("failed to append scored signal")
	}

	if scored.Eligibility != domain.EligibilityEligible {
		return
	}

	outcome, err := a.admissionQueue.Request(ctx, scored)
	if err != nil {
		log.Error().Err(err).Str("signal_id", scored.SignalID).Msg("admission queue request failed")
		return
	}
	switch outcome {
	case admission.Allowed:
		if _, err := a.entryService.ProcessSignal(ctx, &scored); err != nil {
			log.Error().Err(err).Str("signal_id", scored.SignalID).Msg("entry service failed")
		}
	case admission.BlockedNoQueue:
		_ = a.signalLog.UpdateExecutionStatus(ctx, scored.SignalID, "Blocked", "queue_full")
	}
}

// runExitTickLoop re-prices every open position against the oracle and
// runs C12's exit checks, matching the teacher's ticker-driven
// monitoring loop shape.
func (a *application) runExitTickLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tickExits(ctx)
		}
	}
}

func (a *application) tickExits(ctx context.Context) {
	open, err := a.positionStore.ListOpen(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list open positions for exit tick")
		return
	}
	for _, position := range open {
		quote := a.oracle.PriceOf(ctx, position.TokenAddress)
		if !quote.OK {
			continue
		}
		if err := a.exitManager.ProcessPosition(ctx, position, quote.Price); err != nil {
			log.Error().Err(err).Str("position_id", position.ID).Msg("exit manager failed to process position")
			continue
		}
		if position.Status == domain.PositionClosed {
			a.admissionQueue.OnPositionClosed(ctx, position.ID)
		}
	}
}
