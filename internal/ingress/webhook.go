// Package ingress turns external push sources into the domain's one
// true input fact, SwapEvent: a fiber webhook for push-based swap
// delivery, and a gorilla/websocket wallet-monitor client for streamed
// delivery. Each exposes its own Events channel, and the composition
// root drains both into the pipeline; C3 (Signal Filter) is the single
// place that dedups by tx_signature.
package ingress

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/walltrack/walltrack/internal/domain"
)

// swapPayload is the wire shape a webhook POST body is parsed into.
type swapPayload struct {
	TxSignature string  `json:"tx_signature"`
	WalletAddr  string  `json:"wallet_address"`
	TokenAddr   string  `json:"token_address"`
	Direction   string  `json:"direction"`
	AmountToken string  `json:"amount_token"`
	AmountSOL   string  `json:"amount_sol"`
	Slot        uint64  `json:"slot"`
	BlockTime   int64   `json:"block_time"`
}

// Webhook is the fiber HTTP push endpoint for swap delivery (spec.md §4.3's
// "ingress adapter"). Every parsed event is forwarded to Events,
// non-blocking: a saturated channel drops the event rather than stalling
// the HTTP handler.
type Webhook struct {
	app    *fiber.App
	host   string
	port   int
	Events chan domain.SwapEvent
}

// NewWebhook builds a Webhook listening on host:port, matching the
// teacher's fiber.Config(DisableStartupMessage, fixed timeouts) shape.
func NewWebhook(host string, port int, bufferSize int) *Webhook {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:            5 * time.Second,
		WriteTimeout:           5 * time.Second,
	})

	w := &Webhook{
		app: app, host: host, port: port,
		Events: make(chan domain.SwapEvent, bufferSize),
	}
	w.setupRoutes()
	return w
}

func (w *Webhook) setupRoutes() {
	w.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().Unix()})
	})
	w.app.Post("/webhook/swap", w.handleSwap)
}

func (w *Webhook) handleSwap(c *fiber.Ctx) error {
	var payload swapPayload
	if err := c.BodyParser(&payload); err != nil {
		log.Error().Err(err).Msg("ingress: failed to parse swap payload")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	event, err := toSwapEvent(payload)
	if err != nil {
		log.Error().Err(err).Str("tx", payload.TxSignature).Msg("ingress: failed to decode swap payload")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	select {
	case w.Events <- event:
	default:
		log.Warn().Str("tx", event.TxSignature).Msg("ingress: swap event channel full, dropping event")
	}

	return c.JSON(fiber.Map{"status": "received", "tx_signature": event.TxSignature})
}

func toSwapEvent(p swapPayload) (domain.SwapEvent, error) {
	amountToken, err := decimal.NewFromString(p.AmountToken)
	if err != nil {
		return domain.SwapEvent{}, err
	}
	amountSOL, err := decimal.NewFromString(p.AmountSOL)
	if err != nil {
		return domain.SwapEvent{}, err
	}
	direction := domain.DirectionBuy
	if p.Direction == string(domain.DirectionSell) {
		direction = domain.DirectionSell
	}
	return domain.SwapEvent{
		TxSignature: p.TxSignature,
		WalletAddr:  p.WalletAddr,
		TokenAddr:   p.TokenAddr,
		Direction:   direction,
		AmountToken: amountToken,
		AmountSOL:   amountSOL,
		Slot:        p.Slot,
		BlockTime:   time.Unix(p.BlockTime, 0).UTC(),
	}, nil
}

// Start runs the webhook server; blocks until Shutdown is called or the
// listener fails.
func (w *Webhook) Start() error {
	addr := fmt.Sprintf("%s:%d", w.host, w.port)
	log.Info().Str("addr", addr).Msg("ingress: starting webhook server")
	return w.app.Listen(addr)
}

// Shutdown gracefully stops the webhook server.
func (w *Webhook) Shutdown() error {
	return w.app.Shutdown()
}
