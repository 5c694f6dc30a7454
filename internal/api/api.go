// Package api is the Control/Query HTTP surface of spec.md §6: a thin
// fiber layer over risk.StateManager and the order/position stores. It
// holds no business logic of its own — every handler validates the
// request shape and delegates.
package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/walltrack/walltrack/internal/ports"
	"github.com/walltrack/walltrack/internal/risk"
)

// Server is the Control/Query HTTP API (spec.md §6). retry_order_now
// only clears an order's backoff schedule; the retry worker (C14)
// remains the sole driver of the executor, so Server holds no
// Executor reference of its own. It does hold a Monitor reference so
// an acknowledged resume can clear the breakers that caused the pause.
type Server struct {
	app       *fiber.App
	host      string
	port      int
	state     *risk.StateManager
	monitor   *risk.Monitor
	orders    ports.OrderStore
	positions ports.PositionStore
}

// NewServer builds a Server wiring every Control/Query operation.
func NewServer(host string, port int, state *risk.StateManager, monitor *risk.Monitor, orderStore ports.OrderStore, positionStore ports.PositionStore) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	s := &Server{
		app:       app,
		host:      host,
		port:      port,
		state:     state,
		monitor:   monitor,
		orders:    orderStore,
		positions: positionStore,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().Unix()})
	})

	s.app.Post("/control/pause", s.handlePause)
	s.app.Post("/control/resume", s.handleResume)
	s.app.Post("/control/orders/:id/cancel", s.handleCancelOrder)
	s.app.Post("/control/orders/:id/retry", s.handleRetryOrderNow)

	s.app.Get("/query/system_state", s.handleSystemState)
	s.app.Get("/query/positions", s.handleOpenPositions)
	s.app.Get("/query/orders", s.handleOrderHistory)
	s.app.Get("/query/orders/:id", s.handleOrderDetail)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	log.Info().Str("addr", addr).Msg("starting control/query api server")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func errNotFound(c *fiber.Ctx, what string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": what + " not found"})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func errInternal(c *fiber.Ctx, err error) error {
	log.Error().Err(err).Msg("api: internal error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
