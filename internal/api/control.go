package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/walltrack/walltrack/internal/domain"
)

type pauseRequest struct {
	Operator string `json:"operator"`
	Reason   string `json:"reason"`
}

// handlePause implements Control.pause(operator, reason). Idempotent
// per I10: pausing an already-paused system is a no-op (StateManager
// handles this; the handler always reports the resulting state).
func (s *Server) handlePause(c *fiber.Ctx) error {
	var req pauseRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadRequest(c, "invalid payload")
	}
	if req.Operator == "" {
		return errBadRequest(c, "operator is required")
	}

	if err := s.state.Pause(c.Context(), req.Operator, req.Reason); err != nil {
		return errInternal(c, err)
	}
	return c.JSON(fiber.Map{"state": s.state.GetState()})
}

type resumeRequest struct {
	Operator    string `json:"operator"`
	Acknowledge bool   `json:"acknowledge"`
}

// handleResume implements Control.resume(operator, ack). On a resume
// that actually clears a paused state, also clears the monitor's
// active-breaker latch (§4.7) so a breaker that already tripped once
// can trip again in a later cycle if the underlying condition recurs.
func (s *Server) handleResume(c *fiber.Ctx) error {
	var req resumeRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadRequest(c, "invalid payload")
	}
	if req.Operator == "" {
		return errBadRequest(c, "operator is required")
	}

	wasPaused := s.state.GetState().Status != domain.StatusRunning

	if err := s.state.Resume(c.Context(), req.Operator, req.Acknowledge); err != nil {
		return errInternal(c, err)
	}

	next := s.state.GetState()
	if wasPaused && next.Status == domain.StatusRunning && s.monitor != nil {
		s.monitor.ClearActive()
	}
	return c.JSON(fiber.Map{"state": next})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// handleCancelOrder implements Control.cancel_order(id, reason): moves
// a Pending or Failed order straight to Cancelled, bypassing the retry
// worker. Any other status is a conflict, not a server error.
func (s *Server) handleCancelOrder(c *fiber.Ctx) error {
	id := c.Params("id")
	var req cancelOrderRequest
	_ = c.BodyParser(&req) // reason is optional

	order, err := s.orders.Get(c.Context(), id)
	if err != nil {
		return errInternal(c, err)
	}
	if order == nil {
		return errNotFound(c, "order")
	}

	from := order.Status
	if err := order.Transition(domain.OrderCancelled); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if req.Reason != "" {
		order.LastError = req.Reason
	}
	if err := s.orders.Update(c.Context(), order, from); err != nil {
		return errInternal(c, err)
	}
	if err := s.orders.AppendStatusLog(c.Context(), domain.OrderStatusLogEntry{
		OrderID: order.ID, ChangedAt: time.Now().UTC(), OldStatus: from, NewStatus: domain.OrderCancelled,
		Detail: "cancelled by operator: " + req.Reason,
	}); err != nil {
		return errInternal(c, err)
	}

	return c.JSON(fiber.Map{"order": order})
}

// handleRetryOrderNow implements Control.retry_order_now(id): clears
// the order's scheduled backoff so the next retry-worker poll picks it
// up immediately instead of waiting for next_retry_at. It does not
// execute the swap inline — the retry worker remains the single writer
// that drives an order through the executor.
func (s *Server) handleRetryOrderNow(c *fiber.Ctx) error {
	id := c.Params("id")

	order, err := s.orders.Get(c.Context(), id)
	if err != nil {
		return errInternal(c, err)
	}
	if order == nil {
		return errNotFound(c, "order")
	}
	if order.Status != domain.OrderFailed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "order is not in a retryable state"})
	}
	if !order.CanRetry() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "order has exhausted its retry budget"})
	}

	from := order.Status
	order.NextRetryAt = time.Now().UTC()
	if err := s.orders.Update(c.Context(), order, from); err != nil {
		return errInternal(c, err)
	}

	return c.JSON(fiber.Map{"order": order})
}
