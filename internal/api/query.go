package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
)

// handleSystemState implements Query.system_state().
func (s *Server) handleSystemState(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"state": s.state.GetState()})
}

// handleOpenPositions implements Query.open_positions().
func (s *Server) handleOpenPositions(c *fiber.Ctx) error {
	positions, err := s.positions.ListOpen(c.Context())
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(fiber.Map{"positions": positions})
}

// handleOrderHistory implements Query.order_history(filters, pagination).
func (s *Server) handleOrderHistory(c *fiber.Ctx) error {
	filters := ports.OrderFilters{
		Status: domain.OrderStatus(c.Query("status")),
		Kind:   domain.OrderKind(c.Query("kind")),
		Token:  c.Query("token"),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}
	if since := c.Query("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			filters.Since = t
		} else {
			return errBadRequest(c, "since must be RFC3339")
		}
	}

	orders, err := s.orders.GetHistory(c.Context(), filters)
	if err != nil {
		return errInternal(c, err)
	}
	return c.JSON(fiber.Map{"orders": orders, "limit": filters.Limit, "offset": filters.Offset})
}

// handleOrderDetail implements Query.order_detail(id), returning
// {order, timeline, slippage, derived_flags} per spec.md §6.
func (s *Server) handleOrderDetail(c *fiber.Ctx) error {
	id := c.Params("id")

	order, err := s.orders.Get(c.Context(), id)
	if err != nil {
		return errInternal(c, err)
	}
	if order == nil {
		return errNotFound(c, "order")
	}

	timeline, err := s.orders.GetTimeline(c.Context(), id)
	if err != nil {
		return errInternal(c, err)
	}

	return c.JSON(fiber.Map{
		"order":         order,
		"timeline":      timeline,
		"slippage_bps":  order.SlippageBps(),
		"derived_flags": derivedFlags(order),
	})
}

// derivedFlags surfaces the order-state facts a query client would
// otherwise have to recompute itself: whether it can still be
// retried/cancelled and whether it is past due for a retry attempt.
func derivedFlags(o *domain.Order) fiber.Map {
	return fiber.Map{
		"is_terminal":     o.Status == domain.OrderFilled || o.Status == domain.OrderCancelled,
		"can_retry":       o.Status == domain.OrderFailed && o.CanRetry(),
		"can_cancel":      o.CanTransition(domain.OrderCancelled),
		"retry_overdue":   o.Status == domain.OrderFailed && !o.NextRetryAt.IsZero() && time.Now().UTC().After(o.NextRetryAt),
		"attempts_used":   o.AttemptCount,
		"attempts_budget": o.MaxAttempts,
	}
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
