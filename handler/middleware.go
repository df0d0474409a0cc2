package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/lnkr-app/lnkr/model"
	"go.uber.org/zap"
)

func (h *Handler) RequestCounterMiddleware(c *fiber.Ctx) error {
	h.Metrics.IncCounter(h.requestPerSecond, c.Method(), c.Path())
	return c.Next()
}

func (h *Handler) ResponseStatusCodeMiddleware(c *fiber.Ctx) error {
	c.Next()
	statusCode := c.Response().StatusCode()
	if statusCode >= 200 && statusCode < 300 {
		h.Metrics.IncGauge(h.twoXXStatusCode, c.Method(), c.Path(), strconv.Itoa(statusCode))
	}
	if statusCode >= 400 && statusCode < 500 {
		h.Metrics.IncGauge(h.fourXXStatusCode, c.Method(), c.Path(), strconv.Itoa(statusCode))
	}
	if statusCode >= 500 {
		h.Metrics.IncGauge(h.fiveXXStatusCode, c.Method(), c.Path(), strconv.Itoa(statusCode))
	}
	return nil
}

// APIKeyMiddleware resolves the actor from the X-API-Key header. Requests
// without a key continue as anonymous; a key that resolves to nobody is
// rejected.
func (h *Handler) APIKeyMiddleware(c *fiber.Ctx) error {
	key := c.Get("X-API-Key")
	if key == "" {
		return c.Next()
	}

	user, err := h.Repo.FindUserByAPIKey(c.Context(), key)
	if err != nil {
		h.Logger.Error("APIKeyLookupFailed", zap.Error(err))
		return jsonError(c, 500, "Internal server error")
	}
	if user == nil {
		return jsonError(c, 401, "Invalid API key")
	}
	if user.Banned {
		return jsonError(c, 403, "Account has been banned")
	}

	c.Locals("user", user)
	return c.Next()
}

func actorFrom(c *fiber.Ctx) *model.User {
	user, _ := c.Locals("user").(*model.User)
	return user
}

func jsonError(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(fiber.Map{"error": message})
}
