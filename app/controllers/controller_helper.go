package controllers

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/EasyBudget/internal/pkg/apperr"
	"github.com/ManuelReschke/EasyBudget/internal/pkg/result"
)

// httpStatusFor maps a result status onto an HTTP status code.
func httpStatusFor(status result.OperationStatus) int {
	switch status {
	case result.StatusSuccess:
		return fiber.StatusOK
	case result.StatusInvalidData:
		return fiber.StatusBadRequest
	case result.StatusUnauthorized:
		return fiber.StatusUnauthorized
	case result.StatusForbidden, result.StatusBlocked:
		return fiber.StatusForbidden
	case result.StatusNotFound:
		return fiber.StatusNotFound
	case result.StatusConflict:
		return fiber.StatusConflict
	case result.StatusRateLimited:
		return fiber.StatusTooManyRequests
	case result.StatusTimeout:
		return fiber.StatusServiceUnavailable
	case result.StatusPending:
		return fiber.StatusAccepted
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Unclassified errors are
// logged and their message hidden from the caller.
func respondError(c *fiber.Ctx, err error) error {
	res := result.FromError[struct{}](err)
	code := httpStatusFor(res.Status())
	message := res.Message()
	if apperr.KindOf(err) == apperr.KindUnknown || apperr.KindOf(err) == apperr.KindPermanent {
		log.Errorw("[HTTP] Request failed", "path", c.Path(), "error", err)
		message = "internal error"
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   string(res.Status()),
		"message": message,
	})
}

// pathParam returns the unescaped route parameter. Request ids may carry
// characters like '#' that clients percent-encode.
func pathParam(c *fiber.Ctx, name string) string {
	raw := c.Params(name)
	if v, err := url.PathUnescape(raw); err == nil {
		raw = v
	}
	return strings.TrimSpace(raw)
}

func queryInt(c *fiber.Ctx, name string, def, max int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query(name)))
	if err != nil || v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}

// respondResult writes a service result with the HTTP status matching its
// outcome.
func respondResult[T any](c *fiber.Ctx, res result.Result[T]) error {
	body := fiber.Map{
		"status":  string(res.Status()),
		"message": res.Message(),
	}
	if res.IsSuccess() {
		body["data"] = res.Data()
	}
	return c.Status(httpStatusFor(res.Status())).JSON(body)
}

func pathUint(c *fiber.Ctx, name string) (uint, bool) {
	v, err := strconv.ParseUint(pathParam(c, name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}
