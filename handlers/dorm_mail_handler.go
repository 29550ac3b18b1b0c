package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/ncnu-assistant/dormmail-backend/services"
	"github.com/ncnu-assistant/dormmail-backend/shared"
	"github.com/sirupsen/logrus"
)

const (
	allowedMethods = "GET, POST, OPTIONS"
	allowedHeaders = "Content-Type"
)

// DormMailHandler serves the worker-compatible endpoint on every unclaimed path
type DormMailHandler struct {
	Service *services.DormMailService
}

// NewDormMailHandler creates a new dorm mail handler
func NewDormMailHandler(service *services.DormMailService) *DormMailHandler {
	return &DormMailHandler{Service: service}
}

// Handle dispatches on method: preflight, rejection or the cached mail list
func (h *DormMailHandler) Handle(c *fiber.Ctx) error {
	switch c.Method() {
	case fiber.MethodOptions:
		return h.Preflight(c)
	case fiber.MethodGet:
		return h.GetMailList(c)
	default:
		logrus.WithFields(logrus.Fields{
			"component":      "DormMailHandler",
			"error_category": shared.ErrorCategoryValidation,
			"error_code":     shared.CodeMethodNotAllowed,
			"method":         c.Method(),
		}).Debug("Rejected request method")
		c.Set(services.HeaderAccessControlAllowOrigin, services.AllowAnyOrigin)
		return c.Status(fiber.StatusMethodNotAllowed).SendString("Method Not Allowed")
	}
}

// Preflight answers CORS preflight with an empty 204
func (h *DormMailHandler) Preflight(c *fiber.Ctx) error {
	c.Set(services.HeaderAccessControlAllowOrigin, services.AllowAnyOrigin)
	c.Set(fiber.HeaderAccessControlAllowMethods, allowedMethods)
	c.Set(fiber.HeaderAccessControlAllowHeaders, allowedHeaders)
	c.Status(fiber.StatusNoContent)
	return nil
}

// GetMailList writes the stored response verbatim, or the error payload on failure
func (h *DormMailHandler) GetMailList(c *fiber.Ctx) error {
	requestURL := c.BaseURL() + c.OriginalURL()

	response, hit, err := h.Service.GetMailList(c.UserContext(), requestURL)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "DormMailHandler",
			"url":       requestURL,
			"error":     err,
		}).Error("Failed to serve dorm mail list")

		c.Set(services.HeaderContentType, services.ContentTypeJSON)
		c.Set(services.HeaderAccessControlAllowOrigin, services.AllowAnyOrigin)
		return c.Status(fiber.StatusInternalServerError).Send(services.BuildErrorResponse(err))
	}

	for name, value := range response.Headers {
		c.Set(name, value)
	}
	logrus.WithFields(logrus.Fields{
		"component": "DormMailHandler",
		"cache_hit": hit,
	}).Debug("Served dorm mail list")
	return c.Status(response.StatusCode).Send(response.Body)
}
