package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/ncnu-assistant/dormmail-backend/services"
	"github.com/ncnu-assistant/dormmail-backend/shared"
)

// MailQueryHandler serves filtered views over the cached record list
type MailQueryHandler struct {
	Service *services.DormMailService
}

// NewMailQueryHandler creates a new mail query handler
func NewMailQueryHandler(service *services.DormMailService) *MailQueryHandler {
	return &MailQueryHandler{Service: service}
}

// GetMail returns records filtered by optional department and name query parameters
func (h *MailQueryHandler) GetMail(c *fiber.Ctx) error {
	records, cachedAt, err := h.Service.FetchRecords(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   shared.ClientErrorMessage(err),
		})
	}

	if department := strings.TrimSpace(c.Query("department")); department != "" {
		records = services.FilterByDepartment(records, department)
	}
	if name := strings.TrimSpace(c.Query("name")); name != "" {
		records = services.FilterByName(records, name)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"data":      services.WithDeadlines(records),
		"count":     len(records),
		"cached_at": cachedAt,
	})
}

// GetDepartments lists the departments present in the current records
func (h *MailQueryHandler) GetDepartments(c *fiber.Ctx) error {
	records, _, err := h.Service.FetchRecords(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   shared.ClientErrorMessage(err),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    services.ListDepartments(records),
	})
}

// GetStats returns the service counters and cache size
func (h *MailQueryHandler) GetStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.Service.Stats(c.UserContext()),
	})
}
