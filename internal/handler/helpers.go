package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/studielog/logbook-api/internal/service"
)

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := c.Params(key)
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return uint(parsed), nil
}

func parseQueryUint(c *fiber.Ctx, key string) (*uint, error) {
	value := c.Query(key)
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}
	result := uint(parsed)
	return &result, nil
}

func parseQueryInt(c *fiber.Ctx, key string) int {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}

func userRefFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_ref"); v != nil {
		if ref, ok := v.(string); ok {
			return strings.TrimSpace(ref)
		}
	}
	return ""
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok && id >= 0 {
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func gradingActorFromContext(c *fiber.Ctx) service.GradingActor {
	return service.GradingActor{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	}
}
