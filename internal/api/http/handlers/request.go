package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/itasset/ticket-workflow/internal/auth"
	"github.com/itasset/ticket-workflow/internal/domain"
	apperrors "github.com/itasset/ticket-workflow/pkg/util/errorutil"
)

// decodeBody parses the JSON body into dst and rejects unknown fields.
// An empty body leaves dst untouched.
func decodeBody(c *fiber.Ctx, dst any) error {
	body := c.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"body": err.Error()})
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperrors.NewValidationError("invalid payload", map[string]any{"body": "must contain a single JSON object"})
	}
	return nil
}

func staffPrincipal(c *fiber.Ctx) (*domain.StaffMember, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	return principal.Staff, nil
}

func parseIntQuery(c *fiber.Ctx, key string, def int) int {
	val := c.Query(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func pageParams(c *fiber.Ctx) (limit, offset int) {
	limit = parseIntQuery(c, "limit", 20)
	if limit == 0 || limit > 100 {
		limit = 20
	}
	return limit, parseIntQuery(c, "offset", 0)
}
