package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/hr-qa/backend/pkg/errors"
)

// LocalsKey is where the validated request is stored for handlers.
const LocalsKey = "query_request"

const (
	defaultMaxQueryLength = 500
	defaultTopK           = 5
	maxTopK               = 50
)

var markupPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

// QueryRequest is the body accepted by the query and search endpoints.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type Config struct {
	MaxQueryLength int
	// Paths lists the POST routes whose bodies carry a QueryRequest.
	Paths  []string
	Logger *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = defaultMaxQueryLength
	}
	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{"/api/v1/query", "/api/v1/search"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost || !matches(c.Path(), cfg.Paths) {
			return c.Next()
		}

		if ct := c.Get(fiber.HeaderContentType); ct != "" && !strings.HasPrefix(ct, fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		var req QueryRequest
		if err := c.BodyParser(&req); err != nil {
			return reject(c, apperrors.NewValidationError("invalid JSON body"))
		}

		req.Query = sanitize(req.Query)
		if err := Check(req, cfg.MaxQueryLength); err != nil {
			if markupPattern.MatchString(req.Query) {
				cfg.Logger.Warn("Rejected query containing markup", zap.String("ip", c.IP()))
			}
			return reject(c, err)
		}
		if req.TopK == 0 {
			req.TopK = defaultTopK
		}

		c.Locals(LocalsKey, req)
		return c.Next()
	}
}

// Check applies the request rules without touching HTTP state, so the
// websocket handler can reuse them.
func Check(req QueryRequest, maxLength int) *apperrors.StandardError {
	if strings.TrimSpace(req.Query) == "" {
		return apperrors.NewValidationError("query is required")
	}
	if utf8.RuneCountInString(req.Query) > maxLength {
		return apperrors.NewValidationError("query exceeds maximum length").WithMetadata("max_length", maxLength)
	}
	if markupPattern.MatchString(req.Query) {
		return apperrors.NewValidationError("query contains markup")
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		return apperrors.NewValidationError("top_k must be between 1 and 50")
	}
	return nil
}

func reject(c *fiber.Ctx, err *apperrors.StandardError) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Message,
		"code":  err.Code,
	})
}

func matches(path string, paths []string) bool {
	path = strings.TrimSuffix(path, "/")
	for _, p := range paths {
		if path == p {
			return true
		}
	}
	return false
}

func sanitize(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}
