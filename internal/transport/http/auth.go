package http

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"

	"chessbot/internal/core"
)

// ScopeAll in a token's "scope" claim lets the bearer act for every identity.
// The chat front end holds such a token; per-chat tokens carry the chat id as subject.
const ScopeAll = "all"

// Chat identities: Telegram chat ids (possibly negative), user names, "tg:123"
var identityRegex = regexp.MustCompile(`^[A-Za-z0-9_.:@-]{1,64}$`)

// TokenValidator validates bearer tokens
type TokenValidator func(token string) (subject string, claims map[string]any, err error)

// AuthRequired enforces bearer authentication
func AuthRequired(validateToken TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c.Get("Authorization"))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
				Error: "missing authorization token",
				Code:  core.ErrCodeUnauthorized,
			})
		}

		subject, claims, err := validateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
				Error: "invalid or expired token",
				Code:  core.ErrCodeUnauthorized,
			})
		}

		c.Locals("subject", subject)
		c.Locals("claims", claims)
		return c.Next()
	}
}

// identityScope rejects tokens issued for a different identity
func identityScope(c *fiber.Ctx) error {
	if claims, _ := c.Locals("claims").(map[string]any); claims != nil {
		if scope, _ := claims["scope"].(string); scope == ScopeAll {
			return c.Next()
		}
	}
	if subject, _ := c.Locals("subject").(string); subject == c.Params("identity") {
		return c.Next()
	}
	return c.Status(fiber.StatusForbidden).JSON(core.ErrorResponse{
		Error:   "token not valid for this identity",
		Code:    core.ErrCodeUnauthorized,
		Details: "token subject must match the session identity",
	})
}

func identityValidator(c *fiber.Ctx) error {
	if !identityRegex.MatchString(c.Params("identity")) {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "invalid identity",
			Code:    core.ErrCodeInvalidRequest,
			Details: "identity must be 1-64 characters of letters, digits and _.:@-",
		})
	}
	return c.Next()
}

// extractBearerToken extracts the token from an Authorization header
func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
