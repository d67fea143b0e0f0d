package middleware

import (
	"strings"

	"github.com/Egham-7/medchat/internal/services/auth"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

type AuthMiddleware struct {
	jwtProvider *auth.JWTProvider
	config      *AuthMiddlewareConfig
}

type AuthMiddlewareConfig struct {
	// HeaderNames are searched in order for a bearer token
	HeaderNames []string
	// UserHeader is trusted as the user id when no JWT provider is configured
	UserHeader string
	SkipPaths  []string
}

func DefaultAuthMiddlewareConfig() *AuthMiddlewareConfig {
	return &AuthMiddlewareConfig{
		HeaderNames: []string{"Authorization"},
		UserHeader:  "X-User-ID",
		SkipPaths: []string{
			"/health",
		},
	}
}

// NewAuthMiddleware builds the middleware. A nil jwtProvider selects header mode.
func NewAuthMiddleware(jwtProvider *auth.JWTProvider, config *AuthMiddlewareConfig) *AuthMiddleware {
	if config == nil {
		config = DefaultAuthMiddlewareConfig()
	}
	if len(config.HeaderNames) == 0 {
		config.HeaderNames = []string{"Authorization"}
	}
	return &AuthMiddleware{
		jwtProvider: jwtProvider,
		config:      config,
	}
}

func (m *AuthMiddleware) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.shouldSkipPath(c.Path()) {
			return c.Next()
		}

		if m.jwtProvider == nil {
			userID := strings.TrimSpace(c.Get(m.config.UserHeader))
			if userID == "" {
				return unauthorized(c, "Authentication required")
			}
			auth.SetAuthContext(c, &auth.AuthContext{Type: auth.AuthTypeHeader, UserID: userID})
			return c.Next()
		}

		token := m.extractToken(c)
		if token == "" {
			return unauthorized(c, "Authentication required")
		}

		claims, err := m.jwtProvider.ValidateToken(token)
		if err != nil {
			fiberlog.Debugf("rejected bearer token: %v", err)
			return unauthorized(c, "Invalid or expired token")
		}

		auth.SetAuthContext(c, &auth.AuthContext{
			Type:   auth.AuthTypeJWT,
			UserID: claims.Subject,
			Claims: claims,
		})
		return c.Next()
	}
}

func (m *AuthMiddleware) extractToken(c *fiber.Ctx) string {
	for _, headerName := range m.config.HeaderNames {
		if header := c.Get(headerName); header != "" {
			if after, ok := strings.CutPrefix(header, "Bearer "); ok {
				return strings.TrimSpace(after)
			}
			return strings.TrimSpace(header)
		}
	}

	return ""
}

func (m *AuthMiddleware) shouldSkipPath(path string) bool {
	for _, skipPath := range m.config.SkipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": fiber.Map{
			"type":    "authentication",
			"message": message,
		},
	})
}
