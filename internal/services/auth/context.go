package auth

import (
	"github.com/gofiber/fiber/v2"
)

type AuthType string

const (
	AuthTypeJWT    AuthType = "jwt"
	AuthTypeHeader AuthType = "header"
)

const authContextKey = "auth_context"

type AuthContext struct {
	Type   AuthType
	UserID string
	Claims *Claims
}

func (a *AuthContext) GetUserID() (string, bool) {
	if a == nil {
		return "", false
	}
	return a.UserID, a.UserID != ""
}

func SetAuthContext(c *fiber.Ctx, authCtx *AuthContext) {
	c.Locals(authContextKey, authCtx)
}

func GetAuthContext(c *fiber.Ctx) *AuthContext {
	authCtx, ok := c.Locals(authContextKey).(*AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

func GetUserID(c *fiber.Ctx) (string, bool) {
	return GetAuthContext(c).GetUserID()
}
