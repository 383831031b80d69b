package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	operatorLocal = "operator"
	operatorRole  = "operator"
)

// OperatorClaims are the claims of an operator access token.
type OperatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// OperatorAuth admits requests bearing an HS256 token signed with secret
// whose role claim is operator. The subject is stored for later handlers.
func OperatorAuth(secret []byte) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		raw := strings.TrimSpace(authz[len("Bearer "):])

		var claims OperatorClaims
		_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return secret, nil })
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return fiber.NewError(http.StatusUnauthorized, "token expired")
			}
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if claims.Role != operatorRole || claims.Subject == "" {
			return fiber.NewError(http.StatusForbidden, "operator role required")
		}

		c.Locals(operatorLocal, claims.Subject)
		return c.Next()
	}
}

// OperatorFrom returns the authenticated operator, empty for anonymous requests.
func OperatorFrom(c *fiber.Ctx) string {
	sub, _ := c.Locals(operatorLocal).(string)
	return sub
}

// IssueOperatorToken signs an operator token for subject valid for ttl.
func IssueOperatorToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		Role: operatorRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
