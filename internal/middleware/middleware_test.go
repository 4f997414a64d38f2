package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestCorrelationIDGeneratedWhenMissing(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(GetCorrelationID(c))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
}

func TestCorrelationIDPropagated(t *testing.T) {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(GetCorrelationID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Header.Get("X-Correlation-ID"))
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	return signed
}

func jwtTestApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/", JWTProtected(secret), func(c *fiber.Ctx) error {
		ref, _ := c.Locals("user_ref").(string)
		role, _ := c.Locals("user_role").(string)
		return c.JSON(fiber.Map{"ref": ref, "role": role})
	})
	return app
}

func TestJWTProtectedRejectsMissingHeader(t *testing.T) {
	app := jwtTestApp("secret")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedRejectsBadSignature(t *testing.T) {
	app := jwtTestApp("secret")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", jwt.MapClaims{"sub": "stu-100"}))

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedAcceptsValidToken(t *testing.T) {
	app := jwtTestApp("secret")

	claims := jwt.MapClaims{
		"sub":  "stu-100",
		"role": "Student",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", claims))

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequireRole(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		if role := c.Get("X-Role"); role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	}, RequireRole("teacher", "admin"), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Role", "student")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Role", "Teacher")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
