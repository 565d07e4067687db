package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"greencoin-backend/internal/pkg/apperror"
	"greencoin-backend/internal/pkg/constants"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb, mr
}

func withUser(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(userLocal, map[string]interface{}{
			"actor_id": uuid.New().String(),
			"name":     "Test",
			"role":     role,
		})
		return c.Next()
	}
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "error", out["status"])
	return out["error"].(map[string]interface{})["message"].(string)
}

func TestSession_LoginRoundTrip(t *testing.T) {
	rdb, mr := setupRedis(t)
	cfg := SessionConfig{Secret: "test-secret"}
	actorID := uuid.New()

	app := fiber.New()
	app.Use(Session(cfg, rdb))
	app.Post("/login", func(c *fiber.Ctx) error {
		sid := RegenerateSessionID(c)
		SetSessionUser(c, SessionUser{ActorID: actorID.String(), Name: "Plant A", Role: constants.Producer})
		c.Cookie(SessionCookie(cfg, sid))
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/me", RequireAuth(), func(c *fiber.Ctx) error {
		id, _ := ActorID(c)
		return c.SendString(id.String() + "|" + Role(c))
	})

	resp, err := app.Test(httptest.NewRequest("POST", "/login", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == SessionCookieName {
			cookie = ck
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Len(t, mr.Keys(), 1)

	req := httptest.NewRequest("GET", "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value})
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, actorID.String()+"|producer", string(body))

	// Tampered signature is treated as no session.
	req = httptest.NewRequest("GET", "/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: cookie.Value + "x"})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestParseSessionCookie(t *testing.T) {
	id := uuid.New().String()
	good := "s:" + id + "." + signSessionID("k", id)
	assert.Equal(t, id, parseSessionCookie("k", good))
	assert.Equal(t, "", parseSessionCookie("other", good))
	assert.Equal(t, "", parseSessionCookie("k", id))
	assert.Equal(t, "", parseSessionCookie("k", "s:."+signSessionID("k", "")))
	assert.Equal(t, "", parseSessionCookie("k", ""))
}

func TestSessionCookie_EmptyIDExpires(t *testing.T) {
	ck := SessionCookie(SessionConfig{Secret: "k", IsProduction: true}, "")
	assert.Equal(t, -1, ck.MaxAge)
	assert.Equal(t, "", ck.Value)
	assert.True(t, ck.Secure)
}

func TestRequireRole(t *testing.T) {
	app := fiber.New()
	app.Get("/anon", RequireRole(constants.Regulator), func(c *fiber.Ctx) error { return c.SendStatus(200) })
	app.Get("/buyer", withUser(constants.Buyer), RequireRole(constants.Regulator), func(c *fiber.Ctx) error { return c.SendStatus(200) })
	app.Get("/regulator", withUser(constants.Regulator), RequireRole(constants.Auditor, constants.Regulator), func(c *fiber.Ctx) error { return c.SendStatus(200) })

	resp, err := app.Test(httptest.NewRequest("GET", "/anon", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/buyer", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "User is Forbidden from performing this action", errorMessage(t, resp))

	resp, err = app.Test(httptest.NewRequest("GET", "/regulator", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestAuthorizePermission(t *testing.T) {
	app := fiber.New()
	ok := func(c *fiber.Ctx) error { return c.SendStatus(200) }
	app.Get("/mint/producer", withUser(constants.Producer), AuthorizePermission(constants.MintCredits), ok)
	app.Get("/mint/buyer", withUser(constants.Buyer), AuthorizePermission(constants.MintCredits), ok)
	app.Get("/unknown", withUser(constants.Producer), AuthorizePermission("nope"), ok)

	resp, err := app.Test(httptest.NewRequest("GET", "/mint/producer", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/mint/buyer", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/unknown", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Permission configuration error", errorMessage(t, resp))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, zerolog.Nop())
	app := fiber.New()
	app.Use(rl.Handler())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(200) })

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	assert.Equal(t, 0, rl.Prune(time.Hour))
	assert.Equal(t, 1, rl.Prune(-time.Second))
}

func TestTracing(t *testing.T) {
	app := fiber.New()
	app.Use(Tracing())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetTraceID(c)) })

	incoming := uuid.New().String()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Trace-Id", incoming)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, incoming, resp.Header.Get("X-Trace-Id"))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Trace-Id", "not-a-uuid")
	resp, err = app.Test(req)
	require.NoError(t, err)
	got := resp.Header.Get("X-Trace-Id")
	assert.NotEqual(t, "not-a-uuid", got)
	_, perr := uuid.Parse(got)
	assert.NoError(t, perr)
}

func TestCORS(t *testing.T) {
	app := fiber.New()
	app.Use(CORS(CORSConfig{AllowedOrigins: []string{"https://app.greencoin.example/"}, AllowLocalhost: true}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(200) })

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://app.greencoin.example")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://app.greencoin.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestHealthMarker(t *testing.T) {
	rdb, _ := setupRedis(t)
	app := fiber.New()
	app.Use(HealthMarker(rdb))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(200) })
	app.Get("/fail", func(c *fiber.Ctx) error { return c.SendStatus(500) })
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendStatus(200) })

	for _, p := range []string{"/ok", "/fail", "/health"} {
		_, err := app.Test(httptest.NewRequest("GET", p, nil))
		require.NoError(t, err)
	}

	ctx := context.Background()
	total, _ := rdb.Get(ctx, KeyReqTotal).Int()
	errs, _ := rdb.Get(ctx, KeyReqErrors).Int()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, errs)
	n, _ := rdb.LLen(ctx, KeyErrorLog).Result()
	assert.Equal(t, int64(1), n)
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/conflict", func(c *fiber.Ctx) error { return apperror.ErrNotListable() })
	app.Get("/fiber", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("db password leaked") })

	resp, err := app.Test(httptest.NewRequest("GET", "/conflict", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Credit not listable", errorMessage(t, resp))

	resp, err = app.Test(httptest.NewRequest("GET", "/fiber", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal Server Error", errorMessage(t, resp))
}
