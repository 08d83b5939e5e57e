package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/eagleview/internal/gateway"
	"github.com/localnerve/eagleview/internal/session"
	"github.com/localnerve/eagleview/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

func newRegistry(t *testing.T) *session.Registry {
	store := gateway.NewLocalStore(gateway.NewMemoryKV(), gateway.NewMemoryFeed(), zap.NewNop())
	idKV := gateway.NewMemoryKV()
	reg := session.NewRegistry(func() (*session.Core, error) {
		identity := gateway.NewLocalIdentity(idKV).WithCost(bcrypt.MinCost)
		return session.New(store, identity, nil, nil, zap.NewNop(), session.DefaultOptions()), nil
	}, zap.NewNop())
	t.Cleanup(reg.Close)
	return reg
}

// newApp renders CustomErrors with their status, like the server's error handler
func newApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if ce, ok := types.AsCustomError(err); ok {
				return c.Status(ce.Code).SendString(ce.Type)
			}
			return fiber.DefaultErrorHandler(c, err)
		},
	})
}

func sessionCookie(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookie {
			return c.Value
		}
	}
	return ""
}

func TestStartSession_CreatesOnlyOnSuccess(t *testing.T) {
	reg := newRegistry(t)
	app := newApp()
	app.Post("/ok", StartSession(reg, zap.NewNop()), func(c *fiber.Ctx) error {
		require.NotNil(t, CoreOf(c))
		return c.SendString(SessionID(c))
	})
	app.Post("/fail", StartSession(reg, zap.NewNop()), func(c *fiber.Ctx) error {
		return types.NewError(fiber.StatusUnauthorized, types.TypeAuth, "Invalid email or password")
	})

	for i := 0; i < 10; i++ {
		resp, err := app.Test(httptest.NewRequest("POST", "/fail", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, sessionCookie(resp))
	}
	assert.Zero(t, reg.Len())

	resp, err := app.Test(httptest.NewRequest("POST", "/ok", nil))
	require.NoError(t, err)
	id := sessionCookie(resp)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, reg.Len())

	// a failure on an existing session keeps it
	req := httptest.NewRequest("POST", "/fail", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
	_, err = app.Test(req)
	require.NoError(t, err)
	_, ok := reg.Get(id)
	assert.True(t, ok)

	req = httptest.NewRequest("POST", "/ok", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, sessionCookie(resp))
	assert.Equal(t, 1, reg.Len())
}

func TestSession_RejectsWithoutAllocating(t *testing.T) {
	reg := newRegistry(t)
	app := newApp()
	app.Post("/login", StartSession(reg, zap.NewNop()), func(c *fiber.Ctx) error {
		return c.SendString(SessionID(c))
	})
	app.Get("/", Session(reg), func(c *fiber.Ctx) error {
		require.NotNil(t, CoreOf(c))
		return c.SendString(SessionID(c))
	})

	for _, cookie := range []string{"", "expired"} {
		req := httptest.NewRequest("GET", "/", nil)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: cookie})
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, sessionCookie(resp))
	}
	assert.Zero(t, reg.Len())

	resp, err := app.Test(httptest.NewRequest("POST", "/login", nil))
	require.NoError(t, err)
	id := sessionCookie(resp)
	require.NotEmpty(t, id)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, reg.Len())
}

func TestRequireUser_SignedOut(t *testing.T) {
	reg := newRegistry(t)
	id, _, err := reg.Create()
	require.NoError(t, err)

	app := newApp()
	app.Use(Session(reg))
	app.Get("/user", RequireUser(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/caregiver", RequireCaregiver(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for _, path := range []string{"/user", "/caregiver"} {
		req := httptest.NewRequest("GET", path, nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	}

	// without the session middleware there is no core at all
	bare := newApp()
	bare.Get("/user", RequireUser(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	resp, err := bare.Test(httptest.NewRequest("GET", "/user", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestVersionAndRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	app := fiber.New()
	app.Use(RequestLogger(zap.New(core)))
	app.Use(VersionMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("apiVersion").(string))
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Api-Version", "1.0")
	req.Header.Set(RequestIDHeader, "req-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", resp.Header.Get("X-Api-Version"))
	assert.Equal(t, "req-1", resp.Header.Get(RequestIDHeader))

	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	require.Eventually(t, func() bool { return logs.Len() == 2 }, time.Second, 5*time.Millisecond)
	entry := logs.All()[0]
	assert.Equal(t, "request", entry.Message)
	assert.Equal(t, "req-1", entry.ContextMap()["request_id"])
}
