package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tegro-money/custody/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *int32) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	var calls int32
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/settle", func(c *fiber.Ctx) error {
		n := atomic.AddInt32(&calls, 1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": n})
	})
	app.Post("/fail", func(c *fiber.Ctx) error {
		atomic.AddInt32(&calls, 1)
		return fiber.NewError(fiber.StatusBadRequest, "rejected")
	})
	return app, &calls
}

func post(t *testing.T, app *fiber.App, path, key string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body), resp.Header.Get(fiber.HeaderContentType)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, calls := setupTestApp(t)

	status, _, _ := post(t, app, "/settle", "")
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
	if *calls != 0 {
		t.Fatalf("handler must not run without a key, ran %d times", *calls)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls := setupTestApp(t)

	status, body, _ := post(t, app, "/settle", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// The second request replays the stored response without running the handler.
	status2, body2, contentType := post(t, app, "/settle", "abc123")
	if status2 != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status2)
	}
	if body2 != body {
		t.Fatalf("expected cached payload %s got %s", body, body2)
	}
	if !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
		t.Fatalf("expected json content type, got %q", contentType)
	}
	if *calls != 1 {
		t.Fatalf("expected one handler call, got %d", *calls)
	}

	if status, _, _ := post(t, app, "/settle", "other"); status != fiber.StatusCreated {
		t.Fatalf("expected fresh key to run, got %d", status)
	}
	if *calls != 2 {
		t.Fatalf("expected two handler calls, got %d", *calls)
	}
}

func TestIdempotencyReleasesKeyOnError(t *testing.T) {
	app, calls := setupTestApp(t)

	for i := 0; i < 2; i++ {
		if status, _, _ := post(t, app, "/fail", "retry-me"); status != fiber.StatusBadRequest {
			t.Fatalf("attempt %d: expected %d got %d", i, fiber.StatusBadRequest, status)
		}
	}
	if *calls != 2 {
		t.Fatalf("failed requests must be retryable, handler ran %d times", *calls)
	}
}
