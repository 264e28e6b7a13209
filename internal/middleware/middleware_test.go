package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"WholeWellness/config"
	"WholeWellness/pkg/errors"
	"WholeWellness/pkg/response"
	"WholeWellness/storage/redis"
)

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	redis.Use(client)
	t.Cleanup(func() { _ = client.Close() })
	return mr
}

func ok(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, map[string]string{"request_id": GetRequestID(c)})
}

func errorCode(t *testing.T, resp *protocol.Response) string {
	t.Helper()
	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &body))
	return body.Error.Code
}

func TestRequestIDGeneratedAndPropagated(t *testing.T) {
	h := server.New()
	h.Use(RequestIDMiddleware())
	h.GET("/ping", ok)

	resp := ut.PerformRequest(h.Engine, http.MethodGet, "/ping", nil).Result()
	generated := string(resp.Header.Peek(HeaderRequestID))
	assert.Len(t, generated, 36)

	resp = ut.PerformRequest(h.Engine, http.MethodGet, "/ping", nil,
		ut.Header{Key: HeaderRequestID, Value: "req-123"}).Result()
	assert.Equal(t, "req-123", string(resp.Header.Peek(HeaderRequestID)))
	assert.Contains(t, string(resp.Body()), "req-123")
}

func TestRecoverReturnsInternalError(t *testing.T) {
	cfg := NewRecoverConfig()
	cfg.IsProduction = true

	var severe bool
	cfg.OnSevereError = func(context.Context, *app.RequestContext, interface{}, []byte) { severe = true }

	h := server.New()
	h.Use(RecoverMiddlewareWithConfig(cfg), RequestIDMiddleware())
	h.GET("/boom", func(ctx context.Context, c *app.RequestContext) {
		panic("nil map")
	})
	h.GET("/fatal", func(ctx context.Context, c *app.RequestContext) {
		panic("concurrent map writes")
	})

	resp := ut.PerformRequest(h.Engine, http.MethodGet, "/boom", nil).Result()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())
	assert.Equal(t, errors.InternalError.Code, errorCode(t, resp))
	assert.NotContains(t, string(resp.Body()), "nil map")
	assert.False(t, severe)

	resp = ut.PerformRequest(h.Engine, http.MethodGet, "/fatal", nil).Result()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())
	assert.True(t, severe)
}

func TestRecoverExposesDetailsOutsideProduction(t *testing.T) {
	cfg := NewRecoverConfig()
	cfg.IsProduction = false

	h := server.New()
	h.Use(RecoverMiddlewareWithConfig(cfg))
	h.GET("/boom", func(ctx context.Context, c *app.RequestContext) {
		panic("nil map")
	})

	resp := ut.PerformRequest(h.Engine, http.MethodGet, "/boom", nil).Result()
	var body response.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &body))
	assert.Equal(t, errors.InternalError.Code, body.Error.Code)
	assert.Equal(t, "nil map", body.Error.Details["panic"])
	assert.Contains(t, body.Error.Details, "stack")
}

func TestCORS(t *testing.T) {
	h := server.New()
	h.Use(CORSMiddleware([]string{"https://app.example.com"}))
	h.GET("/ping", ok)
	h.OPTIONS("/ping", ok)

	resp := ut.PerformRequest(h.Engine, http.MethodOptions, "/ping", nil,
		ut.Header{Key: "Origin", Value: "https://app.example.com"}).Result()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode())
	assert.Equal(t, "https://app.example.com", string(resp.Header.Peek("Access-Control-Allow-Origin")))

	resp = ut.PerformRequest(h.Engine, http.MethodOptions, "/ping", nil,
		ut.Header{Key: "Origin", Value: "https://evil.example.com"}).Result()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())

	resp = ut.PerformRequest(h.Engine, http.MethodGet, "/ping", nil,
		ut.Header{Key: "Origin", Value: "https://evil.example.com"}).Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Empty(t, resp.Header.Peek("Access-Control-Allow-Origin"))
}

func TestCORSAnyOrigin(t *testing.T) {
	h := server.New()
	h.Use(CORSMiddleware(nil))
	h.GET("/ping", ok)

	resp := ut.PerformRequest(h.Engine, http.MethodGet, "/ping", nil,
		ut.Header{Key: "Origin", Value: "https://anything.example.com"}).Result()
	assert.Equal(t, "https://anything.example.com", string(resp.Header.Peek("Access-Control-Allow-Origin")))
}

func TestRateLimitBlocksAfterMax(t *testing.T) {
	mr := setupRedis(t)
	prev := config.Cfg.RateLimitEnabled
	config.Cfg.RateLimitEnabled = true
	t.Cleanup(func() { config.Cfg.RateLimitEnabled = prev })

	h := server.New()
	h.POST("/write", RateLimitMiddleware(RateLimitConfig{
		KeyPrefix:     "rate:test",
		Window:        time.Minute,
		MaxRequests:   2,
		BlockDuration: time.Minute,
	}), ok)

	for i := 0; i < 2; i++ {
		resp := ut.PerformRequest(h.Engine, http.MethodPost, "/write", nil).Result()
		require.Equal(t, http.StatusOK, resp.StatusCode())
	}

	resp := ut.PerformRequest(h.Engine, http.MethodPost, "/write", nil).Result()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode())
	assert.Equal(t, errors.TooManyRequests.Code, errorCode(t, resp))
	assert.Equal(t, "0", string(resp.Header.Peek("X-RateLimit-Remaining")))

	var blockKeys []string
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, redis.Key("rate:test", "block")) {
			blockKeys = append(blockKeys, key)
		}
	}
	require.Len(t, blockKeys, 1, "keys: %v", mr.Keys())

	// 封禁期内直接拒绝，不再计数
	resp = ut.PerformRequest(h.Engine, http.MethodPost, "/write", nil).Result()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode())
	assert.Empty(t, resp.Header.Peek("X-RateLimit-Remaining"))
}

func TestRateLimitFailsOpenWithoutRedis(t *testing.T) {
	mr := setupRedis(t)
	mr.Close()
	prev := config.Cfg.RateLimitEnabled
	config.Cfg.RateLimitEnabled = true
	t.Cleanup(func() { config.Cfg.RateLimitEnabled = prev })

	h := server.New()
	h.POST("/write", RateLimitMiddleware(RateLimitConfig{
		KeyPrefix:   "rate:test",
		Window:      time.Minute,
		MaxRequests: 1,
	}), ok)

	resp := ut.PerformRequest(h.Engine, http.MethodPost, "/write", nil).Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode())
}

func TestRateLimitDisabled(t *testing.T) {
	prev := config.Cfg.RateLimitEnabled
	config.Cfg.RateLimitEnabled = false
	t.Cleanup(func() { config.Cfg.RateLimitEnabled = prev })

	h := server.New()
	h.POST("/write", RateLimitMiddleware(IntakeStartRateLimitConfig()), ok)

	for i := 0; i < 20; i++ {
		resp := ut.PerformRequest(h.Engine, http.MethodPost, "/write", nil).Result()
		require.Equal(t, http.StatusOK, resp.StatusCode())
	}
}

func TestOpenTelemetryMiddlewareUsesRouteTemplate(t *testing.T) {
	h := server.New()
	h.Use(RequestIDMiddleware(), OpenTelemetryMiddleware())

	var route string
	h.GET("/v1/intakes/:intake_id", func(ctx context.Context, c *app.RequestContext) {
		route = c.FullPath()
		ok(ctx, c)
	})

	resp := ut.PerformRequest(h.Engine, http.MethodGet, "/v1/intakes/123", nil).Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "/v1/intakes/:intake_id", route)
}

func TestOpenTelemetryMiddlewareRecordsRouteMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	require.NoError(t, InitMetrics(provider.Meter("test")))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		require.NoError(t, InitMetrics(noop.NewMeterProvider().Meter("noop")))
	})

	h := server.New()
	h.Use(OpenTelemetryMiddleware())
	h.GET("/v1/intakes/:intake_id", ok)

	for _, id := range []string{"1", "2", "3"} {
		ut.PerformRequest(h.Engine, http.MethodGet, "/v1/intakes/"+id, nil)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var requests *metricdata.Sum[int64]
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "http.server.requests.total" {
				sum := m.Data.(metricdata.Sum[int64])
				requests = &sum
			}
		}
	}
	require.NotNil(t, requests)
	require.Len(t, requests.DataPoints, 1, "intake_id must not split the series")
	assert.EqualValues(t, 3, requests.DataPoints[0].Value)

	route, found := requests.DataPoints[0].Attributes.Value(attribute.Key("http.route"))
	require.True(t, found)
	assert.Equal(t, "/v1/intakes/:intake_id", route.AsString())
}
