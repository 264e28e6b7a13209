package middleware

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// httpMetrics HTTP 服务端指标
type httpMetrics struct {
	requests     metric.Int64Counter
	duration     metric.Float64Histogram
	requestSize  metric.Int64Histogram
	responseSize metric.Int64Histogram
	active       metric.Int64UpDownCounter
}

// 未调用 InitMetrics 前为 noop 指标
var currentHTTPMetrics atomic.Pointer[httpMetrics]

func init() {
	m, _ := newHTTPMetrics(noop.NewMeterProvider().Meter("noop"))
	currentHTTPMetrics.Store(m)
}

// InitMetrics 使用给定 meter 重建 HTTP 指标
func InitMetrics(meter metric.Meter) error {
	m, err := newHTTPMetrics(meter)
	if err != nil {
		return err
	}
	currentHTTPMetrics.Store(m)
	return nil
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	m := &httpMetrics{}
	var err error

	if m.requests, err = meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	if m.duration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	); err != nil {
		return nil, err
	}

	if m.requestSize, err = meter.Int64Histogram(
		"http.server.request.size",
		metric.WithDescription("HTTP request size"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if m.responseSize, err = meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("HTTP response size"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if m.active, err = meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *httpMetrics) record(ctx context.Context, c *app.RequestContext, labels []attribute.KeyValue, elapsed time.Duration) {
	opt := metric.WithAttributes(labels...)
	m.requests.Add(ctx, 1, opt)
	m.duration.Record(ctx, elapsed.Seconds(), opt)

	if size := int64(c.Request.Header.ContentLength()); size > 0 {
		m.requestSize.Record(ctx, size, opt)
	}
	if size := int64(len(c.Response.Body())); size > 0 {
		m.responseSize.Record(ctx, size, opt)
	}
}

// toValidUTF8 清洗用户可控字符串，非法 UTF-8 会导致 trace 序列化失败
func toValidUTF8(val string) string {
	return strings.ToValidUTF8(val, "")
}

// routeOf 使用注册时的路由模板（/v1/intakes/:intake_id），intake_id 不进入指标标签
func routeOf(c *app.RequestContext) string {
	if route := c.FullPath(); route != "" {
		return toValidUTF8(route)
	}
	return "unmatched"
}

// OpenTelemetryMiddleware 记录 HTTP span 与请求指标
func OpenTelemetryMiddleware() app.HandlerFunc {
	tracer := otel.Tracer("wholewellness.http")

	return func(ctx context.Context, c *app.RequestContext) {
		m := currentHTTPMetrics.Load()
		start := time.Now()

		m.active.Add(ctx, 1)
		defer m.active.Add(ctx, -1)

		method := toValidUTF8(string(c.Method()))
		route := routeOf(c)

		spanCtx, span := tracer.Start(ctx, method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(method),
				semconv.HTTPRoute(route),
				semconv.HTTPScheme(toValidUTF8(string(c.Request.URI().Scheme()))),
				attribute.String("http.host", toValidUTF8(string(c.Host()))),
				attribute.String("http.user_agent", toValidUTF8(string(c.UserAgent()))),
			))
		defer span.End()

		if intakeID := c.Param("intake_id"); intakeID != "" {
			span.SetAttributes(attribute.String("intake.id", toValidUTF8(intakeID)))
		}
		if requestID := GetRequestID(c); requestID != "" {
			span.SetAttributes(attribute.String("http.request_id", toValidUTF8(requestID)))
		}

		c.Next(spanCtx)

		status := c.Response.StatusCode()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		switch {
		case status >= 500:
			span.SetStatus(codes.Error, "HTTP server error")
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(lastErr)
			}
		case status >= 400:
			// 4xx 属于调用方问题（字段不属于当前步骤等），span 不标记为错误
			span.SetAttributes(attribute.Bool("http.client_error", true))
		default:
			span.SetStatus(codes.Ok, "")
		}

		m.record(ctx, c, []attribute.KeyValue{
			semconv.HTTPMethod(method),
			semconv.HTTPRoute(route),
			semconv.HTTPStatusCode(status),
		}, time.Since(start))
	}
}

// NewServerTracerConfig 创建 Hertz Server 的追踪配置，
// 返回 server 选项与需要挂到全局的追踪中间件
func NewServerTracerConfig(opts ...hertztracing.Option) (config.Option, app.HandlerFunc) {
	tracer, cfg := hertztracing.NewServerTracer(opts...)
	return tracer, hertztracing.ServerMiddleware(cfg)
}
