package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// WizardMetrics 引导流程相关指标
type WizardMetrics struct {
	StepTransitionsTotal metric.Int64Counter
	SaveTotal            metric.Int64Counter
	SaveDuration         metric.Float64Histogram
	HandoffTotal         metric.Int64Counter
	ActiveSessions       metric.Int64UpDownCounter
	HydrationTotal       metric.Int64Counter
}

var (
	metrics  *WizardMetrics
	initOnce sync.Once
	initErr  error
)

// InitMetrics 基于全局 MeterProvider 创建指标。
// 未启用 OTel 时全局 provider 为 noop，记录操作不会产生开销。
func InitMetrics() error {
	initOnce.Do(func() {
		metrics, initErr = newWizardMetrics(otel.Meter("wholewellness.intake"))
	})
	return initErr
}

func newWizardMetrics(meter metric.Meter) (*WizardMetrics, error) {
	m := &WizardMetrics{}
	var err error

	m.StepTransitionsTotal, err = meter.Int64Counter(
		"intake_step_transitions_total",
		metric.WithDescription("Wizard navigation attempts by outcome"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	m.SaveTotal, err = meter.Int64Counter(
		"intake_save_total",
		metric.WithDescription("Draft persistence attempts by status"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		return nil, err
	}

	m.SaveDuration, err = meter.Float64Histogram(
		"intake_save_duration_seconds",
		metric.WithDescription("Time spent persisting a draft snapshot"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	m.HandoffTotal, err = meter.Int64Counter(
		"intake_handoff_total",
		metric.WithDescription("Completed intakes handed off downstream"),
		metric.WithUnit("{intake}"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveSessions, err = meter.Int64UpDownCounter(
		"intake_active_sessions",
		metric.WithDescription("Wizard sessions held in memory"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	m.HydrationTotal, err = meter.Int64Counter(
		"intake_hydration_total",
		metric.WithDescription("Session hydration by source"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// GetMetrics 获取全局指标实例，未初始化时返回 nil
func GetMetrics() *WizardMetrics {
	return metrics
}

func statusOf(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// RecordTransition 记录一次导航及其结果
func (m *WizardMetrics) RecordTransition(ctx context.Context, action, outcome string) {
	if m == nil {
		return
	}
	m.StepTransitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

// RecordSave 记录一次持久化
func (m *WizardMetrics) RecordSave(ctx context.Context, step int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.Int("step", step),
		attribute.String("status", statusOf(err)),
	)
	m.SaveTotal.Add(ctx, 1, attrs)
	m.SaveDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordHandoff 记录完成注册后的交接
func (m *WizardMetrics) RecordHandoff(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.HandoffTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", statusOf(err)),
	))
}

// AddActiveSession 会话进入或离开内存
func (m *WizardMetrics) AddActiveSession(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, delta)
}

// RecordHydration source 为 memory / cache / database / new
func (m *WizardMetrics) RecordHydration(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.HydrationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
	))
}
