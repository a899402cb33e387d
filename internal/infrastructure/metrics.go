package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics holds the reduction pipeline instruments
type PipelineMetrics struct {
	StageDuration   metric.Float64Histogram
	RowsProcessed   metric.Int64Counter
	RunsTotal       metric.Int64Counter
	RecoveredValues metric.Int64Counter
}

// Kinds of locally recovered values
const (
	RecoveredGlitch     = "glitch"
	RecoveredInfiniteCp = "infinite_cp"
	RecoveredSyncFill   = "sync_fill"
	RecoveredEmptyStat  = "empty_segment"
)

// CreatePipelineMetrics registers the pipeline instruments on meter
func CreatePipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	stageDuration, err := meter.Float64Histogram(
		"pipeline_stage_duration_seconds",
		metric.WithDescription("Duration of one pipeline stage"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	rows, err := meter.Int64Counter(
		"pipeline_rows_processed_total",
		metric.WithDescription("Frame rows passed through a pipeline stage"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter(
		"pipeline_runs_total",
		metric.WithDescription("Completed reduction runs by status"),
	)
	if err != nil {
		return nil, err
	}

	recovered, err := meter.Int64Counter(
		"pipeline_recovered_values_total",
		metric.WithDescription("Values normalized instead of failing the run"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		StageDuration:   stageDuration,
		RowsProcessed:   rows,
		RunsTotal:       runs,
		RecoveredValues: recovered,
	}, nil
}

// RecordStage records the duration and row count of one stage
func (m *PipelineMetrics) RecordStage(ctx context.Context, stage string, d time.Duration, rows int, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
	if success {
		m.RowsProcessed.Add(ctx, int64(rows), metric.WithAttributes(attribute.String("stage", stage)))
	}
}

// RecordRun counts a finished run
func (m *PipelineMetrics) RecordRun(ctx context.Context, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.RunsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordRecovered counts values recovered locally
func (m *PipelineMetrics) RecordRecovered(ctx context.Context, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RecoveredValues.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}
