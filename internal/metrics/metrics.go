package metrics

import (
	"context"
	"sync"

	"github.com/rcn123/rpg-lobby/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Admission outcomes
const (
	OutcomeSeated   = "seated"
	OutcomeQueued   = "queued"
	OutcomeLeft     = "left"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	// Session lifecycle counters
	SessionsCreated *telemetry.Counter
	SessionsUpdated *telemetry.Counter
	SessionsDeleted *telemetry.Counter

	// Admission
	AdmissionAttempts *telemetry.Counter
	AdmissionDuration *telemetry.Histogram

	// Outbox relay
	OutboxPublished *telemetry.Counter
	OutboxFailed    *telemetry.Counter
	OutboxLag       *telemetry.Histogram

	// Error tracking counters
	ErrorsTotal       *telemetry.Counter
	SlowRequestsTotal *telemetry.Counter

	RequestDuration *telemetry.Histogram

	// Gauges
	RosterActivePlayers *telemetry.UpDownCounter
	WaitingListDepth    *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all lobby metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	counters := []struct {
		target **telemetry.Counter
		opts   telemetry.MetricOpts
	}{
		{&SessionsCreated, telemetry.MetricOpts{Name: "sessions_created_total", Description: "Total number of sessions created", Unit: "1"}},
		{&SessionsUpdated, telemetry.MetricOpts{Name: "sessions_updated_total", Description: "Total number of session updates", Unit: "1"}},
		{&SessionsDeleted, telemetry.MetricOpts{Name: "sessions_deleted_total", Description: "Total number of sessions deleted", Unit: "1"}},
		{&AdmissionAttempts, telemetry.MetricOpts{Name: "admission_attempts_total", Description: "Join, waiting list and leave attempts by outcome", Unit: "1"}},
		{&OutboxPublished, telemetry.MetricOpts{Name: "outbox_published_total", Description: "Outbox messages published to the broker", Unit: "1"}},
		{&OutboxFailed, telemetry.MetricOpts{Name: "outbox_failed_total", Description: "Outbox publish attempts that failed", Unit: "1"}},
		{&ErrorsTotal, telemetry.MetricOpts{Name: "lobby_errors_total", Description: "Total number of errors by type", Unit: "1"}},
		{&SlowRequestsTotal, telemetry.MetricOpts{Name: "lobby_slow_requests_total", Description: "Total number of slow requests (>1s)", Unit: "1"}},
	}
	for _, c := range counters {
		if *c.target, err = telemetry.NewCounter(c.opts); err != nil {
			return err
		}
	}

	AdmissionDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "admission_duration_seconds",
		Description: "Time spent in the admission transaction",
		Unit:        "s",
	}, []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1})
	if err != nil {
		return err
	}

	OutboxLag, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "outbox_publish_lag_seconds",
		Description: "Delay between an event being stored and published",
		Unit:        "s",
	}, []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60})
	if err != nil {
		return err
	}

	// 5ms to 10s
	RequestDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "lobby_request_duration_seconds",
		Description: "Service operation duration in seconds",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
	if err != nil {
		return err
	}

	RosterActivePlayers, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "roster_active_players",
		Description: "Seated players across all sessions",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WaitingListDepth, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "waiting_list_depth",
		Description: "Users on waiting lists across all sessions",
		Unit:        "1",
	})
	return err
}

// RecordSessionCreated records a new session
func RecordSessionCreated(ctx context.Context, gameSystemID string, isOnline bool) {
	SessionsCreated.Inc(ctx,
		attribute.String("game_system", gameSystemID),
		attribute.Bool("is_online", isOnline),
	)
}

// RecordSessionUpdated records a session update
func RecordSessionUpdated(ctx context.Context) {
	SessionsUpdated.Inc(ctx)
}

// RecordSessionDeleted records a session deletion
func RecordSessionDeleted(ctx context.Context) {
	SessionsDeleted.Inc(ctx)
}

// RecordAdmission records one admission attempt and its latency
func RecordAdmission(ctx context.Context, operation, outcome string, durationSeconds float64) {
	AdmissionAttempts.Inc(ctx,
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	AdmissionDuration.Record(ctx, durationSeconds,
		attribute.String("operation", operation),
	)

	switch outcome {
	case OutcomeSeated:
		RosterActivePlayers.Inc(ctx)
	case OutcomeQueued:
		WaitingListDepth.Inc(ctx)
	}
}

// RecordLeave adjusts the gauges for a cancelled record
func RecordLeave(ctx context.Context, wasActive bool) {
	if wasActive {
		RosterActivePlayers.Dec(ctx)
		return
	}
	WaitingListDepth.Dec(ctx)
}

// RecordOutboxPublished records a relayed event
func RecordOutboxPublished(ctx context.Context, eventType string, lagSeconds float64) {
	OutboxPublished.Inc(ctx, attribute.String("event_type", eventType))
	OutboxLag.Record(ctx, lagSeconds, attribute.String("event_type", eventType))
}

// RecordOutboxFailed records a failed relay attempt
func RecordOutboxFailed(ctx context.Context, eventType string) {
	OutboxFailed.Inc(ctx, attribute.String("event_type", eventType))
}

// RecordError records an error by type and operation
func RecordError(ctx context.Context, errorType, operation string) {
	ErrorsTotal.Inc(ctx,
		attribute.String("error_type", errorType),
		attribute.String("operation", operation),
	)
}

// RecordRequestDuration records operation duration and tracks slow requests
func RecordRequestDuration(ctx context.Context, operation string, durationSeconds float64) {
	RequestDuration.Record(ctx, durationSeconds,
		attribute.String("operation", operation),
	)
	if durationSeconds > 1.0 {
		SlowRequestsTotal.Inc(ctx,
			attribute.String("operation", operation),
		)
	}
}
