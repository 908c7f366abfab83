package metrics

import (
	"context"
	"testing"
)

func TestRecordBeforeInit(t *testing.T) {
	// instruments are nil until Init; recording must be a no-op
	ctx := context.Background()
	RecordSessionCreated(ctx, "dnd-5e", false)
	RecordAdmission(ctx, "join", OutcomeSeated, 0.01)
	RecordLeave(ctx, true)
	RecordOutboxPublished(ctx, "participation.joined", 0.2)
	RecordRequestDuration(ctx, "join", 2)
}

func TestInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := Init(); err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	if AdmissionAttempts == nil || RosterActivePlayers == nil || OutboxLag == nil {
		t.Fatal("expected instruments to be created")
	}

	ctx := context.Background()
	RecordAdmission(ctx, "join_waiting_list", OutcomeQueued, 0.002)
	RecordLeave(ctx, false)
	RecordError(ctx, "store", "join")
}
