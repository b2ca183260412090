package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sakif/ai-code-relay/internal/model"
	"github.com/sakif/ai-code-relay/internal/repository"
)

// newTestDB gives each test its own in-memory database.
// t.Helper() makes failures point at the caller's line.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func recordCall(t *testing.T, db *DB, kind model.CallKind, outcome string, at time.Time) *model.CallRecord {
	t.Helper()
	rec := &model.CallRecord{Kind: kind, Backend: "piston", Outcome: outcome, DurationMS: 12, CreatedAt: at}
	if err := db.Record(context.Background(), rec); err != nil {
		t.Fatalf("failed to record call: %v", err)
	}
	return rec
}

func TestRecord(t *testing.T) {
	db := newTestDB(t)

	rec := &model.CallRecord{Kind: model.KindRun, Backend: "docker", Outcome: "ok", DurationMS: 250}
	if err := db.Record(context.Background(), rec); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if rec.ID == "" {
		t.Error("Record() did not set ID")
	}
	if rec.CreatedAt.IsZero() {
		t.Error("Record() did not set CreatedAt")
	}
}

func TestListRecent_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	first := recordCall(t, db, model.KindRun, "ok", base)
	second := recordCall(t, db, model.KindAsk, "timeout", base.Add(time.Minute))
	third := recordCall(t, db, model.KindRun, "upstream_error", base.Add(2*time.Minute))

	calls, err := db.ListRecent(context.Background(), repository.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(calls) != 3 {
		t.Fatalf("ListRecent() returned %d calls, want 3", len(calls))
	}

	wantIDs := []string{third.ID, second.ID, first.ID}
	for i, want := range wantIDs {
		if calls[i].ID != want {
			t.Errorf("calls[%d].ID = %q, want %q", i, calls[i].ID, want)
		}
	}

	if calls[1].Kind != model.KindAsk || calls[1].Outcome != "timeout" {
		t.Errorf("calls[1] = %+v, want kind=ask outcome=timeout", calls[1])
	}
	if calls[0].DurationMS != 12 || calls[0].Backend != "piston" {
		t.Errorf("calls[0] = %+v, fields not round-tripped", calls[0])
	}
}

func TestListRecent_FilterAndLimit(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().UTC()

	for i := range 5 {
		recordCall(t, db, model.KindRun, "ok", base.Add(time.Duration(i)*time.Second))
	}
	recordCall(t, db, model.KindAsk, "ok", base)

	tests := []struct {
		name string
		opts repository.ListOptions
		want int
	}{
		{"limit applies", repository.ListOptions{Limit: 2}, 2},
		{"kind run", repository.ListOptions{Limit: 10, Kind: model.KindRun}, 5},
		{"kind ask", repository.ListOptions{Limit: 10, Kind: model.KindAsk}, 1},
		{"everything", repository.ListOptions{Limit: 100}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, err := db.ListRecent(context.Background(), tt.opts)
			if err != nil {
				t.Fatalf("ListRecent() error = %v", err)
			}
			if len(calls) != tt.want {
				t.Errorf("ListRecent() returned %d calls, want %d", len(calls), tt.want)
			}
			for _, c := range calls {
				if tt.opts.Kind != "" && c.Kind != tt.opts.Kind {
					t.Errorf("got kind %q, want %q", c.Kind, tt.opts.Kind)
				}
			}
		})
	}
}

func TestListRecent_Empty(t *testing.T) {
	db := newTestDB(t)

	calls, err := db.ListRecent(context.Background(), repository.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if calls == nil || len(calls) != 0 {
		t.Errorf("ListRecent() = %#v, want empty non-nil slice", calls)
	}
}
