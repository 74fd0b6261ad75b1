// internal/state/decision_test.go
package state

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/user/momentcast/internal/types"
)

func TestDecisionLog(t *testing.T) {
	dir := t.TempDir()
	log := NewDecisionLog(dir)
	ctx := context.Background()

	sessionID := types.NewSessionID()

	rec := &types.DecisionRecord{
		SessionID: sessionID,
		Paragraph: "we are launching product X",
		Decision:  types.Decision{IsHotMoment: true, Title: "Product X Launch"},
		At:        time.Now(),
	}
	if err := log.Append(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if rec.ID == "" {
		t.Error("expected id to be assigned")
	}

	records, err := log.Tail(ctx, sessionID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Seq != 1 {
		t.Errorf("expected seq 1, got %d", records[0].Seq)
	}
	if records[0].Decision.Title != "Product X Launch" {
		t.Errorf("unexpected title %q", records[0].Decision.Title)
	}

	count, err := log.Count(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}
}

func TestDecisionLogTailLimit(t *testing.T) {
	log := NewDecisionLog(t.TempDir())
	ctx := context.Background()
	sessionID := types.NewSessionID()

	for i := 0; i < 5; i++ {
		rec := &types.DecisionRecord{SessionID: sessionID, Paragraph: fmt.Sprintf("p%d", i), At: time.Now()}
		if err := log.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	records, err := log.Tail(ctx, sessionID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Paragraph != "p3" || records[1].Paragraph != "p4" {
		t.Errorf("unexpected tail: %s, %s", records[0].Paragraph, records[1].Paragraph)
	}
}

func TestDecisionLogSeqSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	sessionID := types.NewSessionID()

	first := NewDecisionLog(dir)
	for i := 0; i < 3; i++ {
		if err := first.Append(ctx, &types.DecisionRecord{SessionID: sessionID, At: time.Now()}); err != nil {
			t.Fatal(err)
		}
	}

	second := NewDecisionLog(dir)
	rec := &types.DecisionRecord{SessionID: sessionID, At: time.Now()}
	if err := second.Append(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if rec.Seq != 4 {
		t.Errorf("expected seq 4 after reopen, got %d", rec.Seq)
	}
}

func TestDecisionLogEmptySession(t *testing.T) {
	log := NewDecisionLog(t.TempDir())
	records, err := log.Tail(context.Background(), types.NewSessionID(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}
