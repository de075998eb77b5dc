package domain

import (
	"errors"
	"testing"
	"time"
)

func TestWorkflowStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to WorkflowStatus
		want     bool
	}{
		{StatusQueued, StatusRunning, true},
		{StatusQueued, StatusErrored, true},
		{StatusRunning, StatusComplete, true},
		{StatusRunning, StatusTerminated, true},
		{StatusRunning, StatusQueued, false},
		{StatusComplete, StatusRunning, false},
		{StatusErrored, StatusComplete, false},
		{StatusTerminated, StatusErrored, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestWorkflowRecord_TransitionRefusesRegression(t *testing.T) {
	now := time.Now()
	rec := NewWorkflowRecord("wf-1", EvaluateTradeInput{LeagueID: "L1"}, now)

	if err := rec.Transition(StatusRunning, now); err != nil {
		t.Fatalf("queued -> running: %v", err)
	}
	if err := rec.Transition(StatusComplete, now); err != nil {
		t.Fatalf("running -> complete: %v", err)
	}
	err := rec.Transition(StatusRunning, now)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete -> running: got %v, want ErrInvalidTransition", err)
	}
	if rec.Status != StatusComplete {
		t.Errorf("status changed to %s after refused transition", rec.Status)
	}
}

func TestWorkflowRecord_SnapshotOutputOnlyWhenComplete(t *testing.T) {
	rec := NewWorkflowRecord("wf-1", EvaluateTradeInput{LeagueID: "L1"}, time.Now())
	rec.Output = &WorkflowOutput{OK: true, Evaluation: TradeEvaluation{Grade: GradeB}}

	if snap := rec.Snapshot(); snap.Output != nil {
		t.Errorf("queued snapshot exposes output: %+v", snap.Output)
	}

	rec.Status = StatusComplete
	snap := rec.Snapshot()
	if snap.Output == nil || snap.Output.Evaluation.Grade != GradeB {
		t.Errorf("complete snapshot output = %+v", snap.Output)
	}
}

func TestEvaluateTradeInput_Normalize(t *testing.T) {
	in := EvaluateTradeInput{Proposal: TradeProposal{LeagueID: "L1", Give: []string{"p1"}}}
	in.Normalize()

	if in.LeagueID != "L1" {
		t.Errorf("LeagueID = %q, want L1", in.LeagueID)
	}
	if in.Persona != DefaultPersona {
		t.Errorf("Persona = %q, want %q", in.Persona, DefaultPersona)
	}
	if err := in.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	mismatch := EvaluateTradeInput{LeagueID: "L2", Proposal: TradeProposal{LeagueID: "L1", Give: []string{"p1"}}}
	if err := mismatch.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("mismatched league: got %v, want ErrValidation", err)
	}
}

func TestRankComparable(t *testing.T) {
	candidates := []string{
		"A sent p9 for p8 to B",
		"A sent p1 for p2 to B",
		"C sent p1, p7 for p3 to D",
	}

	got := RankComparable("give:p1 get:p2", candidates, 5)
	if len(got) != 2 {
		t.Fatalf("got %d comps, want 2: %v", len(got), got)
	}
	if got[0] != "A sent p1 for p2 to B" {
		t.Errorf("best match = %q", got[0])
	}

	if got := RankComparable("give:p1 get:p2", candidates, 1); len(got) != 1 {
		t.Errorf("k=1 returned %d comps", len(got))
	}
	if got := RankComparable("", candidates, 3); len(got) != 0 {
		t.Errorf("empty query returned %v", got)
	}
}

func TestWorkflowRecord_Pending(t *testing.T) {
	rec := NewWorkflowRecord("wf", EvaluateTradeInput{}, time.Now())
	if !rec.Pending(5) {
		t.Error("queued record should be pending")
	}
	rec.Status, rec.Cursor = StatusComplete, 2
	if !rec.Pending(5) {
		t.Error("complete record with side-effect steps left should be pending")
	}
	rec.Cursor = 5
	if rec.Pending(5) {
		t.Error("fully stepped complete record should not be pending")
	}
	rec.Status, rec.Cursor = StatusErrored, 1
	if rec.Pending(5) {
		t.Error("errored record should not be pending")
	}
}
