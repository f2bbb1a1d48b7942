package services

import (
	"testing"
	"time"
)

func transitionFixture(t *testing.T) (*stubRecruitStore, *MemoryLedger, *AdmissionService, *ParticipantService, string) {
	t.Helper()
	cfg := admissionTestConfig()
	store, ledger, admission, token := admissionFixture(cfg)
	participants := NewParticipantService(store, store, ledger)
	return store, ledger, admission, participants, token
}

func admitOne(t *testing.T, svc *AdmissionService, token string, demo *Demographics) *Participant {
	t.Helper()
	res, err := svc.Admit(token, demo, nil, nil)
	if err != nil {
		t.Fatalf("Admit error: %v", err)
	}
	return res.Participant
}

func TestTransitionToComplete(t *testing.T) {
	store, ledger, admission, participants, token := transitionFixture(t)
	p := admitOne(t, admission, token, &Demographics{Gender: "female"})

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stored, _ := store.GetParticipant(p.ID)
	stored.StartedAt = started
	if err := store.UpdateParticipant(stored); err != nil {
		t.Fatalf("seed startedAt: %v", err)
	}
	participants.now = func() time.Time { return started.Add(95 * time.Second) }

	res, err := participants.Transition(p.ID, StatusComplete, nil)
	if err != nil {
		t.Fatalf("Transition error: %v", err)
	}
	if res.Participant.Status != StatusComplete {
		t.Fatalf("status = %s", res.Participant.Status)
	}
	if res.Participant.SessionDuration != 95 {
		t.Fatalf("sessionDuration = %d, want 95", res.Participant.SessionDuration)
	}
	if res.Participant.CompletedAt == nil {
		t.Fatalf("completedAt not set")
	}
	if res.Backlink != "https://panel.test/c" {
		t.Fatalf("backlink = %q", res.Backlink)
	}
	// Completed capacity stays consumed.
	if got := ledger.Consumed("CFG1", Segment{Dimension: "gender", SegmentKey: "female"}); got != 1 {
		t.Fatalf("consumed = %d, want 1", got)
	}
}

func TestTransitionReleaseOnAbandonment(t *testing.T) {
	_, ledger, admission, participants, token := transitionFixture(t)
	p := admitOne(t, admission, token, &Demographics{Gender: "female"})

	res, err := participants.Transition(p.ID, StatusDisqualified, nil)
	if err != nil {
		t.Fatalf("Transition error: %v", err)
	}
	if res.Backlink != "https://panel.test/d" {
		t.Fatalf("backlink = %q", res.Backlink)
	}
	if got := ledger.Consumed("CFG1", Segment{Dimension: "gender", SegmentKey: "female"}); got != 0 {
		t.Fatalf("released capacity still consumed: %d", got)
	}
	// The freed slot can be taken by the next respondent.
	next := admitOne(t, admission, token, &Demographics{Gender: "female"})
	if next.Status != StatusInProgress {
		t.Fatalf("slot not reusable, status = %s", next.Status)
	}
}

func TestTransitionTerminalStateIsImmutable(t *testing.T) {
	_, ledger, admission, participants, token := transitionFixture(t)
	p := admitOne(t, admission, token, &Demographics{Gender: "female"})

	if _, err := participants.Transition(p.ID, StatusComplete, nil); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	for _, next := range []ParticipantStatus{StatusComplete, StatusDisqualified, StatusOverquota} {
		if _, err := participants.Transition(p.ID, next, nil); !IsErrorCode(err, ErrorIllegalTransition) {
			t.Fatalf("transition to %s after complete = %v, want illegal_transition", next, err)
		}
	}
	if got := ledger.Consumed("CFG1", Segment{Dimension: "gender", SegmentKey: "female"}); got != 1 {
		t.Fatalf("illegal transitions altered counters: %d", got)
	}
}

func TestTransitionRejectsNonTerminalTarget(t *testing.T) {
	_, _, admission, participants, token := transitionFixture(t)
	p := admitOne(t, admission, token, &Demographics{})
	if _, err := participants.Transition(p.ID, StatusInProgress, nil); !IsErrorCode(err, ErrorIllegalTransition) {
		t.Fatalf("expected illegal_transition, got %v", err)
	}
}

func TestTransitionUnknownParticipant(t *testing.T) {
	_, _, _, participants, _ := transitionFixture(t)
	if _, err := participants.Transition("missing", StatusComplete, nil); !IsErrorCode(err, ErrorNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestTransitionMergesDemographics(t *testing.T) {
	_, _, admission, participants, token := transitionFixture(t)
	p := admitOne(t, admission, token, &Demographics{})
	res, err := participants.Transition(p.ID, StatusComplete, &Demographics{Country: "de"})
	if err != nil {
		t.Fatalf("Transition error: %v", err)
	}
	if res.Participant.Demographics == nil || res.Participant.Demographics.Country != "de" {
		t.Fatalf("demographics not merged: %+v", res.Participant.Demographics)
	}
}
