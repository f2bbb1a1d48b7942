package services

import (
	"fmt"
	"sync"
	"testing"
)

func ledgerTestConfig(limit int) *RecruitConfig {
	cfg := &RecruitConfig{
		ID: "CFG1",
		DemographicQuestions: DemographicQuestions{
			Gender: DemographicQuestion{
				Enabled:       true,
				QuotasEnabled: true,
				Quotas:        []Quota{{SegmentKey: "female", Quota: 1, IsActive: true}},
			},
		},
	}
	if limit > 0 {
		cfg.ParticipantLimit = ParticipantLimit{Enabled: true, Value: limit}
	}
	return cfg
}

func TestLedgerReserveAndReject(t *testing.T) {
	l := NewMemoryLedger()
	cfg := ledgerTestConfig(2)

	if err := l.Reserve(cfg, "p1", nil); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := l.Reserve(cfg, "p2", nil); err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	err := l.Reserve(cfg, "p3", nil)
	if !IsErrorCode(err, ErrorOverQuota) {
		t.Fatalf("expected over_quota, got %v", err)
	}
	if got := l.GlobalCount(cfg.ID); got != 2 {
		t.Fatalf("global count = %d, want 2", got)
	}
}

func TestLedgerSegmentCap(t *testing.T) {
	l := NewMemoryLedger()
	cfg := ledgerTestConfig(0)
	seg := Segment{Dimension: "gender", SegmentKey: "female"}

	if err := l.Reserve(cfg, "p1", []Segment{seg}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	err := l.Reserve(cfg, "p2", []Segment{seg})
	if !IsErrorCode(err, ErrorOverQuota) {
		t.Fatalf("expected over_quota, got %v", err)
	}
	if got := l.Consumed(cfg.ID, seg); got != 1 {
		t.Fatalf("consumed = %d, want 1", got)
	}
}

func TestLedgerReleaseFreesCapacity(t *testing.T) {
	l := NewMemoryLedger()
	cfg := ledgerTestConfig(1)
	seg := Segment{Dimension: "gender", SegmentKey: "female"}

	if err := l.Reserve(cfg, "p1", []Segment{seg}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := l.Release("p1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if got := l.GlobalCount(cfg.ID); got != 0 {
		t.Fatalf("global count after release = %d, want 0", got)
	}
	if got := l.Consumed(cfg.ID, seg); got != 0 {
		t.Fatalf("consumed after release = %d, want 0", got)
	}
	// The freed slot is usable again.
	if err := l.Reserve(cfg, "p2", []Segment{seg}); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
}

func TestLedgerDoubleReleaseIsNoop(t *testing.T) {
	l := NewMemoryLedger()
	cfg := ledgerTestConfig(1)

	if err := l.Reserve(cfg, "p1", nil); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := l.Release("p1"); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := l.Release("p1"); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
	if got := l.GlobalCount(cfg.ID); got != 0 {
		t.Fatalf("double release must not go negative: %d", got)
	}
}

func TestLedgerConfirmIsPermanent(t *testing.T) {
	l := NewMemoryLedger()
	cfg := ledgerTestConfig(1)

	if err := l.Reserve(cfg, "p1", nil); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := l.Confirm("p1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := l.Release("p1"); err == nil {
		t.Fatalf("release after confirm must fail")
	}
	if got := l.GlobalCount(cfg.ID); got != 1 {
		t.Fatalf("confirmed capacity must stay consumed: %d", got)
	}
}

func TestLedgerUnknownHandle(t *testing.T) {
	l := NewMemoryLedger()
	if err := l.Confirm("missing"); !IsErrorCode(err, ErrorNotFound) {
		t.Fatalf("confirm unknown = %v", err)
	}
	if err := l.Release("missing"); !IsErrorCode(err, ErrorNotFound) {
		t.Fatalf("release unknown = %v", err)
	}
}

func TestLedgerConcurrentReserves(t *testing.T) {
	const limit = 10
	const attempts = 100
	l := NewMemoryLedger()
	cfg := ledgerTestConfig(limit)
	seg := Segment{Dimension: "gender", SegmentKey: "female"}
	cfg.DemographicQuestions.Gender.Quotas[0].Quota = limit

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := l.Reserve(cfg, fmt.Sprintf("p%d", i), []Segment{seg})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			if !IsErrorCode(err, ErrorOverQuota) {
				t.Errorf("unexpected reserve error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if accepted != limit {
		t.Fatalf("accepted = %d, want exactly %d", accepted, limit)
	}
	if got := l.GlobalCount(cfg.ID); got != limit {
		t.Fatalf("global count = %d, want %d", got, limit)
	}
	if got := l.Consumed(cfg.ID, seg); got != limit {
		t.Fatalf("consumed = %d, want %d", got, limit)
	}
}
