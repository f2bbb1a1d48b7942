package services

import "sync"

// QuotaLedger owns the mutable admission counters for every config: the
// global participant count and the per-segment consumption counts. Reserve
// is the only way capacity is taken and it is atomic per config, so
// consumed never exceeds a cap regardless of how many admissions race.
//
// A reservation is keyed by the participant id it was made for. Reserve
// either succeeds immediately or fails with over_quota; it never waits for
// capacity to free up.
type QuotaLedger interface {
	Reserve(cfg *RecruitConfig, participantID string, segments []Segment) error
	Confirm(participantID string) error
	Release(participantID string) error
}

type reservation struct {
	counters  *configCounters
	global    bool
	segments  []Segment
	confirmed bool
	released  bool
}

type configCounters struct {
	mu       sync.Mutex
	global   int
	consumed map[Segment]int
}

// MemoryLedger is the in-process QuotaLedger: one mutex per configId guards
// the check-then-increment so it is never split by a concurrent reserve.
type MemoryLedger struct {
	mu      sync.Mutex
	configs map[string]*configCounters
	handles map[string]*reservation
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		configs: map[string]*configCounters{},
		handles: map[string]*reservation{},
	}
}

func (l *MemoryLedger) countersFor(configID string) *configCounters {
	l.mu.Lock()
	defer l.mu.Unlock()
	cc, ok := l.configs[configID]
	if !ok {
		cc = &configCounters{consumed: map[Segment]int{}}
		l.configs[configID] = cc
	}
	return cc
}

// Reserve checks the global participant limit and every segment cap in one
// critical section and, only if all pass, increments them together. On
// rejection no counter changes.
func (l *MemoryLedger) Reserve(cfg *RecruitConfig, participantID string, segments []Segment) error {
	if cfg == nil || cfg.ID == "" {
		return NewInvalidError("config required")
	}
	if participantID == "" {
		return NewInvalidError("participantId required")
	}
	l.mu.Lock()
	if _, exists := l.handles[participantID]; exists {
		l.mu.Unlock()
		return NewInvalidError("participant already holds a reservation")
	}
	l.mu.Unlock()

	cc := l.countersFor(cfg.ID)
	limited := cfg.ParticipantLimit.Enabled && cfg.ParticipantLimit.Value > 0

	cc.mu.Lock()
	if limited && cc.global >= cfg.ParticipantLimit.Value {
		cc.mu.Unlock()
		return NewOverQuotaError("participant limit reached")
	}
	for _, seg := range segments {
		limit, ok := QuotaFor(cfg, seg)
		if !ok {
			continue
		}
		if cc.consumed[seg] >= limit {
			cc.mu.Unlock()
			return NewOverQuotaError("quota reached for segment " + seg.Dimension + "/" + seg.SegmentKey)
		}
	}
	if limited {
		cc.global++
	}
	reserved := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if _, ok := QuotaFor(cfg, seg); !ok {
			continue
		}
		cc.consumed[seg]++
		reserved = append(reserved, seg)
	}
	cc.mu.Unlock()

	l.mu.Lock()
	l.handles[participantID] = &reservation{counters: cc, global: limited, segments: reserved}
	l.mu.Unlock()
	return nil
}

// Confirm makes a reservation permanent. No counters change; the capacity
// was already taken at reserve time.
func (l *MemoryLedger) Confirm(participantID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handles[participantID]
	if !ok {
		return NewNotFoundError("no reservation for participant")
	}
	if h.released {
		return NewInvalidError("reservation already released")
	}
	h.confirmed = true
	return nil
}

// Release gives back the capacity taken at reserve time. Releasing twice is
// a no-op; releasing a confirmed reservation is an error.
func (l *MemoryLedger) Release(participantID string) error {
	l.mu.Lock()
	h, ok := l.handles[participantID]
	if !ok {
		l.mu.Unlock()
		return NewNotFoundError("no reservation for participant")
	}
	if h.confirmed {
		l.mu.Unlock()
		return NewInvalidError("reservation already confirmed")
	}
	if h.released {
		l.mu.Unlock()
		return nil
	}
	h.released = true
	l.mu.Unlock()

	cc := h.counters
	cc.mu.Lock()
	if h.global {
		cc.global--
	}
	for _, seg := range h.segments {
		cc.consumed[seg]--
	}
	cc.mu.Unlock()
	return nil
}

// GlobalCount reports the current global counter for a config. Read-only,
// for reporting and tests.
func (l *MemoryLedger) GlobalCount(configID string) int {
	cc := l.countersFor(configID)
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.global
}

// Consumed reports the current consumption of one segment.
func (l *MemoryLedger) Consumed(configID string, seg Segment) int {
	cc := l.countersFor(configID)
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.consumed[seg]
}

var _ QuotaLedger = (*MemoryLedger)(nil)
