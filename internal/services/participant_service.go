package services

import "time"

// TransitionResult pairs the updated participant with the backlink the
// respondent should be redirected to.
type TransitionResult struct {
	Participant *Participant `json:"participant"`
	Backlink    string       `json:"backlink,omitempty"`
}

// ParticipantService applies terminal-status transitions and settles the
// reservation made at admission time. The only legal transitions are
// inprogress -> complete | disqualified | overquota; a participant in a
// terminal status is immutable.
type ParticipantService struct {
	store   ParticipantStore
	configs ConfigStore
	ledger  QuotaLedger
	now     func() time.Time
}

func NewParticipantService(store ParticipantStore, configs ConfigStore, ledger QuotaLedger) *ParticipantService {
	return &ParticipantService{
		store:   store,
		configs: configs,
		ledger:  ledger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *ParticipantService) Transition(participantID string, status ParticipantStatus, demo *Demographics) (*TransitionResult, error) {
	if participantID == "" {
		return nil, NewInvalidError("participantId required")
	}
	if !status.IsTerminal() {
		return nil, NewIllegalTransitionError("target status must be terminal")
	}
	p, err := s.store.GetParticipant(participantID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, NewNotFoundError("participant not found")
	}
	if p.Status != StatusInProgress {
		return nil, NewIllegalTransitionError("participant is already " + string(p.Status))
	}

	// Settle the ledger before touching the record: Confirm and Release
	// are idempotent, so a failed store update can be retried safely.
	switch status {
	case StatusComplete:
		if err := s.ledger.Confirm(participantID); err != nil {
			return nil, err
		}
	case StatusDisqualified, StatusOverquota:
		if err := s.ledger.Release(participantID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	p.Status = status
	p.CompletedAt = &now
	if status == StatusComplete {
		p.SessionDuration = int(now.Sub(p.StartedAt).Seconds())
	}
	if demo != nil {
		p.Demographics = demo
	}
	if err := s.store.UpdateParticipant(p); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: now, Actor: "participant", Action: "status_" + string(status), Target: participantID})

	result := &TransitionResult{Participant: p}
	if cfg, err := s.configs.GetConfig(p.RecruitConfigID); err == nil && cfg != nil {
		result.Backlink = cfg.BacklinkFor(status)
	}
	return result, nil
}

func (s *ParticipantService) Get(participantID string) (*Participant, error) {
	if participantID == "" {
		return nil, NewInvalidError("participantId required")
	}
	p, err := s.store.GetParticipant(participantID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, NewNotFoundError("participant not found")
	}
	return p, nil
}

func (s *ParticipantService) ListByConfig(configID string) ([]*Participant, error) {
	if configID == "" {
		return nil, NewInvalidError("configId required")
	}
	return s.store.ListParticipantsByConfig(configID)
}
