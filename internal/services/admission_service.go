package services

import "time"

// ParticipantStore abstracts persistence of participant records.
type ParticipantStore interface {
	InsertParticipant(p *Participant) (*Participant, error)
	GetParticipant(id string) (*Participant, error)
	UpdateParticipant(p *Participant) error
	ListParticipantsByConfig(configID string) ([]*Participant, error)
	AddAudit(entry AuditEntry)
}

// AdmissionResult is what the participant-facing flow needs: the persisted
// record plus, for terminal statuses, the configured redirect URL.
type AdmissionResult struct {
	Participant *Participant `json:"participant"`
	Backlink    string       `json:"backlink,omitempty"`
}

// AdmissionService decides whether an arriving respondent gets a slot.
// The order is fixed: validate the link, screen demographics, and only then
// reserve capacity — a disqualified respondent never takes a slot from a
// legitimate candidate.
type AdmissionService struct {
	participants ParticipantStore
	configs      ConfigStore
	links        *LinkService
	ledger       QuotaLedger
	now          func() time.Time
	idGen        func() string
}

func NewAdmissionService(participants ParticipantStore, configs ConfigStore, links *LinkService, ledger QuotaLedger) *AdmissionService {
	return &AdmissionService{
		participants: participants,
		configs:      configs,
		links:        links,
		ledger:       ledger,
		now:          func() time.Time { return time.Now().UTC() },
		idGen:        func() string { return shortID(12) },
	}
}

// Admit runs the full admission pipeline for one respondent. Disqualified
// and overquota are normal outcomes: both persist a participant in that
// terminal status and report the matching backlink. Only an admitted
// respondent holds reserved capacity, tied to their participant id.
func (s *AdmissionService) Admit(token string, demo *Demographics, device *DeviceInfo, location *LocationInfo) (*AdmissionResult, error) {
	link, err := s.links.Validate(token)
	if err != nil {
		return nil, err
	}
	cfg, err := s.configs.GetConfig(link.ConfigID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, NewNotFoundError("recruitment config not found")
	}

	eval, err := EvaluateQuotas(cfg, demo)
	if err != nil {
		return nil, err
	}

	if !cfg.ParameterOptions.SaveDeviceInfo {
		device = nil
	}
	if !cfg.ParameterOptions.SaveLocationInfo {
		location = nil
	}
	p := &Participant{
		ID:              s.idGen(),
		ResearchID:      cfg.ResearchID,
		RecruitConfigID: cfg.ID,
		Demographics:    demo,
		DeviceInfo:      device,
		LocationInfo:    location,
		StartedAt:       s.now(),
	}

	if eval.Disqualified {
		p.Status = StatusDisqualified
		now := s.now()
		p.CompletedAt = &now
		created, err := s.participants.InsertParticipant(p)
		if err != nil {
			return nil, err
		}
		s.participants.AddAudit(AuditEntry{Time: now, Actor: "participant", Action: "admission_disqualified", Target: created.ID, Note: eval.Reason})
		return &AdmissionResult{Participant: created, Backlink: cfg.BacklinkFor(StatusDisqualified)}, nil
	}

	if err := s.ledger.Reserve(cfg, p.ID, eval.Segments); err != nil {
		if !IsErrorCode(err, ErrorOverQuota) {
			return nil, err
		}
		p.Status = StatusOverquota
		now := s.now()
		p.CompletedAt = &now
		created, err := s.participants.InsertParticipant(p)
		if err != nil {
			return nil, err
		}
		s.participants.AddAudit(AuditEntry{Time: now, Actor: "participant", Action: "admission_overquota", Target: created.ID})
		return &AdmissionResult{Participant: created, Backlink: cfg.BacklinkFor(StatusOverquota)}, nil
	}

	p.Status = StatusInProgress
	created, err := s.participants.InsertParticipant(p)
	if err != nil {
		// The slot was taken but the record never made it; give the
		// capacity back so the failure does not leak a slot forever.
		_ = s.ledger.Release(p.ID)
		return nil, err
	}
	s.participants.AddAudit(AuditEntry{Time: s.now(), Actor: "participant", Action: "admission_accepted", Target: created.ID})
	return &AdmissionResult{Participant: created}, nil
}
