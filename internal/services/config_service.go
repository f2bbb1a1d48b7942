package services

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ErrorCode string

const (
	ErrorInvalid              ErrorCode = "invalid"
	ErrorForbidden            ErrorCode = "forbidden"
	ErrorNotFound             ErrorCode = "not_found"
	ErrorConflict             ErrorCode = "conflict"
	ErrorUnauthorized         ErrorCode = "unauthorized"
	ErrorDisqualified         ErrorCode = "disqualified"
	ErrorOverQuota            ErrorCode = "over_quota"
	ErrorLinkExpired          ErrorCode = "link_expired"
	ErrorLinkDeactivated      ErrorCode = "link_deactivated"
	ErrorMissingRequiredField ErrorCode = "missing_required_field"
	ErrorIllegalTransition    ErrorCode = "illegal_transition"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}

func NewOverQuotaError(msg string) error { return &ServiceError{Code: ErrorOverQuota, Message: msg} }

func NewLinkExpiredError(msg string) error {
	return &ServiceError{Code: ErrorLinkExpired, Message: msg}
}

func NewLinkDeactivatedError(msg string) error {
	return &ServiceError{Code: ErrorLinkDeactivated, Message: msg}
}

func NewMissingRequiredFieldError(msg string) error {
	return &ServiceError{Code: ErrorMissingRequiredField, Message: msg}
}

func NewIllegalTransitionError(msg string) error {
	return &ServiceError{Code: ErrorIllegalTransition, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsErrorCode reports whether err is a ServiceError carrying the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	if se, ok := AsServiceError(err); ok {
		return se.Code == code
	}
	return false
}

func shortID(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > 0 && n < len(id) {
		return id[:n]
	}
	return id
}

// ConfigStore abstracts persistence of recruitment configurations.
type ConfigStore interface {
	InsertConfig(cfg *RecruitConfig) (*RecruitConfig, error)
	GetConfig(id string) (*RecruitConfig, error)
	GetConfigByResearchID(researchID string) (*RecruitConfig, error)
	UpdateConfig(cfg *RecruitConfig) error
	DeleteConfig(id string) error
	AddAudit(entry AuditEntry)
}

// ConfigService manages recruitment configuration documents. At most one
// config exists per research, and researchId never changes after creation.
type ConfigService struct {
	store ConfigStore
	now   func() time.Time
	idGen func() string
}

func NewConfigService(store ConfigStore) *ConfigService {
	return &ConfigService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func() string { return shortID(12) },
	}
}

func (s *ConfigService) Create(researchID string, cfg *RecruitConfig) (*RecruitConfig, error) {
	researchID = strings.TrimSpace(researchID)
	if researchID == "" {
		return nil, NewInvalidError("researchId required")
	}
	if cfg == nil {
		return nil, NewInvalidError("config required")
	}
	existing, err := s.store.GetConfigByResearchID(researchID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("a recruitment config already exists for this research")
	}
	now := s.now()
	cfg.ID = s.idGen()
	cfg.ResearchID = researchID
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	created, err := s.store.InsertConfig(cfg)
	if err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: now, Actor: "researcher", Action: "create_recruit_config", Target: created.ID, Note: researchID})
	return created, nil
}

func (s *ConfigService) GetByResearchID(researchID string) (*RecruitConfig, error) {
	if strings.TrimSpace(researchID) == "" {
		return nil, NewInvalidError("researchId required")
	}
	cfg, err := s.store.GetConfigByResearchID(researchID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, NewNotFoundError("recruitment config not found")
	}
	return cfg, nil
}

func (s *ConfigService) GetByID(configID string) (*RecruitConfig, error) {
	if strings.TrimSpace(configID) == "" {
		return nil, NewInvalidError("configId required")
	}
	cfg, err := s.store.GetConfig(configID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, NewNotFoundError("recruitment config not found")
	}
	return cfg, nil
}

// Update replaces the mutable parts of a config. ResearchID, ID and
// CreatedAt are preserved from the stored document.
func (s *ConfigService) Update(configID string, update *RecruitConfig) (*RecruitConfig, error) {
	if update == nil {
		return nil, NewInvalidError("config required")
	}
	current, err := s.GetByID(configID)
	if err != nil {
		return nil, err
	}
	update.ID = current.ID
	update.ResearchID = current.ResearchID
	update.CreatedAt = current.CreatedAt
	update.UpdatedAt = s.now()
	if err := s.store.UpdateConfig(update); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: update.UpdatedAt, Actor: "researcher", Action: "update_recruit_config", Target: configID})
	return update, nil
}

func (s *ConfigService) Delete(configID string) error {
	if _, err := s.GetByID(configID); err != nil {
		return err
	}
	if err := s.store.DeleteConfig(configID); err != nil {
		return err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: "researcher", Action: "delete_recruit_config", Target: configID})
	return nil
}

// ResearchSummary bundles everything the authoring UI shows for a research.
type ResearchSummary struct {
	Config      *RecruitConfig     `json:"config"`
	Stats       *RecruitStats      `json:"stats"`
	ActiveLinks []*RecruitmentLink `json:"activeLinks"`
}

// Summary composes the research overview: config, terminal-status stats and
// currently active links. A research without a config yields an empty
// summary rather than an error.
func (s *ConfigService) Summary(researchID string, stats *StatsService, links *LinkService) (*ResearchSummary, error) {
	cfg, err := s.store.GetConfigByResearchID(researchID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return &ResearchSummary{ActiveLinks: []*RecruitmentLink{}}, nil
	}
	st, err := stats.Stats(cfg.ID)
	if err != nil {
		return nil, err
	}
	active, err := links.ActiveLinks(cfg.ID)
	if err != nil {
		return nil, err
	}
	return &ResearchSummary{Config: cfg, Stats: st, ActiveLinks: active}, nil
}
