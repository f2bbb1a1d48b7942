package services

import (
	"strings"
	"time"
)

// LinkStore abstracts persistence of recruitment links.
type LinkStore interface {
	InsertLink(link *RecruitmentLink) (*RecruitmentLink, error)
	GetLinkByToken(token string) (*RecruitmentLink, error)
	TouchLinkAccess(token string, at time.Time) (*RecruitmentLink, error)
	DeactivateLink(token string) (*RecruitmentLink, error)
	ListActiveLinks(configID string) ([]*RecruitmentLink, error)
	AddAudit(entry AuditEntry)
}

// LinkService issues and validates the recruitment links that gate access
// to the admission flow. A link is active until it is deactivated or
// expires; neither state has a path back to active.
type LinkService struct {
	links    LinkStore
	configs  ConfigStore
	now      func() time.Time
	idGen    func() string
	tokenGen func() string
	baseURL  string
}

func NewLinkService(links LinkStore, configs ConfigStore, baseURL string) *LinkService {
	return &LinkService{
		links:    links,
		configs:  configs,
		now:      func() time.Time { return time.Now().UTC() },
		idGen:    func() string { return shortID(12) },
		tokenGen: func() string { return shortID(0) },
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Generate creates a link for a config. expirationDays <= 0 means the link
// never expires.
func (s *LinkService) Generate(configID string, linkType LinkType, expirationDays int) (*RecruitmentLink, error) {
	if strings.TrimSpace(configID) == "" {
		return nil, NewInvalidError("configId required")
	}
	switch linkType {
	case LinkTypeStandard, LinkTypePreview, LinkTypeAdmin:
	case "":
		linkType = LinkTypeStandard
	default:
		return nil, NewInvalidError("unknown link type " + string(linkType))
	}
	cfg, err := s.configs.GetConfig(configID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, NewNotFoundError("recruitment config not found")
	}
	now := s.now()
	token := s.tokenGen()
	link := &RecruitmentLink{
		ID:         s.idGen(),
		Token:      token,
		ResearchID: cfg.ResearchID,
		ConfigID:   configID,
		Type:       linkType,
		URL:        s.baseURL + "/participate/" + token,
		CreatedAt:  now,
		IsActive:   true,
	}
	if expirationDays > 0 {
		expires := now.AddDate(0, 0, expirationDays)
		link.ExpiresAt = &expires
	}
	created, err := s.links.InsertLink(link)
	if err != nil {
		return nil, err
	}
	s.links.AddAudit(AuditEntry{Time: now, Actor: "researcher", Action: "generate_link", Target: created.Token, Note: configID})
	return created, nil
}

// Validate checks a token before the admission flow runs. On success the
// access counter is bumped; that bump is telemetry and a lost increment is
// tolerated rather than failing the validation.
func (s *LinkService) Validate(token string) (*RecruitmentLink, error) {
	if strings.TrimSpace(token) == "" {
		return nil, NewInvalidError("token required")
	}
	link, err := s.links.GetLinkByToken(token)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, NewNotFoundError("recruitment link not found")
	}
	if !link.IsActive {
		return nil, NewLinkDeactivatedError("recruitment link has been deactivated")
	}
	if link.ExpiresAt != nil && link.ExpiresAt.Before(s.now()) {
		return nil, NewLinkExpiredError("recruitment link has expired")
	}
	if touched, err := s.links.TouchLinkAccess(token, s.now()); err == nil && touched != nil {
		return touched, nil
	}
	return link, nil
}

// Deactivate flips a link inactive. Deactivating an already inactive link
// is not an error.
func (s *LinkService) Deactivate(token string) (*RecruitmentLink, error) {
	if strings.TrimSpace(token) == "" {
		return nil, NewInvalidError("token required")
	}
	link, err := s.links.GetLinkByToken(token)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, NewNotFoundError("recruitment link not found")
	}
	if !link.IsActive {
		return link, nil
	}
	deactivated, err := s.links.DeactivateLink(token)
	if err != nil {
		return nil, err
	}
	s.links.AddAudit(AuditEntry{Time: s.now(), Actor: "researcher", Action: "deactivate_link", Target: token})
	return deactivated, nil
}

func (s *LinkService) ActiveLinks(configID string) ([]*RecruitmentLink, error) {
	if strings.TrimSpace(configID) == "" {
		return nil, NewInvalidError("configId required")
	}
	links, err := s.links.ListActiveLinks(configID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]*RecruitmentLink, 0, len(links))
	for _, l := range links {
		if l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
