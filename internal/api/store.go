package api

import (
	"sync"
	"time"

	"github.com/emotiox/recruit/internal/services"
)

// memoryStore is the default in-process Store. All maps are guarded by a
// single RWMutex; the admission-control counters live in the quota ledger,
// not here, so plain map access under the lock is enough.
type memoryStore struct {
	mu           sync.RWMutex
	configs      map[string]*services.RecruitConfig
	participants map[string]*services.Participant
	links        map[string]*services.RecruitmentLink
	tenants      map[string]*services.Tenant
	usersByEmail map[string]*services.User
	audit        []services.AuditEntry
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return newMemoryStore()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		configs:      map[string]*services.RecruitConfig{},
		participants: map[string]*services.Participant{},
		links:        map[string]*services.RecruitmentLink{},
		tenants:      map[string]*services.Tenant{},
		usersByEmail: map[string]*services.User{},
	}
}

func (s *memoryStore) InsertConfig(cfg *services.RecruitConfig) (*services.RecruitConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *cfg
	s.configs[cfg.ID] = &copy
	out := copy
	return &out, nil
}

func (s *memoryStore) GetConfig(id string) (*services.RecruitConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cfg, ok := s.configs[id]; ok {
		copy := *cfg
		return &copy, nil
	}
	return nil, nil
}

func (s *memoryStore) GetConfigByResearchID(researchID string) (*services.RecruitConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *services.RecruitConfig
	for _, cfg := range s.configs {
		if cfg.ResearchID != researchID {
			continue
		}
		if latest == nil || cfg.CreatedAt.After(latest.CreatedAt) {
			latest = cfg
		}
	}
	if latest == nil {
		return nil, nil
	}
	copy := *latest
	return &copy, nil
}

func (s *memoryStore) UpdateConfig(cfg *services.RecruitConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[cfg.ID]; !ok {
		return services.NewNotFoundError("recruitment config not found")
	}
	copy := *cfg
	s.configs[cfg.ID] = &copy
	return nil
}

func (s *memoryStore) DeleteConfig(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[id]; !ok {
		return services.NewNotFoundError("recruitment config not found")
	}
	delete(s.configs, id)
	return nil
}

func (s *memoryStore) InsertParticipant(p *services.Participant) (*services.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *p
	s.participants[p.ID] = &copy
	out := copy
	return &out, nil
}

func (s *memoryStore) GetParticipant(id string) (*services.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.participants[id]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, nil
}

func (s *memoryStore) UpdateParticipant(p *services.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.ID]; !ok {
		return services.NewNotFoundError("participant not found")
	}
	copy := *p
	s.participants[p.ID] = &copy
	return nil
}

func (s *memoryStore) ListParticipantsByConfig(configID string) ([]*services.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.Participant{}
	for _, p := range s.participants {
		if p.RecruitConfigID == configID {
			copy := *p
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *memoryStore) InsertLink(link *services.RecruitmentLink) (*services.RecruitmentLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[link.Token]; exists {
		return nil, services.NewConflictError("duplicate link token")
	}
	copy := *link
	s.links[link.Token] = &copy
	out := copy
	return &out, nil
}

func (s *memoryStore) GetLinkByToken(token string) (*services.RecruitmentLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.links[token]; ok {
		copy := *l
		return &copy, nil
	}
	return nil, nil
}

func (s *memoryStore) TouchLinkAccess(token string, at time.Time) (*services.RecruitmentLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[token]
	if !ok {
		return nil, services.NewNotFoundError("recruitment link not found")
	}
	l.AccessCount++
	l.LastAccessedAt = &at
	copy := *l
	return &copy, nil
}

func (s *memoryStore) DeactivateLink(token string) (*services.RecruitmentLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[token]
	if !ok {
		return nil, services.NewNotFoundError("recruitment link not found")
	}
	l.IsActive = false
	copy := *l
	return &copy, nil
}

func (s *memoryStore) ListActiveLinks(configID string) ([]*services.RecruitmentLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.RecruitmentLink{}
	for _, l := range s.links {
		if l.ConfigID == configID && l.IsActive {
			copy := *l
			out = append(out, &copy)
		}
	}
	return out, nil
}

func (s *memoryStore) FindUserByEmail(email string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.usersByEmail[email]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, nil
}

func (s *memoryStore) AddUser(u *services.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *u
	s.usersByEmail[u.Email] = &copy
	return nil
}

func (s *memoryStore) AddTenant(t *services.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *t
	s.tenants[t.ID] = &copy
	return nil
}

func (s *memoryStore) AddAudit(entry services.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
}

func (s *memoryStore) ListAudit() []services.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]services.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}
