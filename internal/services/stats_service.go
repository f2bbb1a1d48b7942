package services

import "math"

// StatsService derives {count, percentage} per terminal status from the
// participant store. Read-only; it never mutates counters and only needs to
// be eventually consistent with the ledger.
type StatsService struct {
	store ParticipantStore
}

func NewStatsService(store ParticipantStore) *StatsService {
	return &StatsService{store: store}
}

func (s *StatsService) Stats(configID string) (*RecruitStats, error) {
	if configID == "" {
		return nil, NewInvalidError("configId required")
	}
	participants, err := s.store.ListParticipantsByConfig(configID)
	if err != nil {
		return nil, err
	}
	var complete, disqualified, overquota int
	for _, p := range participants {
		switch p.Status {
		case StatusComplete:
			complete++
		case StatusDisqualified:
			disqualified++
		case StatusOverquota:
			overquota++
		}
	}
	total := len(participants)
	return &RecruitStats{
		Complete:     StatItem{Count: complete, Percentage: percentage(complete, total)},
		Disqualified: StatItem{Count: disqualified, Percentage: percentage(disqualified, total)},
		Overquota:    StatItem{Count: overquota, Percentage: percentage(overquota, total)},
		Total:        total,
	}, nil
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*100*100) / 100
}
