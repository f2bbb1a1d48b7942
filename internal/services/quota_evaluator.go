package services

import "fmt"

// Segment identifies one quota bucket a respondent falls into.
type Segment struct {
	Dimension  string `json:"dimension"`
	SegmentKey string `json:"segmentKey"`
}

// EvaluationResult is the outcome of screening a respondent's demographics
// against a recruitment config.
type EvaluationResult struct {
	Disqualified bool      `json:"disqualified"`
	Reason       string    `json:"reason,omitempty"`
	Segments     []Segment `json:"segments,omitempty"`
}

type dimension struct {
	key      string
	answer   func(*Demographics) string
	question func(*DemographicQuestions) *DemographicQuestion
}

// Fixed order keeps evaluation deterministic: the first disqualifying
// dimension in this order wins.
var dimensions = []dimension{
	{"age", func(d *Demographics) string { return d.Age }, func(q *DemographicQuestions) *DemographicQuestion { return &q.Age }},
	{"country", func(d *Demographics) string { return d.Country }, func(q *DemographicQuestions) *DemographicQuestion { return &q.Country }},
	{"gender", func(d *Demographics) string { return d.Gender }, func(q *DemographicQuestions) *DemographicQuestion { return &q.Gender }},
	{"educationLevel", func(d *Demographics) string { return d.EducationLevel }, func(q *DemographicQuestions) *DemographicQuestion { return &q.EducationLevel }},
	{"householdIncome", func(d *Demographics) string { return d.HouseholdIncome }, func(q *DemographicQuestions) *DemographicQuestion { return &q.HouseholdIncome }},
	{"employmentStatus", func(d *Demographics) string { return d.EmploymentStatus }, func(q *DemographicQuestions) *DemographicQuestion { return &q.EmploymentStatus }},
	{"dailyHoursOnline", func(d *Demographics) string { return d.DailyHoursOnline }, func(q *DemographicQuestions) *DemographicQuestion { return &q.DailyHoursOnline }},
	{"technicalProficiency", func(d *Demographics) string { return d.TechnicalProficiency }, func(q *DemographicQuestions) *DemographicQuestion { return &q.TechnicalProficiency }},
}

// EvaluateQuotas screens a respondent against a config. It is pure and
// deterministic: missing required answers surface first, then the first
// disqualifying dimension wins, then quota segments are resolved for the
// remaining dimensions. A value that matches no active segment label is not
// quota-limited by that dimension.
func EvaluateQuotas(cfg *RecruitConfig, demo *Demographics) (*EvaluationResult, error) {
	if cfg == nil {
		return nil, NewInvalidError("config required")
	}
	if demo == nil {
		demo = &Demographics{}
	}
	questions := &cfg.DemographicQuestions

	for _, dim := range dimensions {
		q := dim.question(questions)
		if q.Enabled && q.Required && dim.answer(demo) == "" {
			return nil, NewMissingRequiredFieldError(fmt.Sprintf("demographic field %q is required", dim.key))
		}
	}

	for _, dim := range dimensions {
		q := dim.question(questions)
		if !q.Enabled {
			continue
		}
		value := dim.answer(demo)
		if value == "" {
			continue
		}
		for _, bad := range q.Disqualifying {
			if value == bad {
				return &EvaluationResult{Disqualified: true, Reason: dim.key}, nil
			}
		}
	}

	result := &EvaluationResult{}
	for _, dim := range dimensions {
		q := dim.question(questions)
		if !q.Enabled || !q.QuotasEnabled {
			continue
		}
		value := dim.answer(demo)
		if value == "" {
			continue
		}
		for _, quota := range q.Quotas {
			if quota.IsActive && quota.SegmentKey == value {
				result.Segments = append(result.Segments, Segment{Dimension: dim.key, SegmentKey: quota.SegmentKey})
				break
			}
		}
	}
	return result, nil
}

// QuotaFor looks up the configured cap for a segment. The second return is
// false when the segment has no active quota.
func QuotaFor(cfg *RecruitConfig, seg Segment) (int, bool) {
	for _, dim := range dimensions {
		if dim.key != seg.Dimension {
			continue
		}
		q := dim.question(&cfg.DemographicQuestions)
		if !q.Enabled || !q.QuotasEnabled {
			return 0, false
		}
		for _, quota := range q.Quotas {
			if quota.IsActive && quota.SegmentKey == seg.SegmentKey {
				return quota.Quota, true
			}
		}
		return 0, false
	}
	return 0, false
}
