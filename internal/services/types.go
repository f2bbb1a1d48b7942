package services

import "time"

// ParticipantStatus is the lifecycle state of a recruited participant.
// A participant is created as inprogress and moves exactly once to one of
// the three terminal states.
type ParticipantStatus string

const (
	StatusInProgress   ParticipantStatus = "inprogress"
	StatusComplete     ParticipantStatus = "complete"
	StatusDisqualified ParticipantStatus = "disqualified"
	StatusOverquota    ParticipantStatus = "overquota"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ParticipantStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusDisqualified || s == StatusOverquota
}

// LinkType distinguishes the audiences a recruitment link is issued for.
type LinkType string

const (
	LinkTypeStandard LinkType = "standard"
	LinkTypePreview  LinkType = "preview"
	LinkTypeAdmin    LinkType = "admin"
)

// Quota caps the number of completed participants for one demographic segment.
type Quota struct {
	SegmentKey string `json:"segmentKey"`
	Quota      int    `json:"quota"`
	IsActive   bool   `json:"isActive"`
}

// DemographicQuestion configures one screening dimension.
type DemographicQuestion struct {
	Enabled       bool     `json:"enabled"`
	Required      bool     `json:"required"`
	Options       []string `json:"options,omitempty"`
	Disqualifying []string `json:"disqualifying,omitempty"`
	Quotas        []Quota  `json:"quotas,omitempty"`
	QuotasEnabled bool     `json:"quotasEnabled,omitempty"`
}

// DemographicQuestions holds the eight screening dimensions a recruitment
// config may enable.
type DemographicQuestions struct {
	Age                  DemographicQuestion `json:"age"`
	Country              DemographicQuestion `json:"country"`
	Gender               DemographicQuestion `json:"gender"`
	EducationLevel       DemographicQuestion `json:"educationLevel"`
	HouseholdIncome      DemographicQuestion `json:"householdIncome"`
	EmploymentStatus     DemographicQuestion `json:"employmentStatus"`
	DailyHoursOnline     DemographicQuestion `json:"dailyHoursOnline"`
	TechnicalProficiency DemographicQuestion `json:"technicalProficiency"`
}

type LinkConfig struct {
	AllowMobile           bool `json:"allowMobile"`
	TrackLocation         bool `json:"trackLocation"`
	AllowMultipleAttempts bool `json:"allowMultipleAttempts"`
	ShowProgressBar       bool `json:"showProgressBar"`
}

type ParticipantLimit struct {
	Enabled bool `json:"enabled"`
	Value   int  `json:"value"`
}

// Backlinks are the redirect URLs participants are sent to when they reach
// a terminal status.
type Backlinks struct {
	Complete     string `json:"complete"`
	Disqualified string `json:"disqualified"`
	Overquota    string `json:"overquota"`
}

type ParameterOptions struct {
	SaveDeviceInfo    bool `json:"saveDeviceInfo"`
	SaveLocationInfo  bool `json:"saveLocationInfo"`
	SaveResponseTimes bool `json:"saveResponseTimes"`
	SaveUserJourney   bool `json:"saveUserJourney"`
}

// RecruitConfig is the recruitment configuration of one research study.
// ResearchID is immutable after creation; at most one config exists per
// research.
type RecruitConfig struct {
	ID                   string               `json:"id"`
	ResearchID           string               `json:"researchId"`
	DemographicQuestions DemographicQuestions `json:"demographicQuestions"`
	LinkConfig           LinkConfig           `json:"linkConfig"`
	ParticipantLimit     ParticipantLimit     `json:"participantLimit"`
	Backlinks            Backlinks            `json:"backlinks"`
	ResearchURL          string               `json:"researchUrl,omitempty"`
	ParameterOptions     ParameterOptions     `json:"parameterOptions"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
}

// BacklinkFor returns the redirect URL configured for a terminal status,
// or "" when the status is not terminal or no URL is configured.
func (c *RecruitConfig) BacklinkFor(status ParticipantStatus) string {
	switch status {
	case StatusComplete:
		return c.Backlinks.Complete
	case StatusDisqualified:
		return c.Backlinks.Disqualified
	case StatusOverquota:
		return c.Backlinks.Overquota
	}
	return ""
}

// Demographics are a respondent's declared answers, one optional value per
// dimension.
type Demographics struct {
	Age                  string `json:"age,omitempty"`
	Country              string `json:"country,omitempty"`
	Gender               string `json:"gender,omitempty"`
	EducationLevel       string `json:"educationLevel,omitempty"`
	HouseholdIncome      string `json:"householdIncome,omitempty"`
	EmploymentStatus     string `json:"employmentStatus,omitempty"`
	DailyHoursOnline     string `json:"dailyHoursOnline,omitempty"`
	TechnicalProficiency string `json:"technicalProficiency,omitempty"`
}

type DeviceInfo struct {
	UserAgent        string `json:"userAgent,omitempty"`
	Platform         string `json:"platform,omitempty"`
	ScreenResolution string `json:"screenResolution,omitempty"`
	Browser          string `json:"browser,omitempty"`
	BrowserVersion   string `json:"browserVersion,omitempty"`
}

type LocationInfo struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
}

// Participant is one admitted respondent, owned by a recruitment config.
type Participant struct {
	ID              string            `json:"id"`
	ResearchID      string            `json:"researchId"`
	RecruitConfigID string            `json:"recruitConfigId"`
	Status          ParticipantStatus `json:"status"`
	Demographics    *Demographics     `json:"demographicData,omitempty"`
	DeviceInfo      *DeviceInfo       `json:"deviceInfo,omitempty"`
	LocationInfo    *LocationInfo     `json:"locationInfo,omitempty"`
	StartedAt       time.Time         `json:"startedAt"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
	SessionDuration int               `json:"sessionDuration,omitempty"` // seconds
}

// RecruitmentLink gates access to the admission flow.
type RecruitmentLink struct {
	ID             string     `json:"id"`
	Token          string     `json:"token"`
	ResearchID     string     `json:"researchId"`
	ConfigID       string     `json:"configId"`
	Type           LinkType   `json:"type"`
	URL            string     `json:"url"`
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`
	AccessCount    int        `json:"accessCount"`
	IsActive       bool       `json:"isActive"`
}

type StatItem struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// RecruitStats summarizes terminal statuses for one config.
type RecruitStats struct {
	Complete     StatItem `json:"complete"`
	Disqualified StatItem `json:"disqualified"`
	Overquota    StatItem `json:"overquota"`
	Total        int      `json:"total"`
}

// User is a researcher account with access to the authoring surface.
type User struct {
	ID        string
	Email     string
	PassHash  []byte
	TenantID  string
	CreatedAt time.Time
}

// Tenant groups researcher accounts.
type Tenant struct {
	ID   string
	Name string
}

type AuditEntry struct {
	Time   time.Time
	Actor  string
	Action string
	Target string
	Note   string
}
