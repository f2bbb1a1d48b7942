package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/emotiox/recruit/internal/api"
	"github.com/emotiox/recruit/internal/services"
)

// SQLiteStore persists the recruitment data model and doubles as the quota
// ledger. Reservation bookkeeping uses conditional updates inside one
// transaction, so the check-then-increment cannot interleave with another
// admission even across processes sharing the database file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) logErr(prefix string, err error) {
	if err != nil {
		log.Printf("sqlite store: %s: %v", prefix, err)
	}
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func (s *SQLiteStore) InsertConfig(cfg *services.RecruitConfig) (*services.RecruitConfig, error) {
	payload, err := marshalJSON(cfg)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(
		`INSERT INTO recruit_configs (id, research_id, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		cfg.ID, cfg.ResearchID, payload.String, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	out := *cfg
	return &out, nil
}

func (s *SQLiteStore) scanConfig(row *sql.Row) (*services.RecruitConfig, error) {
	var id, researchID, payload string
	var createdAt, updatedAt time.Time
	if err := row.Scan(&id, &researchID, &payload, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var cfg services.RecruitConfig
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", id, err)
	}
	cfg.ID = id
	cfg.ResearchID = researchID
	cfg.CreatedAt = createdAt
	cfg.UpdatedAt = updatedAt
	return &cfg, nil
}

func (s *SQLiteStore) GetConfig(id string) (*services.RecruitConfig, error) {
	row := s.db.QueryRow(`SELECT id, research_id, payload, created_at, updated_at FROM recruit_configs WHERE id = ?`, id)
	return s.scanConfig(row)
}

func (s *SQLiteStore) GetConfigByResearchID(researchID string) (*services.RecruitConfig, error) {
	row := s.db.QueryRow(
		`SELECT id, research_id, payload, created_at, updated_at FROM recruit_configs WHERE research_id = ? ORDER BY created_at DESC LIMIT 1`,
		researchID,
	)
	return s.scanConfig(row)
}

func (s *SQLiteStore) UpdateConfig(cfg *services.RecruitConfig) error {
	payload, err := marshalJSON(cfg)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE recruit_configs SET payload = ?, updated_at = ? WHERE id = ?`,
		payload.String, cfg.UpdatedAt, cfg.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("recruitment config not found")
	}
	return nil
}

func (s *SQLiteStore) DeleteConfig(id string) error {
	res, err := s.db.Exec(`DELETE FROM recruit_configs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("recruitment config not found")
	}
	return nil
}

func (s *SQLiteStore) InsertParticipant(p *services.Participant) (*services.Participant, error) {
	demo, err := marshalJSON(p.Demographics)
	if err != nil {
		return nil, err
	}
	device, err := marshalJSON(p.DeviceInfo)
	if err != nil {
		return nil, err
	}
	location, err := marshalJSON(p.LocationInfo)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(
		`INSERT INTO participants (id, research_id, recruit_config_id, status, demographic_data, device_info, location_info, started_at, completed_at, session_duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ResearchID, p.RecruitConfigID, string(p.Status), demo, device, location, p.StartedAt, toNullTime(p.CompletedAt), p.SessionDuration,
	)
	if err != nil {
		return nil, err
	}
	out := *p
	return &out, nil
}

func scanParticipant(scan func(dest ...any) error) (*services.Participant, error) {
	var p services.Participant
	var status string
	var demo, device, location sql.NullString
	var completedAt sql.NullTime
	if err := scan(&p.ID, &p.ResearchID, &p.RecruitConfigID, &status, &demo, &device, &location, &p.StartedAt, &completedAt, &p.SessionDuration); err != nil {
		return nil, err
	}
	p.Status = services.ParticipantStatus(status)
	p.CompletedAt = fromNullTime(completedAt)
	if demo.Valid {
		if err := json.Unmarshal([]byte(demo.String), &p.Demographics); err != nil {
			return nil, fmt.Errorf("decode demographics for %s: %w", p.ID, err)
		}
	}
	if device.Valid {
		if err := json.Unmarshal([]byte(device.String), &p.DeviceInfo); err != nil {
			return nil, fmt.Errorf("decode device info for %s: %w", p.ID, err)
		}
	}
	if location.Valid {
		if err := json.Unmarshal([]byte(location.String), &p.LocationInfo); err != nil {
			return nil, fmt.Errorf("decode location info for %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

const participantColumns = `id, research_id, recruit_config_id, status, demographic_data, device_info, location_info, started_at, completed_at, session_duration`

func (s *SQLiteStore) GetParticipant(id string) (*services.Participant, error) {
	row := s.db.QueryRow(`SELECT `+participantColumns+` FROM participants WHERE id = ?`, id)
	p, err := scanParticipant(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) UpdateParticipant(p *services.Participant) error {
	demo, err := marshalJSON(p.Demographics)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE participants SET status = ?, demographic_data = ?, completed_at = ?, session_duration = ? WHERE id = ?`,
		string(p.Status), demo, toNullTime(p.CompletedAt), p.SessionDuration, p.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.NewNotFoundError("participant not found")
	}
	return nil
}

func (s *SQLiteStore) ListParticipantsByConfig(configID string) ([]*services.Participant, error) {
	rows, err := s.db.Query(`SELECT `+participantColumns+` FROM participants WHERE recruit_config_id = ? ORDER BY started_at`, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertLink(link *services.RecruitmentLink) (*services.RecruitmentLink, error) {
	_, err := s.db.Exec(
		`INSERT INTO recruitment_links (id, token, research_id, config_id, type, url, created_at, expires_at, last_accessed_at, access_count, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		link.ID, link.Token, link.ResearchID, link.ConfigID, string(link.Type), link.URL,
		link.CreatedAt, toNullTime(link.ExpiresAt), toNullTime(link.LastAccessedAt), link.AccessCount, boolToInt64(link.IsActive),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, services.NewConflictError("duplicate link token")
		}
		return nil, err
	}
	out := *link
	return &out, nil
}

const linkColumns = `id, token, research_id, config_id, type, url, created_at, expires_at, last_accessed_at, access_count, is_active`

func scanLink(scan func(dest ...any) error) (*services.RecruitmentLink, error) {
	var l services.RecruitmentLink
	var linkType string
	var expiresAt, lastAccessedAt sql.NullTime
	var isActive int64
	if err := scan(&l.ID, &l.Token, &l.ResearchID, &l.ConfigID, &linkType, &l.URL, &l.CreatedAt, &expiresAt, &lastAccessedAt, &l.AccessCount, &isActive); err != nil {
		return nil, err
	}
	l.Type = services.LinkType(linkType)
	l.ExpiresAt = fromNullTime(expiresAt)
	l.LastAccessedAt = fromNullTime(lastAccessedAt)
	l.IsActive = isActive != 0
	return &l, nil
}

func (s *SQLiteStore) GetLinkByToken(token string) (*services.RecruitmentLink, error) {
	row := s.db.QueryRow(`SELECT `+linkColumns+` FROM recruitment_links WHERE token = ?`, token)
	l, err := scanLink(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

func (s *SQLiteStore) TouchLinkAccess(token string, at time.Time) (*services.RecruitmentLink, error) {
	res, err := s.db.Exec(
		`UPDATE recruitment_links SET access_count = access_count + 1, last_accessed_at = ? WHERE token = ?`,
		at, token,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, services.NewNotFoundError("recruitment link not found")
	}
	return s.GetLinkByToken(token)
}

func (s *SQLiteStore) DeactivateLink(token string) (*services.RecruitmentLink, error) {
	res, err := s.db.Exec(`UPDATE recruitment_links SET is_active = 0 WHERE token = ?`, token)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, services.NewNotFoundError("recruitment link not found")
	}
	return s.GetLinkByToken(token)
}

func (s *SQLiteStore) ListActiveLinks(configID string) ([]*services.RecruitmentLink, error) {
	rows, err := s.db.Query(`SELECT `+linkColumns+` FROM recruitment_links WHERE config_id = ? AND is_active = 1 ORDER BY created_at`, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*services.RecruitmentLink{}
	for rows.Next() {
		l, err := scanLink(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindUserByEmail(email string) (*services.User, error) {
	row := s.db.QueryRow(`SELECT id, email, pass_hash, tenant_id, created_at FROM users WHERE email = ?`, email)
	var u services.User
	if err := row.Scan(&u.ID, &u.Email, &u.PassHash, &u.TenantID, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) AddUser(u *services.User) error {
	_, err := s.db.Exec(
		`INSERT INTO users (id, email, pass_hash, tenant_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PassHash, u.TenantID, u.CreatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return services.NewConflictError("email exists")
	}
	return err
}

func (s *SQLiteStore) AddTenant(t *services.Tenant) error {
	_, err := s.db.Exec(`INSERT INTO tenants (id, name) VALUES (?, ?)`, t.ID, t.Name)
	return err
}

// AddAudit is best-effort: audit rows are telemetry and must never fail a
// domain operation.
func (s *SQLiteStore) AddAudit(entry services.AuditEntry) {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (at, actor, action, target, note) VALUES (?, ?, ?, ?, ?)`,
		entry.Time, entry.Actor, entry.Action, entry.Target, entry.Note,
	)
	s.logErr("add audit", err)
}

func (s *SQLiteStore) ListAudit() []services.AuditEntry {
	rows, err := s.db.Query(`SELECT at, actor, action, target, note FROM audit_log ORDER BY id`)
	if err != nil {
		s.logErr("list audit", err)
		return nil
	}
	defer rows.Close()
	var out []services.AuditEntry
	for rows.Next() {
		var e services.AuditEntry
		if err := rows.Scan(&e.Time, &e.Actor, &e.Action, &e.Target, &e.Note); err != nil {
			s.logErr("scan audit", err)
			return out
		}
		out = append(out, e)
	}
	return out
}

// Reserve implements the quota ledger with conditional updates: every
// counter increment carries its own cap check in the WHERE clause and runs
// inside one transaction, so either every counter moves or none does.
func (s *SQLiteStore) Reserve(cfg *services.RecruitConfig, participantID string, segments []services.Segment) error {
	if cfg == nil || cfg.ID == "" {
		return services.NewInvalidError("config required")
	}
	if participantID == "" {
		return services.NewInvalidError("participantId required")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRow(`SELECT COUNT(1) FROM reservations WHERE participant_id = ?`, participantID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return services.NewInvalidError("participant already holds a reservation")
	}

	limited := cfg.ParticipantLimit.Enabled && cfg.ParticipantLimit.Value > 0
	if limited {
		res, err := tx.Exec(
			`INSERT INTO global_counters (config_id, consumed) VALUES (?, 1)
			 ON CONFLICT(config_id) DO UPDATE SET consumed = consumed + 1 WHERE consumed < ?`,
			cfg.ID, cfg.ParticipantLimit.Value,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return services.NewOverQuotaError("participant limit reached")
		}
	}

	reserved := make([]services.Segment, 0, len(segments))
	for _, seg := range segments {
		limit, ok := services.QuotaFor(cfg, seg)
		if !ok {
			continue
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO quota_counters (config_id, dimension, segment_key, consumed) VALUES (?, ?, ?, 0)`,
			cfg.ID, seg.Dimension, seg.SegmentKey,
		); err != nil {
			return err
		}
		res, err := tx.Exec(
			`UPDATE quota_counters SET consumed = consumed + 1
			 WHERE config_id = ? AND dimension = ? AND segment_key = ? AND consumed < ?`,
			cfg.ID, seg.Dimension, seg.SegmentKey, limit,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return services.NewOverQuotaError("quota reached for segment " + seg.Dimension + "/" + seg.SegmentKey)
		}
		reserved = append(reserved, seg)
	}

	segJSON, err := json.Marshal(reserved)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO reservations (participant_id, config_id, has_global, segments, state) VALUES (?, ?, ?, ?, 'reserved')`,
		participantID, cfg.ID, boolToInt64(limited), string(segJSON),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Confirm(participantID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var state string
	err = tx.QueryRow(`SELECT state FROM reservations WHERE participant_id = ?`, participantID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return services.NewNotFoundError("no reservation for participant")
	}
	if err != nil {
		return err
	}
	if state == "released" {
		return services.NewInvalidError("reservation already released")
	}
	if _, err := tx.Exec(`UPDATE reservations SET state = 'confirmed' WHERE participant_id = ?`, participantID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Release(participantID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var configID, state, segJSON string
	var hasGlobal int64
	err = tx.QueryRow(
		`SELECT config_id, state, segments, has_global FROM reservations WHERE participant_id = ?`,
		participantID,
	).Scan(&configID, &state, &segJSON, &hasGlobal)
	if errors.Is(err, sql.ErrNoRows) {
		return services.NewNotFoundError("no reservation for participant")
	}
	if err != nil {
		return err
	}
	switch state {
	case "confirmed":
		return services.NewInvalidError("reservation already confirmed")
	case "released":
		return nil
	}

	var segments []services.Segment
	if err := json.Unmarshal([]byte(segJSON), &segments); err != nil {
		return fmt.Errorf("decode reservation segments for %s: %w", participantID, err)
	}
	if hasGlobal != 0 {
		if _, err := tx.Exec(`UPDATE global_counters SET consumed = consumed - 1 WHERE config_id = ?`, configID); err != nil {
			return err
		}
	}
	for _, seg := range segments {
		if _, err := tx.Exec(
			`UPDATE quota_counters SET consumed = consumed - 1 WHERE config_id = ? AND dimension = ? AND segment_key = ?`,
			configID, seg.Dimension, seg.SegmentKey,
		); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`UPDATE reservations SET state = 'released' WHERE participant_id = ?`, participantID); err != nil {
		return err
	}
	return tx.Commit()
}

var (
	_ api.Store            = (*SQLiteStore)(nil)
	_ services.QuotaLedger = (*SQLiteStore)(nil)
)
