package db

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/emotiox/recruit/internal/services"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recruit.db")
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000&_txlock=immediate", filepath.ToSlash(path))
	sqliteDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqliteDB.Close() })
	if err := RunMigrations(sqliteDB, ""); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	store, err := NewSQLiteStore(sqliteDB)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func testConfig() *services.RecruitConfig {
	now := time.Now().UTC().Truncate(time.Second)
	return &services.RecruitConfig{
		ID:         "cfg1",
		ResearchID: "res1",
		DemographicQuestions: services.DemographicQuestions{
			Gender: services.DemographicQuestion{
				Enabled:       true,
				Options:       []string{"male", "female"},
				QuotasEnabled: true,
				Quotas: []services.Quota{
					{SegmentKey: "female", Quota: 1, IsActive: true},
				},
			},
		},
		ParticipantLimit: services.ParticipantLimit{Enabled: true, Value: 2},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestSQLiteConfigRoundTrip(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig()
	if _, err := store.InsertConfig(cfg); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := store.GetConfigByResearchID("res1")
	if err != nil {
		t.Fatalf("get by research: %v", err)
	}
	if got == nil || got.ID != "cfg1" {
		t.Fatalf("got %+v", got)
	}
	if len(got.DemographicQuestions.Gender.Quotas) != 1 {
		t.Fatalf("quotas lost in round trip: %+v", got.DemographicQuestions.Gender)
	}

	got.ResearchURL = "https://study.example.com"
	got.UpdatedAt = got.UpdatedAt.Add(time.Minute)
	if err := store.UpdateConfig(got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, err := store.GetConfig("cfg1")
	if err != nil || again.ResearchURL != "https://study.example.com" {
		t.Fatalf("update not persisted: %+v err=%v", again, err)
	}

	if err := store.DeleteConfig("cfg1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteConfig("cfg1"); !services.IsErrorCode(err, services.ErrorNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestSQLiteLedgerGlobalLimit(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig()
	if _, err := store.InsertConfig(cfg); err != nil {
		t.Fatalf("insert config: %v", err)
	}

	if err := store.Reserve(cfg, "p1", nil); err != nil {
		t.Fatalf("reserve p1: %v", err)
	}
	if err := store.Reserve(cfg, "p2", nil); err != nil {
		t.Fatalf("reserve p2: %v", err)
	}
	if err := store.Reserve(cfg, "p3", nil); !services.IsErrorCode(err, services.ErrorOverQuota) {
		t.Fatalf("reserve p3 = %v, want over_quota", err)
	}

	if err := store.Release("p1"); err != nil {
		t.Fatalf("release p1: %v", err)
	}
	if err := store.Reserve(cfg, "p3", nil); err != nil {
		t.Fatalf("reserve p3 after release: %v", err)
	}
}

func TestSQLiteLedgerSegmentQuota(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig()
	cfg.ParticipantLimit.Enabled = false
	seg := []services.Segment{{Dimension: "gender", SegmentKey: "female"}}

	if err := store.Reserve(cfg, "f1", seg); err != nil {
		t.Fatalf("reserve f1: %v", err)
	}
	if err := store.Reserve(cfg, "f2", seg); !services.IsErrorCode(err, services.ErrorOverQuota) {
		t.Fatalf("reserve f2 = %v, want over_quota", err)
	}

	// Segments without a configured cap pass through uncounted.
	other := []services.Segment{{Dimension: "gender", SegmentKey: "male"}}
	if err := store.Reserve(cfg, "m1", other); err != nil {
		t.Fatalf("reserve m1: %v", err)
	}

	if err := store.Release("f1"); err != nil {
		t.Fatalf("release f1: %v", err)
	}
	if err := store.Reserve(cfg, "f2", seg); err != nil {
		t.Fatalf("reserve f2 after release: %v", err)
	}
}

func TestSQLiteLedgerConfirmAndRelease(t *testing.T) {
	store := newTestStore(t)
	cfg := testConfig()

	if err := store.Reserve(cfg, "p1", nil); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Confirm("p1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := store.Confirm("p1"); err != nil {
		t.Fatalf("confirm should be idempotent: %v", err)
	}
	if err := store.Release("p1"); !services.IsErrorCode(err, services.ErrorInvalid) {
		t.Fatalf("release after confirm = %v, want invalid", err)
	}

	if err := store.Reserve(cfg, "p2", nil); err != nil {
		t.Fatalf("reserve p2: %v", err)
	}
	if err := store.Release("p2"); err != nil {
		t.Fatalf("release p2: %v", err)
	}
	if err := store.Release("p2"); err != nil {
		t.Fatalf("double release should be a no-op: %v", err)
	}
	if err := store.Confirm("p2"); !services.IsErrorCode(err, services.ErrorInvalid) {
		t.Fatalf("confirm after release = %v, want invalid", err)
	}
	if err := store.Confirm("ghost"); !services.IsErrorCode(err, services.ErrorNotFound) {
		t.Fatalf("confirm unknown = %v, want not_found", err)
	}
}

func TestSQLiteLinkLifecycle(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	link := &services.RecruitmentLink{
		ID: "l1", Token: "tok", ResearchID: "res1", ConfigID: "cfg1",
		Type: services.LinkTypeStandard, URL: "http://x/participate/tok",
		CreatedAt: now, IsActive: true,
	}
	if _, err := store.InsertLink(link); err != nil {
		t.Fatalf("insert link: %v", err)
	}
	if _, err := store.InsertLink(link); !services.IsErrorCode(err, services.ErrorConflict) {
		t.Fatalf("duplicate token = %v, want conflict", err)
	}

	touched, err := store.TouchLinkAccess("tok", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if touched.AccessCount != 1 || touched.LastAccessedAt == nil {
		t.Fatalf("touch result %+v", touched)
	}

	deactivated, err := store.DeactivateLink("tok")
	if err != nil || deactivated.IsActive {
		t.Fatalf("deactivate: %+v err=%v", deactivated, err)
	}
	active, err := store.ListActiveLinks("cfg1")
	if err != nil || len(active) != 0 {
		t.Fatalf("active links after deactivation: %v err=%v", active, err)
	}
}

func TestSQLiteParticipantRoundTrip(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	p := &services.Participant{
		ID: "p1", ResearchID: "res1", RecruitConfigID: "cfg1",
		Status:       services.StatusInProgress,
		Demographics: &services.Demographics{Age: "25-34", Gender: "female"},
		DeviceInfo:   &services.DeviceInfo{Platform: "MacIntel"},
		StartedAt:    now,
	}
	if _, err := store.InsertParticipant(p); err != nil {
		t.Fatalf("insert participant: %v", err)
	}

	got, err := store.GetParticipant("p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Demographics == nil || got.Demographics.Gender != "female" {
		t.Fatalf("demographics lost: %+v", got)
	}
	if got.DeviceInfo == nil || got.DeviceInfo.Platform != "MacIntel" {
		t.Fatalf("device info lost: %+v", got)
	}

	done := now.Add(90 * time.Second)
	got.Status = services.StatusComplete
	got.CompletedAt = &done
	got.SessionDuration = 90
	if err := store.UpdateParticipant(got); err != nil {
		t.Fatalf("update: %v", err)
	}

	list, err := store.ListParticipantsByConfig("cfg1")
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v err=%v", list, err)
	}
	if list[0].Status != services.StatusComplete || list[0].SessionDuration != 90 || list[0].CompletedAt == nil {
		t.Fatalf("updated participant = %+v", list[0])
	}
}
