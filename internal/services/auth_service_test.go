package services

import (
	"testing"
	"time"
)

type stubAuthStore struct {
	users   map[string]*User
	tenants []*Tenant
}

func newStubAuthStore() *stubAuthStore {
	return &stubAuthStore{users: map[string]*User{}}
}

func (s *stubAuthStore) FindUserByEmail(email string) (*User, error) {
	if u, ok := s.users[email]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, nil
}

func (s *stubAuthStore) AddUser(u *User) error {
	copy := *u
	s.users[u.Email] = &copy
	return nil
}

func (s *stubAuthStore) AddTenant(t *Tenant) error {
	copy := *t
	s.tenants = append(s.tenants, &copy)
	return nil
}

func testSigner(uid, tid, email string, ttl time.Duration) (string, error) {
	return uid + ":" + tid, nil
}

func TestAuthRegisterAndLogin(t *testing.T) {
	store := newStubAuthStore()
	svc := NewAuthService(store, testSigner)

	reg, err := svc.Register("lab@example.com", "hunter22", "Lab")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if reg.Token == "" || reg.TenantID == "" || reg.UserID == "" {
		t.Fatalf("unexpected result: %+v", reg)
	}

	login, err := svc.Login("lab@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if login.UserID != reg.UserID || login.TenantID != reg.TenantID {
		t.Fatalf("login mismatch: %+v vs %+v", login, reg)
	}
}

func TestAuthRegisterDuplicateEmail(t *testing.T) {
	store := newStubAuthStore()
	svc := NewAuthService(store, testSigner)
	if _, err := svc.Register("lab@example.com", "hunter22", "Lab"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := svc.Register("lab@example.com", "other", "Lab2"); !IsErrorCode(err, ErrorConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAuthLoginWrongPassword(t *testing.T) {
	store := newStubAuthStore()
	svc := NewAuthService(store, testSigner)
	if _, err := svc.Register("lab@example.com", "hunter22", "Lab"); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := svc.Login("lab@example.com", "wrong"); !IsErrorCode(err, ErrorUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
