package accesscode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mediagate.org/internal/access"
)

type memStore struct {
	mu        sync.Mutex
	byDigest  map[string]*Code
	byID      map[string]*Code
	createErr []error // consumed one per Create call
}

func newMemStore() *memStore {
	return &memStore{
		byDigest: make(map[string]*Code),
		byID:     make(map[string]*Code),
	}
}

func (m *memStore) Create(_ context.Context, code *Code, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createErr) > 0 {
		err := m.createErr[0]
		m.createErr = m.createErr[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := m.byDigest[digest]; ok {
		return fmt.Errorf("%w: digest exists", access.ErrConflict)
	}
	cp := *code
	m.byDigest[digest] = &cp
	m.byID[code.ID] = &cp
	return nil
}

func (m *memStore) FindByDigest(_ context.Context, digest string) (Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byDigest[digest]
	if !ok {
		return Code{}, fmt.Errorf("%w: access code", access.ErrNotFound)
	}
	return *c, nil
}

func (m *memStore) Revoke(_ context.Context, ownerID, codeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[codeID]
	if !ok || c.OwnerID != ownerID {
		return fmt.Errorf("%w: access code", access.ErrNotFound)
	}
	c.Active = false
	return nil
}

func (m *memStore) ListByOwner(_ context.Context, ownerID string) ([]Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Code
	for _, c := range m.byID {
		if c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) ConsumeUse(_ context.Context, codeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[codeID]
	if !ok {
		return false, nil
	}
	if c.MaxUses > 0 && c.CurrentUses >= c.MaxUses {
		return false, nil
	}
	c.CurrentUses++
	return true, nil
}

func TestScopeValidate(t *testing.T) {
	ref := access.ResourceRef{Type: access.ResourceVideo, ID: 2}

	if err := (Scope{GroupID: 7}).Validate(); err != nil {
		t.Fatalf("group scope: %v", err)
	}
	if err := (Scope{Resources: []access.ResourceRef{ref}}).Validate(); err != nil {
		t.Fatalf("resource scope: %v", err)
	}
	if err := (Scope{}).Validate(); !errors.Is(err, access.ErrInvalidScope) {
		t.Fatalf("empty scope: %v", err)
	}
	both := Scope{GroupID: 7, Resources: []access.ResourceRef{ref}}
	if err := both.Validate(); !errors.Is(err, access.ErrInvalidScope) {
		t.Fatalf("dual scope: %v", err)
	}
	bad := Scope{Resources: []access.ResourceRef{{Type: "track", ID: 1}}}
	if err := bad.Validate(); !errors.Is(err, access.ErrInvalidScope) {
		t.Fatalf("invalid resource in scope: %v", err)
	}
}

func TestScopeCovers(t *testing.T) {
	vid := access.ResourceRef{Type: access.ResourceVideo, ID: 2}
	other := access.ResourceRef{Type: access.ResourceVideo, ID: 3}

	byList := Scope{Resources: []access.ResourceRef{vid}}
	if !byList.covers(access.Resource{Ref: vid}) {
		t.Fatal("explicit list must cover its resource")
	}
	if byList.covers(access.Resource{Ref: other}) {
		t.Fatal("explicit list must not cover other resources")
	}

	byGroup := Scope{GroupID: 7}
	if !byGroup.covers(access.Resource{Ref: other, GroupID: 7}) {
		t.Fatal("group scope must cover group members")
	}
	if byGroup.covers(access.Resource{Ref: other, GroupID: 8}) {
		t.Fatal("group scope must not cover other groups")
	}
	if byGroup.covers(access.Resource{Ref: other}) {
		t.Fatal("group scope must not cover ungrouped resources")
	}
}

func mustCreate(t *testing.T, svc *Service, p CreateParams) (Code, string) {
	t.Helper()
	code, secret, err := svc.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return code, secret
}

func baseParams() CreateParams {
	return CreateParams{
		OwnerID:    "alice",
		Permission: access.PermissionDownload,
		Scope:      Scope{Resources: []access.ResourceRef{{Type: access.ResourceVideo, ID: 2}}},
	}
}

func TestCreateValidation(t *testing.T) {
	svc, err := NewService(newMemStore())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	p := baseParams()
	p.OwnerID = " "
	if _, _, err := svc.Create(context.Background(), p); !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("blank owner: %v", err)
	}

	p = baseParams()
	p.Permission = 0
	if _, _, err := svc.Create(context.Background(), p); !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("missing permission: %v", err)
	}

	p = baseParams()
	p.MaxUses = -1
	if _, _, err := svc.Create(context.Background(), p); !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("negative max_uses: %v", err)
	}

	p = baseParams()
	p.ExpiresAt = time.Now().Add(-time.Hour)
	if _, _, err := svc.Create(context.Background(), p); !errors.Is(err, access.ErrInvalidInput) {
		t.Fatalf("past expiry: %v", err)
	}

	p = baseParams()
	p.Scope = Scope{}
	if _, _, err := svc.Create(context.Background(), p); !errors.Is(err, access.ErrInvalidScope) {
		t.Fatalf("empty scope: %v", err)
	}
}

func TestCreateRetriesOnDigestCollision(t *testing.T) {
	store := newMemStore()
	store.createErr = []error{
		fmt.Errorf("%w: digest exists", access.ErrConflict),
		fmt.Errorf("%w: digest exists", access.ErrConflict),
	}
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	code, secret := mustCreate(t, svc, baseParams())
	if code.ID == "" || secret == "" {
		t.Fatalf("expected code after retries, got %+v / %q", code, secret)
	}
}

func TestCreateGivesUpAfterBoundedAttempts(t *testing.T) {
	store := newMemStore()
	store.createErr = []error{
		fmt.Errorf("%w", access.ErrConflict),
		fmt.Errorf("%w", access.ErrConflict),
	}
	svc, err := NewService(store, WithGenerateAttempts(2))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, _, err := svc.Create(context.Background(), baseParams()); !errors.Is(err, access.ErrInternal) {
		t.Fatalf("expected ErrInternal after exhausted attempts, got %v", err)
	}
}

func TestValidateLifecycle(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewService(store, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ref := access.ResourceRef{Type: access.ResourceVideo, ID: 2}
	res := access.Resource{Ref: ref, OwnerID: "alice"}

	p := baseParams()
	p.ExpiresAt = now.Add(24 * time.Hour)
	p.MaxUses = 2
	code, secret := mustCreate(t, svc, p)

	// Unknown secret.
	if _, err := svc.Validate(context.Background(), "wrong", res, access.PermissionRead, "203.0.113.9"); !errors.Is(err, access.ErrNotFound) {
		t.Fatalf("unknown secret: %v", err)
	}

	// Wrong resource.
	offScope := access.Resource{Ref: access.ResourceRef{Type: access.ResourceVideo, ID: 3}}
	if _, err := svc.Validate(context.Background(), secret, offScope, access.PermissionRead, ""); !errors.Is(err, access.ErrUnauthorized) {
		t.Fatalf("scope mismatch: %v", err)
	}

	// Requesting above the code's level.
	if _, err := svc.Validate(context.Background(), secret, res, access.PermissionEdit, ""); !errors.Is(err, access.ErrUnauthorized) {
		t.Fatalf("insufficient level: %v", err)
	}

	// Two good uses, then the cap.
	for i := 0; i < 2; i++ {
		level, err := svc.Validate(context.Background(), secret, res, access.PermissionRead, "")
		if err != nil {
			t.Fatalf("use %d: %v", i+1, err)
		}
		if level != access.PermissionDownload {
			t.Fatalf("use %d granted %v, want download", i+1, level)
		}
	}
	if _, err := svc.Validate(context.Background(), secret, res, access.PermissionRead, ""); !errors.Is(err, access.ErrUsageExceeded) {
		t.Fatalf("over cap: %v", err)
	}

	// Revocation.
	if err := svc.Revoke(context.Background(), "alice", code.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := svc.Validate(context.Background(), secret, res, access.PermissionRead, ""); !errors.Is(err, access.ErrUnauthorized) {
		t.Fatalf("revoked code: %v", err)
	}
}

func TestValidateExpiry(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewService(store, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	p := baseParams()
	p.ExpiresAt = now.Add(time.Hour)
	_, secret := mustCreate(t, svc, p)

	res := access.Resource{Ref: access.ResourceRef{Type: access.ResourceVideo, ID: 2}}
	if _, err := svc.Validate(context.Background(), secret, res, access.PermissionRead, ""); err != nil {
		t.Fatalf("before expiry: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := svc.Validate(context.Background(), secret, res, access.PermissionRead, ""); !errors.Is(err, access.ErrExpired) {
		t.Fatalf("after expiry: %v", err)
	}
}

func TestValidateSingleUseRace(t *testing.T) {
	store := newMemStore()
	svc, err := NewService(store)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	p := baseParams()
	p.MaxUses = 1
	_, secret := mustCreate(t, svc, p)
	res := access.Resource{Ref: access.ResourceRef{Type: access.ResourceVideo, ID: 2}}

	const attempts = 16
	var wg sync.WaitGroup
	outcomes := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, outcomes[i] = svc.Validate(context.Background(), secret, res, access.PermissionRead, "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range outcomes {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, access.ErrUsageExceeded) {
			t.Fatalf("unexpected failure class: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("max_uses=1 code validated %d times", succeeded)
	}
}

func TestValidateGuard(t *testing.T) {
	store := newMemStore()
	svc, err := NewService(store, WithGuard(NewGuard(0.001, 1)))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, secret := mustCreate(t, svc, baseParams())
	res := access.Resource{Ref: access.ResourceRef{Type: access.ResourceVideo, ID: 2}}

	if _, err := svc.Validate(context.Background(), secret, res, access.PermissionRead, "203.0.113.9"); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if _, err := svc.Validate(context.Background(), secret, res, access.PermissionRead, "203.0.113.9"); !errors.Is(err, access.ErrUnauthorized) {
		t.Fatalf("guarded attempt: %v", err)
	}
	// A different client has its own bucket.
	if _, err := svc.Validate(context.Background(), secret, res, access.PermissionRead, "198.51.100.1"); err != nil {
		t.Fatalf("other client: %v", err)
	}
}
