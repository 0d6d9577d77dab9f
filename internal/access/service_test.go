package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeRepo struct {
	resources map[ResourceRef]Resource
	err       error
}

func (f fakeRepo) lookup(ref ResourceRef) (Resource, error) {
	if f.err != nil {
		return Resource{}, f.err
	}
	res, ok := f.resources[ref]
	if !ok {
		return Resource{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return res, nil
}

func (f fakeRepo) IsPublic(_ context.Context, ref ResourceRef) (bool, error) {
	res, err := f.lookup(ref)
	return res.Public, err
}

func (f fakeRepo) OwnerOf(_ context.Context, ref ResourceRef) (string, error) {
	res, err := f.lookup(ref)
	return res.OwnerID, err
}

func (f fakeRepo) GroupOf(_ context.Context, ref ResourceRef) (int64, bool, error) {
	res, err := f.lookup(ref)
	return res.GroupID, res.GroupID != 0, err
}

type recordingSink struct {
	mu     sync.Mutex
	final  []Decision
	layers [][]Decision
}

func (r *recordingSink) Record(final Decision, layers []Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final = append(r.final, final)
	r.layers = append(r.layers, layers)
}

func newTestService(t *testing.T, repo Repository, codes CodeValidator, roles RoleResolver, sink AuditSink) *Service {
	t.Helper()
	svc, err := NewService(repo, codes, roles, WithAuditSink(sink))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestCheckAccessPublicRead(t *testing.T) {
	ref := ResourceRef{Type: ResourceVideo, ID: 1}
	repo := fakeRepo{resources: map[ResourceRef]Resource{
		ref: {Ref: ref, OwnerID: "alice", Public: true},
	}}
	sink := &recordingSink{}
	svc := newTestService(t, repo, stubValidator{}, stubResolver{}, sink)

	d, err := svc.CheckAccess(context.Background(), NewRequest(ref), PermissionRead)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !d.Granted || d.Layer != LayerPublic || d.Permission != PermissionRead {
		t.Fatalf("anonymous read of public resource: %+v", d)
	}

	// The same anonymous caller cannot download it.
	d, err = svc.CheckAccess(context.Background(), NewRequest(ref), PermissionDownload)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if d.Granted {
		t.Fatalf("anonymous download must deny, got %+v", d)
	}
}

func TestCheckAccessCodeOnPrivateResource(t *testing.T) {
	ref := ResourceRef{Type: ResourceVideo, ID: 2}
	repo := fakeRepo{resources: map[ResourceRef]Resource{
		ref: {Ref: ref, OwnerID: "alice"},
	}}
	svc := newTestService(t, repo, stubValidator{level: PermissionDownload}, stubResolver{}, nil)

	req := NewRequest(ref)
	req.Code = "partner-code"
	d, err := svc.CheckAccess(context.Background(), req, PermissionDownload)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !d.Granted || d.Layer != LayerAccessKey || d.Permission != PermissionDownload {
		t.Fatalf("bearer code on private resource: %+v", d)
	}
}

func TestCheckAccessGroupMembership(t *testing.T) {
	ref := ResourceRef{Type: ResourceVideo, ID: 3}
	repo := fakeRepo{resources: map[ResourceRef]Resource{
		ref: {Ref: ref, OwnerID: "carol", GroupID: 7},
	}}
	svc := newTestService(t, repo, stubValidator{}, stubResolver{level: PermissionEdit, ok: true}, nil)

	req := NewRequest(ref)
	req.RequesterID = "bob"
	d, err := svc.CheckAccess(context.Background(), req, PermissionEdit)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !d.Granted || d.Layer != LayerGroup || d.Permission != PermissionEdit {
		t.Fatalf("group editor at edit level: %+v", d)
	}
}

func TestCheckAccessOwnership(t *testing.T) {
	ref := ResourceRef{Type: ResourceVideo, ID: 4}
	repo := fakeRepo{resources: map[ResourceRef]Resource{
		ref: {Ref: ref, OwnerID: "alice"},
	}}
	svc := newTestService(t, repo, stubValidator{}, stubResolver{}, nil)

	req := NewRequest(ref)
	req.RequesterID = "alice"
	d, err := svc.CheckAccess(context.Background(), req, PermissionAdmin)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !d.Granted || d.Layer != LayerOwnership || d.Permission != PermissionAdmin {
		t.Fatalf("owner on private ungrouped resource: %+v", d)
	}
}

func TestCheckAccessLayerPriority(t *testing.T) {
	// Owner of a public, grouped resource: public, group and ownership all
	// grant read; the decision must come from the highest layer.
	ref := ResourceRef{Type: ResourceVideo, ID: 4}
	repo := fakeRepo{resources: map[ResourceRef]Resource{
		ref: {Ref: ref, OwnerID: "carol", Public: true, GroupID: 7},
	}}
	sink := &recordingSink{}
	svc := newTestService(t, repo, stubValidator{}, stubResolver{level: PermissionAdmin, ok: true}, sink)

	req := NewRequest(ref)
	req.RequesterID = "carol"
	d, err := svc.CheckAccess(context.Background(), req, PermissionRead)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !d.Granted || d.Layer != LayerOwnership || d.Permission != PermissionAdmin {
		t.Fatalf("ownership must win among granting layers: %+v", d)
	}

	if len(sink.layers) != 1 || len(sink.layers[0]) != 4 {
		t.Fatalf("audit must receive all four layer verdicts, got %d", len(sink.layers[0]))
	}
	grantedLayers := 0
	for _, ld := range sink.layers[0] {
		if ld.Granted {
			grantedLayers++
		}
	}
	if grantedLayers != 3 {
		t.Fatalf("expected 3 granting layers in the trail, got %d", grantedLayers)
	}
}

func TestCheckAccessDeniedEverywhere(t *testing.T) {
	ref := ResourceRef{Type: ResourceVideo, ID: 5}
	repo := fakeRepo{resources: map[ResourceRef]Resource{
		ref: {Ref: ref, OwnerID: "alice"},
	}}
	sink := &recordingSink{}
	svc := newTestService(t, repo, stubValidator{err: fmt.Errorf("%w: no such code", ErrNotFound)}, stubResolver{}, sink)

	req := NewRequest(ref)
	req.RequesterID = "mallory"
	req.Code = "guessed"
	d, err := svc.CheckAccess(context.Background(), req, PermissionDelete)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if d.Granted {
		t.Fatalf("expected denial, got %+v", d)
	}
	if d.Reason != deniedNoLayerReason {
		t.Fatalf("final denial reason = %q", d.Reason)
	}
	if len(sink.final) != 1 || sink.final[0].Granted {
		t.Fatalf("denied decision must still be audited: %+v", sink.final)
	}
}

func TestCheckAccessUnknownResource(t *testing.T) {
	svc := newTestService(t, fakeRepo{resources: map[ResourceRef]Resource{}}, stubValidator{}, stubResolver{}, nil)

	ref := ResourceRef{Type: ResourceVideo, ID: 99}
	_, err := svc.CheckAccess(context.Background(), NewRequest(ref), PermissionRead)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCheckAccessStorageFault(t *testing.T) {
	svc := newTestService(t, fakeRepo{err: errors.New("connection refused")}, stubValidator{}, stubResolver{}, nil)

	ref := ResourceRef{Type: ResourceVideo, ID: 1}
	_, err := svc.CheckAccess(context.Background(), NewRequest(ref), PermissionRead)
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
}

func TestCheckAccessInvalidInput(t *testing.T) {
	svc := newTestService(t, fakeRepo{}, stubValidator{}, stubResolver{}, nil)

	ref := ResourceRef{Type: ResourceVideo, ID: 1}
	if _, err := svc.CheckAccess(context.Background(), NewRequest(ref), Permission(0)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero permission: %v", err)
	}
	if _, err := svc.CheckAccess(context.Background(), NewRequest(ref), Permission(9)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("out-of-range permission: %v", err)
	}
	bad := NewRequest(ResourceRef{Type: "track", ID: 1})
	if _, err := svc.CheckAccess(context.Background(), bad, PermissionRead); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown resource type: %v", err)
	}
}

func TestCheckAccessContextExpiryFailsClosed(t *testing.T) {
	ref := ResourceRef{Type: ResourceVideo, ID: 1}
	repo := fakeRepo{resources: map[ResourceRef]Resource{
		ref: {Ref: ref, OwnerID: "alice", Public: true},
	}}
	sink := &recordingSink{}
	svc := newTestService(t, repo, stubValidator{}, stubResolver{}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := svc.CheckAccess(ctx, NewRequest(ref), PermissionRead)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if d.Granted {
		t.Fatalf("canceled context must fail closed, got %+v", d)
	}
	if !strings.Contains(d.Reason, "evaluation interrupted") {
		t.Fatalf("denial reason = %q", d.Reason)
	}
	if len(sink.final) != 1 || sink.final[0].Granted {
		t.Fatalf("fail-closed denial must be audited: %+v", sink.final)
	}
}

func TestCheckAccessStampsRequestTime(t *testing.T) {
	ref := ResourceRef{Type: ResourceVideo, ID: 1}
	repo := fakeRepo{resources: map[ResourceRef]Resource{
		ref: {Ref: ref, OwnerID: "alice", Public: true},
	}}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewService(repo, stubValidator{}, stubResolver{}, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	req := Request{Resource: ref} // zero At
	d, err := svc.CheckAccess(context.Background(), req, PermissionRead)
	if err != nil {
		t.Fatalf("CheckAccess: %v", err)
	}
	if !d.Request.At.Equal(fixed) {
		t.Fatalf("request time = %v, want %v", d.Request.At, fixed)
	}
}
