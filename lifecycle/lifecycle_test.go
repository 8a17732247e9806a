package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/crates-registry/core/auth"
	"github.com/crates-registry/core/internal/apperror"
	"github.com/crates-registry/core/registry"
)

type fakeStore struct {
	crates    map[string]*registry.Crate
	versions  map[int64]map[string]*registry.Version // crateID -> num -> version
	owners    map[int64][]auth.Owner
	actions   []*registry.VersionOwnerAction
	deleted   []*registry.DeletedCrate
	nextVerID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		crates:   map[string]*registry.Crate{},
		versions: map[int64]map[string]*registry.Version{},
		owners:   map[int64][]auth.Owner{},
	}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	return fn(s)
}

func (s *fakeStore) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (s *fakeStore) addCrate(name string, ownerUserID int64) *registry.Crate {
	c := &registry.Crate{ID: int64(len(s.crates) + 1), Name: name, CanonicalName: name}
	s.crates[name] = c
	s.owners[c.ID] = []auth.Owner{{UserID: ownerUserID}}
	s.versions[c.ID] = map[string]*registry.Version{}
	return c
}

func (s *fakeStore) addVersion(crateID int64, num string, createdAt time.Time) *registry.Version {
	s.nextVerID++
	v := &registry.Version{ID: s.nextVerID, CrateID: crateID, Num: num, CreatedAt: createdAt}
	s.versions[crateID][num] = v
	return v
}

func (s *fakeStore) CrateByName(ctx context.Context, name string) (*registry.Crate, error) {
	c, ok := s.crates[name]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "test", "crate not found")
	}
	return c, nil
}

func (s *fakeStore) VersionByNum(ctx context.Context, crateID int64, num string) (*registry.Version, error) {
	v, ok := s.versions[crateID][num]
	if !ok {
		return nil, apperror.New(apperror.NotFound, "test", "version not found")
	}
	return v, nil
}

func (s *fakeStore) CrateOwners(ctx context.Context, crateID int64) ([]auth.Owner, error) {
	return s.owners[crateID], nil
}

func (s *fakeStore) SetYanked(ctx context.Context, versionID int64, yanked bool) error {
	for _, byNum := range s.versions {
		for _, v := range byNum {
			if v.ID == versionID {
				v.Yanked = yanked
				return nil
			}
		}
	}
	return apperror.New(apperror.NotFound, "test", "version not found")
}

func (s *fakeStore) RecordOwnerAction(ctx context.Context, a *registry.VersionOwnerAction) error {
	s.actions = append(s.actions, a)
	return nil
}

func (s *fakeStore) DeleteVersion(ctx context.Context, versionID int64) error {
	for crateID, byNum := range s.versions {
		for num, v := range byNum {
			if v.ID == versionID {
				delete(s.versions[crateID], num)
				return nil
			}
		}
	}
	return apperror.New(apperror.NotFound, "test", "version not found")
}

func (s *fakeStore) RemainingVersionCount(ctx context.Context, crateID int64) (int, error) {
	return len(s.versions[crateID]), nil
}

func (s *fakeStore) DeleteCrate(ctx context.Context, crateID int64) error {
	for name, c := range s.crates {
		if c.ID == crateID {
			delete(s.crates, name)
			return nil
		}
	}
	return apperror.New(apperror.NotFound, "test", "crate not found")
}

func (s *fakeStore) RecordDeletedCrate(ctx context.Context, d *registry.DeletedCrate) error {
	s.deleted = append(s.deleted, d)
	return nil
}

func newTestManager(store *fakeStore) *Manager {
	return New(&Options{Store: store})
}

func TestYankTogglesAndRecordsAction(t *testing.T) {
	store := newFakeStore()
	crate := store.addCrate("foo", 1)
	store.addVersion(crate.ID, "0.1.0", time.Now())
	m := newTestManager(store)

	owner := &auth.AuthorizedUser{UserID: 1, Provenance: auth.CredentialCookie}
	if err := m.Yank(context.Background(), owner, false, "foo", "0.1.0", time.Now()); err != nil {
		t.Fatalf("Yank: %v", err)
	}
	v, _ := store.VersionByNum(context.Background(), crate.ID, "0.1.0")
	if !v.Yanked {
		t.Fatal("expected version to be yanked")
	}
	if len(store.actions) != 1 || store.actions[0].Action != registry.ActionYank {
		t.Fatalf("expected one yank action recorded, got %+v", store.actions)
	}

	if err := m.Unyank(context.Background(), owner, false, "foo", "0.1.0", time.Now()); err != nil {
		t.Fatalf("Unyank: %v", err)
	}
	if v.Yanked {
		t.Fatal("expected version to be unyanked")
	}
	if len(store.actions) != 2 || store.actions[1].Action != registry.ActionUnyank {
		t.Fatalf("expected unyank action recorded, got %+v", store.actions)
	}
}

func TestYankRequiresRights(t *testing.T) {
	store := newFakeStore()
	crate := store.addCrate("foo", 1)
	store.addVersion(crate.ID, "0.1.0", time.Now())
	m := newTestManager(store)

	stranger := &auth.AuthorizedUser{UserID: 99, Provenance: auth.CredentialCookie}
	err := m.Yank(context.Background(), stranger, false, "foo", "0.1.0", time.Now())
	if err == nil {
		t.Fatal("expected stranger to be rejected")
	}
	if apperror.KindOf(err) != apperror.Authorization {
		t.Fatalf("expected Authorization kind, got %v", apperror.KindOf(err))
	}
}

func TestYankAllowedForAdminRegardlessOfOwnership(t *testing.T) {
	store := newFakeStore()
	crate := store.addCrate("foo", 1)
	store.addVersion(crate.ID, "0.1.0", time.Now())
	m := newTestManager(store)

	admin := &auth.AuthorizedUser{UserID: 2, Provenance: auth.CredentialCookie}
	if err := m.Yank(context.Background(), admin, true, "foo", "0.1.0", time.Now()); err != nil {
		t.Fatalf("expected admin yank to succeed: %v", err)
	}
}

func TestDeleteVersionWithinWindow(t *testing.T) {
	store := newFakeStore()
	crate := store.addCrate("foo", 1)
	now := time.Now()
	store.addVersion(crate.ID, "0.1.0", now.Add(-1*time.Hour))
	m := newTestManager(store)

	owner := &auth.AuthorizedUser{UserID: 1, Provenance: auth.CredentialCookie}
	if err := m.DeleteVersion(context.Background(), owner, false, "foo", "0.1.0", now); err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}
	if _, ok := store.versions[crate.ID]["0.1.0"]; ok {
		t.Fatal("expected version to be removed")
	}
	if len(store.deleted) != 1 {
		t.Fatalf("expected crate to be tombstoned as the last version was removed, got %+v", store.deleted)
	}
	if _, stillExists := store.crates["foo"]; stillExists {
		t.Fatal("expected crate to be deleted along with its last version")
	}
	wantAvailable := now.Add(registry.NameReuseWindow)
	if !store.deleted[0].AvailableAt.Equal(wantAvailable) {
		t.Fatalf("expected AvailableAt %v, got %v", wantAvailable, store.deleted[0].AvailableAt)
	}
}

func TestDeleteVersionRejectedAfterWindow(t *testing.T) {
	store := newFakeStore()
	crate := store.addCrate("foo", 1)
	now := time.Now()
	store.addVersion(crate.ID, "0.1.0", now.Add(-25*time.Hour))
	m := newTestManager(store)

	owner := &auth.AuthorizedUser{UserID: 1, Provenance: auth.CredentialCookie}
	err := m.DeleteVersion(context.Background(), owner, false, "foo", "0.1.0", now)
	if err == nil {
		t.Fatal("expected deletion past the 24h window to be rejected")
	}
	if apperror.KindOf(err) != apperror.Validation {
		t.Fatalf("expected Validation kind, got %v", apperror.KindOf(err))
	}
}

func TestDeleteVersionKeepsCrateWhenOtherVersionsRemain(t *testing.T) {
	store := newFakeStore()
	crate := store.addCrate("foo", 1)
	now := time.Now()
	store.addVersion(crate.ID, "0.1.0", now.Add(-1*time.Hour))
	store.addVersion(crate.ID, "0.2.0", now.Add(-1*time.Hour))
	m := newTestManager(store)

	owner := &auth.AuthorizedUser{UserID: 1, Provenance: auth.CredentialCookie}
	if err := m.DeleteVersion(context.Background(), owner, false, "foo", "0.1.0", now); err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}
	if _, stillExists := store.crates["foo"]; !stillExists {
		t.Fatal("expected crate to survive since 0.2.0 remains")
	}
	if len(store.deleted) != 0 {
		t.Fatalf("expected no tombstone while versions remain, got %+v", store.deleted)
	}
}
