package libreconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/quay/zlog"

	"github.com/purldb/purldb"
	"github.com/purldb/purldb/reconciler"
)

// fakeStore lets tests drive the facade without a database.
type fakeStore struct {
	reconcile func(context.Context, *purldb.Observation, int) (*purldb.ReconcileResult, error)
	byUUID    func(context.Context, uuid.UUID) (*purldb.Package, error)
	byPURL    func(context.Context, string) (*purldb.Package, error)
}

func (f *fakeStore) Reconcile(ctx context.Context, obs *purldb.Observation, miningLevel int) (*purldb.ReconcileResult, error) {
	return f.reconcile(ctx, obs, miningLevel)
}

func (f *fakeStore) UpdateOrCreateResource(ctx context.Context, pkg *purldb.Package, res *purldb.Resource) (bool, error) {
	return false, nil
}

func (f *fakeStore) AddToScanQueue(ctx context.Context, pkg *purldb.Package, pipelines []string, priority int) error {
	return nil
}

func (f *fakeStore) Reindex(ctx context.Context, pkg *purldb.Package) error { return nil }

func (f *fakeStore) RelatePackages(ctx context.Context, from, to *purldb.Package, kind purldb.RelationKind) error {
	return nil
}

func (f *fakeStore) ResolveIdentity(ctx context.Context, obs *purldb.Observation, mode reconciler.IdentityMode) (*purldb.Package, error) {
	return nil, nil
}

func (f *fakeStore) PackageByUUID(ctx context.Context, id uuid.UUID) (*purldb.Package, error) {
	if f.byUUID == nil {
		return nil, nil
	}
	return f.byUUID(ctx, id)
}

func (f *fakeStore) PackageByPURL(ctx context.Context, purl string) (*purldb.Package, error) {
	if f.byPURL == nil {
		return nil, nil
	}
	return f.byPURL(ctx, purl)
}

func (f *fakeStore) History(ctx context.Context, pkg *purldb.Package) ([]purldb.HistoryEntry, error) {
	return nil, nil
}

func (f *fakeStore) PackageSets(ctx context.Context, pkg *purldb.Package) ([]purldb.PackageSet, error) {
	return nil, nil
}

func (f *fakeStore) EnhancedPackage(ctx context.Context, pkg *purldb.Package) (*purldb.Package, error) {
	return pkg, nil
}

func (f *fakeStore) Close(_ context.Context) error { return nil }

func TestNewValidation(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)

	if _, err := New(ctx, &Options{}); err == nil {
		t.Error("expected error with neither Store nor ConnString")
	}

	l, err := New(ctx, &Options{Store: &fakeStore{}})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close(ctx)
	if l.BatchConcurrency != DefaultBatchConcurrency {
		t.Errorf("default concurrency not applied: %d", l.BatchConcurrency)
	}
	if l.locker == nil {
		t.Error("default locker not applied")
	}
}

func TestReconcileBatchCollectsFailures(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	store := &fakeStore{
		reconcile: func(_ context.Context, obs *purldb.Observation, _ int) (*purldb.ReconcileResult, error) {
			switch obs.Name {
			case "conflicted":
				return nil, &purldb.Error{Kind: purldb.ErrConflict, Message: "checksum mismatch"}
			case "rejected":
				return &purldb.ReconcileResult{Err: "no download_url: cannot create or update a package"}, nil
			}
			return &purldb.ReconcileResult{Created: true, Package: &purldb.Package{Name: obs.Name}}, nil
		},
	}
	l, err := New(ctx, &Options{Store: store, BatchConcurrency: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close(ctx)

	obss := []*purldb.Observation{
		{Type: "pypi", Name: "ok-one", DownloadURL: "https://example.com/1"},
		{Type: "pypi", Name: "conflicted", DownloadURL: "https://example.com/2"},
		{Type: "pypi", Name: "rejected"},
		{Type: "pypi", Name: "ok-two", DownloadURL: "https://example.com/3"},
	}
	results, err := l.ReconcileBatch(ctx, obss, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(obss) {
		t.Fatalf("got %d results", len(results))
	}
	if !results[0].Created || !results[3].Created {
		t.Error("successful items not reconciled")
	}
	if results[1].Err == "" {
		t.Error("conflict not collected per-item")
	}
	if results[2].Err == "" {
		t.Error("rejection not reported per-item")
	}
}

func TestReconcileBatchAbortsOnTransient(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	store := &fakeStore{
		reconcile: func(_ context.Context, obs *purldb.Observation, _ int) (*purldb.ReconcileResult, error) {
			if obs.Name == "boom" {
				return nil, &purldb.Error{Kind: purldb.ErrTransient, Message: "connection lost"}
			}
			return &purldb.ReconcileResult{Created: true, Package: &purldb.Package{}}, nil
		},
	}
	l, err := New(ctx, &Options{Store: store, BatchConcurrency: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close(ctx)

	obss := []*purldb.Observation{
		{Type: "pypi", Name: "fine", DownloadURL: "https://example.com/1"},
		{Type: "pypi", Name: "boom", DownloadURL: "https://example.com/2"},
	}
	if _, err := l.ReconcileBatch(ctx, obss, 30); !errors.Is(err, purldb.ErrTransient) {
		t.Errorf("got err %v, want transient", err)
	}
}
