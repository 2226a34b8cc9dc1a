package tracker

import (
	"context"
	"errors"
	"testing"
)

type note struct {
	ID    string
	Email string
	Body  string
}

func (n note) Key() string   { return n.ID }
func (n note) Owner() string { return n.Email }

type fakeRemote struct {
	listFn   func(context.Context) ([]note, error)
	insertFn func(context.Context, note) (note, error)
	updateFn func(context.Context, note) error
	deleteFn func(context.Context, string) error
}

func (f *fakeRemote) List(ctx context.Context) ([]note, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return nil, nil
}

func (f *fakeRemote) Insert(ctx context.Context, n note) (note, error) {
	if f.insertFn != nil {
		return f.insertFn(ctx, n)
	}
	return n, nil
}

func (f *fakeRemote) Update(ctx context.Context, n note) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, n)
	}
	return nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

func ids(notes []note) []string {
	out := make([]string, len(notes))
	for i, n := range notes {
		out[i] = n.ID
	}
	return out
}

func TestVisibleFiltersByOwnerUnlessElevated(t *testing.T) {
	tr := New[note](&fakeRemote{
		listFn: func(context.Context) ([]note, error) {
			return []note{
				{ID: "n1", Email: "a@x.dev"},
				{ID: "n2", Email: "b@x.dev"},
				{ID: "n3", Email: "a@x.dev"},
			}, nil
		},
	}, Hooks[note]{})

	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	all := tr.Visible("b@x.dev", true)
	if len(all) != 3 {
		t.Fatalf("elevated viewer must see all records, got %v", ids(all))
	}

	own := tr.Visible("a@x.dev", false)
	if len(own) != 2 || own[0].ID != "n1" || own[1].ID != "n3" {
		t.Fatalf("non-elevated viewer must see only own records, got %v", ids(own))
	}
}

func TestCreateRekeysToCanonicalRow(t *testing.T) {
	var created note
	tr := New[note](&fakeRemote{
		insertFn: func(_ context.Context, n note) (note, error) {
			n.ID = "store-assigned"
			return n, nil
		},
	}, Hooks[note]{
		RecordCreated: func(_ context.Context, n note) { created = n },
	})

	tr.SetOpen("local-1")
	if err := tr.Create(context.Background(), note{ID: "local-1", Email: "a@x.dev"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, ok := tr.Get("local-1"); ok {
		t.Fatal("local id must be replaced by the canonical one")
	}
	if _, ok := tr.Get("store-assigned"); !ok {
		t.Fatal("canonical row missing from collection")
	}
	if tr.OpenID() != "store-assigned" {
		t.Fatalf("open detail must follow the re-key, got %q", tr.OpenID())
	}
	if created.ID != "store-assigned" {
		t.Fatalf("hook must receive the canonical row, got %+v", created)
	}
	if tr.State("store-assigned") != StateClean {
		t.Fatalf("record should be clean after a successful write, got %v", tr.State("store-assigned"))
	}
}

func TestCreateFailureSurfacesErrorAndReconciles(t *testing.T) {
	remoteRows := []note{{ID: "n1", Email: "a@x.dev"}}
	tr := New[note](&fakeRemote{
		listFn: func(context.Context) ([]note, error) { return remoteRows, nil },
		insertFn: func(_ context.Context, n note) (note, error) {
			return note{}, errors.New("insert refused")
		},
	}, Hooks[note]{})

	err := tr.Create(context.Background(), note{ID: "local-2", Email: "a@x.dev"})
	if err == nil {
		t.Fatal("expected create failure to surface")
	}
	// the reconciling reload drops the entry the store refused
	if _, ok := tr.Get("local-2"); ok {
		t.Fatal("refused record must not survive reconciliation")
	}
	if _, ok := tr.Get("n1"); !ok {
		t.Fatal("remote truth must be restored after reconciliation")
	}
}

func TestUpdateIsOptimisticAndRevertsOnFailure(t *testing.T) {
	remoteRows := []note{{ID: "n1", Email: "a@x.dev", Body: "original"}}
	remote := &fakeRemote{
		listFn: func(context.Context) ([]note, error) { return remoteRows, nil },
	}
	tr := New[note](remote, Hooks[note]{})
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var midCall note
	remote.updateFn = func(_ context.Context, n note) error {
		// local copy is already replaced while the write is in flight
		midCall, _ = tr.Get("n1")
		if tr.State("n1") != StatePendingWrite {
			t.Errorf("expected PENDING_WRITE during remote call, got %v", tr.State("n1"))
		}
		return errors.New("update refused")
	}

	err := tr.Update(context.Background(), note{ID: "n1", Email: "a@x.dev", Body: "edited"})
	if err == nil {
		t.Fatal("expected update failure to surface")
	}
	if midCall.Body != "edited" {
		t.Fatalf("optimistic replace must happen before the remote write, got %q", midCall.Body)
	}

	got, ok := tr.Get("n1")
	if !ok || got.Body != "original" {
		t.Fatalf("reload must discard the optimistic change, got %+v", got)
	}
	if tr.State("n1") != StateClean {
		t.Fatalf("record should be clean after reconciliation, got %v", tr.State("n1"))
	}
}

func TestUpdateFiresHookWithDelta(t *testing.T) {
	tr := New[note](&fakeRemote{
		listFn: func(context.Context) ([]note, error) {
			return []note{{ID: "n1", Email: "a@x.dev", Body: "before"}}, nil
		},
	}, Hooks[note]{})
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var gotOld, gotNew note
	tr.hooks.RecordUpdated = func(_ context.Context, old, updated note) {
		gotOld, gotNew = old, updated
	}

	if err := tr.Update(context.Background(), note{ID: "n1", Email: "a@x.dev", Body: "after"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if gotOld.Body != "before" || gotNew.Body != "after" {
		t.Fatalf("hook delta mismatch: old=%q new=%q", gotOld.Body, gotNew.Body)
	}
}

func TestRemoveFailureLeavesCollectionAndDetailUntouched(t *testing.T) {
	tr := New[note](&fakeRemote{
		listFn: func(context.Context) ([]note, error) {
			return []note{{ID: "n1", Email: "a@x.dev"}}, nil
		},
		deleteFn: func(context.Context, string) error {
			return errors.New("delete refused")
		},
	}, Hooks[note]{})
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	tr.SetOpen("n1")

	if err := tr.Remove(context.Background(), "n1"); err == nil {
		t.Fatal("expected delete failure to surface")
	}
	if _, ok := tr.Get("n1"); !ok {
		t.Fatal("failed delete must not purge the record")
	}
	if tr.OpenID() != "n1" {
		t.Fatal("failed delete must not close the open detail")
	}
}

func TestRemoveSuccessPurgesAndClosesDetail(t *testing.T) {
	tr := New[note](&fakeRemote{
		listFn: func(context.Context) ([]note, error) {
			return []note{{ID: "n1", Email: "a@x.dev"}}, nil
		},
	}, Hooks[note]{})
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	tr.SetOpen("n1")

	if err := tr.Remove(context.Background(), "n1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, ok := tr.Get("n1"); ok {
		t.Fatal("deleted record must be purged")
	}
	if tr.OpenID() != "" {
		t.Fatal("open detail must close after its record is deleted")
	}
}

func TestStaleLoadDoesNotClobberNewerState(t *testing.T) {
	// A mutation lands while a load's remote call is in flight; the load's
	// result arrives late and must be discarded.
	remote := &fakeRemote{}
	tr := New[note](remote, Hooks[note]{})

	remote.listFn = func(context.Context) ([]note, error) {
		remote.listFn = func(context.Context) ([]note, error) { return nil, nil }
		if err := tr.Create(context.Background(), note{ID: "fresh", Email: "a@x.dev"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		return []note{{ID: "stale", Email: "a@x.dev"}}, nil
	}

	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, ok := tr.Get("stale"); ok {
		t.Fatal("superseded load must not publish its result")
	}
	if _, ok := tr.Get("fresh"); !ok {
		t.Fatal("newer local state must survive a stale load")
	}
}

func TestLoadFailureKeepsPriorCollection(t *testing.T) {
	calls := 0
	tr := New[note](&fakeRemote{
		listFn: func(context.Context) ([]note, error) {
			calls++
			if calls == 1 {
				return []note{{ID: "n1", Email: "a@x.dev"}}, nil
			}
			return nil, errors.New("store unreachable")
		},
	}, Hooks[note]{})

	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := tr.Load(context.Background()); err == nil {
		t.Fatal("expected second load to fail")
	}
	if _, ok := tr.Get("n1"); !ok {
		t.Fatal("failed load must leave the prior collection visible")
	}
}
