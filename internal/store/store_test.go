package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elys-network/defindex/internal/store"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestBranchWritesOnlyOnCommit(t *testing.T) {
	svc := store.NewMemService()
	ctx := context.Background()

	// ARRANGE
	require.NoError(t, store.SetJSON(svc.Prefixed(ctx, "ns/"), "a", record{Name: "a", Count: 1}))

	// ACT: change the value in a branch and drop it
	branch, _ := svc.Branch(ctx)
	require.NoError(t, store.SetJSON(svc.Prefixed(branch, "ns/"), "a", record{Name: "a", Count: 2}))

	// ASSERT
	var got record
	found, err := store.GetJSON(svc.Prefixed(ctx, "ns/"), "a", &got)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, got.Count, "discarded branch must not leak")

	branch, write := svc.Branch(ctx)
	require.NoError(t, store.SetJSON(svc.Prefixed(branch, "ns/"), "a", record{Name: "a", Count: 3}))
	write()

	_, err = store.GetJSON(svc.Prefixed(ctx, "ns/"), "a", &got)
	require.NoError(t, err)
	require.Equal(t, 3, got.Count)
}

func TestNestedBranches(t *testing.T) {
	svc := store.NewMemService()
	outer, writeOuter := svc.Branch(context.Background())
	inner, writeInner := svc.Branch(outer)

	require.NoError(t, store.SetJSON(svc.Prefixed(inner, "ns/"), "k", 7))
	writeInner()

	var v int
	found, err := store.GetJSON(svc.Prefixed(outer, "ns/"), "k", &v)
	require.NoError(t, err)
	require.True(t, found)

	found, err = store.GetJSON(svc.Prefixed(context.Background(), "ns/"), "k", &v)
	require.NoError(t, err)
	require.False(t, found, "outer branch has not been written yet")

	writeOuter()
	found, err = store.GetJSON(svc.Prefixed(context.Background(), "ns/"), "k", &v)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 7, v)
}

func TestKeysAndMissingValues(t *testing.T) {
	svc := store.NewMemService()
	kv := svc.Prefixed(context.Background(), "vault/")
	require.NoError(t, store.SetJSON(kv, "report/b", 2))
	require.NoError(t, store.SetJSON(kv, "report/a", 1))
	require.NoError(t, store.SetJSON(kv, "roles/manager", "m"))

	require.Equal(t, []string{"report/a", "report/b"}, store.Keys(kv, "report/"))

	var missing int
	found, err := store.GetJSON(kv, "nothing", &missing)
	require.NoError(t, err)
	require.False(t, found)
}

func TestOpenDBRejectsUnknownBackend(t *testing.T) {
	_, err := store.OpenDB("vault", "rocksdb", t.TempDir())
	require.ErrorIs(t, err, store.ErrUnknownBackend)

	db, err := store.OpenDB("vault", store.BackendGoLevelDB, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
