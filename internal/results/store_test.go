package results

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdf-extractor/backend/internal/models"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	duck, err := NewDuckStore(filepath.Join(t.TempDir(), "results.duckdb"), DuckOptions{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { duck.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"duckdb": duck,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			set := sampleSet()
			set.Combined["vendor"] = map[string]any{"name": "Acme", "address": nil}
			set.Combined["lineItems"] = []any{map[string]any{"quantity": 2.0}}

			require.NoError(t, store.Save(ctx, set))

			got, err := store.Load(ctx, "tok")
			require.NoError(t, err)
			assert.Equal(t, set.Query, got.Query)
			assert.Equal(t, set.Combined, got.Combined)
			require.Len(t, got.Documents, 3)
			for i := range set.Documents {
				assert.Equal(t, set.Documents[i].DocumentID, got.Documents[i].DocumentID)
				assert.Equal(t, set.Documents[i].Kind, got.Documents[i].Kind)
				assert.Equal(t, set.Documents[i].URL, got.Documents[i].URL)
				assert.Equal(t, set.Documents[i].Data, got.Documents[i].Data)
			}
			assert.WithinDuration(t, set.CreatedAt, got.CreatedAt, time.Second)
		})
	}
}

func TestStore_SaveReplaces(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, sampleSet()))

			replacement := &models.ResultSet{Token: "tok", Query: "second", Combined: models.Record{}, CreatedAt: time.Now()}
			require.NoError(t, store.Save(ctx, replacement))

			got, err := store.Load(ctx, "tok")
			require.NoError(t, err)
			assert.Equal(t, "second", got.Query)
			assert.Empty(t, got.Documents)
		})
	}
}

func TestStore_NotFoundDeleteAndPrune(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Load(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			old := sampleSet()
			old.Token = "old"
			old.CreatedAt = time.Now().Add(-2 * time.Hour)
			require.NoError(t, store.Save(ctx, old))
			require.NoError(t, store.Save(ctx, sampleSet()))

			n, err := store.Prune(ctx, time.Now().Add(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = store.Load(ctx, "old")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Delete(ctx, "tok"))
			_, err = store.Load(ctx, "tok")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
