package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/tradeflow/pkg/adapters/file"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/aretw0/tradeflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	dir := t.TempDir()
	ports.RunStoreContract(t, file.New[domain.LeagueSnapshot](filepath.Join(dir, "leagues")), ports.SampleSnapshot)
	ports.RunStoreContract(t, file.New[domain.WorkflowRecord](filepath.Join(dir, "workflows")), ports.SampleWorkflow)
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	store := file.New[domain.LeagueSnapshot](dir)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, "L1", ports.SampleSnapshot("L1")))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "L1.json", entries[0].Name())
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	store := file.New[domain.LeagueSnapshot](t.TempDir())
	ctx := context.Background()

	for _, id := range []string{"", "../escape", `a\b`, ".."} {
		err := store.Save(ctx, id, ports.SampleSnapshot("x"))
		assert.ErrorIs(t, err, domain.ErrValidation, "id %q", id)
	}
}

func TestFileStore_ListMissingDir(t *testing.T) {
	store := file.New[domain.WorkflowRecord](filepath.Join(t.TempDir(), "absent"))
	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
