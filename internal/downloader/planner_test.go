package downloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/vdl/internal/types"
)

func TestPlanChunksScenarios(t *testing.T) {
	assert.Equal(t, []types.Chunk{
		{Index: 0, Start: 0, End: 249999},
		{Index: 1, Start: 250000, End: 499999},
		{Index: 2, Start: 500000, End: 749999},
		{Index: 3, Start: 750000, End: 999999},
	}, PlanChunks(1_000_000, 4))

	assert.Equal(t, []types.Chunk{
		{Index: 0, Start: 0, End: 1},
		{Index: 1, Start: 2, End: 3},
		{Index: 2, Start: 4, End: 5},
		{Index: 3, Start: 6, End: 9},
	}, PlanChunks(10, 4))
}

func TestPlanChunksCoverEveryByteOnce(t *testing.T) {
	for _, length := range []int64{0, 1, 2, 3, 7, 10, 1023, 65536, 1_000_001} {
		for _, threads := range []int{1, 2, 3, 4, 8, 16} {
			chunks := PlanChunks(length, threads)
			require.Len(t, chunks, threads)
			var next, total int64
			for _, c := range chunks {
				total += c.Size()
				if c.Size() == 0 {
					continue
				}
				assert.Equal(t, next, c.Start, "length=%d threads=%d", length, threads)
				next = c.End + 1
			}
			assert.Equal(t, length, total, "length=%d threads=%d", length, threads)
			assert.True(t, NewPlan(length, threads).Valid())
		}
	}
}

func TestPlanChunksDegenerate(t *testing.T) {
	chunks := PlanChunks(2, 4)
	assert.Zero(t, chunks[0].Size())
	assert.Zero(t, chunks[1].Size())
	assert.Zero(t, chunks[2].Size())
	assert.Equal(t, types.Chunk{Index: 3, Start: 0, End: 1}, chunks[3])

	assert.Len(t, PlanChunks(10, 0), 1)
}

func TestPlanPersistence(t *testing.T) {
	dir := t.TempDir()
	p, err := LoadPlan(dir)
	require.NoError(t, err)
	assert.Nil(t, p)

	plan := NewPlan(10, 4)
	require.NoError(t, plan.Save(dir))
	loaded, err := LoadPlan(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, plan, *loaded)

	require.NoError(t, os.WriteFile(filepath.Join(dir, planFile), []byte("{"), 0644))
	_, err = LoadPlan(dir)
	assert.Error(t, err)
}

func TestPlanValid(t *testing.T) {
	bad := Plan{ContentLength: 10, ThreadCount: 2, Chunks: []types.Chunk{
		{Index: 0, Start: 0, End: 4},
		{Index: 1, Start: 6, End: 9},
	}}
	assert.False(t, bad.Valid())
	assert.False(t, Plan{ContentLength: 10, ThreadCount: 2}.Valid())
}

func TestSidecarReadAndWrite(t *testing.T) {
	dir := t.TempDir()
	path := sidecarPath(dir, 3)
	assert.Equal(t, filepath.Join(dir, "chunk_3"), path)
	assert.Zero(t, readSidecar(path, 100))

	sc, err := openSidecar(path, 7)
	require.NoError(t, err)
	require.NoError(t, sc.write(42))
	require.NoError(t, sc.write(1234))
	require.NoError(t, sc.close())
	assert.Equal(t, int64(1234), readSidecar(path, 5000))
	assert.Equal(t, int64(100), readSidecar(path, 100), "clamped to chunk size")

	require.NoError(t, os.WriteFile(path, []byte("junk"), 0644))
	assert.Zero(t, readSidecar(path, 100))
}

func TestRemoveProgressState(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"chunk_0", "chunk_12", planFile, "video.mp4", "pause"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("1"), 0644))
	}
	require.NoError(t, removeProgressState(dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"video.mp4", "pause"}, names)
}
