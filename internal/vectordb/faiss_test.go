//go:build cgo

package vectordb

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/math-tutor/internal/models"
)

func newFaissTestRepo(t *testing.T) Repository {
	t.Helper()
	repo, err := NewFaissRepository(Config{
		Type:         "faiss",
		Collection:   "math_course_materials",
		Dimension:    4,
		DistanceType: Cosine,
		InMemory:     true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestFaissCosineOrdering(t *testing.T) {
	repo := newFaissTestRepo(t)

	_, err := repo.Add([]ChunkRecord{
		testRecord("f_chunk_0", "f", 0, []float32{1, 0, 0, 0}),
		testRecord("f_chunk_1", "f", 1, []float32{0, 1, 0, 0}),
		testRecord("f_chunk_2", "f", 2, []float32{0.9, 0.1, 0, 0}),
	})
	require.NoError(t, err)

	results, err := repo.Search([]float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 与查询相同的向量必须排第一，正交向量排最后
	assert.Equal(t, "f_chunk_0", results[0].Chunk.ID)
	assert.Equal(t, "f_chunk_2", results[1].Chunk.ID)
	assert.Equal(t, "f_chunk_1", results[2].Chunk.ID)

	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-5)
	for i := 0; i < len(results)-1; i++ {
		assert.GreaterOrEqual(t, results[i].Score, results[i+1].Score,
			"scores must be non-increasing")
	}
}

func TestFaissSearchAfterChurn(t *testing.T) {
	repo := newFaissTestRepo(t)

	// 反复upsert同一批id，让索引中积累远多于活跃记录的失效位置
	for round := 0; round < 6; round++ {
		var records []ChunkRecord
		for i := 0; i < 8; i++ {
			v := make([]float32, 4)
			v[i%4] = 1
			v[(i+1)%4] = float32(i) / 10
			records = append(records, testRecord(fmt.Sprintf("c_chunk_%d", i), "c", i, v))
		}
		result, err := repo.Add(records)
		require.NoError(t, err)
		require.Empty(t, result.Failed)
	}

	count, err := repo.Count()
	require.NoError(t, err)
	require.Equal(t, 8, count)

	// 初始取回窗口可能全被失效位置占满，仍要凑满k条活跃结果
	results, err := repo.Search([]float32{1, 0, 0, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Equal(t, "c_chunk_0", results[0].Chunk.ID)
}

func TestFaissDeleteBySourceThenSearch(t *testing.T) {
	repo := newFaissTestRepo(t)

	_, err := repo.Add([]ChunkRecord{
		testRecord("old.pdf_chunk_0", "old.pdf", 0, []float32{1, 0, 0, 0}),
		testRecord("old.pdf_chunk_1", "old.pdf", 1, []float32{0.9, 0.1, 0, 0}),
		testRecord("new.pdf_chunk_0", "new.pdf", 0, []float32{0, 1, 0, 0}),
	})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteBySource("old.pdf"))

	// 被删来源的向量仍在索引里，但不能出现在结果中
	results, err := repo.Search([]float32{1, 0, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new.pdf_chunk_0", results[0].Chunk.ID)
}

func TestFaissUnreadableIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.faiss")
	require.NoError(t, os.WriteFile(path, []byte("not an index"), 0644))

	_, err := NewFaissRepository(Config{
		Type:         "faiss",
		Path:         path,
		Collection:   "math_course_materials",
		Dimension:    4,
		DistanceType: Cosine,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}
