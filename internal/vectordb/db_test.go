package vectordb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	repo, err := NewMemoryRepository(Config{
		Type:         "memory",
		Collection:   "math_course_materials",
		Dimension:    4,
		DistanceType: Cosine,
	})
	require.NoError(t, err)
	return repo
}

func testRecord(id string, source string, index int, vector []float32) ChunkRecord {
	return ChunkRecord{
		ID:         id,
		Source:     source,
		ChunkIndex: index,
		Text:       fmt.Sprintf("chunk text %s", id),
		TokenCount: 10,
		Vector:     vector,
	}
}

func TestAddAndCount(t *testing.T) {
	repo := newTestRepo(t)

	result, err := repo.Add([]ChunkRecord{
		testRecord("lecture.pdf_chunk_0", "lecture.pdf", 0, []float32{1, 0, 0, 0}),
		testRecord("lecture.pdf_chunk_1", "lecture.pdf", 1, []float32{0, 1, 0, 0}),
	})
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 2)
	assert.Empty(t, result.Failed)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUpsertIdempotence(t *testing.T) {
	repo := newTestRepo(t)

	rec := testRecord("notes.md_chunk_0", "notes.md", 0, []float32{1, 2, 3, 4})

	_, err := repo.Add([]ChunkRecord{rec})
	require.NoError(t, err)

	// 重复写入同一id不会产生重复记录
	result, err := repo.Add([]ChunkRecord{rec})
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 1)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "upsert must not duplicate")

	// upsert替换内容
	rec.Text = "updated text"
	_, err = repo.Add([]ChunkRecord{rec})
	require.NoError(t, err)

	got, err := repo.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated text", got.Text)
}

func TestAddPartialFailure(t *testing.T) {
	repo := newTestRepo(t)

	result, err := repo.Add([]ChunkRecord{
		testRecord("a.txt_chunk_0", "a.txt", 0, []float32{1, 0, 0, 0}),
		// 维度不符的记录单条失败，不影响其余条目
		testRecord("a.txt_chunk_1", "a.txt", 1, []float32{1, 0}),
		testRecord("a.txt_chunk_2", "a.txt", 2, []float32{0, 0, 1, 0}),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt_chunk_0", "a.txt_chunk_2"}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "a.txt_chunk_1", result.Failed[0].ChunkID)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSearchOrdering(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Add([]ChunkRecord{
		testRecord("doc_chunk_0", "doc", 0, []float32{1, 0, 0, 0}),
		testRecord("doc_chunk_1", "doc", 1, []float32{0.9, 0.1, 0, 0}),
		testRecord("doc_chunk_2", "doc", 2, []float32{0, 1, 0, 0}),
		testRecord("doc_chunk_3", "doc", 3, []float32{0, 0, 1, 0}),
	})
	require.NoError(t, err)

	t.Run("descending score within k", func(t *testing.T) {
		results, err := repo.Search([]float32{1, 0, 0, 0}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, "doc_chunk_0", results[0].Chunk.ID)
		for i := 0; i < len(results)-1; i++ {
			assert.GreaterOrEqual(t, results[i].Score, results[i+1].Score,
				"scores must be non-increasing")
		}
	})

	t.Run("k larger than collection", func(t *testing.T) {
		results, err := repo.Search([]float32{1, 0, 0, 0}, 100)
		require.NoError(t, err)
		assert.Len(t, results, 4)
	})

	t.Run("ties broken by insertion order", func(t *testing.T) {
		tieRepo := newTestRepo(t)
		// 两条与查询等距的记录
		_, err := tieRepo.Add([]ChunkRecord{
			testRecord("t_chunk_0", "t", 0, []float32{0, 1, 0, 0}),
			testRecord("t_chunk_1", "t", 1, []float32{0, 0, 1, 0}),
		})
		require.NoError(t, err)

		results, err := tieRepo.Search([]float32{0, 1, 1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "t_chunk_0", results[0].Chunk.ID, "earlier insertion wins the tie")
		assert.Equal(t, "t_chunk_1", results[1].Chunk.ID)
	})

	t.Run("dimension mismatch rejected", func(t *testing.T) {
		_, err := repo.Search([]float32{1, 0}, 3)
		assert.ErrorIs(t, err, ErrInvalidDimension)
	})
}

func TestDeleteBySource(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Add([]ChunkRecord{
		testRecord("a.pdf_chunk_0", "a.pdf", 0, []float32{1, 0, 0, 0}),
		testRecord("a.pdf_chunk_1", "a.pdf", 1, []float32{0, 1, 0, 0}),
		testRecord("b.pdf_chunk_0", "b.pdf", 0, []float32{0, 0, 1, 0}),
	})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteBySource("a.pdf"))

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = repo.Get("a.pdf_chunk_0")
	assert.ErrorIs(t, err, ErrChunkNotFound)

	// 删除不存在的来源不报错
	assert.NoError(t, repo.DeleteBySource("missing.pdf"))
}

func TestResetAndStats(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Add([]ChunkRecord{
		testRecord("x_chunk_0", "x", 0, []float32{1, 0, 0, 0}),
	})
	require.NoError(t, err)

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunks)
	assert.Equal(t, "math_course_materials", stats.CollectionName)

	require.NoError(t, repo.Reset())

	stats, err = repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalChunks, "reset must leave an empty collection")
	assert.Equal(t, "math_course_materials", stats.CollectionName)
}

func TestDistanceToScore(t *testing.T) {
	assert.InDelta(t, 1.0, DistanceToScore(0, Cosine), 1e-6)
	assert.InDelta(t, 0.0, DistanceToScore(1, Cosine), 1e-6)
	assert.InDelta(t, 1.0, DistanceToScore(0, Euclidean), 1e-6)
	assert.Greater(t, DistanceToScore(0.5, Euclidean), DistanceToScore(2.0, Euclidean))
}

func TestInnerProductToCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, innerProductToCosineDistance(1), 1e-6)
	assert.InDelta(t, 1.0, innerProductToCosineDistance(0), 1e-6)
	assert.InDelta(t, 2.0, innerProductToCosineDistance(-1), 1e-6)

	// 浮点误差让相似度略微越界时钳制回合法范围
	assert.InDelta(t, 0.0, innerProductToCosineDistance(1.0001), 1e-6)
	assert.InDelta(t, 2.0, innerProductToCosineDistance(-1.0001), 1e-6)

	// 换算后越相似的向量距离越小、得分越高
	near := DistanceToScore(innerProductToCosineDistance(0.9), Cosine)
	far := DistanceToScore(innerProductToCosineDistance(0.1), Cosine)
	assert.Greater(t, near, far)
}
