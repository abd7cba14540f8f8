package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/fyerfyer/math-tutor/internal/models"
	"github.com/fyerfyer/math-tutor/pkg/taskqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadDocumentValidation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("unsupported format", func(t *testing.T) {
		_, err := env.docs.UploadDocument(context.Background(), strings.NewReader("data"), "malware.exe")
		assert.ErrorIs(t, err, models.ErrUnsupportedFormat)
	})

	t.Run("supported format creates record", func(t *testing.T) {
		doc, err := env.docs.UploadDocument(context.Background(), strings.NewReader("derivative rules"), "calculus.txt")
		require.NoError(t, err)

		assert.NotEmpty(t, doc.ID)
		assert.Equal(t, "calculus.txt", doc.FileName)
		assert.Equal(t, models.DocStatusUploaded, doc.Status)

		saved, err := env.docRepo.GetByID(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, "txt", saved.FileType)
	})
}

func TestIngestAndRetrieve(t *testing.T) {
	env := newTestEnv(t)

	algebraText := "Algebra studies equations and unknown variables in symbolic form."
	geometryText := "Geometry deals with triangles circles angles and spatial shapes."

	algebraID := env.ingestText(t, "algebra.txt", algebraText)
	env.ingestText(t, "geometry.txt", geometryText)

	// 入库后材料状态为完成，分块记录全部写入
	doc, err := env.docRepo.GetByID(algebraID)
	require.NoError(t, err)
	assert.Equal(t, models.DocStatusCompleted, doc.Status)
	assert.Equal(t, 100, doc.Progress)
	assert.Equal(t, 1, doc.ChunkCount)
	assert.NotNil(t, doc.ProcessedAt)

	pending, err := env.docRepo.GetPendingChunks(algebraID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	count, err := env.vectorDB.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// 用材料原文检索，对应分块必须排在首位且得分接近1
	results, err := env.retrieval.Retrieve(context.Background(), algebraText, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "algebra.txt_chunk_0", results[0].ChunkID)
	assert.Equal(t, algebraText, results[0].Text)
	assert.Equal(t, "algebra.txt", results[0].Source)
	assert.InDelta(t, 1.0, float64(results[0].Score), 0.001)
}

func TestRetrieveEdgeCases(t *testing.T) {
	env := newTestEnv(t)

	t.Run("empty query rejected", func(t *testing.T) {
		_, err := env.retrieval.Retrieve(context.Background(), "", 0)
		assert.Error(t, err)
	})

	t.Run("empty knowledge base reports no relevant material", func(t *testing.T) {
		results, err := env.retrieval.Retrieve(context.Background(), "what is a derivative", 3)
		assert.ErrorIs(t, err, models.ErrNoRelevantMaterial)
		assert.Empty(t, results)
	})
}

func TestIngestChunkFailureAndRetry(t *testing.T) {
	// 批大小为1，单个分块的嵌入失败不影响其余分块
	env := newTestEnv(t, WithBatchSize(1))

	// 两个段落超出token预算，会切成两个分块，第二块包含故障标记
	p1 := makeWords("limit", 300)
	p2 := makeWords("series", 350) + " unstable"
	text := p1 + "\n\n" + p2

	env.embedder.setFailSubstr("unstable")

	doc, err := env.docs.UploadDocument(context.Background(), strings.NewReader(text), "analysis.txt")
	require.NoError(t, err)

	result, err := env.docs.ProcessDocument(context.Background(), doc.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.ChunkCount)
	assert.Equal(t, 1, result.StoredCount)
	require.Len(t, result.FailedChunks, 1)
	assert.Equal(t, "analysis.txt_chunk_1", result.FailedChunks[0])

	// 失败分块留在待处理列表中，失败id记录在材料上
	pending, err := env.docRepo.GetPendingChunks(doc.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "analysis.txt_chunk_1", pending[0].ChunkID)
	assert.NotEmpty(t, pending[0].Error)

	saved, err := env.docRepo.GetByID(doc.ID)
	require.NoError(t, err)
	failedIDs, err := saved.GetFailedChunks()
	require.NoError(t, err)
	assert.Equal(t, []string{"analysis.txt_chunk_1"}, failedIDs)

	// 故障恢复后重试，只重新嵌入失败的分块
	env.embedder.setFailSubstr("")
	callsBefore := env.embedder.calls

	retryResult, err := env.docs.RetryFailedChunks(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, retryResult.ChunkCount)
	assert.Equal(t, 1, retryResult.StoredCount)
	assert.Empty(t, retryResult.FailedChunks)
	assert.Equal(t, 1, env.embedder.calls-callsBefore, "only the failed chunk should be re-embedded")

	pending, err = env.docRepo.GetPendingChunks(doc.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	count, err := env.vectorDB.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDeleteDocument(t *testing.T) {
	env := newTestEnv(t)

	docID := env.ingestText(t, "trigonometry.txt", "Sine cosine and tangent describe ratios in right triangles.")

	count, err := env.vectorDB.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, env.docs.DeleteDocument(context.Background(), docID))

	count, err = env.vectorDB.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = env.docRepo.GetByID(docID)
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
}

func TestKnowledgeStatsAndReset(t *testing.T) {
	env := newTestEnv(t)

	env.ingestText(t, "fractions.txt", "Fractions represent parts of a whole number.")

	stats, err := env.docs.KnowledgeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunks)
	assert.Equal(t, "math_course_materials", stats.CollectionName)

	require.NoError(t, env.docs.ResetKnowledgeBase(context.Background()))

	stats, err = env.docs.KnowledgeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalChunks)
}

func TestDocumentTaskHandler(t *testing.T) {
	env := newTestEnv(t)
	handler := NewDocumentTaskHandler(env.docs, nil, nil)

	assert.ElementsMatch(t,
		[]taskqueue.TaskType{taskqueue.TaskDocumentIngest, taskqueue.TaskDocumentDelete},
		handler.GetTaskTypes())

	doc, err := env.docs.UploadDocument(context.Background(),
		strings.NewReader("Probability measures how likely an event is."), "probability.txt")
	require.NoError(t, err)

	t.Run("ingest task", func(t *testing.T) {
		payload, err := taskqueue.MarshalPayload(taskqueue.DocumentIngestPayload{
			DocumentID: doc.ID,
			FileName:   doc.FileName,
			FileType:   doc.FileType,
		})
		require.NoError(t, err)

		task := &taskqueue.Task{
			ID:         "task-1",
			Type:       taskqueue.TaskDocumentIngest,
			DocumentID: doc.ID,
			Payload:    payload,
		}
		require.NoError(t, handler.ProcessTask(context.Background(), task))

		saved, err := env.docRepo.GetByID(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.DocStatusCompleted, saved.Status)
	})

	t.Run("missing document id", func(t *testing.T) {
		task := &taskqueue.Task{
			ID:      "task-2",
			Type:    taskqueue.TaskDocumentIngest,
			Payload: []byte(`{}`),
		}
		err := handler.ProcessTask(context.Background(), task)
		assert.ErrorIs(t, err, taskqueue.ErrInvalidPayload)
	})

	t.Run("delete task", func(t *testing.T) {
		payload, err := taskqueue.MarshalPayload(taskqueue.DocumentDeletePayload{
			DocumentID: doc.ID,
			Source:     doc.FileName,
		})
		require.NoError(t, err)

		task := &taskqueue.Task{
			ID:         "task-3",
			Type:       taskqueue.TaskDocumentDelete,
			DocumentID: doc.ID,
			Payload:    payload,
		}
		require.NoError(t, handler.ProcessTask(context.Background(), task))

		_, err = env.docRepo.GetByID(doc.ID)
		assert.ErrorIs(t, err, models.ErrDocumentNotFound)
	})

	t.Run("unsupported task type", func(t *testing.T) {
		task := &taskqueue.Task{ID: "task-4", Type: taskqueue.TaskType("reindex")}
		assert.Error(t, handler.ProcessTask(context.Background(), task))
	})
}

// makeWords 生成n个可区分单词组成的段落
func makeWords(tag string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("%s%d", tag, i)
	}
	return strings.Join(words, " ")
}
