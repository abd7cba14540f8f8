package embedding

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient 确定性的假嵌入客户端
// 文本以"fail"开头时模拟外部调用失败
type fakeClient struct {
	calls int32
}

func (f *fakeClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (f *fakeClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt32(&f.calls, 1)

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.HasPrefix(text, "fail") {
			return nil, NewEmbeddingError(ErrCodeServerError, "simulated failure")
		}
		vectors[i] = []float32{float32(len(text)), 1, 0}
	}
	return vectors, nil
}

func (f *fakeClient) Name() string    { return "fake" }
func (f *fakeClient) Dimensions() int { return 3 }

func TestBatchProcessorProcess(t *testing.T) {
	t.Run("all texts embedded", func(t *testing.T) {
		client := &fakeClient{}
		processor := NewBatchProcessor(client, 2, 2)

		texts := []string{"one", "two", "three", "four", "five"}
		result, err := processor.Process(context.Background(), texts)
		require.NoError(t, err)

		assert.Empty(t, result.Failed)
		require.Len(t, result.Vectors, len(texts))
		for i, v := range result.Vectors {
			assert.NotNil(t, v, "vector %d missing", i)
		}
		// 5条文本、批大小2，应该产生3次调用
		assert.Equal(t, int32(3), atomic.LoadInt32(&client.calls))
	})

	t.Run("failed batch reported per index", func(t *testing.T) {
		client := &fakeClient{}
		processor := NewBatchProcessor(client, 2, 2)

		texts := []string{"ok1", "ok2", "fail1", "fail2", "ok3"}
		result, err := processor.Process(context.Background(), texts)
		require.NoError(t, err)

		// 失败批次(索引2、3)逐条上报，其余批次不受影响
		var failedIdx []int
		for _, f := range result.Failed {
			failedIdx = append(failedIdx, f.Index)
		}
		sort.Ints(failedIdx)
		assert.Equal(t, []int{2, 3}, failedIdx)

		assert.NotNil(t, result.Vectors[0])
		assert.NotNil(t, result.Vectors[1])
		assert.Nil(t, result.Vectors[2])
		assert.Nil(t, result.Vectors[3])
		assert.NotNil(t, result.Vectors[4])
	})

	t.Run("empty input", func(t *testing.T) {
		processor := NewBatchProcessor(&fakeClient{}, 4, 2)
		result, err := processor.Process(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, result.Vectors)
		assert.Empty(t, result.Failed)
	})

	t.Run("cancelled context fails remaining batches", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		processor := NewBatchProcessor(&fakeClient{}, 2, 1)
		result, err := processor.Process(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		assert.NotEmpty(t, result.Failed)
	})
}

func TestBatchProcessorDefaults(t *testing.T) {
	p := NewBatchProcessor(&fakeClient{}, 0, 0)
	assert.Equal(t, 16, p.batchSize)
	assert.Equal(t, 4, p.maxWorkers)
}

func TestFakeClientDeterminism(t *testing.T) {
	// 相同输入必须得到相同向量（集合生命周期内的嵌入一致性约定）
	client := &fakeClient{}
	v1, err := client.Embed(context.Background(), "derivative")
	require.NoError(t, err)
	v2, err := client.Embed(context.Background(), "derivative")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%v", v1), fmt.Sprintf("%v", v2))
}
