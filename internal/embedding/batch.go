package embedding

import (
	"context"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchFailure 单个文本嵌入失败的记录
type BatchFailure struct {
	Index int   // 文本在输入序列中的位置
	Err   error // 失败原因
}

// BatchResult 批量嵌入结果
// Vectors与输入文本位置一一对应，失败位置为nil并记入Failed
type BatchResult struct {
	Vectors [][]float32
	Failed  []BatchFailure
}

// BatchProcessor 批量嵌入处理器
// 用有界工作池并发调用外部嵌入服务：并发受限以尊重外部速率限制，
// 单批失败按位置上报，不中断其余批次
type BatchProcessor struct {
	client     Client // 嵌入客户端
	batchSize  int    // 每批处理的文本数量
	maxWorkers int    // 最大并行工作协程数
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16 // 默认批量大小
	}
	if maxWorkers <= 0 {
		maxWorkers = 4 // 默认工作协程数
	}

	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Process 并发处理一批文本
// 上下文取消时停止提交新批次，已完成批次的结果保留
func (p *BatchProcessor) Process(ctx context.Context, texts []string) (*BatchResult, error) {
	result := &BatchResult{
		Vectors: make([][]float32, len(texts)),
	}
	if len(texts) == 0 {
		return result, nil
	}

	wp := workerpool.New(p.maxWorkers)
	var mu sync.Mutex

	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		if ctx.Err() != nil {
			// 取消后剩余批次整体记为失败
			mu.Lock()
			for i := start; i < end; i++ {
				result.Failed = append(result.Failed, BatchFailure{Index: i, Err: ctx.Err()})
			}
			mu.Unlock()
			continue
		}

		start, end := start, end // 捕获循环变量
		wp.Submit(func() {
			vectors, err := p.client.EmbedBatch(ctx, texts[start:end])

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				for i := start; i < end; i++ {
					result.Failed = append(result.Failed, BatchFailure{Index: i, Err: err})
				}
				return
			}
			for i, v := range vectors {
				result.Vectors[start+i] = v
			}
		})
	}

	wp.StopWait()

	return result, nil
}
