package vectordb

import (
	"fmt"
	"sync"
	"time"
)

// MemoryRepository 内存向量仓库实现
// 用于开发和测试环境，语义与持久化实现完全一致
type MemoryRepository struct {
	mu         sync.RWMutex           // 写入串行，检索并发
	collection string                 // 集合名称
	dimension  int                    // 向量维度
	distType   DistanceType           // 距离计算类型
	records    map[string]ChunkRecord // chunk id到记录的映射
	seq        map[string]int         // chunk id到插入序号的映射
	sourceIDs  map[string][]string    // 来源文件到chunk id的映射
	nextSeq    int                    // 下一个插入序号
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType := config.DistanceType
	if distType != Cosine && distType != DotProduct && distType != Euclidean {
		distType = Cosine // 默认使用余弦距离
	}

	collection := config.Collection
	if collection == "" {
		collection = "default"
	}

	return &MemoryRepository{
		collection: collection,
		dimension:  config.Dimension,
		distType:   distType,
		records:    make(map[string]ChunkRecord),
		seq:        make(map[string]int),
		sourceIDs:  make(map[string][]string),
	}, nil
}

// Add 批量写入记录，按id做upsert
// 单条验证失败只记入结果的Failed列表，其余条目照常写入
func (r *MemoryRepository) Add(records []ChunkRecord) (*AddResult, error) {
	result := &AddResult{}
	if len(records) == 0 {
		return result, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range records {
		rec := records[i]

		if rec.ID == "" {
			result.Failed = append(result.Failed, AddFailure{ChunkID: rec.ID, Reason: ErrInvalidID.Error()})
			continue
		}
		if err := ValidateVector(rec.Vector, r.dimension); err != nil {
			result.Failed = append(result.Failed, AddFailure{ChunkID: rec.ID, Reason: err.Error()})
			continue
		}

		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]interface{})
		}
		// 对于余弦距离，先对向量进行归一化处理
		if r.distType == Cosine {
			rec.Vector = normalizeVector(rec.Vector)
		}

		_, exists := r.records[rec.ID]
		r.records[rec.ID] = rec

		if !exists {
			// 首次插入分配序号并登记来源映射；upsert保留原始插入位置
			r.seq[rec.ID] = r.nextSeq
			r.nextSeq++
			r.sourceIDs[rec.Source] = append(r.sourceIDs[rec.Source], rec.ID)
		}

		result.Succeeded = append(result.Succeeded, rec.ID)
	}

	return result, nil
}

// Get 获取单条记录
func (r *MemoryRepository) Get(id string) (ChunkRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[id]
	if !exists {
		return ChunkRecord{}, ErrChunkNotFound
	}
	return rec, nil
}

// DeleteBySource 删除指定来源文件的所有chunk
func (r *MemoryRepository) DeleteBySource(source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, exists := r.sourceIDs[source]
	if !exists {
		return nil
	}

	for _, id := range ids {
		delete(r.records, id)
		delete(r.seq, id)
	}
	delete(r.sourceIDs, source)

	return nil
}

// Search 相似度检索
// 得分降序，得分相同时按原始插入顺序稳定排序
func (r *MemoryRepository) Search(vector []float32, k int) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ranked := make([]rankedResult, 0, len(r.records))
	for id, rec := range r.records {
		dist, err := ComputeDistance(vector, rec.Vector, r.distType)
		if err != nil {
			return nil, fmt.Errorf("error computing distance: %v", err)
		}

		ranked = append(ranked, rankedResult{
			result: SearchResult{
				Chunk:    rec,
				Score:    DistanceToScore(dist, r.distType),
				Distance: dist,
			},
			seq: r.seq[id],
		})
	}

	sortRankedResults(ranked)

	if len(ranked) > k {
		ranked = ranked[:k]
	}

	results := make([]SearchResult, len(ranked))
	for i, rr := range ranked {
		results[i] = rr.result
	}
	return results, nil
}

// Count 获取记录总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records), nil
}

// Stats 返回集合的即时统计信息
func (r *MemoryRepository) Stats() (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		TotalChunks:    len(r.records),
		CollectionName: r.collection,
	}, nil
}

// Reset 销毁并重建空集合
func (r *MemoryRepository) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make(map[string]ChunkRecord)
	r.seq = make(map[string]int)
	r.sourceIDs = make(map[string][]string)
	r.nextSeq = 0

	return nil
}

// Dimension 返回向量维数
func (r *MemoryRepository) Dimension() int {
	return r.dimension
}

// CollectionName 返回集合名称
func (r *MemoryRepository) CollectionName() string {
	return r.collection
}

// Close 关闭数据库连接
// 对于内存实现这是一个空操作
func (r *MemoryRepository) Close() error {
	return nil
}

// 在包初始化时注册内存仓库
func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
