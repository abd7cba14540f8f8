//go:build cgo

package vectordb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataIntelligenceCrew/go-faiss"

	"github.com/fyerfyer/math-tutor/internal/models"
)

// FaissRepository 基于Faiss的持久化向量仓库
// 向量存放在flat索引中，chunk文本和元数据保存在旁路JSON文件里
// upsert通过重定位实现：旧位置的向量留在索引中但不再被引用
type FaissRepository struct {
	mu             sync.RWMutex
	collection     string
	index          faiss.Index
	records        map[string]ChunkRecord
	sourceIDs      map[string][]string
	idToPosition   map[string]int
	positionToID   map[int]string
	seq            map[string]int
	nextSeq        int
	indexPath      string
	metaPath       string
	dimension      int
	distanceType   DistanceType
	persistOnClose bool
	autoFlush      bool
	flushEvery     int
	pendingOps     int
}

// NewFaissRepository 创建新的Faiss向量仓库
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}
	collection := config.Collection
	if collection == "" {
		collection = "default"
	}

	indexPath := config.Path
	if config.InMemory {
		indexPath = ""
	}
	metaPath := ""
	if indexPath != "" {
		if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %v", err)
		}
		metaPath = indexPath + ".meta.json"
	}

	repo := &FaissRepository{
		collection:     collection,
		records:        make(map[string]ChunkRecord),
		sourceIDs:      make(map[string][]string),
		idToPosition:   make(map[string]int),
		positionToID:   make(map[int]string),
		seq:            make(map[string]int),
		indexPath:      indexPath,
		metaPath:       metaPath,
		dimension:      config.Dimension,
		distanceType:   distType,
		persistOnClose: true,
		autoFlush:      true,
		flushEvery:     100,
	}

	index, err := repo.openIndex(config)
	if err != nil {
		return nil, err
	}
	repo.index = index
	return repo, nil
}

// openIndex 加载磁盘上的已有索引，没有或不可用时新建空索引
// 加载成功时一并恢复旁路元数据
func (r *FaissRepository) openIndex(config Config) (faiss.Index, error) {
	if r.indexPath == "" || !pathExists(r.indexPath) {
		return newFlatIndex(r.dimension, r.distanceType)
	}

	index, err := faiss.ReadIndex(r.indexPath, 0)
	if err != nil {
		if !config.CreateIfNotExists {
			return nil, fmt.Errorf("%w: failed to read index file: %v", models.ErrStoreUnavailable, err)
		}
		return newFlatIndex(r.dimension, r.distanceType)
	}

	if err := r.readMetadata(r.metaPath); err != nil {
		return nil, fmt.Errorf("%w: failed to load chunk metadata: %v", models.ErrStoreUnavailable, err)
	}
	return index, nil
}

// newFlatIndex 按距离类型选择度量方式并创建flat索引
func newFlatIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	metric := faiss.MetricL2
	if distType == Cosine || distType == DotProduct {
		metric = faiss.MetricInnerProduct
	}
	index, err := faiss.NewIndexFlat(dimension, metric)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Faiss index: %v", models.ErrStoreUnavailable, err)
	}
	return index, nil
}

// Add 批量写入记录，按id做upsert
// 单条失败只记入结果，其余条目照常写入
func (r *FaissRepository) Add(records []ChunkRecord) (*AddResult, error) {
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

		if r.distanceType == Cosine {
			rec.Vector = normalizeVector(rec.Vector)
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]interface{})
		}

		nextPos := int(r.index.Ntotal())
		if err := r.index.Add(rec.Vector); err != nil {
			result.Failed = append(result.Failed, AddFailure{ChunkID: rec.ID, Reason: fmt.Sprintf("failed to add vector to index: %v", err)})
			continue
		}

		// upsert：解除旧位置的引用，旧向量在搜索时会被跳过
		if oldPos, exists := r.idToPosition[rec.ID]; exists {
			delete(r.positionToID, oldPos)
		} else {
			r.seq[rec.ID] = r.nextSeq
			r.nextSeq++
			r.sourceIDs[rec.Source] = append(r.sourceIDs[rec.Source], rec.ID)
		}

		r.records[rec.ID] = rec
		r.idToPosition[rec.ID] = nextPos
		r.positionToID[nextPos] = rec.ID
		r.pendingOps++

		result.Succeeded = append(result.Succeeded, rec.ID)
	}

	if r.autoFlush && r.pendingOps >= r.flushEvery {
		if err := r.flush(); err != nil {
			return result, fmt.Errorf("auto-save failed: %v", err)
		}
		r.pendingOps = 0
	}

	return result, nil
}

// Get 获取单条记录
func (r *FaissRepository) Get(id string) (ChunkRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[id]
	if !exists {
		return ChunkRecord{}, ErrChunkNotFound
	}
	return rec, nil
}

// DeleteBySource 删除指定来源文件的所有chunk
func (r *FaissRepository) DeleteBySource(source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, exists := r.sourceIDs[source]
	if !exists {
		return nil
	}

	for _, id := range ids {
		if pos, ok := r.idToPosition[id]; ok {
			delete(r.positionToID, pos)
		}
		delete(r.records, id)
		delete(r.idToPosition, id)
		delete(r.seq, id)
	}
	delete(r.sourceIDs, source)
	r.pendingOps += len(ids)

	return nil
}

// Search 相似度检索
// upsert和删除只解除位置映射，旧向量仍留在flat索引里，
// 所以先超量取回再过滤；活跃结果不足k时扩大窗口重查，
// 直到凑够k条或窗口覆盖整个索引
func (r *FaissRepository) Search(vector []float32, k int) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	if r.distanceType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := int(r.index.Ntotal())
	if len(r.records) == 0 || total == 0 {
		return []SearchResult{}, nil
	}

	var ranked []rankedResult
	for queryLimit := k * 4; ; queryLimit *= 2 {
		if queryLimit > total {
			queryLimit = total
		}

		distances, indices, err := r.index.Search(vector, int64(queryLimit))
		if err != nil {
			return nil, fmt.Errorf("failed to search index: %v", err)
		}

		ranked = ranked[:0]
		for i := 0; i < len(indices); i++ {
			idx := indices[i]
			if idx < 0 {
				continue
			}

			id, ok := r.positionToID[int(idx)]
			if !ok {
				continue // 已被upsert或删除的旧位置
			}
			rec, exists := r.records[id]
			if !exists {
				continue
			}

			dist := distances[i]
			if r.distanceType == Cosine {
				// 内积度量返回的是相似度，换算成余弦距离后再打分，
				// 与内存实现保持同一排序方向
				dist = innerProductToCosineDistance(dist)
			}
			ranked = append(ranked, rankedResult{
				result: SearchResult{
					Chunk:    rec,
					Score:    DistanceToScore(dist, r.distanceType),
					Distance: dist,
				},
				seq: r.seq[id],
			})
		}

		if len(ranked) >= k || queryLimit >= total {
			break
		}
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
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records), nil
}

// Stats 返回集合的即时统计信息
func (r *FaissRepository) Stats() (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		TotalChunks:    len(r.records),
		CollectionName: r.collection,
	}, nil
}

// Reset 销毁并重建空集合
// 重建新的flat索引并清空所有映射，持久化文件一并删除
func (r *FaissRepository) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, err := newFlatIndex(r.dimension, r.distanceType)
	if err != nil {
		return err
	}

	r.index = index
	r.records = make(map[string]ChunkRecord)
	r.sourceIDs = make(map[string][]string)
	r.idToPosition = make(map[string]int)
	r.positionToID = make(map[int]string)
	r.seq = make(map[string]int)
	r.nextSeq = 0
	r.pendingOps = 0

	if r.indexPath != "" {
		os.Remove(r.indexPath)
	}
	if r.metaPath != "" {
		os.Remove(r.metaPath)
	}

	return nil
}

// Dimension 返回向量维数
func (r *FaissRepository) Dimension() int {
	return r.dimension
}

// CollectionName 返回集合名称
func (r *FaissRepository) CollectionName() string {
	return r.collection
}

// Close 关闭仓库
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.persistOnClose && r.indexPath != "" {
		if err := r.flush(); err != nil {
			return fmt.Errorf("failed to save index on close: %v", err)
		}
	}
	return nil
}

// faissMetadata 旁路持久化的元数据结构
type faissMetadata struct {
	Collection   string                 `json:"collection"`
	Records      map[string]ChunkRecord `json:"records"`
	SourceIDs    map[string][]string    `json:"source_ids"`
	IDToPosition map[string]int         `json:"id_to_position"`
	Seq          map[string]int         `json:"seq"`
	NextSeq      int                    `json:"next_seq"`
	PendingOps   int                    `json:"pending_ops"`
}

// flush 保存索引和chunk元数据到文件
// 索引目录在构造时已创建
func (r *FaissRepository) flush() error {
	if r.indexPath == "" {
		return nil
	}
	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %v", err)
	}
	return r.writeMetadata()
}

// writeMetadata 保存chunk元数据到文件
func (r *FaissRepository) writeMetadata() error {
	if r.metaPath == "" {
		return nil
	}

	meta := faissMetadata{
		Collection:   r.collection,
		Records:      r.records,
		SourceIDs:    r.sourceIDs,
		IDToPosition: r.idToPosition,
		Seq:          r.seq,
		NextSeq:      r.nextSeq,
		PendingOps:   r.pendingOps,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(r.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	return nil
}

// readMetadata 从文件加载chunk元数据
func (r *FaissRepository) readMetadata(path string) error {
	if path == "" || !pathExists(path) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %v", err)
	}

	var meta faissMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %v", err)
	}

	if meta.Collection != "" {
		r.collection = meta.Collection
	}
	r.records = meta.Records
	r.sourceIDs = meta.SourceIDs
	r.idToPosition = meta.IDToPosition
	r.seq = meta.Seq
	r.nextSeq = meta.NextSeq
	r.pendingOps = meta.PendingOps

	r.positionToID = make(map[int]string, len(meta.IDToPosition))
	for id, pos := range meta.IDToPosition {
		r.positionToID[pos] = id
	}

	return nil
}

// pathExists 检查文件是否存在
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
