package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/fyerfyer/math-tutor/internal/database"
	"github.com/fyerfyer/math-tutor/internal/document"
	"github.com/fyerfyer/math-tutor/internal/llm"
	"github.com/fyerfyer/math-tutor/internal/repository"
	"github.com/fyerfyer/math-tutor/internal/vectordb"
	"github.com/fyerfyer/math-tutor/pkg/storage"
	"github.com/stretchr/testify/require"
)

const testDimension = 8

// wordTok 按空白分词的确定性假分词器
type wordTok struct{}

func (wordTok) Count(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

func (wordTok) TailTokens(text string, n int) (string, error) {
	words := strings.Fields(text)
	if n <= 0 {
		return "", nil
	}
	if len(words) <= n {
		return text, nil
	}
	return strings.Join(words[len(words)-n:], " "), nil
}

func (wordTok) Name() string {
	return "word"
}

// hashEmbedder 确定性假嵌入客户端
// 将单词哈希到固定维度的桶中再归一化，相同文本必然得到相同向量。
// failSubstr非空时，包含该子串的文本嵌入失败。
type hashEmbedder struct {
	mu         sync.Mutex
	failSubstr string
	calls      int
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	failSubstr := e.failSubstr
	e.mu.Unlock()

	if failSubstr != "" && strings.Contains(text, failSubstr) {
		return nil, fmt.Errorf("embedding service rejected input")
	}

	vec := make([]float32, testDimension)
	for _, word := range strings.Fields(text) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%testDimension]++
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		n := float32(math.Sqrt(float64(norm)))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

func (e *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *hashEmbedder) Name() string {
	return "hash-embedder"
}

func (e *hashEmbedder) Dimensions() int {
	return testDimension
}

func (e *hashEmbedder) setFailSubstr(s string) {
	e.mu.Lock()
	e.failSubstr = s
	e.mu.Unlock()
}

// fakeLLM 可编程的假大模型客户端
// 记录最近一次收到的消息，便于断言提示词结构
type fakeLLM struct {
	mu           sync.Mutex
	reply        string
	calls        int
	lastMessages []llm.Message
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	return f.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message, options ...llm.ChatOption) (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.lastMessages = append([]llm.Message(nil), messages...)

	return &llm.Response{
		Text:         f.reply,
		TokensUsed:   42,
		ModelName:    "fake-model",
		FinishReason: "stop",
	}, nil
}

func (f *fakeLLM) Name() string {
	return "fake-model"
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// testEnv 材料入库和检索测试环境
type testEnv struct {
	docs      *DocumentService
	retrieval *RetrievalService
	embedder  *hashEmbedder
	vectorDB  vectordb.Repository
	docRepo   repository.DocumentRepository
	chatRepo  repository.ChatRepository
}

// newTestEnv 构建使用内存数据库、本地临时存储和假嵌入器的测试环境
func newTestEnv(t *testing.T, opts ...DocumentOption) *testEnv {
	t.Helper()

	db, err := database.SetupTestDB()
	require.NoError(t, err)

	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	vectorDB, err := vectordb.NewMemoryRepository(vectordb.Config{
		Type:       "memory",
		Collection: "math_course_materials",
		Dimension:  testDimension,
	})
	require.NoError(t, err)

	embedder := &hashEmbedder{}
	chunker := document.NewChunker(wordTok{}, document.DefaultChunkerConfig())
	docRepo := repository.NewDocumentRepositoryWithDB(db)

	docs := NewDocumentService(store, chunker, embedder, vectorDB, docRepo, opts...)
	retrieval := NewRetrievalService(embedder, vectorDB)

	return &testEnv{
		docs:      docs,
		retrieval: retrieval,
		embedder:  embedder,
		vectorDB:  vectorDB,
		docRepo:   docRepo,
		chatRepo:  repository.NewChatRepositoryWithDB(db),
	}
}

// ingestText 上传并同步入库一段文本，返回材料记录
func (env *testEnv) ingestText(t *testing.T, filename string, text string) string {
	t.Helper()

	doc, err := env.docs.UploadDocument(context.Background(), strings.NewReader(text), filename)
	require.NoError(t, err)

	_, err = env.docs.ProcessDocument(context.Background(), doc.ID)
	require.NoError(t, err)

	return doc.ID
}
