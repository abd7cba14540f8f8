package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyerfyer/math-tutor/api/handler"
	"github.com/fyerfyer/math-tutor/api/model"
	"github.com/fyerfyer/math-tutor/internal/cache"
	"github.com/fyerfyer/math-tutor/internal/compute"
	"github.com/fyerfyer/math-tutor/internal/database"
	"github.com/fyerfyer/math-tutor/internal/document"
	"github.com/fyerfyer/math-tutor/internal/llm"
	"github.com/fyerfyer/math-tutor/internal/repository"
	"github.com/fyerfyer/math-tutor/internal/services"
	"github.com/fyerfyer/math-tutor/internal/vectordb"
	"github.com/fyerfyer/math-tutor/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 8

// stubTokenizer 按空白分词的确定性假分词器
type stubTokenizer struct{}

func (stubTokenizer) Count(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

func (stubTokenizer) TailTokens(text string, n int) (string, error) {
	words := strings.Fields(text)
	if n <= 0 {
		return "", nil
	}
	if len(words) <= n {
		return text, nil
	}
	return strings.Join(words[len(words)-n:], " "), nil
}

func (stubTokenizer) Name() string { return "stub" }

// stubEmbedder 确定性假嵌入客户端
type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, testDim)
	for _, word := range strings.Fields(text) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%testDim]++
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

func (e stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

func (stubEmbedder) Name() string    { return "stub-embedder" }
func (stubEmbedder) Dimensions() int { return testDim }

// stubLLM 返回固定回答的假大模型客户端
type stubLLM struct {
	reply string
}

func (s *stubLLM) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	return s.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}})
}

func (s *stubLLM) Chat(ctx context.Context, messages []llm.Message, options ...llm.ChatOption) (*llm.Response, error) {
	return &llm.Response{
		Text:         s.reply,
		TokensUsed:   10,
		ModelName:    "stub-model",
		FinishReason: "stop",
	}, nil
}

func (s *stubLLM) Name() string { return "stub-model" }

// testEnv API测试环境
type testEnv struct {
	router   *gin.Engine
	handlers Handlers
	docRepo  repository.DocumentRepository
	vectorDB vectordb.Repository
}

// setupTestEnv 构建完整的API测试环境
// 使用内存数据库、本地临时存储和确定性的假模型客户端
func setupTestEnv(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	db, err := database.SetupTestDB()
	require.NoError(t, err)

	fileStorage, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	vectorDB, err := vectordb.NewRepository(vectordb.Config{
		Type:         "memory",
		Collection:   "math_course_materials",
		Dimension:    testDim,
		DistanceType: vectordb.Cosine,
	})
	require.NoError(t, err)

	docRepo := repository.NewDocumentRepositoryWithDB(db)
	chatRepo := repository.NewChatRepositoryWithDB(db)

	chunker := document.NewChunker(stubTokenizer{}, document.DefaultChunkerConfig())
	embedder := stubEmbedder{}
	llmClient := &stubLLM{reply: "Tassa on vastaus."}

	qaCache, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	docService := services.NewDocumentService(fileStorage, chunker, embedder, vectorDB, docRepo)
	retrieval := services.NewRetrievalService(embedder, vectorDB)
	sessions := services.NewSessionManager(chatRepo, nil)
	tutor := services.NewTutorService(retrieval, llmClient, sessions, qaCache)
	quiz := services.NewQuizService(llmClient, nil)

	handlers := Handlers{
		Document: handler.NewDocumentHandler(docService),
		Tutor:    handler.NewTutorHandler(tutor, quiz),
		Session:  handler.NewSessionHandler(sessions),
	}

	return &testEnv{
		router:   SetupRouter(handlers),
		handlers: handlers,
		docRepo:  docRepo,
		vectorDB: vectorDB,
	}
}

// performRequest 执行HTTP请求并返回响应记录器
func (env *testEnv) performRequest(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// uploadFile 构造multipart上传请求
func (env *testEnv) uploadFile(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// decodeData 解析通用响应中的data字段
func decodeData(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()

	var resp struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 0, resp.Code, "expected success response, got: %s", w.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, target))
}

func TestHealthEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	w := env.performRequest(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestDocumentLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	// 上传材料
	w := env.uploadFile(t, "algebra.txt", "Algebra studies equations and unknown variables.")
	require.Equal(t, http.StatusOK, w.Code)

	var uploadResp model.DocumentUploadResponse
	decodeData(t, w, &uploadResp)
	assert.NotEmpty(t, uploadResp.DocumentID)
	assert.Equal(t, "uploaded", uploadResp.Status)

	// 触发入库
	w = env.performRequest(t, http.MethodPost, "/api/documents/"+uploadResp.DocumentID+"/process", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var ingestResp model.IngestResultResponse
	decodeData(t, w, &ingestResp)
	assert.Equal(t, 1, ingestResp.ChunkCount)
	assert.Equal(t, 1, ingestResp.StoredCount)
	assert.Empty(t, ingestResp.FailedChunks)

	// 查询材料状态
	w = env.performRequest(t, http.MethodGet, "/api/documents/"+uploadResp.DocumentID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var docInfo model.DocumentInfo
	decodeData(t, w, &docInfo)
	assert.Equal(t, "completed", docInfo.Status)
	assert.Equal(t, 100, docInfo.Progress)
	assert.Equal(t, 1, docInfo.ChunkCount)

	// 材料列表
	w = env.performRequest(t, http.MethodGet, "/api/documents?page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listResp model.DocumentListResponse
	decodeData(t, w, &listResp)
	assert.Equal(t, int64(1), listResp.Total)
	require.Len(t, listResp.Documents, 1)

	// 知识库统计
	w = env.performRequest(t, http.MethodGet, "/api/knowledge/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var statsResp model.KnowledgeStatsResponse
	decodeData(t, w, &statsResp)
	assert.Equal(t, 1, statsResp.TotalChunks)
	assert.Equal(t, "math_course_materials", statsResp.CollectionName)

	// 删除材料
	w = env.performRequest(t, http.MethodDelete, "/api/documents/"+uploadResp.DocumentID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.performRequest(t, http.MethodGet, "/api/documents/"+uploadResp.DocumentID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	env := setupTestEnv(t)

	w := env.uploadFile(t, "slides.pptx", "binary content")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAskEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	// 先入库一份材料
	w := env.uploadFile(t, "derivatives.txt", "The derivative measures the instantaneous rate of change.")
	require.Equal(t, http.StatusOK, w.Code)
	var uploadResp model.DocumentUploadResponse
	decodeData(t, w, &uploadResp)

	w = env.performRequest(t, http.MethodPost, "/api/documents/"+uploadResp.DocumentID+"/process", nil)
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("question with materials", func(t *testing.T) {
		w := env.performRequest(t, http.MethodPost, "/api/ask", model.AskRequest{
			Question: "The derivative measures the instantaneous rate of change.",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var askResp model.AskResponse
		decodeData(t, w, &askResp)
		assert.Equal(t, "Tassa on vastaus.", askResp.Answer)
		assert.Equal(t, "stub-model", askResp.Model)
		require.NotEmpty(t, askResp.Sources)
		assert.Equal(t, "derivatives.txt", askResp.Sources[0].Source)
	})

	t.Run("missing question", func(t *testing.T) {
		w := env.performRequest(t, http.MethodPost, "/api/ask", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSessionEndpoints(t *testing.T) {
	env := setupTestEnv(t)

	// 创建会话
	w := env.performRequest(t, http.MethodPost, "/api/sessions", model.SessionCreateRequest{Title: "Integrals"})
	require.Equal(t, http.StatusOK, w.Code)

	var sessionInfo model.SessionInfo
	decodeData(t, w, &sessionInfo)
	assert.NotEmpty(t, sessionInfo.SessionID)
	assert.Equal(t, "Integrals", sessionInfo.Title)

	// 带会话提问，问答写入历史
	w = env.performRequest(t, http.MethodPost, "/api/ask", model.AskRequest{
		Question:  "What is an integral?",
		SessionID: sessionInfo.SessionID,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.performRequest(t, http.MethodGet, "/api/sessions/"+sessionInfo.SessionID+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var messagesResp model.SessionMessagesResponse
	decodeData(t, w, &messagesResp)
	require.Len(t, messagesResp.Messages, 2)
	assert.Equal(t, "user", messagesResp.Messages[0].Role)
	assert.Equal(t, "assistant", messagesResp.Messages[1].Role)

	// 会话列表
	w = env.performRequest(t, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listResp model.SessionListResponse
	decodeData(t, w, &listResp)
	assert.Equal(t, int64(1), listResp.Total)

	// 清空历史
	w = env.performRequest(t, http.MethodPost, "/api/sessions/"+sessionInfo.SessionID+"/clear", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.performRequest(t, http.MethodGet, "/api/sessions/"+sessionInfo.SessionID+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &messagesResp)
	assert.Empty(t, messagesResp.Messages)

	// 删除会话
	w = env.performRequest(t, http.MethodDelete, "/api/sessions/"+sessionInfo.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.performRequest(t, http.MethodGet, "/api/sessions/"+sessionInfo.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuizEndpoint(t *testing.T) {
	env := setupTestEnv(t)

	w := env.performRequest(t, http.MethodPost, "/api/quiz", model.QuizRequest{
		Topic:        "fractions",
		NumQuestions: 2,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var quizResp model.QuizResponse
	decodeData(t, w, &quizResp)
	assert.Equal(t, "fractions", quizResp.Topic)
	assert.Equal(t, 2, quizResp.NumQuestions)
	assert.NotEmpty(t, quizResp.HTML)

	t.Run("missing topic", func(t *testing.T) {
		w := env.performRequest(t, http.MethodPost, "/api/quiz", map[string]int{"num_questions": 3})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestComputeEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// 模拟SymPy计算服务
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/compute/", r.URL.Path)

		var req compute.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success":true,"operation":%q,"original":%q,"result":"x**2 + 2*x + 1","latex":"x^{2} + 2x + 1"}`,
			req.Operation, req.Expression)
	}))
	t.Cleanup(backend.Close)

	client := compute.NewMathClient(compute.DefaultConfig().
		WithBaseURL(backend.URL).
		WithRetry(0, 10*time.Millisecond))

	env := setupTestEnv(t)
	env.handlers.Compute = handler.NewComputeHandler(client)
	env.router = SetupRouter(env.handlers)

	w := env.performRequest(t, http.MethodPost, "/api/compute", model.ComputeRequest{
		Expression: "(x+1)**2",
		Operation:  "expand",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result compute.Result
	decodeData(t, w, &result)
	assert.True(t, result.Success)
	assert.Equal(t, "expand", result.Operation)
	assert.Equal(t, "x**2 + 2*x + 1", result.Value)

	t.Run("invalid operation", func(t *testing.T) {
		w := env.performRequest(t, http.MethodPost, "/api/compute", map[string]string{
			"expression": "x",
			"operation":  "transmogrify",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
