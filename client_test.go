package ragline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragline/internal/domain"
	"github.com/kailas-cloud/ragline/internal/domain/answer"
	dommem "github.com/kailas-cloud/ragline/internal/domain/memory"
	healthuc "github.com/kailas-cloud/ragline/internal/usecase/health"
)

func TestNew_NoStore(t *testing.T) {
	_, err := New(WithOpenAI("key", ""))
	if err == nil {
		t.Fatal("expected error when no store configured")
	}
}

func TestNew_NoProvider(t *testing.T) {
	_, err := New(WithEmbedded(""))
	if err == nil {
		t.Fatal("expected error when no completion provider configured")
	}
}

func TestNew_AnthropicNeedsEmbeddingEndpoint(t *testing.T) {
	_, err := New(WithEmbedded(""), WithAnthropic("key", ""))
	if err == nil {
		t.Fatal("expected error: anthropic completions without an embedding endpoint")
	}
	if !strings.Contains(err.Error(), "WithEmbeddingCredentials") {
		t.Errorf("error should point at WithEmbeddingCredentials, got %q", err.Error())
	}
}

func TestNew_UnknownDriver(t *testing.T) {
	bogus := Option(func(c *clientConfig) { c.driver = "bolt" })
	_, err := New(bogus, WithOpenAI("key", ""))
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestNew_Embedded(t *testing.T) {
	// In-memory store, no network at construction time.
	c, err := New(WithEmbedded(""), WithOpenAI("test-key", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()

	if c.router == nil {
		t.Error("router not wired")
	}
	if c.memory == nil {
		t.Error("memory should be wired by default")
	}
}

func TestNew_EmbeddedWithoutMemory(t *testing.T) {
	c, err := New(WithEmbedded(""), WithOpenAI("test-key", ""), WithoutMemory())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()

	if c.memory != nil {
		t.Error("memory wired despite WithoutMemory")
	}
	_, err = c.Memories(context.Background(), "вопрос", 3)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Memories error = %v, want ErrNotFound", err)
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &clientConfig{}

	WithRedis("localhost:6379", "secret")(cfg)
	if cfg.driver != "redis" {
		t.Errorf("driver = %q, want redis", cfg.driver)
	}
	if cfg.addrs[0] != "localhost:6379" {
		t.Errorf("addr = %q, want localhost:6379", cfg.addrs[0])
	}
	if cfg.password != "secret" {
		t.Errorf("password = %q, want secret", cfg.password)
	}

	cfg2 := &clientConfig{}
	WithEmbedded("/tmp/ragline")(cfg2)
	if cfg2.driver != "embedded" || cfg2.dataDir != "/tmp/ragline" {
		t.Errorf("embedded = (%q, %q)", cfg2.driver, cfg2.dataDir)
	}

	cfg3 := &clientConfig{}
	WithOpenAI("sk-1", "gpt-4o")(cfg3)
	if cfg3.llmProvider != "openai" || cfg3.llmModel != "gpt-4o" {
		t.Errorf("openai = (%q, %q)", cfg3.llmProvider, cfg3.llmModel)
	}
	WithAnthropic("ak-1", "")(cfg3)
	if cfg3.llmProvider != "anthropic" || cfg3.llmAPIKey != "ak-1" {
		t.Errorf("anthropic = (%q, %q)", cfg3.llmProvider, cfg3.llmAPIKey)
	}
	WithLLMBaseURL("http://localhost:8080/v1")(cfg3)
	if cfg3.llmBaseURL != "http://localhost:8080/v1" {
		t.Errorf("llmBaseURL = %q", cfg3.llmBaseURL)
	}
	WithEmbedding("text-embedding-3-large", 3072)(cfg3)
	if cfg3.embedModel != "text-embedding-3-large" || cfg3.embedDims != 3072 {
		t.Errorf("embedding = (%q, %d)", cfg3.embedModel, cfg3.embedDims)
	}
	WithEmbeddingCredentials("ek-1", "http://embed.local")(cfg3)
	if cfg3.embedAPIKey != "ek-1" || cfg3.embedBaseURL != "http://embed.local" {
		t.Errorf("embedding credentials = (%q, %q)", cfg3.embedAPIKey, cfg3.embedBaseURL)
	}

	cfg4 := &clientConfig{}
	WithKeyPrefix("kb:")(cfg4)
	WithRerank()(cfg4)
	WithoutCache()(cfg4)
	WithCacheSize(1 << 20)(cfg4)
	WithoutMemory()(cfg4)
	WithMemoryRetention(7*24*time.Hour, 50)(cfg4)
	WithWebsearch("http://search.local", "wk")(cfg4)
	WithDatabaseTool("postgres://localhost/kb")(cfg4)
	if cfg4.keyPrefix != "kb:" {
		t.Errorf("keyPrefix = %q", cfg4.keyPrefix)
	}
	if !cfg4.rerank || !cfg4.cacheOff || !cfg4.memoryOff {
		t.Errorf("toggles = (%v, %v, %v)", cfg4.rerank, cfg4.cacheOff, cfg4.memoryOff)
	}
	if cfg4.cacheMaxCost != 1<<20 {
		t.Errorf("cacheMaxCost = %d", cfg4.cacheMaxCost)
	}
	if cfg4.memoryExpiry != 7*24*time.Hour || cfg4.memoryMax != 50 {
		t.Errorf("memory retention = (%v, %d)", cfg4.memoryExpiry, cfg4.memoryMax)
	}
	if cfg4.websearchEndpoint != "http://search.local" || cfg4.websearchAPIKey != "wk" {
		t.Errorf("websearch = (%q, %q)", cfg4.websearchEndpoint, cfg4.websearchAPIKey)
	}
	if cfg4.databaseDSN != "postgres://localhost/kb" {
		t.Errorf("databaseDSN = %q", cfg4.databaseDSN)
	}
}

// mockClientRouter записывает вход и отдаёт заготовленный ответ.
type mockClientRouter struct {
	ans     answer.Answer
	err     error
	tokens  int
	lastAsk answer.Ask
	lastMem string
}

func (m *mockClientRouter) Route(ctx context.Context, ask answer.Ask, memoryCtx string) (answer.Answer, error) {
	m.lastAsk = ask
	m.lastMem = memoryCtx
	if m.tokens > 0 {
		domain.UsageFromContext(ctx).AddTokens(m.tokens)
	}
	return m.ans, m.err
}

type mockClientMemory struct {
	matches     []dommem.Match
	relevantErr error
	recordErr   error
	relevants   int
	records     int
	recordedQ   string
}

func (m *mockClientMemory) Relevant(_ context.Context, _ string, _ int) ([]dommem.Match, error) {
	m.relevants++
	return m.matches, m.relevantErr
}

func (m *mockClientMemory) Record(_ context.Context, question string, _ answer.Answer) error {
	m.records++
	m.recordedQ = question
	return m.recordErr
}

type mockClientHealth struct {
	report healthuc.Report
}

func (m *mockClientHealth) Check(context.Context) healthuc.Report { return m.report }

func clientMatch(t *testing.T, id, question string, sim float64) dommem.Match {
	t.Helper()
	e := dommem.Reconstruct(id, question, "摘要", "回答内容", time.Now().Add(-time.Hour))
	m, ok := dommem.Score(e, sim, time.Now(), 30*24*time.Hour)
	if !ok {
		t.Fatalf("match %s unexpectedly expired", id)
	}
	return m
}

func TestAnswerQuestion_OK(t *testing.T) {
	router := &mockClientRouter{
		ans:    answer.New("向量检索通过相似度匹配文档。", []string{"doc-1"}, answer.ModeStrict, 0.9, false),
		tokens: 42,
	}
	mem := &mockClientMemory{matches: []dommem.Match{clientMatch(t, "m1", "之前的问题", 0.8)}}
	c := &Client{router: router, memory: mem, logger: zap.NewNop()}

	ans, err := c.AnswerQuestion(context.Background(), "什么是向量检索？", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ans.Text != "向量检索通过相似度匹配文档。" {
		t.Errorf("text = %q", ans.Text)
	}
	if len(ans.Sources) != 1 || ans.Sources[0] != "doc-1" {
		t.Errorf("sources = %v", ans.Sources)
	}
	if ans.Mode != "strict" || ans.Confidence != 0.9 {
		t.Errorf("mode/confidence = (%q, %v)", ans.Mode, ans.Confidence)
	}
	if ans.TokensUsed != 42 {
		t.Errorf("tokens = %d, want 42", ans.TokensUsed)
	}

	ask := router.lastAsk
	if ask.Question() != "什么是向量检索？" {
		t.Errorf("routed question = %q", ask.Question())
	}
	if ask.TopK() != answer.DefaultTopK {
		t.Errorf("topK = %d, want default %d", ask.TopK(), answer.DefaultTopK)
	}
	if !strings.Contains(router.lastMem, "之前的问题") {
		t.Errorf("memory context missing recalled question: %q", router.lastMem)
	}
	if mem.relevants != 1 || mem.records != 1 {
		t.Errorf("memory calls = (%d, %d), want (1, 1)", mem.relevants, mem.records)
	}
	if mem.recordedQ != "什么是向量检索？" {
		t.Errorf("recorded question = %q", mem.recordedQ)
	}
}

func TestAnswerQuestion_PassesOptions(t *testing.T) {
	router := &mockClientRouter{ans: answer.New("ответ", nil, answer.ModeHybrid, 0.8, false)}
	c := &Client{router: router, logger: zap.NewNop()}

	enable := false
	_, err := c.AnswerQuestion(context.Background(), "вопрос", &AskOptions{
		Mode:                  "hybrid",
		AllowGeneralKnowledge: true,
		EnableTool:            &enable,
		UseAgent:              true,
		TopK:                  8,
		MaxIterations:         3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ask := router.lastAsk
	if ask.Mode() != answer.ModeHybrid || !ask.AllowGeneralKnowledge() {
		t.Errorf("mode/general = (%v, %v)", ask.Mode(), ask.AllowGeneralKnowledge())
	}
	if ask.EnableTool() {
		t.Error("enableTool should be false")
	}
	if !ask.UseAgent() || ask.TopK() != 8 || ask.MaxIterations() != 3 {
		t.Errorf("agent/topK/iterations = (%v, %d, %d)", ask.UseAgent(), ask.TopK(), ask.MaxIterations())
	}
}

func TestAnswerQuestion_EmptyQuestion(t *testing.T) {
	c := &Client{router: &mockClientRouter{}, logger: zap.NewNop()}

	_, err := c.AnswerQuestion(context.Background(), "", nil)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestAnswerQuestion_MemoryFailuresAreSoft(t *testing.T) {
	// память лежит — вопрос всё равно отвечаем
	router := &mockClientRouter{ans: answer.New("ответ", nil, answer.ModeStrict, 0.9, false)}
	mem := &mockClientMemory{
		relevantErr: errors.New("index gone"),
		recordErr:   errors.New("index gone"),
	}
	c := &Client{router: router, memory: mem, logger: zap.NewNop()}

	ans, err := c.AnswerQuestion(context.Background(), "вопрос", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.Text != "ответ" {
		t.Errorf("text = %q", ans.Text)
	}
	if router.lastMem != "" {
		t.Errorf("memory context = %q, want empty", router.lastMem)
	}
}

func TestAnswerQuestion_RouterError(t *testing.T) {
	router := &mockClientRouter{err: domain.ErrBackendUnavailable}
	mem := &mockClientMemory{}
	c := &Client{router: router, memory: mem, logger: zap.NewNop()}

	_, err := c.AnswerQuestion(context.Background(), "вопрос", nil)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("err = %v, want ErrBackendUnavailable", err)
	}
	// Ответа нет — записывать в память нечего.
	if mem.records != 0 {
		t.Errorf("records = %d, want 0", mem.records)
	}
}

func TestMemories_Conversion(t *testing.T) {
	mem := &mockClientMemory{matches: []dommem.Match{clientMatch(t, "m1", "第一个问题", 0.9)}}
	c := &Client{memory: mem, logger: zap.NewNop()}

	out, err := c.Memories(context.Background(), "问题", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	got := out[0]
	if got.ID != "m1" || got.Question != "第一个问题" {
		t.Errorf("entry = (%q, %q)", got.ID, got.Question)
	}
	if got.Similarity != 0.9 {
		t.Errorf("similarity = %v, want 0.9", got.Similarity)
	}
	if got.Weight <= 0 || got.Weight > got.Similarity {
		t.Errorf("weight = %v, want in (0, %v]", got.Weight, got.Similarity)
	}
	if got.CreatedAt.IsZero() {
		t.Error("createdAt is zero")
	}
}

func TestHealth_Conversion(t *testing.T) {
	c := &Client{
		health: &mockClientHealth{report: healthuc.Report{
			Status: healthuc.Degraded,
			Checks: map[string]healthuc.CheckResult{
				"store": healthuc.CheckOK,
				"llm":   healthuc.CheckError,
			},
		}},
		logger: zap.NewNop(),
	}

	r := c.Health(context.Background())
	if r.Status != "degraded" {
		t.Errorf("status = %q, want degraded", r.Status)
	}
	if r.Checks["store"] != "ok" || r.Checks["llm"] != "error" {
		t.Errorf("checks = %v", r.Checks)
	}
}

func TestClose_ReverseOrder(t *testing.T) {
	var order []int
	c := &Client{closers: []func(){
		func() { order = append(order, 1) },
		func() { order = append(order, 2) },
	}}

	c.Close()
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("close order = %v, want [2 1]", order)
	}
	c.Close() // повторный Close безопасен
}
