package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	domagent "github.com/kailas-cloud/ragline/internal/domain/agent"
	"github.com/kailas-cloud/ragline/internal/domain/answer"
	"github.com/kailas-cloud/ragline/internal/domain/chunk"
	"github.com/kailas-cloud/ragline/internal/domain/retrieval"
	"github.com/kailas-cloud/ragline/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

// scriptedReasoner отдаёт решения и вердикты по сценарию, записывая входы.
type scriptedReasoner struct {
	decisions   []domagent.Decision
	validations []domagent.Validation
	decideErrOn int // 1-based call index that fails, 0 = never
	decideErr   error
	decides     int
	validates   int
	prevs       []string
	docLens     []int
}

func (s *scriptedReasoner) Decide(_ context.Context, _ domagent.State, docs []retrieval.Result, previous string) (domagent.Decision, error) {
	s.decides++
	s.prevs = append(s.prevs, previous)
	s.docLens = append(s.docLens, len(docs))
	if s.decideErrOn == s.decides {
		return domagent.Decision{}, s.decideErr
	}
	return s.decisions[s.decides-1], nil
}

func (s *scriptedReasoner) ValidateAnswer(_ context.Context, _, _, _ string, _ []retrieval.Result) domagent.Validation {
	s.validates++
	return s.validations[s.validates-1]
}

type scriptedExecutor struct {
	observations []Observation
	execErrOn    int
	execErr      error
	broadDocs    []retrieval.Result
	broadErr     error
	execs        int
	broadens     int
	lastMemory   string
}

func (s *scriptedExecutor) Execute(_ context.Context, _ domagent.Decision, _ answer.Ask, memoryCtx string, _ []retrieval.Result) (Observation, error) {
	s.execs++
	s.lastMemory = memoryCtx
	if s.execErrOn == s.execs {
		return Observation{}, s.execErr
	}
	return s.observations[s.execs-1], nil
}

func (s *scriptedExecutor) Broaden(_ context.Context, _ answer.Ask) ([]retrieval.Result, error) {
	s.broadens++
	if s.broadErr != nil {
		return nil, s.broadErr
	}
	return s.broadDocs, nil
}

func draftObs(text string, conf float64) Observation {
	d := answer.New(text, []string{"doc-1"}, answer.ModeStrict, conf, false)
	return Observation{Text: text, Draft: &d}
}

func docsObs(ids ...string) Observation {
	out := make([]retrieval.Result, 0, len(ids))
	for _, id := range ids {
		out = append(out, doc(id, "正文 "+id))
	}
	return Observation{Text: fmt.Sprintf("检索到 %d 个相关文档", len(out)), Docs: out}
}

func toolObs(name, payload string) Observation {
	id := "tool:" + name
	c := chunk.Reconstruct(id, payload, chunk.LevelChunk, id, map[string]string{"tool": name}, nil)
	return Observation{Text: payload, Docs: []retrieval.Result{retrieval.New(c, toolEvidenceSimilarity)}}
}

func TestRun_GenerateShortCircuitsOnHighScore(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions:   []domagent.Decision{domagent.NewDecision(domagent.ActionGenerate, "", "可以直接作答", 0.8)},
		validations: []domagent.Validation{domagent.NewValidation(true, 0.95, "答案与证据一致")},
	}
	exec := &scriptedExecutor{observations: []Observation{draftObs("向量检索按相似度查找。", 0.8)}}
	svc := New(reasoner, exec, Options{}, zap.NewNop())

	ans, err := svc.Run(context.Background(), makeAsk(t, answer.Params{}), "用户此前询问过索引结构")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if ans.Text() != "向量检索按相似度查找。" {
		t.Errorf("Text() = %q", ans.Text())
	}
	if ans.Confidence() != 0.95 {
		t.Errorf("Confidence() = %v, want the validation score", ans.Confidence())
	}
	if ans.Exhausted() {
		t.Error("Exhausted() = true for an accepted answer")
	}
	if reasoner.decides != 1 || exec.execs != 1 {
		t.Errorf("decides = %d, execs = %d, want 1 each", reasoner.decides, exec.execs)
	}
	if exec.lastMemory != "用户此前询问过索引结构" {
		t.Errorf("memory context = %q", exec.lastMemory)
	}
}

func TestRun_FinishWithInlineAnswerAcceptsAtThreshold(t *testing.T) {
	// finish с inline-ответом принимается уже на пороге, без короткого замыкания
	reasoner := &scriptedReasoner{
		decisions:   []domagent.Decision{domagent.NewDecision(domagent.ActionFinish, "答案是 42。", "已有答案", 0.8)},
		validations: []domagent.Validation{domagent.NewValidation(true, 0.8, "")},
	}
	exec := &scriptedExecutor{observations: []Observation{draftObs("答案是 42。", 0.8)}}
	svc := New(reasoner, exec, Options{}, zap.NewNop())

	ans, err := svc.Run(context.Background(), makeAsk(t, answer.Params{}), "")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if ans.Text() != "答案是 42。" || ans.Confidence() != 0.8 {
		t.Errorf("answer = (%q, %v)", ans.Text(), ans.Confidence())
	}
	if exec.execs != 1 {
		t.Errorf("execs = %d, want 1", exec.execs)
	}
}

func TestRun_FinishAcceptsBestDraftWithoutExecuting(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []domagent.Decision{
			domagent.NewDecision(domagent.ActionGenerate, "", "先生成草稿", 0.8),
			domagent.NewDecision(domagent.ActionFinish, "", "草稿已经够好", 0.8),
		},
		validations: []domagent.Validation{domagent.NewValidation(true, 0.75, "")},
	}
	exec := &scriptedExecutor{observations: []Observation{draftObs("草稿答案。", 0.8)}}
	svc := New(reasoner, exec, Options{}, zap.NewNop())

	ans, err := svc.Run(context.Background(), makeAsk(t, answer.Params{}), "")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if ans.Text() != "草稿答案。" {
		t.Errorf("Text() = %q, want the remembered draft", ans.Text())
	}
	if ans.Confidence() != 0.75 {
		t.Errorf("Confidence() = %v, want the validated score", ans.Confidence())
	}
	if exec.execs != 1 {
		t.Errorf("execs = %d, finish must not execute when a good draft exists", exec.execs)
	}
	if reasoner.decides != 2 {
		t.Errorf("decides = %d, want 2", reasoner.decides)
	}
}

func TestRun_FinishBelowBarKeepsReasoning(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []domagent.Decision{
			domagent.NewDecision(domagent.ActionGenerate, "", "先试一版", 0.8),
			domagent.NewDecision(domagent.ActionFinish, "", "或许已经可以结束", 0.8),
			domagent.NewDecision(domagent.ActionGenerate, "", "再补一版", 0.8),
		},
		validations: []domagent.Validation{
			domagent.NewValidation(true, 0.6, ""),
			domagent.NewValidation(true, 0.92, ""),
		},
	}
	exec := &scriptedExecutor{observations: []Observation{
		draftObs("初稿。", 0.8),
		draftObs("更好的答案。", 0.8),
	}}
	svc := New(reasoner, exec, Options{}, zap.NewNop())

	ans, err := svc.Run(context.Background(), makeAsk(t, answer.Params{}), "")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if ans.Text() != "更好的答案。" || ans.Confidence() != 0.92 {
		t.Errorf("answer = (%q, %v)", ans.Text(), ans.Confidence())
	}
	if reasoner.decides != 3 || exec.execs != 2 {
		t.Errorf("decides = %d, execs = %d", reasoner.decides, exec.execs)
	}
}

func TestRun_ExhaustedReturnsBestEffortFlagged(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []domagent.Decision{
			domagent.NewDecision(domagent.ActionGenerate, "", "第一次尝试", 0.8),
			domagent.NewDecision(domagent.ActionGenerate, "", "第二次尝试", 0.8),
		},
		validations: []domagent.Validation{
			domagent.NewValidation(true, 0.5, "分数不高"),
			domagent.NewValidation(true, 0.4, ""),
		},
	}
	exec := &scriptedExecutor{observations: []Observation{
		draftObs("初稿。", 0.8),
		draftObs("次稿。", 0.8),
	}}
	svc := New(reasoner, exec, Options{}, zap.NewNop())

	ans, err := svc.Run(context.Background(), makeAsk(t, answer.Params{MaxIterations: 2}), "")
	if err != nil {
		t.Fatalf("Run() error: %v, an exhausted budget is not an error", err)
	}
	if !ans.Exhausted() {
		t.Error("Exhausted() = false after the budget ran out")
	}
	if ans.Text() != "初稿。" || ans.Confidence() != 0.5 {
		t.Errorf("answer = (%q, %v), want the best draft with its score", ans.Text(), ans.Confidence())
	}
	if got := ans.Sources(); len(got) != 1 || got[0] != "doc-1" {
		t.Errorf("Sources() = %v", got)
	}
	if reasoner.decides != 2 {
		t.Errorf("decides = %d, want 2", reasoner.decides)
	}
}

func TestRun_ExhaustedWithoutDraft(t *testing.T) {
	// бюджет в три итерации — ровно три решения и честный отказ
	dec := domagent.NewDecision(domagent.ActionRetrieve, "更多资料", "需要更多信息", 0.4)
	reasoner := &scriptedReasoner{decisions: []domagent.Decision{dec, dec, dec}}
	exec := &scriptedExecutor{observations: []Observation{
		docsObs("1", "2"),
		docsObs("1", "2"),
		docsObs("1", "2"),
	}}
	svc := New(reasoner, exec, Options{}, zap.NewNop())

	ans, err := svc.Run(context.Background(), makeAsk(t, answer.Params{MaxIterations: 3}), "")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if reasoner.decides != 3 {
		t.Errorf("decides = %d, want exactly the budget", reasoner.decides)
	}
	if ans.Text() != noBestAnswerText {
		t.Errorf("Text() = %q", ans.Text())
	}
	if !ans.Exhausted() || ans.Confidence() != 0.4 {
		t.Errorf("Exhausted() = %v, Confidence() = %v", ans.Exhausted(), ans.Confidence())
	}
	if got := ans.Sources(); len(got) != 2 || got[0] != "doc-1" || got[1] != "doc-2" {
		t.Errorf("Sources() = %v", got)
	}
	if !strings.Contains(reasoner.prevs[1], "动作: retrieve") || !strings.Contains(reasoner.prevs[1], "检索到 2 个相关文档") {
		t.Errorf("previous reasoning = %q", reasoner.prevs[1])
	}
}

func TestRun_BroadensOnLowConfidence(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []domagent.Decision{
			domagent.NewDecision(domagent.ActionGenerate, "", "信息可能不够", 0.5),
			domagent.NewDecision(domagent.ActionGenerate, "", "现在可以作答", 0.8),
		},
		validations: []domagent.Validation{domagent.NewValidation(true, 0.95, "")},
	}
	exec := &scriptedExecutor{
		observations: []Observation{draftObs("答案。", 0.8)},
		broadDocs:    []retrieval.Result{doc("1", "补充一"), doc("2", "补充二")},
	}
	svc := New(reasoner, exec, Options{Reretrieval: true}, zap.NewNop())

	ans, err := svc.Run(context.Background(), makeAsk(t, answer.Params{}), "")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if exec.broadens != 1 || exec.execs != 1 {
		t.Errorf("broadens = %d, execs = %d", exec.broadens, exec.execs)
	}
	if reasoner.docLens[1] != 2 {
		t.Errorf("second round saw %d docs, want the broadened pool", reasoner.docLens[1])
	}
	if ans.Exhausted() {
		t.Error("Exhausted() = true")
	}
}

func TestRun_BroadenSkippedOnLastIteration(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions:   []domagent.Decision{domagent.NewDecision(domagent.ActionGenerate, "", "希望渺茫", 0.5)},
		validations: []domagent.Validation{domagent.NewValidation(true, 0.5, "")},
	}
	exec := &scriptedExecutor{observations: []Observation{draftObs("勉强的答案。", 0.5)}}
	svc := New(reasoner, exec, Options{Reretrieval: true}, zap.NewNop())

	ans, err := svc.Run(context.Background(), makeAsk(t, answer.Params{MaxIterations: 1}), "")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if exec.broadens != 0 {
		t.Errorf("broadens = %d, the last round must not spend budget on retrieval", exec.broadens)
	}
	if !ans.Exhausted() || ans.Text() != "勉强的答案。" {
		t.Errorf("answer = (%q, exhausted=%v)", ans.Text(), ans.Exhausted())
	}
}

func TestRun_ReplansOnInconsistentDraft(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []domagent.Decision{
			domagent.NewDecision(domagent.ActionGenerate, "", "先试试直接生成", 0.8),
			domagent.NewDecision(domagent.ActionGenerate, "", "换一种思路", 0.8),
		},
		validations: []domagent.Validation{
			domagent.NewValidation(false, 0.4, "与证据矛盾"),
			domagent.NewValidation(true, 0.95, ""),
		},
	}
	exec := &scriptedExecutor{observations: []Observation{
		draftObs("草稿一。", 0.8),
		draftObs("草稿二。", 0.8),
	}}
	svc := New(reasoner, exec, Options{Replanning: true}, zap.NewNop())

	ans, err := svc.Run(context.Background(), makeAsk(t, answer.Params{}), "")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if ans.Text() != "草稿二。" || ans.Confidence() != 0.95 {
		t.Errorf("answer = (%q, %v)", ans.Text(), ans.Confidence())
	}
	replan := reasoner.prevs[1]
	for _, want := range []string{
		"之前的执行路径：",
		"迭代 1: 先试试直接生成",
		"失败原因：与证据矛盾",
		"请重新规划一个更好的执行路径",
	} {
		if !strings.Contains(replan, want) {
			t.Errorf("replan prompt is missing %q:\n%s", want, replan)
		}
	}
}

func TestRun_InconsistentDraftNotKeptAsBest(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []domagent.Decision{
			domagent.NewDecision(domagent.ActionGenerate, "", "先试试", 0.8),
			domagent.NewDecision(domagent.ActionRetrieve, "再查一次", "需要证据", 0.3),
		},
		validations: []domagent.Validation{domagent.NewValidation(false, 0.6, "矛盾")},
	}
	exec := &scriptedExecutor{observations: []Observation{
		draftObs("坏稿。", 0.8),
		docsObs("1"),
	}}
	svc := New(reasoner, exec, Options{Replanning: true}, zap.NewNop())

	ans, err := svc.Run(context.Background(), makeAsk(t, answer.Params{MaxIterations: 2}), "")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if ans.Text() != noBestAnswerText {
		t.Errorf("Text() = %q, an inconsistent draft must not be kept", ans.Text())
	}
	if !ans.Exhausted() {
		t.Error("Exhausted() = false")
	}
}

func TestRun_InconsistentWithoutReplanningKeepsDraft(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions:   []domagent.Decision{domagent.NewDecision(domagent.ActionGenerate, "", "只有一次机会", 0.8)},
		validations: []domagent.Validation{domagent.NewValidation(false, 0.6, "")},
	}
	exec := &scriptedExecutor{observations: []Observation{draftObs("唯一的稿子。", 0.8)}}
	svc := New(reasoner, exec, Options{}, zap.NewNop())

	ans, err := svc.Run(context.Background(), makeAsk(t, answer.Params{MaxIterations: 1}), "")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if ans.Text() != "唯一的稿子。" || ans.Confidence() != 0.6 {
		t.Errorf("answer = (%q, %v)", ans.Text(), ans.Confidence())
	}
	if !ans.Exhausted() {
		t.Error("Exhausted() = false")
	}
}

func TestRun_ToolEvidenceMarksAnswer(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []domagent.Decision{
			domagent.NewDecision(domagent.ActionTool, "websearch:明天的天气", "需要实时信息", 0.8),
			domagent.NewDecision(domagent.ActionGenerate, "", "结合工具结果作答", 0.8),
		},
		validations: []domagent.Validation{domagent.NewValidation(true, 0.95, "")},
	}
	exec := &scriptedExecutor{observations: []Observation{
		toolObs("websearch", "明天晴，气温 25 度。"),
		draftObs("明天是晴天。", 0.8),
	}}
	svc := New(reasoner, exec, Options{}, zap.NewNop())

	ans, err := svc.Run(context.Background(), makeAsk(t, answer.Params{}), "")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !ans.UsedTool() {
		t.Error("UsedTool() = false after a tool call")
	}
	if want := "需要实时信息\n动作: tool_call\n结果: 明天晴，气温 25 度。"; reasoner.prevs[1] != want {
		t.Errorf("previous reasoning = %q, want %q", reasoner.prevs[1], want)
	}
	if reasoner.docLens[1] != 1 {
		t.Errorf("second round saw %d docs, want the tool evidence", reasoner.docLens[1])
	}
}

func TestRun_DecideErrorPropagates(t *testing.T) {
	backend := errors.New("completion timeout")
	reasoner := &scriptedReasoner{decideErrOn: 1, decideErr: backend}
	exec := &scriptedExecutor{}
	svc := New(reasoner, exec, Options{}, zap.NewNop())

	_, err := svc.Run(context.Background(), makeAsk(t, answer.Params{}), "")
	if !errors.Is(err, backend) {
		t.Fatalf("Run() error = %v, want %v", err, backend)
	}
	if exec.execs != 0 {
		t.Errorf("execs = %d, want 0", exec.execs)
	}
}

func TestRun_ExecuteErrorPropagates(t *testing.T) {
	backend := errors.New("index offline")
	reasoner := &scriptedReasoner{
		decisions: []domagent.Decision{domagent.NewDecision(domagent.ActionRetrieve, "", "查一下", 0.6)},
	}
	svc := New(reasoner, &scriptedExecutor{execErrOn: 1, execErr: backend}, Options{}, zap.NewNop())

	_, err := svc.Run(context.Background(), makeAsk(t, answer.Params{}), "")
	if !errors.Is(err, backend) {
		t.Fatalf("Run() error = %v, want %v", err, backend)
	}
}

func TestRun_BroadenErrorPropagates(t *testing.T) {
	backend := errors.New("index offline")
	reasoner := &scriptedReasoner{
		decisions: []domagent.Decision{domagent.NewDecision(domagent.ActionGenerate, "", "信息不足", 0.5)},
	}
	svc := New(reasoner, &scriptedExecutor{broadErr: backend}, Options{Reretrieval: true}, zap.NewNop())

	_, err := svc.Run(context.Background(), makeAsk(t, answer.Params{}), "")
	if !errors.Is(err, backend) {
		t.Fatalf("Run() error = %v, want %v", err, backend)
	}
}

func TestReplanPrompt_KeepsLastThreeSteps(t *testing.T) {
	steps := []domagent.Step{
		domagent.NewStep(domagent.ActionRetrieve, "思路一", "q", "obs"),
		domagent.NewStep(domagent.ActionRetrieve, "思路二", "q", "obs"),
		domagent.NewStep(domagent.ActionGenerate, "思路三", "", "obs"),
		domagent.NewStep(domagent.ActionGenerate, strings.Repeat("长", replanKeepRunes+50), "", "obs"),
	}

	got := replanPrompt(steps, "分数不足", "什么是向量检索？")

	if strings.Contains(got, "思路一") {
		t.Error("replan prompt carries more than three steps")
	}
	for _, want := range []string{"迭代 2: 思路二", "迭代 3: 思路三", "失败原因：分数不足", "问题：什么是向量检索？"} {
		if !strings.Contains(got, want) {
			t.Errorf("replan prompt is missing %q", want)
		}
	}
	if strings.Contains(got, strings.Repeat("长", replanKeepRunes+1)) {
		t.Error("long thought was not truncated")
	}
	if !strings.Contains(got, "迭代 4: "+strings.Repeat("长", replanKeepRunes)) {
		t.Error("truncated thought is missing")
	}
}

func TestMergeDocs(t *testing.T) {
	have := []retrieval.Result{doc("1", "一"), doc("2", "二")}
	more := []retrieval.Result{doc("2", "二"), doc("3", "三")}

	got := mergeDocs(have, more)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"1", "2", "3"} {
		if got[i].Chunk().ID() != want {
			t.Errorf("got[%d].ID() = %q, want %q", i, got[i].Chunk().ID(), want)
		}
	}
}
