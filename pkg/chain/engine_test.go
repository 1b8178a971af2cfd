package chain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mindloom/mindloom/pkg/eventbus"
	"github.com/mindloom/mindloom/pkg/memory"
	"github.com/mindloom/mindloom/pkg/provider"
	"github.com/mindloom/mindloom/pkg/provider/extractive"
)

type failingProvider struct{}

func (failingProvider) Name() string { return "flaky" }

func (failingProvider) Complete(ctx context.Context, req provider.Request) (provider.Response, error) {
	return provider.Response{}, errors.New("upstream unavailable")
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Service, *InMemoryChainStore) {
	t.Helper()
	mem := memory.NewService(memory.NewInMemoryStore())
	store := NewInMemoryChainStore()
	eng := NewEngine(mem, store, extractive.New(), opts...)
	return eng, mem, store
}

func seedMemories(t *testing.T, mem *memory.Service) {
	t.Helper()
	contents := []string{
		"The ingest service deploys through the blue-green pipeline. Run the schema migration job first, wait for the health gate, then shift traffic in ten percent increments while watching the error-rate panel on the ingest dashboard.",
		"Rollback procedure for a failed ingest deploy: shift traffic back to the previous color, mark the release as rejected in the deploy tracker, and leave the migrated schema in place because migrations are forward-compatible by policy.",
		"Deploy windows for the ingest service are weekday mornings only. Out-of-window deploys need an approval from the on-call lead and must be paired with an active incident channel for the duration of the rollout.",
	}
	for _, content := range contents {
		if _, _, err := mem.Store(context.Background(), memory.StoreInput{
			Content:    content,
			Tags:       []string{"deploy", "ingest", "service"},
			Importance: 0.8,
		}); err != nil {
			t.Fatalf("seed memory: %v", err)
		}
	}
}

func TestExecute_GroundedAnswerPassesFirstIteration(t *testing.T) {
	eng, mem, store := newTestEngine(t)
	seedMemories(t, mem)

	c, err := eng.Execute(context.Background(), "how do we deploy the ingest service", DefaultConfig())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if c.Phase != PhaseDone {
		t.Errorf("phase = %s, want done", c.Phase)
	}
	if c.FinalAnswer == "" {
		t.Error("no final answer")
	}
	if len(c.Support) == 0 {
		t.Error("no citations on a grounded answer")
	}
	if c.ProvenanceCoverage < DefaultMinProvenance {
		t.Errorf("coverage = %.3f, want >= %.2f", c.ProvenanceCoverage, DefaultMinProvenance)
	}
	if c.ReasonSteps() != 1 {
		t.Errorf("reason steps = %d, want 1 (no correction needed)", c.ReasonSteps())
	}
	if c.AuditHash == "" {
		t.Error("no audit hash")
	}
	if c.Confidence <= 0 {
		t.Errorf("confidence = %f", c.Confidence)
	}

	wantOrder := []NodeKind{NodePlan, NodeRetrieve, NodeCondense, NodeReason, NodeVerify, NodeAuditPack, NodeReflect}
	if len(c.Steps) != len(wantOrder) {
		t.Fatalf("steps = %d, want %d", len(c.Steps), len(wantOrder))
	}
	for i, kind := range wantOrder {
		if c.Steps[i].NodeKind != kind {
			t.Errorf("step %d = %s, want %s", i, c.Steps[i].NodeKind, kind)
		}
	}

	// Persisted once, terminal.
	got, err := store.GetChain(context.Background(), c.TraceID)
	if err != nil {
		t.Fatalf("GetChain: %v", err)
	}
	if got.AuditHash != c.AuditHash {
		t.Error("persisted chain differs from returned chain")
	}

	// Reflect stored the summary back into memory.
	stats, err := mem.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("memory records = %d, want 3 seeds + 1 reflection", stats.Total)
	}
}

func TestExecute_EmptyStoreSelfCorrects(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	c, err := eng.Execute(context.Background(), "What is X?", DefaultConfig())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if c.FinalAnswer == "" {
		t.Error("an uncited answer should still be produced")
	}
	if c.ProvenanceCoverage != 0 {
		t.Errorf("coverage = %f, want 0 with no citations", c.ProvenanceCoverage)
	}
	if got := c.ReasonSteps(); got != DefaultMaxIterations {
		t.Errorf("reason steps = %d, want %d", got, DefaultMaxIterations)
	}
	if c.Iterations != DefaultMaxIterations {
		t.Errorf("iterations = %d, want %d", c.Iterations, DefaultMaxIterations)
	}

	// Retrieve confidence carries the empty-result penalty.
	for _, s := range c.Steps {
		if s.NodeKind == NodeRetrieve && s.Confidence != 0.50 {
			t.Errorf("retrieve confidence = %f, want 0.50", s.Confidence)
		}
	}

	// Every reason after the first is preceded by a critic step.
	critics := 0
	var prev NodeKind
	reasons := 0
	for _, s := range c.Steps {
		if s.NodeKind == NodeCritic {
			critics++
		}
		if s.NodeKind == NodeReason {
			reasons++
			if reasons > 1 && prev != NodeCritic {
				t.Errorf("reason %d preceded by %s, want critic", reasons, prev)
			}
		}
		prev = s.NodeKind
	}
	if critics != DefaultMaxIterations-1 {
		t.Errorf("critic steps = %d, want %d", critics, DefaultMaxIterations-1)
	}
	if len(c.HealingEvents) < DefaultMaxIterations-1 {
		t.Errorf("healing events = %d, want >= %d", len(c.HealingEvents), DefaultMaxIterations-1)
	}

	// Audit pack still runs after exhausted corrections.
	if c.AuditHash == "" {
		t.Error("no audit hash on an exhausted chain")
	}
}

func TestExecute_BudgetConservation(t *testing.T) {
	eng, mem, _ := newTestEngine(t)
	seedMemories(t, mem)

	c, err := eng.Execute(context.Background(), "how do we deploy the ingest service", DefaultConfig())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	sum := 0
	maxStep := 0
	for _, s := range c.Steps {
		sum += s.TokensUsed
		if s.TokensUsed > maxStep {
			maxStep = s.TokensUsed
		}
	}
	if c.TokensUsed != sum {
		t.Errorf("tokensUsed = %d, sum of steps = %d", c.TokensUsed, sum)
	}
	if c.TokensUsed > c.TokenBudget+maxStep {
		t.Errorf("tokensUsed %d exceeds budget %d by more than one step (%d)", c.TokensUsed, c.TokenBudget, maxStep)
	}
}

func TestExecute_ProviderFailureFallsBack(t *testing.T) {
	mem := memory.NewService(memory.NewInMemoryStore())
	store := NewInMemoryChainStore()
	eng := NewEngine(mem, store, failingProvider{})
	seedMemories(t, mem)

	c, err := eng.Execute(context.Background(), "how do we deploy the ingest service", DefaultConfig())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var sawFailed bool
	for _, s := range c.Steps {
		if s.NodeKind == NodeReason && s.Status == StepFailed {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Error("provider failure should record a failed reason step")
	}
	if c.FinalAnswer == "" {
		t.Error("fallback should still produce an answer")
	}

	var healed bool
	for _, h := range c.HealingEvents {
		if strings.Contains(h.Event, "flaky") {
			healed = true
		}
	}
	if !healed {
		t.Errorf("healing events missing provider failure: %+v", c.HealingEvents)
	}
}

func TestExecute_EmptyQuery(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	if _, err := eng.Execute(context.Background(), "   ", DefaultConfig()); err != ErrEmptyQuery {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestExecute_CancelledContext(t *testing.T) {
	eng, _, store := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := eng.Execute(ctx, "what is x", DefaultConfig())
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if c == nil {
		t.Fatal("cancelled execution must still return a chain")
	}
	if c.Confidence != 0 || c.ProvenanceCoverage != 0 {
		t.Errorf("partial chain should be zeroed, got conf=%f coverage=%f", c.Confidence, c.ProvenanceCoverage)
	}
	if len(c.HealingEvents) == 0 {
		t.Error("partial chain missing the abort healing event")
	}

	// Partial chains are persisted too.
	if _, err := store.GetChain(context.Background(), c.TraceID); err != nil {
		t.Errorf("partial chain not persisted: %v", err)
	}
}

func TestExecute_EntropySampling(t *testing.T) {
	eng, mem, _ := newTestEngine(t)
	seedMemories(t, mem)

	cfg := DefaultConfig()
	cfg.EntropySamples = 3
	c, err := eng.Execute(context.Background(), "how do we deploy the ingest service", cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if c.SemanticEntropy == nil {
		t.Fatal("entropy sampling enabled but no entropy recorded")
	}
	if *c.SemanticEntropy != 0 {
		t.Errorf("deterministic provider entropy = %f, want 0", *c.SemanticEntropy)
	}
}

func TestExecute_NoSamplingNoEntropy(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	c, err := eng.Execute(context.Background(), "what is x", DefaultConfig())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if c.SemanticEntropy != nil {
		t.Error("entropy must be absent when sampling is disabled, never fabricated")
	}
}

func TestExecute_PublishesEvents(t *testing.T) {
	bus := eventbus.NewMemoryBus()
	sub, err := bus.Subscribe(eventbus.SubjectAllChains, 64)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	eng, mem, _ := newTestEngine(t, WithPublisher(bus))
	seedMemories(t, mem)

	c, err := eng.Execute(context.Background(), "how do we deploy the ingest service", DefaultConfig())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// started + one per step + completed.
	want := len(c.Steps) + 2
	got := 0
	for {
		select {
		case <-sub.C():
			got++
			if got == want {
				return
			}
		default:
			t.Fatalf("events = %d, want %d", got, want)
		}
	}
}

func TestExecute_SelfCorrectionDisabled(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	cfg := DefaultConfig()
	cfg.EnableSelfCorrection = false
	c, err := eng.Execute(context.Background(), "what is x", cfg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := c.ReasonSteps(); got != 1 {
		t.Errorf("reason steps = %d, want 1 with correction disabled", got)
	}
	for _, s := range c.Steps {
		if s.NodeKind == NodeCritic {
			t.Error("critic step present with correction disabled")
		}
	}
}
