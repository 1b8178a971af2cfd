package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mindloom/mindloom/pkg/eventbus"
	"github.com/mindloom/mindloom/pkg/memory"
	"github.com/mindloom/mindloom/pkg/provider"
	"github.com/mindloom/mindloom/pkg/provider/extractive"
	"github.com/mindloom/mindloom/pkg/verify"
)

// engineLogger is the minimal logger interface used by the engine.
type engineLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

// EventPublisher publishes chain events. Satisfied by eventbus.MemoryBus.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte) error
}

// Option customizes Engine construction.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(l engineLogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithPublisher attaches an event publisher for chain lifecycle and step
// events.
func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithFallback overrides the degraded-path provider used when the primary
// provider fails.
func WithFallback(p provider.Provider) Option {
	return func(e *Engine) {
		if p != nil {
			e.fallback = p
		}
	}
}

// WithTokenCounter substitutes the token estimator used for step accounting.
func WithTokenCounter(c memory.TokenCounter) Option {
	return func(e *Engine) {
		if c != nil {
			e.counter = c
		}
	}
}

// WithAgentID sets the agent identity recorded on every step.
func WithAgentID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.agentID = id
		}
	}
}

// Engine executes reasoning chains. One engine serves many concurrent
// chains; all per-chain state lives in the execution, never on the engine.
type Engine struct {
	memory    *memory.Service
	store     ChainStore
	provider  provider.Provider
	fallback  provider.Provider
	counter   memory.TokenCounter
	publisher EventPublisher
	logger    engineLogger
	metrics   MetricsRecorder
	agentID   string
}

// NewEngine creates an engine over a memory service, chain store, and
// completion provider. The extractive synthesizer is the default degraded
// path.
func NewEngine(mem *memory.Service, store ChainStore, prov provider.Provider, opts ...Option) *Engine {
	e := &Engine{
		memory:   mem,
		store:    store,
		provider: prov,
		fallback: extractive.New(),
		counter:  memory.CharCounter{},
		logger:   nopLogger{},
		metrics:  nopMetricsRecorder{},
		agentID:  "mindloom",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// execution is the per-chain working state.
type execution struct {
	chain     *ReasoningChain
	cfg       Config
	led       *ledger
	retrieved []*memory.RetrievalResult
	condensed []*memory.RetrievalResult
	context   string
}

// Execute runs one chain for the query. The returned chain is always
// non-nil once the query validates: fatal faults and cancellation produce a
// persisted partial chain with zeroed confidence and an error healing event,
// and the fault is also returned for callers that want it. Result quality
// must be judged from confidence, provenance coverage, and healing events,
// not from the error.
func (e *Engine) Execute(ctx context.Context, userQuery string, cfg Config) (*ReasoningChain, error) {
	if strings.TrimSpace(userQuery) == "" {
		return nil, ErrEmptyQuery
	}
	cfg = cfg.normalize()

	ctx, span := chainTracer().Start(ctx, spanChainExecute)
	defer span.End()

	ex := &execution{
		chain: NewChain(userQuery, cfg.TokenBudget),
		cfg:   cfg,
		led:   newLedger(cfg.TokenBudget),
	}
	start := time.Now()

	e.publishLifecycle(ctx, ex.chain, eventbus.EventChainStarted)
	e.logger.Info("chain started", "trace_id", ex.chain.TraceID, "token_budget", cfg.TokenBudget)

	err := e.run(ctx, ex)
	if err != nil {
		ex.chain.Confidence = 0
		ex.chain.ProvenanceCoverage = 0
		ex.chain.addHealingEvent(fmt.Sprintf("chain aborted: %v", err), "partial chain persisted")
		e.logger.Error("chain aborted", "trace_id", ex.chain.TraceID, "error", err)
	}
	ex.chain.Phase = PhaseDone
	ex.chain.TokensUsed = ex.led.used
	ex.chain.DurationMs = time.Since(start).Milliseconds()

	// Persist even when ctx was cancelled; the partial chain is the record
	// of what happened.
	persistCtx := context.WithoutCancel(ctx)
	if perr := e.store.PutChain(persistCtx, ex.chain); perr != nil {
		e.logger.Error("chain persist failed", "trace_id", ex.chain.TraceID, "error", perr)
		if err == nil {
			err = perr
		}
	}

	outcome := "completed"
	if err != nil {
		outcome = "aborted"
	}
	e.metrics.RecordChainExecution(outcome)
	e.metrics.RecordChainDuration(outcome, time.Since(start))
	e.publishLifecycle(persistCtx, ex.chain, eventbus.EventChainCompleted)
	e.logger.Info("chain finished",
		"trace_id", ex.chain.TraceID,
		"outcome", outcome,
		"confidence", ex.chain.Confidence,
		"provenance_coverage", ex.chain.ProvenanceCoverage,
		"tokens_used", ex.chain.TokensUsed,
		"iterations", ex.chain.Iterations,
	)
	return ex.chain, err
}

// run executes the node sequence. Any returned error is chain-fatal; node
// local conditions (empty retrieval, failed verification, provider failure)
// are absorbed into confidence, healing events, and the critic loop.
func (e *Engine) run(ctx context.Context, ex *execution) error {
	if err := e.plan(ctx, ex); err != nil {
		return err
	}
	if err := e.retrieve(ctx, ex); err != nil {
		return err
	}
	if err := e.condense(ctx, ex); err != nil {
		return err
	}

	if err := e.reason(ctx, ex); err != nil {
		return err
	}
	for {
		passed, err := e.verifyNode(ctx, ex)
		if err != nil {
			return err
		}
		if passed || !ex.cfg.EnableSelfCorrection || ex.chain.Iterations >= ex.cfg.MaxIterations {
			break
		}
		if err := e.critic(ctx, ex); err != nil {
			return err
		}
		if err := e.reason(ctx, ex); err != nil {
			return err
		}
	}

	if err := e.auditPack(ctx, ex); err != nil {
		return err
	}
	return e.reflect(ctx, ex)
}

// nodeResult is what a node hands back to the step recorder.
type nodeResult struct {
	input      string
	output     string
	confidence float64
}

// executeNode wraps one node: cooperative cancellation check, span, timing,
// budget-pressure degradation, step recording, accounting, and events.
func (e *Engine) executeNode(ctx context.Context, ex *execution, kind NodeKind, fn func(ctx context.Context) (nodeResult, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := chainTracer().Start(ctx, spanNodeName(kind))
	defer span.End()

	degraded := ex.led.exhausted()
	start := time.Now()
	res, err := fn(ctx)
	if err != nil {
		return err
	}
	if degraded {
		res.confidence *= degradedConfidenceFactor
	}
	e.recordStep(ctx, ex, ReasoningStep{
		NodeKind:   kind,
		Input:      res.input,
		Output:     res.output,
		Confidence: res.confidence,
		Status:     StepCompleted,
		AgentID:    e.agentID,
		Timestamp:  start.UTC(),
		DurationMs: time.Since(start).Milliseconds(),
	})
	return nil
}

// recordStep appends a step, charges its token estimate, and emits
// metrics, logs, and a bus event.
func (e *Engine) recordStep(ctx context.Context, ex *execution, step ReasoningStep) {
	step.TokensUsed = e.counter.Count(step.Output)
	ex.led.charge(step.TokensUsed)
	ex.chain.Steps = append(ex.chain.Steps, step)

	e.metrics.RecordNodeExecution(string(step.NodeKind), string(step.Status))
	e.metrics.RecordNodeDuration(string(step.NodeKind), time.Duration(step.DurationMs)*time.Millisecond)
	e.logger.Debug("chain step",
		"trace_id", ex.chain.TraceID,
		"node", step.NodeKind,
		"status", step.Status,
		"confidence", step.Confidence,
		"tokens", step.TokensUsed,
		"remaining_budget", ex.led.remaining(),
	)

	if e.publisher == nil {
		return
	}
	ev := eventbus.NewChainEvent(eventbus.EventChainStep, ex.chain.TraceID)
	ev.Node = string(step.NodeKind)
	ev.Status = string(step.Status)
	ev.Confidence = step.Confidence
	ev.DurationMs = step.DurationMs
	ev.TokensUsed = step.TokensUsed
	ev.Iteration = ex.chain.Iterations
	e.publishEvent(ctx, ev)
}

func (e *Engine) publishLifecycle(ctx context.Context, c *ReasoningChain, eventType string) {
	if e.publisher == nil {
		return
	}
	ev := eventbus.NewChainEvent(eventType, c.TraceID)
	ev.Confidence = c.Confidence
	ev.TokensUsed = c.TokensUsed
	ev.Iteration = c.Iterations
	e.publishEvent(ctx, ev)
}

func (e *Engine) publishEvent(ctx context.Context, ev eventbus.ChainEvent) {
	payload, err := ev.Marshal()
	if err != nil {
		e.logger.Warn("event marshal failed", "trace_id", ev.TraceID, "error", err)
		return
	}
	if err := e.publisher.Publish(ctx, ev.Subject(), payload); err != nil {
		e.logger.Warn("event publish failed", "trace_id", ev.TraceID, "error", err)
	}
}

// plan decomposes the query into a fixed subtask template. Decomposition is
// deterministic and cannot fail, hence the high fixed confidence.
func (e *Engine) plan(ctx context.Context, ex *execution) error {
	return e.executeNode(ctx, ex, NodePlan, func(ctx context.Context) (nodeResult, error) {
		subtasks := []string{
			"1. understand the question",
			"2. retrieve relevant memories",
			"3. synthesize a grounded answer",
		}
		return nodeResult{
			input:      ex.chain.UserQuery,
			output:     strings.Join(subtasks, "\n"),
			confidence: planConfidence,
		}, nil
	})
}

// retrieve queries the memory store with tags tokenized from the query. An
// empty result is not an error, it is a confidence penalty.
func (e *Engine) retrieve(ctx context.Context, ex *execution) error {
	return e.executeNode(ctx, ex, NodeRetrieve, func(ctx context.Context) (nodeResult, error) {
		tags := memory.Tokenize(ex.chain.UserQuery)
		results, err := e.memory.Retrieve(ctx, memory.RetrievalQuery{
			Text:  ex.chain.UserQuery,
			Limit: retrieveLimit,
		})
		if err != nil {
			return nodeResult{}, fmt.Errorf("chain: retrieve memories: %w", err)
		}
		ex.retrieved = results

		confidence := retrieveMissConfidence
		if len(results) > 0 {
			confidence = retrieveHitConfidence
		}
		return nodeResult{
			input:      strings.Join(tags, " "),
			output:     fmt.Sprintf("retrieved %d memories", len(results)),
			confidence: confidence,
		}, nil
	})
}

// condense greedily packs retrieved memories into a context block, stopping
// before the accumulated tokens exceed 60% of the remaining budget.
func (e *Engine) condense(ctx context.Context, ex *execution) error {
	return e.executeNode(ctx, ex, NodeCondense, func(ctx context.Context) (nodeResult, error) {
		remaining := ex.led.remaining()
		if remaining < 0 {
			remaining = 0
		}
		ceiling := int(condenseBudgetRatio * float64(remaining))

		var lines []string
		total := 0
		for _, r := range ex.retrieved {
			line := fmt.Sprintf("[score=%.2f] %s", r.Score, collapseWhitespace(r.Record.Content))
			tokens := e.counter.Count(line)
			if total+tokens > ceiling {
				break
			}
			lines = append(lines, line)
			total += tokens
			ex.condensed = append(ex.condensed, r)
		}
		ex.context = strings.Join(lines, "\n")

		confidence := 1.0
		if len(ex.retrieved) > 0 {
			confidence = float64(len(ex.condensed)) / float64(len(ex.retrieved))
		}
		return nodeResult{
			input:      fmt.Sprintf("ceiling %d tokens, %d candidates", ceiling, len(ex.retrieved)),
			output:     ex.context,
			confidence: confidence,
		}, nil
	})
}

// reason produces the answer and support list through the completion
// provider. Provider failure is node-local: it records a failed step and a
// healing event, then retries through the fallback synthesizer so the chain
// continues degraded.
func (e *Engine) reason(ctx context.Context, ex *execution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := chainTracer().Start(ctx, spanNodeName(NodeReason))
	defer span.End()

	req := provider.Request{
		Prompt:  ex.chain.UserQuery,
		Context: ex.context,
		Samples: ex.cfg.EntropySamples,
	}
	degraded := ex.led.exhausted()

	start := time.Now()
	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		e.recordStep(ctx, ex, ReasoningStep{
			NodeKind:   NodeReason,
			Input:      req.Prompt,
			Output:     err.Error(),
			Status:     StepFailed,
			AgentID:    e.agentID,
			Timestamp:  start.UTC(),
			DurationMs: time.Since(start).Milliseconds(),
		})
		ex.chain.addHealingEvent(
			fmt.Sprintf("provider %s failed: %v", e.provider.Name(), err),
			fmt.Sprintf("fell back to %s synthesis", e.fallback.Name()),
		)
		e.logger.Warn("provider failed, using fallback",
			"trace_id", ex.chain.TraceID, "provider", e.provider.Name(), "error", err)

		start = time.Now()
		resp, err = e.fallback.Complete(ctx, req)
		if err != nil {
			return fmt.Errorf("chain: fallback provider: %w", err)
		}
	}

	citations := e.buildCitations(ex)
	confidence := reasonConfidence(citations, ex.retrieved)
	if degraded {
		confidence *= degradedConfidenceFactor
	}

	if len(resp.Completions) > 1 {
		h := verify.SemanticEntropy(resp.Completions)
		ex.chain.SemanticEntropy = &h
	}

	ex.chain.FinalAnswer = resp.Text
	ex.chain.Support = citations
	ex.chain.Confidence = confidence
	ex.chain.Iterations++

	e.recordStep(ctx, ex, ReasoningStep{
		NodeKind:   NodeReason,
		Input:      req.Prompt,
		Output:     resp.Text,
		Confidence: confidence,
		Status:     StepCompleted,
		AgentID:    e.agentID,
		Timestamp:  start.UTC(),
		DurationMs: time.Since(start).Milliseconds(),
	})
	return nil
}

// buildCitations turns the top condensed memories into the support list,
// each quote truncated to the fixed preview length.
func (e *Engine) buildCitations(ex *execution) []verify.Citation {
	n := len(ex.condensed)
	if n > citationLimit {
		n = citationLimit
	}
	citations := make([]verify.Citation, 0, n)
	for _, r := range ex.condensed[:n] {
		quote := r.Record.Content
		if len(quote) > citationPreviewChars {
			quote = quote[:citationPreviewChars]
		}
		citations = append(citations, verify.Citation{
			ID:    r.Record.ID,
			Quote: quote,
			Score: r.Score,
		})
	}
	return citations
}

// reasonConfidence blends the mean retrieval score of cited memories with
// the citation-to-retrieval ratio.
func reasonConfidence(citations []verify.Citation, retrieved []*memory.RetrievalResult) float64 {
	if len(retrieved) == 0 {
		return 0
	}
	meanRS := 0.0
	if len(citations) > 0 {
		for _, c := range citations {
			meanRS += c.Score
		}
		meanRS /= float64(len(citations))
	}
	ratio := float64(len(citations)) / float64(len(retrieved))
	return reasonScoreWeight*meanRS + reasonCitationWeight*ratio
}

// verifyNode runs the verification framework over the current answer and
// reports whether the provenance gate passed.
func (e *Engine) verifyNode(ctx context.Context, ex *execution) (bool, error) {
	if err := ex.chain.transitionTo(PhaseVerifying); err != nil {
		return false, err
	}

	var passed bool
	err := e.executeNode(ctx, ex, NodeVerify, func(ctx context.Context) (nodeResult, error) {
		res := verify.Verify(verify.Candidate{
			Answer:          ex.chain.FinalAnswer,
			Citations:       ex.chain.Support,
			Confidence:      ex.chain.Confidence,
			SemanticEntropy: ex.chain.SemanticEntropy,
		})
		ex.chain.ProvenanceCoverage = res.ProvenanceCoverage
		ex.chain.Verification = &res
		passed = res.ProvenanceCoverage >= ex.cfg.MinProvenance

		return nodeResult{
			input: ex.chain.FinalAnswer,
			output: fmt.Sprintf("passed=%v coverage=%.3f level=%s calibration=%.3f",
				passed, res.ProvenanceCoverage, res.ConfidenceLevel, res.CalibrationScore),
			confidence: res.ProvenanceCoverage,
		}, nil
	})
	return passed, err
}

// critic records the verification failure as a healing event with a
// correction suggestion, then hands control back to reason.
func (e *Engine) critic(ctx context.Context, ex *execution) error {
	if err := ex.chain.transitionTo(PhaseCritiquing); err != nil {
		return err
	}
	e.metrics.RecordSelfCorrection()

	err := e.executeNode(ctx, ex, NodeCritic, func(ctx context.Context) (nodeResult, error) {
		failure := fmt.Sprintf("verification failed: coverage %.3f below %.2f on iteration %d",
			ex.chain.ProvenanceCoverage, ex.cfg.MinProvenance, ex.chain.Iterations)
		suggestion := "ground the answer in retrieved memory quotes"
		if len(ex.retrieved) == 0 {
			suggestion = "increase retrieval limit or store relevant memories first"
		}
		ex.chain.addHealingEvent(failure, suggestion)

		return nodeResult{
			input:      ex.chain.FinalAnswer,
			output:     suggestion,
			confidence: ex.chain.ProvenanceCoverage,
		}, nil
	})
	if err != nil {
		return err
	}
	return ex.chain.transitionTo(PhaseReasoning)
}

// auditPack seals the trace with a tamper-evident hash.
func (e *Engine) auditPack(ctx context.Context, ex *execution) error {
	return e.executeNode(ctx, ex, NodeAuditPack, func(ctx context.Context) (nodeResult, error) {
		hash := AuditHash(ex.chain.TraceID, ex.chain.Steps)
		ex.chain.AuditHash = hash
		return nodeResult{
			input:      ex.chain.TraceID,
			output:     hash,
			confidence: 1.0,
		}, nil
	})
}

// reflect writes a summary of the finished reasoning back into the memory
// store, so the pipeline's own outputs become future retrievable memories.
func (e *Engine) reflect(ctx context.Context, ex *execution) error {
	return e.executeNode(ctx, ex, NodeReflect, func(ctx context.Context) (nodeResult, error) {
		summary := fmt.Sprintf("Query: %s\nAnswer: %s\nConfidence: %.2f",
			ex.chain.UserQuery, ex.chain.FinalAnswer, ex.chain.Confidence)

		rec, created, err := e.memory.Store(ctx, memory.StoreInput{
			Content:    summary,
			Tags:       []string{"reasoning", "meta-memory"},
			Importance: clamp01(ex.chain.Confidence),
			Source:     "chain-reflect",
			SessionID:  ex.chain.TraceID,
		})
		if err != nil {
			return nodeResult{}, fmt.Errorf("chain: reflect store: %w", err)
		}

		return nodeResult{
			input:      summary,
			output:     fmt.Sprintf("stored %s (created=%v)", rec.ID, created),
			confidence: clamp01(ex.chain.Confidence),
		}, nil
	})
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
