// Package chat drives one user message through the turn pipeline:
// admission, context assembly, generation, moderation, persistence and
// memory extraction.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/companions"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/memory"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/observability"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/policy"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/provider"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/ratelimit"
	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/reliability"
)

// Stage names, observed once per stage per turn.
const (
	StageAdmitted         = "admitted"
	StageContextAssembled = "context_assembled"
	StageGenerated        = "generated"
	StageModerated        = "moderated"
	StagePersisted        = "persisted"
)

// RejectReason classifies a turn that ended without a model reply.
type RejectReason string

const (
	RejectRateLimited    RejectReason = "rate_limited"
	RejectContentBlocked RejectReason = "content_blocked"
)

// StockRefusal is persisted and returned in place of a reply when
// moderation blocks the turn. The conversation record stays coherent.
const StockRefusal = "I'd rather not go there. Can we talk about something else?"

var ErrCompanionNotFound = errors.New("companion not found")

// Request is one inbound user message.
type Request struct {
	CompanionID string
	UserID      string
	Content     string
}

// Result is the terminal outcome of a turn.
type Result struct {
	Reply        string
	UserTurnID   int64
	ReplyTurnID  int64
	Rejected     bool
	RejectReason RejectReason
	RetryAfter   time.Duration
	Recalled     int
	// Degraded marks a reply produced without semantic recall after an
	// embedding or index failure.
	Degraded bool
	// PersistDeferred marks a reply whose turns could not be written
	// synchronously and are queued for background retry.
	PersistDeferred bool
}

type persistJob struct {
	turn    memory.Turn
	attempt int
}

// Orchestrator owns the turn state machine. One instance serves all
// scopes; per-scope state lives in the stores.
type Orchestrator struct {
	store      memory.Store
	catalog    companions.Store
	limiter    *ratelimit.Limiter
	generator  provider.Generator
	moderator  provider.Moderator
	embedder   provider.Embedder
	extractor  *memory.Extractor
	metrics    *observability.Metrics
	recentK    int
	recallK    int
	charBudget int
	timeout    time.Duration

	retryq chan persistJob
}

// Options tune the pipeline; zero values fall back to defaults.
type Options struct {
	RecentTurnLimit   int
	RecallK           int
	ContextCharBudget int
	TurnTimeout       time.Duration
}

func NewOrchestrator(
	store memory.Store,
	catalog companions.Store,
	limiter *ratelimit.Limiter,
	gen provider.Generator,
	mod provider.Moderator,
	emb provider.Embedder,
	extractor *memory.Extractor,
	metrics *observability.Metrics,
	opts Options,
) *Orchestrator {
	if opts.RecentTurnLimit <= 0 {
		opts.RecentTurnLimit = 12
	}
	if opts.RecallK <= 0 {
		opts.RecallK = 5
	}
	if opts.ContextCharBudget <= 0 {
		opts.ContextCharBudget = 2400
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 30 * time.Second
	}
	return &Orchestrator{
		store:      store,
		catalog:    catalog,
		limiter:    limiter,
		generator:  gen,
		moderator:  mod,
		embedder:   emb,
		extractor:  extractor,
		metrics:    metrics,
		recentK:    opts.RecentTurnLimit,
		recallK:    opts.RecallK,
		charBudget: opts.ContextCharBudget,
		timeout:    opts.TurnTimeout,
		retryq:     make(chan persistJob, 128),
	}
}

// Start launches the background persistence-retry worker. It exits when
// ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	go o.retryLoop(ctx)
}

// HandleMessage runs the full pipeline for one user message. Rejections
// (rate limit, blocked content) come back as a Result, not an error;
// errors mean the turn produced nothing and persisted nothing beyond
// what the Result reports.
func (o *Orchestrator) HandleMessage(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	decision := o.limiter.Admit(req.UserID)
	if !decision.Allowed {
		o.metrics.RateLimitDenials.Inc()
		o.metrics.TurnsTotal.WithLabelValues(string(RejectRateLimited)).Inc()
		return Result{
			Rejected:     true,
			RejectReason: RejectRateLimited,
			RetryAfter:   decision.RetryAfter,
		}, nil
	}
	o.metrics.ObserveStage(StageAdmitted, time.Since(start))

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	comp, err := o.catalog.GetCompanion(ctx, req.CompanionID)
	if err != nil {
		if errors.Is(err, companions.ErrNotFound) {
			return Result{}, ErrCompanionNotFound
		}
		return Result{}, fmt.Errorf("resolve companion: %w", err)
	}

	scope := memory.Scope{CompanionID: req.CompanionID, UserID: req.UserID}

	stageStart := time.Now()
	convo, recalled, degraded, err := o.assembleContext(ctx, scope, req.Content)
	if err != nil {
		return Result{}, err
	}
	o.metrics.ObserveStage(StageContextAssembled, time.Since(stageStart))

	if o.moderator != nil {
		verdict, err := o.moderator.Classify(ctx, req.Content)
		if err != nil {
			o.countProviderError(err)
			return Result{}, fmt.Errorf("moderate input: %w", err)
		}
		if !verdict.Allowed {
			return o.finishBlocked(ctx, scope, req, recalled, degraded)
		}
	}

	stageStart = time.Now()
	systemPrompt := comp.Persona().SystemPrompt(convo.memories)
	reply, err := o.generateWithRetry(ctx, systemPrompt, convo.recent, req.Content)
	if err != nil {
		o.countProviderError(err)
		return Result{}, err
	}
	o.metrics.ObserveStage(StageGenerated, time.Since(stageStart))

	if o.moderator != nil {
		stageStart = time.Now()
		verdict, err := o.moderator.Classify(ctx, reply)
		if err != nil {
			o.countProviderError(err)
			return Result{}, fmt.Errorf("moderate reply: %w", err)
		}
		o.metrics.ObserveStage(StageModerated, time.Since(stageStart))
		if !verdict.Allowed {
			return o.finishBlocked(ctx, scope, req, recalled, degraded)
		}
	}

	res, err := o.persistExchange(ctx, scope, req.Content, reply)
	if err != nil {
		return Result{}, err
	}
	res.Recalled = recalled
	res.Degraded = degraded

	o.maybeExtract(scope)
	o.metrics.TurnsTotal.WithLabelValues("done").Inc()
	return res, nil
}

type assembledContext struct {
	recent   []provider.TurnMessage
	memories []string
}

// assembleContext gathers recent turns and recalled memories. Recall
// failures degrade to an empty memory section instead of failing the
// turn; index inconsistencies are counted and degraded the same way.
func (o *Orchestrator) assembleContext(ctx context.Context, scope memory.Scope, query string) (assembledContext, int, bool, error) {
	var out assembledContext

	recent, err := o.store.RecentTurns(ctx, scope, o.recentK)
	if err != nil {
		return out, 0, false, fmt.Errorf("recent turns: %w", err)
	}
	for _, t := range recent {
		out.recent = append(out.recent, provider.TurnMessage{Role: string(t.Role), Content: t.Content})
	}

	embedding, err := o.embedder.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, provider.ErrTimeout) {
			return out, 0, false, err
		}
		log.Printf("chat: embed query failed for %s, recall skipped: %v", scope, err)
		o.countProviderError(err)
		return out, 0, true, nil
	}

	entries, err := o.store.SemanticRecall(ctx, scope, embedding, o.recallK)
	if err != nil {
		if errors.Is(err, memory.ErrIndexInconsistency) {
			o.metrics.IndexInconsistent.Inc()
			log.Printf("chat: index inconsistency for %s, recall skipped", scope)
			return out, 0, true, nil
		}
		return out, 0, false, fmt.Errorf("semantic recall: %w", err)
	}

	// Entries arrive ranked best-first; keep the head that fits the
	// character budget so the weakest matches are dropped first.
	used := 0
	for _, e := range entries {
		if used+len(e.Content) > o.charBudget {
			break
		}
		used += len(e.Content)
		out.memories = append(out.memories, e.Content)
	}
	return out, len(out.memories), false, nil
}

// generateWithRetry calls the generator, retrying exactly once on a
// transient provider error. Timeouts are terminal.
func (o *Orchestrator) generateWithRetry(ctx context.Context, system string, turns []provider.TurnMessage, msg string) (string, error) {
	reply, err := o.generator.Generate(ctx, system, turns, msg)
	if err == nil {
		return reply, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "", provider.ErrTimeout
	}
	if !provider.IsRetryable(err) {
		return "", err
	}

	o.countProviderError(err)
	backoff := reliability.ExponentialBackoff(1, 200*time.Millisecond, 2*time.Second)
	select {
	case <-ctx.Done():
		return "", provider.ErrTimeout
	case <-time.After(backoff):
	}
	return o.generator.Generate(ctx, system, turns, msg)
}

// finishBlocked persists the user turn plus the stock refusal and
// reports a content_blocked rejection.
func (o *Orchestrator) finishBlocked(ctx context.Context, scope memory.Scope, req Request, recalled int, degraded bool) (Result, error) {
	res, err := o.persistExchange(ctx, scope, req.Content, StockRefusal)
	if err != nil {
		return Result{}, err
	}
	res.Reply = StockRefusal
	res.Rejected = true
	res.RejectReason = RejectContentBlocked
	res.Recalled = recalled
	res.Degraded = degraded
	o.metrics.TurnsTotal.WithLabelValues(string(RejectContentBlocked)).Inc()
	return res, nil
}

// persistExchange writes the user turn and the reply turn. A write
// failure after generation must not lose the reply: the failed turn is
// queued for background retry and the caller still gets the reply.
func (o *Orchestrator) persistExchange(ctx context.Context, scope memory.Scope, userContent, reply string) (Result, error) {
	stageStart := time.Now()
	res := Result{Reply: reply}

	redacted, changed := policy.RedactPII(userContent)
	userTurn := memory.Turn{
		CompanionID: scope.CompanionID,
		UserID:      scope.UserID,
		Role:        memory.RoleUser,
		Content:     redacted,
		PIIRedacted: changed,
	}
	replyTurn := memory.Turn{
		CompanionID: scope.CompanionID,
		UserID:      scope.UserID,
		Role:        memory.RoleCompanion,
		Content:     reply,
	}

	id, err := o.store.AppendTurn(ctx, userTurn)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("persist user turn: %w", err)
		}
		o.enqueueRetry(userTurn)
		o.enqueueRetry(replyTurn)
		res.PersistDeferred = true
		return res, nil
	}
	res.UserTurnID = id

	id, err = o.store.AppendTurn(ctx, replyTurn)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("persist reply turn: %w", err)
		}
		o.enqueueRetry(replyTurn)
		res.PersistDeferred = true
		return res, nil
	}
	res.ReplyTurnID = id

	o.metrics.ObserveStage(StagePersisted, time.Since(stageStart))
	return res, nil
}

// maybeExtract runs memory extraction after a persisted exchange. Best
// effort: failures are logged, never surfaced to the user, and the turn
// context's deadline does not apply.
func (o *Orchestrator) maybeExtract(scope memory.Scope) {
	if o.extractor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	n, err := o.extractor.MaybeExtract(ctx, scope)
	if err != nil {
		log.Printf("chat: extraction failed for %s: %v", scope, err)
		return
	}
	if n > 0 {
		o.metrics.EntriesExtracted.Add(float64(n))
	}
}

const maxPersistAttempts = 5

func (o *Orchestrator) enqueueRetry(turn memory.Turn) {
	select {
	case o.retryq <- persistJob{turn: turn, attempt: 1}:
	default:
		log.Printf("chat: persist retry queue full, dropping %s turn for %s/%s",
			turn.Role, turn.CompanionID, turn.UserID)
	}
}

func (o *Orchestrator) retryLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-o.retryq:
			backoff := reliability.ExponentialBackoff(job.attempt, 500*time.Millisecond, 30*time.Second)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			o.metrics.PersistRetries.Inc()
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, err := o.store.AppendTurn(writeCtx, job.turn)
			cancel()
			if err == nil {
				continue
			}
			if job.attempt >= maxPersistAttempts {
				log.Printf("chat: giving up persisting %s turn for %s/%s after %d attempts: %v",
					job.turn.Role, job.turn.CompanionID, job.turn.UserID, job.attempt, err)
				continue
			}
			job.attempt++
			select {
			case o.retryq <- job:
			default:
				log.Printf("chat: persist retry queue full, dropping turn after attempt %d", job.attempt)
			}
		}
	}
}

func (o *Orchestrator) countProviderError(err error) {
	var pe *provider.Error
	if errors.As(err, &pe) {
		o.metrics.ProviderErrors.WithLabelValues(pe.Provider, strconv.Itoa(pe.StatusCode)).Inc()
		return
	}
	if errors.Is(err, provider.ErrTimeout) {
		o.metrics.ProviderErrors.WithLabelValues("unknown", "timeout").Inc()
	}
}
