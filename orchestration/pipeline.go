package orchestration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ultrai/orchestrator/ai"
	"github.com/ultrai/orchestrator/core"
	"github.com/ultrai/orchestrator/health"
	"github.com/ultrai/orchestrator/resilience"
	"github.com/ultrai/orchestrator/telemetry"
)

// ClientFactory resolves a model id to a fully wrapped client
type ClientFactory func(model string) (core.AIClient, error)

// RunOptions parameterize one pipeline run
type RunOptions struct {
	SelectedModels []string
	CorrelationID  string
	Stream         bool
	Options        map[string]interface{}
}

// Pipeline is the three-stage synthesis driver
type Pipeline struct {
	cfg       *core.Config
	logger    core.Logger
	telemetry core.Telemetry

	clients  ClientFactory
	bus      *EventBus
	limiter  *resilience.RateLimiter
	retries  *resilience.RetryHandler
	breakers *resilience.BreakerRegistry
	fallback *health.FallbackManager
	health   *health.Cache
	selector *Selector
	prompts  *PromptManager
	format   *Formatter
	cache    ResultCache
}

// Dependencies carries optional collaborators; nil fields get defaults
type Dependencies struct {
	Logger    core.Logger
	Telemetry core.Telemetry
	Clients   ClientFactory
	Bus       *EventBus
	Limiter   *resilience.RateLimiter
	Retries   *resilience.RetryHandler
	Breakers  *resilience.BreakerRegistry
	Fallback  *health.FallbackManager
	Health    *health.Cache
	Selector  *Selector
	Cache     ResultCache
}

// NewPipeline wires the driver. Every collaborator can be injected;
// defaults assemble the standard stack from the configuration.
func NewPipeline(cfg *core.Config, deps Dependencies) *Pipeline {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("orchestration")
	}
	tel := deps.Telemetry
	if tel == nil {
		tel = &core.NoOpTelemetry{}
	}

	p := &Pipeline{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		bus:       deps.Bus,
		limiter:   deps.Limiter,
		retries:   deps.Retries,
		breakers:  deps.Breakers,
		fallback:  deps.Fallback,
		health:    deps.Health,
		selector:  deps.Selector,
		clients:   deps.Clients,
		cache:     deps.Cache,
		prompts:   NewPromptManager(cfg.Pipeline.EnhancedSynthesisEnabled),
		format:    NewFormatter(cfg.Pipeline.EnhancedSynthesisEnabled),
	}

	if p.bus == nil {
		p.bus = NewEventBus(logger)
	}
	if p.breakers == nil {
		p.breakers = resilience.NewBreakerRegistry(logger)
	}
	if p.limiter == nil {
		p.limiter = resilience.NewRateLimiter(cfg.RateLimit, logger)
	}
	if p.retries == nil {
		p.retries = resilience.NewRetryHandler(cfg.RateLimit, resilience.RetryConfigFromCore(cfg.Retry), logger)
	}
	if p.fallback == nil {
		p.fallback = health.NewFallbackManager(logger)
	}
	if p.selector == nil {
		p.selector = NewSelector(cfg.Selector.MetricsPath, logger)
	}
	if p.clients == nil {
		p.clients = p.defaultClientFactory()
	}
	if p.cache == nil && cfg.Cache.Enabled {
		p.cache = newConfiguredCache(cfg.Cache, logger)
	}

	return p
}

// newConfiguredCache picks redis when a URL is configured, falling
// back to memory on connection setup errors.
func newConfiguredCache(cfg core.CacheConfig, logger core.Logger) ResultCache {
	if cfg.RedisURL != "" {
		if rc, err := NewRedisCache(cfg.RedisURL, logger); err == nil {
			return rc
		}
		logger.Warn("Redis cache unavailable, using memory cache", map[string]interface{}{
			"operation": "cache_init",
			"redis_url": cfg.RedisURL,
		})
	}
	return NewMemoryCache(0)
}

// defaultClientFactory builds the full per-model stack: adapter,
// shared breaker and retry, then telemetry instrumentation.
func (p *Pipeline) defaultClientFactory() ClientFactory {
	return func(model string) (core.AIClient, error) {
		adapter, err := ai.ClientForModel(model, ai.WithLogger(p.logger), ai.WithTelemetry(p.telemetry))
		if err != nil {
			return nil, err
		}
		provider := string(ai.ProviderFromModel(model))
		resilient := resilience.NewResilientClient(adapter, provider, p.breakers, resilience.RetryConfigFromCore(p.cfg.Retry), p.logger)
		return telemetry.NewInstrumentedClient(resilient, provider, p.telemetry, p.logger), nil
	}
}

// Bus exposes the event bus, mainly for transports and tests
func (p *Pipeline) Bus() *EventBus {
	return p.bus
}

// RunPipeline executes a full run. Exactly one of the three returns is
// meaningful: a result, a structured service-unavailable payload, or
// an internal error.
func (p *Pipeline) RunPipeline(ctx context.Context, query string, opts *RunOptions) (*PipelineResult, *ServiceUnavailable, error) {
	if opts == nil {
		opts = &RunOptions{}
	}
	ctx, cid := core.EnsureCorrelationID(ctx, opts.CorrelationID)

	started := time.Now()
	p.publish(cid, EventPipelineStarted, map[string]interface{}{
		"query_length": len(query),
	})

	models, unavailable := p.gate(ctx, opts.SelectedModels, cid)
	if unavailable != nil {
		p.publish(cid, EventPipelineError, map[string]interface{}{
			"error":   unavailable.Error,
			"message": unavailable.Message,
		})
		return nil, unavailable, nil
	}

	cacheKey := CacheKey(query, models, opts.Options)
	if p.cache != nil {
		if cached, ok := p.cache.Get(ctx, cacheKey); ok {
			hit := *cached
			hit.Cached = true
			hit.CorrelationID = cid
			p.logger.Info("Pipeline cache hit", core.FieldsWithCorrelation(ctx, map[string]interface{}{
				"operation": "pipeline_cache_hit",
			}))
			p.publish(cid, EventPipelineCompleted, map[string]interface{}{
				"cached": true,
			})
			return &hit, nil, nil
		}
	}

	result := &PipelineResult{
		CorrelationID: cid,
		Query:         query,
		Models:        models,
		StartedAt:     started,
	}

	// Stage 1: initial fan-out.
	result.Initial = p.runInitialStage(ctx, query, models, cid)
	successes := result.Initial.SuccessfulModels()

	if len(successes) < p.cfg.Pipeline.MinimumModelsRequired {
		if p.cfg.Pipeline.EnableSingleModelFallback && len(successes) >= 1 {
			result.Degraded = true
			p.logger.Warn("Continuing degraded with fewer models than required", core.FieldsWithCorrelation(ctx, map[string]interface{}{
				"operation":  "degraded_run",
				"successful": len(successes),
				"required":   p.cfg.Pipeline.MinimumModelsRequired,
			}))
		} else {
			su := p.insufficientAfterStage(models, successes)
			p.publish(cid, EventPipelineError, map[string]interface{}{
				"error":   su.Error,
				"message": su.Message,
			})
			result.Duration = time.Since(started)
			return nil, su, nil
		}
	}

	// Stage 2: peer review over the surviving models.
	result.PeerReview = p.runPeerReviewStage(ctx, query, result.Initial, cid, result.Degraded)

	// Stage 3: synthesis by a non-participant when possible.
	synthesis, stage := p.runSynthesisStage(ctx, query, result, cid, opts.Stream)
	result.Synthesis = synthesis
	result.SynthesisRun = stage

	result.Duration = time.Since(started)

	if p.cfg.Pipeline.SaveOutputsDir != "" {
		formatted := p.format.Format(result)
		if err := p.format.SaveOutputs(p.cfg.Pipeline.SaveOutputsDir, result, formatted); err != nil {
			p.logger.Warn("Output save failed", core.FieldsWithCorrelation(ctx, map[string]interface{}{
				"operation": "output_save",
				"error":     err.Error(),
			}))
		}
	}

	if p.cache != nil && synthesis != nil && synthesis.Text != "" {
		ttl := p.cfg.Cache.TTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		p.cache.Set(ctx, cacheKey, result, ttl)
	}

	if stage.Status == StageErrored {
		p.publish(cid, EventPipelineError, map[string]interface{}{
			"stage": StageSynthesis,
		})
	} else {
		p.publish(cid, EventPipelineCompleted, map[string]interface{}{
			"stages_completed": result.StagesCompleted(),
			"duration_ms":      result.Duration.Milliseconds(),
		})
	}

	return result, nil, nil
}

// StreamPipeline starts a run in the background and returns its event
// stream. The channel closes when the run finishes.
func (p *Pipeline) StreamPipeline(r *http.Request, query string, models []string) (string, <-chan StreamEvent) {
	ctx, cid := core.EnsureCorrelationID(context.WithoutCancel(r.Context()), r.Header.Get("X-Correlation-ID"))

	events := p.bus.Subscribe(cid)

	go func() {
		defer p.bus.Close(cid)
		_, _, err := p.RunPipeline(ctx, query, &RunOptions{
			SelectedModels: models,
			CorrelationID:  cid,
			Stream:         true,
		})
		if err != nil {
			p.logger.Error("Streamed pipeline run failed", core.FieldsWithCorrelation(ctx, map[string]interface{}{
				"operation": "stream_pipeline",
				"error":     err.Error(),
			}))
		}
	}()

	return cid, events
}

// gate validates and completes the model list. A refusal is returned
// as a structured payload, never as an error.
func (p *Pipeline) gate(ctx context.Context, selected []string, cid string) ([]string, *ServiceUnavailable) {
	models, dropped := ai.SanitizeModels(selected)
	if len(dropped) > 0 {
		p.logger.Warn("Invalid model ids dropped", map[string]interface{}{
			"operation":      "model_sanitization",
			"correlation_id": cid,
			"dropped":        dropped,
		})
	}

	if len(models) == 0 {
		want := p.cfg.Pipeline.MinimumModelsRequired
		if len(p.cfg.Pipeline.DefaultModels) > 0 {
			models, _ = ai.SanitizeModels(p.cfg.Pipeline.DefaultModels)
		}
		if len(models) == 0 {
			models = ai.DefaultModelSet(want, p.logger)
		}
	}

	// With a health cache attached, known-unhealthy models are dropped
	// before the minimum and provider checks.
	if p.health != nil {
		healthy := models[:0:len(models)]
		for _, model := range models {
			ok, err := p.health.Probe(ctx, model)
			if err != nil || ok {
				// Probe infrastructure failures keep the model in: the
				// real call will classify the problem properly.
				healthy = append(healthy, model)
				continue
			}
			p.logger.Warn("Unhealthy model excluded", map[string]interface{}{
				"operation":      "health_gate",
				"correlation_id": cid,
				"model":          model,
			})
		}
		models = healthy
	}

	present := ai.ProvidersOf(models)
	operational := make([]string, 0, len(present))
	for prov := range present {
		operational = append(operational, string(prov))
	}
	sort.Strings(operational)

	var missing []string
	for _, required := range p.cfg.Pipeline.RequiredProviders {
		if !present[ai.Provider(required)] {
			missing = append(missing, required)
		}
	}
	sort.Strings(missing)

	if len(models) < p.cfg.Pipeline.MinimumModelsRequired || len(missing) > 0 {
		return nil, &ServiceUnavailable{
			Error: "SERVICE_UNAVAILABLE",
			Message: fmt.Sprintf("service requires %d models covering providers %s",
				p.cfg.Pipeline.MinimumModelsRequired,
				strings.Join(p.cfg.Pipeline.RequiredProviders, ", ")),
			Details: ServiceUnavailableDetails{
				ModelsRequired:       p.cfg.Pipeline.MinimumModelsRequired,
				ProvidersAvailable:   len(present),
				ProvidersOperational: operational,
				RequiredProviders:    p.cfg.Pipeline.RequiredProviders,
				MissingProviders:     missing,
				ServiceStatus:        "unavailable",
			},
		}
	}

	return models, nil
}

// insufficientAfterStage builds the refusal for a Stage 1 collapse
func (p *Pipeline) insufficientAfterStage(models, successes []string) *ServiceUnavailable {
	present := ai.ProvidersOf(successes)
	operational := make([]string, 0, len(present))
	for prov := range present {
		operational = append(operational, string(prov))
	}
	sort.Strings(operational)

	var missing []string
	for _, required := range p.cfg.Pipeline.RequiredProviders {
		if !present[ai.Provider(required)] {
			missing = append(missing, required)
		}
	}
	sort.Strings(missing)

	return &ServiceUnavailable{
		Error: "SERVICE_UNAVAILABLE",
		Message: fmt.Sprintf("only %d of %d required models produced a response",
			len(successes), p.cfg.Pipeline.MinimumModelsRequired),
		Details: ServiceUnavailableDetails{
			ModelsRequired:       p.cfg.Pipeline.MinimumModelsRequired,
			ProvidersAvailable:   len(present),
			ProvidersOperational: operational,
			RequiredProviders:    p.cfg.Pipeline.RequiredProviders,
			MissingProviders:     missing,
			ServiceStatus:        "degraded",
		},
	}
}

// runInitialStage fans the raw query out to every model
func (p *Pipeline) runInitialStage(ctx context.Context, query string, models []string, cid string) *StageResult {
	stage := &StageResult{Stage: StageInitial, Status: StageRunning, StartedAt: time.Now()}
	p.publish(cid, EventStageStarted, map[string]interface{}{"stage": StageInitial})

	tasks := make([]ModelTask, 0, len(models))
	for _, model := range models {
		model := model
		p.publish(cid, EventModelStarted, map[string]interface{}{
			"stage": StageInitial,
			"model": model,
		})
		tasks = append(tasks, ModelTask{
			Model: model,
			Call: func(callCtx context.Context) (*core.AIResponse, error) {
				return p.callModel(callCtx, model, query, p.cfg.Pipeline.InitialResponseTimeout)
			},
		})
	}

	executor := NewExecutor(p.cfg.Pipeline.ConcurrentExecutionTimeout, p.cfg.Pipeline.MaxConcurrentModels, p.logger)
	results := executor.Run(ctx, tasks)

	stage.Calls = p.classify(results, cid, StageInitial)
	stage.Status = StageCompleted
	if len(stage.SuccessfulModels()) == 0 {
		stage.Status = StageErrored
	}
	stage.Duration = time.Since(stage.StartedAt)

	p.publishStageEnd(cid, stage)
	return stage
}

// runPeerReviewStage has each surviving model revise its answer after
// seeing its peers' answers.
func (p *Pipeline) runPeerReviewStage(ctx context.Context, query string, initial *StageResult, cid string, degraded bool) *StageResult {
	stage := &StageResult{Stage: StagePeerReview, Status: StageRunning, StartedAt: time.Now()}

	responses := initial.Responses()
	if degraded || len(responses) < 2 {
		stage.Status = StageSkipped
		stage.SkipReason = "Insufficient models for peer review"
		// Forward Stage 1 output unchanged.
		stage.Calls = make(map[string]ModelCall, len(responses))
		for model, text := range responses {
			stage.Calls[model] = ModelCall{
				Model:    model,
				Provider: string(ai.ProviderFromModel(model)),
				Outcome:  OutcomeSuccess,
				Text:     text,
			}
		}
		p.publish(cid, EventStageCompleted, map[string]interface{}{
			"stage":  StagePeerReview,
			"status": string(StageSkipped),
			"reason": stage.SkipReason,
		})
		stage.Duration = time.Since(stage.StartedAt)
		return stage
	}

	p.publish(cid, EventStageStarted, map[string]interface{}{"stage": StagePeerReview})

	authors := make([]string, 0, len(responses))
	for model := range responses {
		authors = append(authors, model)
	}
	sort.Strings(authors)

	tasks := make([]ModelTask, 0, len(authors))
	for i, author := range authors {
		author, own := author, responses[author]

		// Same-model review by default: each model revises its own
		// answer. With it off, answers rotate to the next model so no
		// model judges its own work.
		reviewer := author
		prompt := p.prompts.PeerReviewPrompt(query, author, own, responses)
		if !p.cfg.Pipeline.PeerReviewSameModel {
			reviewer = authors[(i+1)%len(authors)]
			prompt = p.prompts.CrossReviewPrompt(query, author, own, responses)
		}

		p.publish(cid, EventModelStarted, map[string]interface{}{
			"stage":    StagePeerReview,
			"model":    author,
			"reviewer": reviewer,
		})
		tasks = append(tasks, ModelTask{
			Model: author,
			Call: func(callCtx context.Context) (*core.AIResponse, error) {
				return p.callModel(callCtx, reviewer, prompt, p.cfg.Pipeline.PeerReviewTimeout)
			},
		})
	}

	executor := NewExecutor(p.cfg.Pipeline.ConcurrentExecutionTimeout, p.cfg.Pipeline.MaxConcurrentModels, p.logger)
	results := executor.Run(ctx, tasks)

	stage.Calls = make(map[string]ModelCall, len(results))
	for model, res := range results {
		call := p.classifyOne(model, res, cid, StagePeerReview)
		if call.Outcome != OutcomeSuccess {
			// Carry the original answer forward instead of losing the
			// model for synthesis.
			call = ModelCall{
				Model:    model,
				Provider: call.Provider,
				Outcome:  OutcomeSuccess,
				Text:     responses[model],
				Fallback: true,
				Latency:  res.Latency,
			}
			p.logger.Warn("Peer review failed, carrying original response", core.FieldsWithCorrelation(ctx, map[string]interface{}{
				"operation": "peer_review_fallback",
				"model":     model,
			}))
		}
		stage.Calls[model] = call
	}

	stage.Status = StageCompleted
	stage.Duration = time.Since(stage.StartedAt)
	p.publishStageEnd(cid, stage)
	return stage
}

// runSynthesisStage picks a synthesis model, preferring one that did
// not participate, and iterates candidates until one answers.
func (p *Pipeline) runSynthesisStage(ctx context.Context, query string, result *PipelineResult, cid string, stream bool) (*SynthesisResult, *StageResult) {
	stage := &StageResult{Stage: StageSynthesis, Status: StageRunning, StartedAt: time.Now()}
	p.publish(cid, EventStageStarted, map[string]interface{}{"stage": StageSynthesis})

	revised := result.PeerReview.Responses()
	if len(revised) == 0 {
		stage.Status = StageErrored
		stage.Duration = time.Since(stage.StartedAt)
		p.publishStageEnd(cid, stage)
		return nil, stage
	}

	participants := make(map[string]bool)
	for _, m := range result.Initial.SuccessfulModels() {
		participants[m] = true
	}
	for _, m := range result.PeerReview.SuccessfulModels() {
		participants[m] = true
	}

	candidates, strategy := p.synthesisCandidates(result.Models, participants)

	queryType := QueryGeneral
	if p.cfg.Pipeline.EnhancedSynthesisEnabled {
		queryType = p.prompts.DetectQueryType(query)
		recent := make([]string, 0, len(participants))
		for m := range participants {
			recent = append(recent, m)
		}
		candidates = p.selector.Rank(candidates, queryType, recent)
	}

	prompt := p.prompts.SynthesisPrompt(query, revised, queryType)
	stage.Calls = make(map[string]ModelCall)

	for _, candidate := range candidates {
		start := time.Now()
		resp, err := p.callModel(ctx, candidate, prompt, p.cfg.Pipeline.UltraSynthesisTimeout)
		latency := time.Since(start)

		call := p.classifyOne(candidate, TaskResult{Model: candidate, Resp: resp, Err: err, Latency: latency}, cid, StageSynthesis)
		stage.Calls[candidate] = call

		success := err == nil && resp != nil && strings.TrimSpace(resp.Content) != ""
		if p.cfg.Pipeline.EnhancedSynthesisEnabled {
			p.selector.UpdatePerformance(candidate, success, qualityOf(resp), latency)
		}
		if !success {
			continue
		}

		if stream {
			p.streamSynthesis(cid, resp.Content)
		}
		p.publish(cid, EventSynthesisCompleted, map[string]interface{}{
			"model":    candidate,
			"strategy": string(strategy),
		})

		stage.Status = StageCompleted
		stage.Duration = time.Since(stage.StartedAt)
		p.publishStageEnd(cid, stage)

		return &SynthesisResult{
			Text:      resp.Content,
			ModelUsed: candidate,
			Strategy:  strategy,
			QueryType: queryType,
		}, stage
	}

	stage.Status = StageErrored
	stage.Duration = time.Since(stage.StartedAt)
	p.publishStageEnd(cid, stage)
	return nil, stage
}

// synthesisCandidates builds the candidate pool. Non-participants are
// preferred to reduce self-consistency bias; falling back to
// participants is allowed but logged.
func (p *Pipeline) synthesisCandidates(models []string, participants map[string]bool) ([]string, SynthesisStrategy) {
	available := make([]string, 0, len(models)+4)
	available = append(available, models...)
	// Other providers' defaults widen the non-participant pool.
	for _, extra := range ai.DefaultModelSet(len(models)+2, p.logger) {
		if !contains(available, extra) {
			available = append(available, extra)
		}
	}

	var nonParticipants []string
	for _, m := range available {
		if !participants[m] {
			nonParticipants = append(nonParticipants, m)
		}
	}

	if len(nonParticipants) > 0 {
		return nonParticipants, StrategyNonParticipant
	}

	p.logger.Warn("No non-participant model available for synthesis", map[string]interface{}{
		"operation": "synthesis_candidates",
		"note":      "synthesis by a participant model may favor its own earlier answer",
	})
	participantList := make([]string, 0, len(participants))
	for m := range participants {
		participantList = append(participantList, m)
	}
	sort.Strings(participantList)
	return participantList, StrategyParticipantFallback
}

// synthesisChunkSize bounds streamed chunk length
const synthesisChunkSize = 200

func (p *Pipeline) streamSynthesis(cid, text string) {
	for i := 0; i < len(text); i += synthesisChunkSize {
		end := i + synthesisChunkSize
		if end > len(text) {
			end = len(text)
		}
		p.publish(cid, EventSynthesisChunk, map[string]interface{}{
			"content": text[i:end],
		})
	}
}

// callModel executes one model call through the full stack: rate
// limiter, retry handler with body scan, resilient client, telemetry,
// adapter. The limiter token is released on every path including
// cancellation.
func (p *Pipeline) callModel(ctx context.Context, model, prompt string, timeout time.Duration) (*core.AIResponse, error) {
	if p.cfg.Pipeline.TestingMode {
		return p.stubResponse(model, prompt), nil
	}

	provider := string(ai.ProviderFromModel(model))
	endpoint := provider + "/generate"

	if err := p.limiter.Acquire(ctx, endpoint); err != nil {
		return nil, err
	}

	success := false
	defer func() {
		p.limiter.Release(endpoint, success)
	}()

	client, err := p.clients(model)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	resp, err := p.retries.ExecuteWithTimeout(ctx, func(callCtx context.Context) (*core.AIResponse, error) {
		return p.retries.ExecuteWithRetry(callCtx, func(attemptCtx context.Context) (*core.AIResponse, error) {
			return client.GenerateResponse(attemptCtx, prompt, &core.AIOptions{Model: model})
		}, provider, model)
	}, timeout)

	if err != nil {
		if core.IsRateLimited(err) {
			p.fallback.MarkRateLimited(provider, time.Minute)
		}
		return nil, err
	}

	success = true
	return resp, nil
}

// stubResponse substitutes for real calls in testing mode
func (p *Pipeline) stubResponse(model, prompt string) *core.AIResponse {
	return &core.AIResponse{
		Content:  fmt.Sprintf("Stub response from %s (%d-char prompt)", model, len(prompt)),
		Model:    model,
		Provider: string(ai.ProviderFromModel(model)),
	}
}

// classify maps executor results onto model call records, emitting
// per-model events.
func (p *Pipeline) classify(results map[string]TaskResult, cid, stageName string) map[string]ModelCall {
	calls := make(map[string]ModelCall, len(results))
	for model, res := range results {
		calls[model] = p.classifyOne(model, res, cid, stageName)
	}
	return calls
}

func (p *Pipeline) classifyOne(model string, res TaskResult, cid, stageName string) ModelCall {
	call := ModelCall{
		Model:    model,
		Provider: string(ai.ProviderFromModel(model)),
		Latency:  res.Latency,
	}

	switch {
	case res.Err == nil && res.Resp != nil:
		call.Outcome = OutcomeSuccess
		call.Text = res.Resp.Content
		if stageName != StageSynthesis {
			p.publish(cid, EventModelResponse, map[string]interface{}{
				"stage":      stageName,
				"model":      model,
				"latency_ms": res.Latency.Milliseconds(),
			})
		}
	case errors.Is(res.Err, context.Canceled) || core.KindOf(res.Err) == core.KindCancelled:
		call.Outcome = OutcomeCancelled
		call.ErrorKind = string(core.KindCancelled)
		call.Error = res.Err.Error()
		p.publishModelError(cid, stageName, model, call.ErrorKind)
	default:
		call.Outcome = OutcomeError
		call.ErrorKind = string(core.KindOf(res.Err))
		call.Error = res.Err.Error()
		if core.IsRateLimited(res.Err) {
			call.Suggestion = p.fallback.SuggestAlternative(call.Provider)
		}
		p.publishModelError(cid, stageName, model, call.ErrorKind)
	}

	return call
}

func (p *Pipeline) publishModelError(cid, stageName, model, kind string) {
	if stageName == StageSynthesis {
		return
	}
	p.publish(cid, EventModelError, map[string]interface{}{
		"stage": stageName,
		"model": model,
		"kind":  kind,
	})
}

func (p *Pipeline) publishStageEnd(cid string, stage *StageResult) {
	name := EventStageCompleted
	if stage.Status == StageErrored {
		name = EventStageError
	}
	p.publish(cid, name, map[string]interface{}{
		"stage":       stage.Stage,
		"status":      string(stage.Status),
		"duration_ms": stage.Duration.Milliseconds(),
	})
}

func (p *Pipeline) publish(cid, name string, data map[string]interface{}) {
	p.bus.Publish(cid, name, data)
}

// qualityOf is a crude quality proxy for selector feedback: longer,
// structured answers score higher, capped at 10.
func qualityOf(resp *core.AIResponse) float64 {
	if resp == nil {
		return 0
	}
	words := float64(len(strings.Fields(resp.Content)))
	q := words / 50
	if q > 10 {
		q = 10
	}
	return q
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
