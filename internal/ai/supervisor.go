package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Supervisor is the semantic equivalence oracle: it turns task batches into prompts,
// sends them to a language model through a call guard, and parses the verdicts.
//
// The Supervisor's responsibilities are split across files:
//   - supervisor.go: struct, constructor, CallAI and the lazy Provider
//   - completer.go: provider clients (Anthropic, OpenAI-compatible)
//   - guard.go: circuit breaker, concurrency limit, pacing, timeout
//   - deduplication.go: within-batch duplicate confirmation
//   - consolidation.go: cross-batch merge proposals
//   - json_parser.go: resilient parsing of model output
//
// A Supervisor is stateless apart from its transport and guard, and is safe to share
// across concurrent pipeline invocations.
type Supervisor struct {
	completer Completer
	model     string
	guard     *callGuard
	logger    *slog.Logger
}

// Config holds supervisor configuration
type Config struct {
	Client    ClientConfig // Provider selection; ignored when Completer is set
	Completer Completer    // Optional pre-built completer (tests, custom transports)
	Guard     GuardConfig  // Zero value means DefaultGuardConfig()
	Logger    *slog.Logger // Defaults to slog.Default()
}

// NewSupervisor creates a new supervisor
func NewSupervisor(cfg *Config) (*Supervisor, error) {
	return newSupervisor(cfg, NewCompleter)
}

func newSupervisor(cfg *Config, factory func(ClientConfig) (Completer, error)) (*Supervisor, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	guardCfg := cfg.Guard
	if guardCfg == (GuardConfig{}) {
		guardCfg = DefaultGuardConfig()
	}
	if err := guardCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid guard config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	completer := cfg.Completer
	if completer == nil {
		var err error
		completer, err = factory(cfg.Client)
		if err != nil {
			return nil, fmt.Errorf("failed to create llm client: %w", err)
		}
	}

	model := cfg.Client.Model
	if model == "" {
		model = DefaultModel(cfg.Client.Provider)
	}

	return &Supervisor{
		completer: completer,
		model:     model,
		guard:     newCallGuard(guardCfg, logger),
		logger:    logger,
	}, nil
}

// Model returns the model name requests are sent to
func (s *Supervisor) Model() string {
	return s.model
}

// CircuitState reports the call guard's breaker state (CircuitClosed when disabled)
func (s *Supervisor) CircuitState() CircuitState {
	if s.guard.breaker == nil {
		return CircuitClosed
	}
	return s.guard.breaker.State()
}

// CallAI sends a single prompt and returns the response text. There is exactly one
// request per call; errors are returned to the caller, never retried.
func (s *Supervisor) CallAI(ctx context.Context, prompt, operation string, maxTokens int) (string, error) {
	startTime := time.Now()
	if maxTokens == 0 {
		maxTokens = 4096
	}

	var completion *Completion
	err := s.guard.do(ctx, operation, func(callCtx context.Context) error {
		resp, apiErr := s.completer.Complete(callCtx, CompletionRequest{
			Model:     s.model,
			Prompt:    prompt,
			MaxTokens: maxTokens,
			Operation: operation,
		})
		if apiErr != nil {
			return apiErr
		}
		completion = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s call failed: %w", operation, err)
	}

	s.logger.Debug("ai: call complete",
		"operation", operation,
		"model", s.model,
		"input_tokens", completion.InputTokens,
		"output_tokens", completion.OutputTokens,
		"duration", time.Since(startTime))

	return completion.Text, nil
}

// Provider is the process-wide handle to the oracle. It is created explicitly by the
// top-level caller and passed to whoever needs a Supervisor; the Supervisor itself is
// constructed lazily, at most once, even under concurrent first use.
type Provider struct {
	get func() (*Supervisor, error)
}

// NewProvider returns a Provider that builds its Supervisor from cfg on first use
func NewProvider(cfg Config) *Provider {
	return newProvider(cfg, NewCompleter)
}

func newProvider(cfg Config, factory func(ClientConfig) (Completer, error)) *Provider {
	return &Provider{
		get: sync.OnceValues(func() (*Supervisor, error) {
			return newSupervisor(&cfg, factory)
		}),
	}
}

// Supervisor returns the shared Supervisor, constructing it on the first call.
// A construction error is sticky: later calls return the same error.
func (p *Provider) Supervisor() (*Supervisor, error) {
	return p.get()
}
