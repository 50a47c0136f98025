package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
)

// HealthTimeout bounds each provider probe so a slow upstream cannot stall
// the liveness endpoint.
const HealthTimeout = 3 * time.Second

// Factory builds a client for one model of a provider kind.
type Factory func(model string) (LLMClient, error)

// Registry maps provider kinds to client factories and default models.
//
// # Description
//
// Kinds without a factory are unavailable: Client returns
// datatypes.ErrProviderUnavailable for them, which the chat pipeline turns
// into an inline error rather than a failed request.
//
// # Thread Safety
//
// Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
	models    map[Kind]string
	hosted    bool
}

// NewRegistry returns an empty registry.
func NewRegistry(hosted bool) *Registry {
	return &Registry{
		factories: make(map[Kind]Factory),
		models:    make(map[Kind]string),
		hosted:    hosted,
	}
}

// Register installs a factory and its default model for kind.
func (r *Registry) Register(kind Kind, defaultModel string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
	r.models[kind] = defaultModel
}

// Hosted reports whether local models are disabled.
func (r *Registry) Hosted() bool {
	return r.hosted
}

// Models returns the default model of every registered kind.
func (r *Registry) Models() map[Kind]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[Kind]string, len(r.models))
	for k, v := range r.models {
		out[k] = v
	}
	return out
}

// Resolve applies Resolve with this registry's models and hosted flag.
func (r *Registry) Resolve(override string, defaults Defaults) (Selection, error) {
	return Resolve(override, defaults, r.Models(), r.hosted)
}

// Client builds the client for a selection.
func (r *Registry) Client(sel Selection) (LLMClient, error) {
	if r.hosted && sel.Kind == KindLocal {
		return nil, fmt.Errorf("%w: local models are disabled in hosted mode", datatypes.ErrProviderUnavailable)
	}
	r.mu.RLock()
	factory, ok := r.factories[sel.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", datatypes.ErrProviderUnavailable, sel.Kind)
	}
	return factory(sel.Model)
}

// Health probes every registered provider.
//
// Each probe runs in its own goroutine under HealthTimeout. The result maps
// kind to "ok", "disabled", "unchecked" (client has no health probe), or an
// error message.
func (r *Registry) Health(ctx context.Context) map[string]string {
	r.mu.RLock()
	kinds := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	r.mu.RUnlock()
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]string, len(kinds))
	)
	for _, kind := range kinds {
		if r.hosted && kind == KindLocal {
			out[string(kind)] = "disabled"
			continue
		}
		wg.Add(1)
		go func(kind Kind) {
			defer wg.Done()
			status := r.probe(ctx, kind)
			mu.Lock()
			out[string(kind)] = status
			mu.Unlock()
		}(kind)
	}
	wg.Wait()
	return out
}

func (r *Registry) probe(ctx context.Context, kind Kind) string {
	client, err := r.Client(Selection{Kind: kind, Model: r.Models()[kind]})
	if err != nil {
		return err.Error()
	}
	checker, ok := client.(HealthChecker)
	if !ok {
		return "unchecked"
	}
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()
	if err := checker.Health(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}

// RegistryConfig carries provider endpoints and default models.
type RegistryConfig struct {
	Hosted bool

	OpenAIModel string

	OpenRouterBaseURL string
	OpenRouterModel   string

	AnthropicBaseURL string
	AnthropicModel   string

	OllamaBaseURL string
	OllamaModel   string
}

// RegistryConfigFromEnv reads model and endpoint settings from the
// environment.
func RegistryConfigFromEnv(hosted bool) RegistryConfig {
	return RegistryConfig{
		Hosted:            hosted,
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		OpenRouterBaseURL: os.Getenv("OPENROUTER_BASE_URL"),
		OpenRouterModel:   os.Getenv("OPENROUTER_MODEL"),
		AnthropicBaseURL:  os.Getenv("ANTHROPIC_BASE_URL"),
		AnthropicModel:    os.Getenv("CLAUDE_MODEL"),
		OllamaBaseURL:     os.Getenv("OLLAMA_BASE_URL"),
		OllamaModel:       os.Getenv("OLLAMA_MODEL"),
	}
}

// NewRegistryFromEnv registers every provider whose credentials are
// present. Keys come from OPENAI_API_KEY, OPENROUTER_API_KEY and
// ANTHROPIC_API_KEY or the matching /run/secrets files, and are sealed
// in memguard enclaves.
func NewRegistryFromEnv(cfg RegistryConfig) *Registry {
	r := NewRegistry(cfg.Hosted)

	if key := loadSecret("OPENAI_API_KEY", "openai_api_key"); key != nil {
		model := orDefault(cfg.OpenAIModel, "gpt-4o-mini")
		r.Register(KindOpenAI, model, func(m string) (LLMClient, error) {
			return NewOpenAIClient(key, "", orDefault(m, model), string(KindOpenAI))
		})
	}
	if key := loadSecret("OPENROUTER_API_KEY", "openrouter_api_key"); key != nil {
		model := orDefault(cfg.OpenRouterModel, "openai/gpt-4o-mini")
		base := orDefault(cfg.OpenRouterBaseURL, DefaultOpenRouterBaseURL)
		r.Register(KindOpenRouter, model, func(m string) (LLMClient, error) {
			return NewOpenAIClient(key, base, orDefault(m, model), string(KindOpenRouter))
		})
	}
	if key := loadSecret("ANTHROPIC_API_KEY", "anthropic_api_key"); key != nil {
		model := orDefault(cfg.AnthropicModel, "claude-3-5-sonnet-20240620")
		r.Register(KindAnthropic, model, func(m string) (LLMClient, error) {
			return NewAnthropicClient(key, cfg.AnthropicBaseURL, orDefault(m, model))
		})
	}
	if cfg.OllamaBaseURL != "" {
		model := orDefault(cfg.OllamaModel, "gpt-oss")
		r.Register(KindLocal, model, func(m string) (LLMClient, error) {
			return NewOllamaClient(cfg.OllamaBaseURL, orDefault(m, model))
		})
	}

	registered := make([]string, 0, len(r.factories))
	for k := range r.factories {
		registered = append(registered, string(k))
	}
	sort.Strings(registered)
	slog.Info("LLM providers registered", "providers", registered, "hosted", cfg.Hosted)
	return r
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
