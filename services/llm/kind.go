package llm

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
)

// Kind is a generation provider family.
type Kind string

const (
	KindOpenAI     Kind = "openai"
	KindOpenRouter Kind = "openrouter"
	KindAnthropic  Kind = "anthropic"
	KindLocal      Kind = "local"
)

// Kinds lists every provider kind.
func Kinds() []Kind {
	return []Kind{KindOpenAI, KindOpenRouter, KindAnthropic, KindLocal}
}

// ParseKind maps a name to a Kind. "ollama" is accepted for KindLocal.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return KindOpenAI, true
	case "openrouter":
		return KindOpenRouter, true
	case "anthropic", "claude":
		return KindAnthropic, true
	case "local", "ollama":
		return KindLocal, true
	default:
		return "", false
	}
}

// Selection is a resolved provider and model.
type Selection struct {
	Kind  Kind   `json:"provider"`
	Model string `json:"model"`
}

func (s Selection) String() string {
	return string(s.Kind) + ":" + s.Model
}

// Defaults is the configured provider and model used when a request does
// not override them.
type Defaults struct {
	Provider string
	Model    string
}

// Resolve picks the provider and model for one request.
//
// # Description
//
// Precedence:
//  1. "kind:model" override, when the prefix names a known kind.
//  2. A bare kind name, using that kind's configured model.
//  3. Any other non-empty override is a model for the default provider
//     (so "llama3:8b" stays a model name).
//  4. The configured defaults.
//
// In hosted mode KindLocal is rejected with datatypes.ErrProviderUnavailable.
//
// # Inputs
//
//   - override: Request model_override, possibly empty.
//   - defaults: Configured provider and model from settings.
//   - models: Per-kind default models for bare kind overrides.
//   - hosted: Whether this deployment forbids local models.
func Resolve(override string, defaults Defaults, models map[Kind]string, hosted bool) (Selection, error) {
	defaultKind, ok := ParseKind(defaults.Provider)
	if !ok {
		return Selection{}, fmt.Errorf("%w: unknown provider %q", datatypes.ErrProviderUnavailable, defaults.Provider)
	}

	sel := Selection{Kind: defaultKind, Model: defaults.Model}
	override = strings.TrimSpace(override)

	switch {
	case override == "":
	case strings.Contains(override, ":"):
		prefix, model, _ := strings.Cut(override, ":")
		if kind, ok := ParseKind(prefix); ok {
			sel = Selection{Kind: kind, Model: model}
		} else {
			sel.Model = override
		}
	default:
		if kind, ok := ParseKind(override); ok {
			sel = Selection{Kind: kind, Model: models[kind]}
			if kind == defaultKind && defaults.Model != "" {
				sel.Model = defaults.Model
			}
		} else {
			sel.Model = override
		}
	}

	if sel.Model == "" {
		sel.Model = models[sel.Kind]
	}
	if hosted && sel.Kind == KindLocal {
		return sel, fmt.Errorf("%w: local models are disabled in hosted mode", datatypes.ErrProviderUnavailable)
	}
	return sel, nil
}
