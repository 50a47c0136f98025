package llm

import (
	"context"

	"github.com/AleutianAI/AleutianDemo/services/orchestrator/datatypes"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
}

// HealthChecker is implemented by clients that can probe their upstream
// without generating text.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Float32 and Int return pointers for GenerationParams fields.
func Float32(v float32) *float32 { return &v }

func Int(v int) *int { return &v }
