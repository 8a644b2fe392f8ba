// Package providers selects and constructs the configured llm.Provider,
// following the teacher's internal/llm/providers/factory.go provider-switch
// shape, generalized to this repo's single-backend-per-concern config.
package providers

import (
	"fmt"
	"net/http"

	"knowledgetree/internal/config"
	"knowledgetree/internal/llm"
	"knowledgetree/internal/llm/anthropic"
	openaillm "knowledgetree/internal/llm/openai"
)

// Build constructs an llm.Provider based on cfg.LLMProvider ("openai", the
// default, or "anthropic").
func Build(cfg config.Config, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.LLMProvider {
	case "", "openai":
		return openaillm.New(cfg.OpenAI, httpClient), nil
	case "anthropic":
		return anthropic.New(cfg.Anthropic, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLMProvider)
	}
}
