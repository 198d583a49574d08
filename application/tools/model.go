package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/codecompass/codecompass/internal/config"
)

// providerKeyEnv names the API key variable for each cloud provider.
// Ollama and local models need no key.
var providerKeyEnv = map[string]string{
	config.ProviderOpenAI:   "OPENAI_API_KEY",
	config.ProviderDeepSeek: "DEEPSEEK_API_KEY",
	config.ProviderGemini:   "GEMINI_API_KEY",
	config.ProviderClaude:   "ANTHROPIC_API_KEY",
}

// switchModel handles switch_suggestion_model: it updates the active
// suggestion model (and optionally provider) and clears cached
// generator clients so the next request uses the new pair.
func (r *Registry) switchModel(_ context.Context, args Args) (string, error) {
	model := args.String("model")
	provider := strings.ToLower(strings.TrimSpace(args.String("provider")))

	target := provider
	if target == "" {
		target = r.cfg.SuggestionProvider()
	}
	endpoint, ok := r.cfg.Endpoint(target)
	if !ok {
		return "", fmt.Errorf("%w: unknown provider %q (expected %s, %s, %s, %s, %s, or %s)",
			ErrInvalidArgument, target,
			config.ProviderOpenAI, config.ProviderDeepSeek, config.ProviderOllama,
			config.ProviderGemini, config.ProviderClaude, config.ProviderLocal)
	}

	r.cfg.SwitchSuggestionModel(model, provider)
	if r.cache != nil {
		r.cache.ClearCache()
	}
	r.logger.Info("suggestion model switched", "provider", target, "model", model)

	var b strings.Builder
	b.WriteString("# Suggestion Model Switched\n\n")
	fmt.Fprintf(&b, "Provider: %s\n", target)
	fmt.Fprintf(&b, "Model: %s\n", model)
	if envVar, needsKey := providerKeyEnv[target]; needsKey && endpoint.APIKey() == "" {
		r.logger.Warn("switched to a provider with no API key configured",
			"provider", target, "env_var", envVar)
		fmt.Fprintf(&b, "\nWarning: no API key is configured for %s. Set %s before using this model.\n", target, envVar)
	}
	return b.String(), nil
}

// agentQuery handles agent_query by delegating to the agent loop under
// the configured wall-clock bound. The agent appends its own session
// footer.
func (r *Registry) agentQuery(ctx context.Context, args Args) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.AgentQueryTimeout())
	defer cancel()
	return r.agent.Query(ctx, args.String("query"), args.String("sessionId"))
}

// moreSteps handles request_more_processing_steps. The budget extension
// itself happens in the agent loop, which watches for this tool name;
// the handler just acknowledges so the dispatch has a presentable
// result.
func (r *Registry) moreSteps(_ context.Context, args Args) (string, error) {
	if reasoning := args.String("reasoning"); reasoning != "" {
		r.logger.Info("more processing steps requested", "reasoning", reasoning)
	}
	return "Acknowledged. The processing step budget has been extended where possible. Continue working toward the answer.\n", nil
}
