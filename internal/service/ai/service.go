package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"chatbff/internal/config"
)

const defaultMaxTokens = 4096

// ModelProvider hands out chat models by client-facing id.
type ModelProvider interface {
	ChatModel(ctx context.Context, id string, thinkingBudget int) (model.ToolCallingChatModel, error)
}

// Factory builds eino chat models from the configured providers and caches
// them per id and thinking budget.
type Factory struct {
	cfg *config.Config

	mu     sync.Mutex
	models map[string]model.ToolCallingChatModel
}

func NewFactory(cfg *config.Config) *Factory {
	return &Factory{cfg: cfg, models: make(map[string]model.ToolCallingChatModel)}
}

// IsReasoningModel reports whether id selects a reasoning variant.
func IsReasoningModel(id string) bool {
	return strings.Contains(id, "reasoning") || strings.Contains(id, "thinking")
}

// ChatModel returns the model for id. A positive thinkingBudget requests
// extended thinking from providers that support it.
func (f *Factory) ChatModel(ctx context.Context, id string, thinkingBudget int) (model.ToolCallingChatModel, error) {
	mc, ok := f.cfg.ModelFor(id)
	if !ok {
		return nil, fmt.Errorf("model %s not configured", id)
	}
	key := fmt.Sprintf("%s/%s/%d", mc.Provider, mc.Model, thinkingBudget)

	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.models[key]; ok {
		return m, nil
	}
	m, err := f.build(ctx, mc, thinkingBudget)
	if err != nil {
		return nil, err
	}
	f.models[key] = m
	return m, nil
}

func (f *Factory) build(ctx context.Context, mc config.ModelConfig, thinkingBudget int) (model.ToolCallingChatModel, error) {
	provCfg, ok := f.cfg.Providers[mc.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", mc.Provider)
	}
	modelName := mc.Model
	if modelName == "" {
		modelName = provCfg.Model
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch mc.Provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  provCfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if cerr != nil {
			return nil, fmt.Errorf("gemini client: %w", cerr)
		}
		thinking := &genai.ThinkingConfig{IncludeThoughts: true}
		if thinkingBudget > 0 {
			budget := int32(thinkingBudget)
			thinking.ThinkingBudget = &budget
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client:         client,
			Model:          modelName,
			ThinkingConfig: thinking,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		conf := &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: defaultMaxTokens,
		}
		if thinkingBudget > 0 {
			// max_tokens has to exceed the thinking budget
			conf.MaxTokens = thinkingBudget + defaultMaxTokens
			conf.Thinking = &claude.Thinking{Enable: true, BudgetTokens: thinkingBudget}
		}
		chatModel, err = claude.NewChatModel(ctx, conf)
	default:
		return nil, fmt.Errorf("invalid provider: %s", mc.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s model: %w", mc.Provider, err)
	}
	return chatModel, nil
}
