package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"chatbff/internal/config"
	"chatbff/internal/memory"
	"chatbff/internal/models"
)

// Tool names as exposed to the model.
const (
	ToolGetWeather         = "getWeather"
	ToolGenerateImage      = "generateImage"
	ToolCreateDocument     = "createDocument"
	ToolUpdateDocument     = "updateDocument"
	ToolRequestSuggestions = "requestSuggestions"
	ToolWebSearch          = "web_search"
	ToolSearchMemories     = "searchMemories"
	ToolAddMemory          = "addMemory"
)

var baselineTools = []string{
	ToolGetWeather,
	ToolGenerateImage,
	ToolCreateDocument,
	ToolUpdateDocument,
	ToolRequestSuggestions,
}

// Deps are the collaborators tools call into.
type Deps struct {
	Tools          config.ToolsConfig
	ThinkingBudget int
	Documents      DocumentStore
	Blobs          BlobPutter
	Images         ImageGenerator
	Models         ModelProvider
	ArtifactModel  string
	Memory         *memory.Client
	Logger         *slog.Logger
}

// Registry owns the tool instances and composes the tool set of each turn.
type Registry struct {
	baseline       map[string]tool.InvokableTool
	search         tool.InvokableTool
	memoryTools    map[string]tool.InvokableTool
	memory         *memory.Client
	thinkingBudget int
	logger         *slog.Logger
}

func NewRegistry(ctx context.Context, deps Deps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	budget := deps.ThinkingBudget
	if budget <= 0 {
		budget = 10000
	}

	artifacts := &artifactTools{
		docs:   deps.Documents,
		models: deps.Models,
		model:  deps.ArtifactModel,
		logger: logger,
	}
	r := &Registry{
		baseline: map[string]tool.InvokableTool{
			ToolGetWeather:         newWeatherTool(deps.Tools.WeatherBaseURL),
			ToolGenerateImage:      newImageTool(deps.Images, deps.Blobs, deps.Tools, logger),
			ToolCreateDocument:     artifacts.createTool(),
			ToolUpdateDocument:     artifacts.updateTool(),
			ToolRequestSuggestions: artifacts.suggestionsTool(),
		},
		search:         initWebSearch(ctx, deps.Tools, logger),
		memory:         deps.Memory,
		thinkingBudget: budget,
		logger:         logger,
	}
	if deps.Memory.Enabled() {
		r.memoryTools = newMemoryTools(deps.Memory)
	}
	return r
}

// Request carries the per-turn switches.
type Request struct {
	ModelID       string
	SearchEnabled bool
	MemoryEnabled bool
	Incognito     bool
	Principal     *models.Principal
	ChatID        string
}

// Toolset is the outcome for one turn.
type Toolset struct {
	Tools  map[string]tool.InvokableTool
	Active []string
	Infos  []*schema.ToolInfo
	// Smooth enables word-level pacing of text deltas.
	Smooth bool
	// ThinkingBudget is positive for reasoning models.
	ThinkingBudget int
	// Memory is set when memories are injected and saved for this turn.
	Memory bool
}

// MemoryActive reports whether memory features apply to req.
func (r *Registry) MemoryActive(req Request) bool {
	return req.MemoryEnabled && !req.Incognito && req.Principal != nil && req.Principal.ID != "" && r.memory.Enabled()
}

// Build composes the tool set for req.
func (r *Registry) Build(ctx context.Context, req Request) (*Toolset, error) {
	ts := &Toolset{Tools: make(map[string]tool.InvokableTool)}
	if IsReasoningModel(req.ModelID) {
		ts.ThinkingBudget = r.thinkingBudget
		return ts, nil
	}
	ts.Smooth = true

	add := func(name string, t tool.InvokableTool) {
		ts.Tools[name] = t
		ts.Active = append(ts.Active, name)
	}
	for _, name := range baselineTools {
		add(name, r.baseline[name])
	}
	if req.SearchEnabled {
		if r.search != nil {
			add(ToolWebSearch, r.search)
		} else {
			r.logger.Warn("web search requested but no search provider is available")
		}
	}
	if r.MemoryActive(req) {
		ts.Memory = true
		add(ToolSearchMemories, r.memoryTools[ToolSearchMemories])
		add(ToolAddMemory, r.memoryTools[ToolAddMemory])
	}

	for _, name := range ts.Active {
		info, err := ts.Tools[name].Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool %s info: %w", name, err)
		}
		ts.Infos = append(ts.Infos, info)
	}
	return ts, nil
}

// MemoryContext looks up memories for the turn's query. Failures are logged
// and yield "".
func (r *Registry) MemoryContext(ctx context.Context, userID, query string) string {
	if !r.memory.Enabled() || strings.TrimSpace(query) == "" {
		return ""
	}
	memories, err := r.memory.Search(ctx, userID, query)
	if err != nil {
		r.logger.Warn("memory search failed", "user_id", userID, "error", err)
		return ""
	}
	return memory.FormatContext(memories)
}

// SaveMemory stores one exchange for userID.
func (r *Registry) SaveMemory(ctx context.Context, userID, chatID, content string) error {
	if !r.memory.Enabled() {
		return memory.ErrNotConfigured
	}
	_, err := r.memory.Add(ctx, userID, content, chatID)
	return err
}

func initWebSearch(ctx context.Context, cfg config.ToolsConfig, logger *slog.Logger) tool.InvokableTool {
	googleTool := initGoogleSearch(ctx, cfg, logger)
	duckTool := initDDGSearch(ctx, logger)
	if googleTool == nil && duckTool == nil {
		logger.Warn("web search tool disabled: no search providers available")
		return nil
	}

	ws := &webSearchTool{
		google:     googleTool,
		duck:       duckTool,
		httpClient: &http.Client{Timeout: WebSearchHTTPTimeout},
		limiter:    newUserLimiter(cfg.SearchesPerMinute),
		logger:     logger,
	}
	info := &schema.ToolInfo{
		Name: ToolWebSearch,
		Desc: "Search the web for up-to-date information. " +
			"Falls back to another provider if needed and fetches the page directly when given a URL.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Natural language query or URL to search",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, ws.run)
}

type webSearchTool struct {
	google     tool.InvokableTool
	duck       tool.InvokableTool
	httpClient *http.Client
	limiter    *userLimiter
	logger     *slog.Logger
}

type webSearchParams struct {
	Query string `json:"query"`
}

func (w *webSearchTool) run(ctx context.Context, params *webSearchParams) (string, error) {
	if params == nil {
		return "", errors.New("missing search parameters")
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", errors.New("query must not be empty")
	}
	if tc := ToolContextFrom(ctx); !w.limiter.Allow(tc.Principal.ID) {
		return "", errors.New("web search rate limit exceeded, please retry in a minute")
	}

	if looksLikeURL(query) {
		content, err := fetchURL(ctx, w.httpClient, query)
		if err == nil {
			return content, nil
		}
		w.logger.Warn("web url loader failed", "url", query, "error", err)
	}

	payloadBytes, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", fmt.Errorf("marshal search params: %w", err)
	}
	payload := string(payloadBytes)

	if w.google != nil {
		result, err := w.google.InvokableRun(ctx, payload)
		if err == nil {
			return result, nil
		}
		w.logger.Warn("google search failed", "error", err)
	}
	if w.duck != nil {
		result, err := w.duck.InvokableRun(ctx, payload)
		if err == nil {
			return result, nil
		}
		w.logger.Warn("duckduckgo search failed", "error", err)
	}
	return "", errors.New("no search provider succeeded")
}

func initDDGSearch(ctx context.Context, logger *slog.Logger) tool.InvokableTool {
	duckTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 3,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		logger.Warn("duckduckgo search disabled", "error", err)
		return nil
	}
	return duckTool
}

func initGoogleSearch(ctx context.Context, cfg config.ToolsConfig, logger *slog.Logger) tool.InvokableTool {
	if cfg.GoogleAPIKey == "" || cfg.GoogleSearchEngineID == "" {
		logger.Info("google search tool disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil
	}
	googleTool, err := googlesearch.NewTool(ctx, &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         cfg.GoogleAPIKey,
		SearchEngineID: cfg.GoogleSearchEngineID,
		Lang:           "en",
		Num:            5,
	})
	if err != nil {
		logger.Warn("google search disabled", "error", err)
		return nil
	}
	return googleTool
}
