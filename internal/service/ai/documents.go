package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"chatbff/internal/models"
	"chatbff/internal/store"
)

// DocumentStore persists artifact versions and suggestions.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	LatestDocument(ctx context.Context, id string) (*models.Document, error)
	SaveSuggestions(ctx context.Context, suggestions []models.Suggestion) error
}

const documentNotFound = "Document not found"

type artifactTools struct {
	docs   DocumentStore
	models ModelProvider
	model  string
	logger *slog.Logger
}

type createDocumentParams struct {
	Title string              `json:"title"`
	Kind  models.DocumentKind `json:"kind"`
}

type updateDocumentParams struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type suggestionsParams struct {
	DocumentID string `json:"documentId"`
}

type documentResult struct {
	ID      string              `json:"id,omitempty"`
	Title   string              `json:"title,omitempty"`
	Kind    models.DocumentKind `json:"kind,omitempty"`
	Content string              `json:"content,omitempty"`
	Message string              `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func (a *artifactTools) createTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: ToolCreateDocument,
		Desc: "Create a document for a writing or content creation activities. " +
			"This tool will call other functions that will generate the contents of the document based on the title and kind.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"title": {Desc: "Title of the document", Type: schema.String, Required: true},
			"kind": {
				Desc:     "Kind of the document",
				Type:     schema.String,
				Enum:     []string{string(models.DocumentText), string(models.DocumentCode), string(models.DocumentSheet)},
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, a.create)
}

func (a *artifactTools) updateTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: ToolUpdateDocument,
		Desc: "Update a document with the given description.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"id":          {Desc: "The ID of the document to update", Type: schema.String, Required: true},
			"description": {Desc: "The description of changes that need to be made", Type: schema.String, Required: true},
		}),
	}
	return utils.NewTool(info, a.update)
}

func (a *artifactTools) suggestionsTool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: ToolRequestSuggestions,
		Desc: "Request suggestions for a document",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"documentId": {Desc: "The ID of the document to request edits", Type: schema.String, Required: true},
		}),
	}
	return utils.NewTool(info, a.suggest)
}

func (a *artifactTools) create(ctx context.Context, params *createDocumentParams) (*documentResult, error) {
	if params == nil || strings.TrimSpace(params.Title) == "" {
		return nil, errors.New("title is required")
	}
	kind := params.Kind
	switch kind {
	case models.DocumentText, models.DocumentCode, models.DocumentSheet:
	default:
		return nil, fmt.Errorf("unsupported document kind %q", kind)
	}
	tc := ToolContextFrom(ctx)
	if tc.Principal.ID == "" {
		return nil, errors.New("documents require a signed in user")
	}

	id := uuid.NewString()
	tc.Emit(models.DataFrame("kind", kind, true))
	tc.Emit(models.DataFrame("id", id, true))
	tc.Emit(models.DataFrame("title", params.Title, true))
	tc.Emit(models.DataFrame("clear", nil, true))

	content, err := a.generate(ctx, kind, artifactPrompt(kind), params.Title)
	if err != nil {
		return nil, err
	}
	doc := &models.Document{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Title:     params.Title,
		Content:   content,
		Kind:      kind,
		UserID:    tc.Principal.ID,
	}
	if err := a.docs.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	tc.Emit(models.DataFrame("finish", nil, true))

	return &documentResult{
		ID:      id,
		Title:   params.Title,
		Kind:    kind,
		Content: "A document was created and is now visible to the user.",
	}, nil
}

func (a *artifactTools) update(ctx context.Context, params *updateDocumentParams) (*documentResult, error) {
	if params == nil || params.ID == "" {
		return nil, errors.New("id is required")
	}
	tc := ToolContextFrom(ctx)
	current, err := a.docs.LatestDocument(ctx, params.ID)
	if errors.Is(err, store.ErrNotFound) {
		return &documentResult{Error: documentNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if current.UserID != tc.Principal.ID {
		return &documentResult{Error: documentNotFound}, nil
	}

	tc.Emit(models.DataFrame("clear", nil, true))
	content, err := a.generate(ctx, current.Kind, updateDocumentPrompt(current.Content, current.Kind), params.Description)
	if err != nil {
		return nil, err
	}
	next := *current
	next.Content = content
	next.CreatedAt = time.Now().UTC()
	if !next.CreatedAt.After(current.CreatedAt) {
		next.CreatedAt = current.CreatedAt.Add(time.Millisecond)
	}
	if err := a.docs.SaveDocument(ctx, &next); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	tc.Emit(models.DataFrame("finish", nil, true))

	return &documentResult{
		ID:      current.ID,
		Title:   current.Title,
		Kind:    current.Kind,
		Content: "The document has been updated successfully.",
	}, nil
}

type suggestionWire struct {
	OriginalSentence  string `json:"originalSentence"`
	SuggestedSentence string `json:"suggestedSentence"`
	Description       string `json:"description"`
}

func (a *artifactTools) suggest(ctx context.Context, params *suggestionsParams) (*documentResult, error) {
	if params == nil || params.DocumentID == "" {
		return nil, errors.New("documentId is required")
	}
	tc := ToolContextFrom(ctx)
	doc, err := a.docs.LatestDocument(ctx, params.DocumentID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && doc.UserID != tc.Principal.ID) {
		return &documentResult{Error: documentNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	chatModel, err := a.models.ChatModel(ctx, a.model, 0)
	if err != nil {
		return nil, fmt.Errorf("artifact model: %w", err)
	}
	resp, err := chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(suggestionsPrompt),
		schema.UserMessage(doc.Content),
	})
	if err != nil {
		return nil, fmt.Errorf("request suggestions: %w", err)
	}
	proposed, err := parseSuggestions(resp.Content)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	suggestions := make([]models.Suggestion, 0, len(proposed))
	for _, p := range proposed {
		s := models.Suggestion{
			ID:                uuid.NewString(),
			DocumentID:        doc.ID,
			DocumentCreatedAt: doc.CreatedAt,
			OriginalText:      p.OriginalSentence,
			SuggestedText:     p.SuggestedSentence,
			Description:       p.Description,
			UserID:            tc.Principal.ID,
			CreatedAt:         now,
		}
		tc.Emit(models.DataFrame("suggestion", s, true))
		suggestions = append(suggestions, s)
	}
	if err := a.docs.SaveSuggestions(ctx, suggestions); err != nil {
		return nil, fmt.Errorf("save suggestions: %w", err)
	}
	return &documentResult{
		ID:      doc.ID,
		Title:   doc.Title,
		Kind:    doc.Kind,
		Message: "Suggestions have been added to the document",
	}, nil
}

// parseSuggestions accepts a bare JSON array, optionally wrapped in a code fence.
func parseSuggestions(raw string) ([]suggestionWire, error) {
	raw = strings.TrimSpace(raw)
	if start, end := strings.IndexByte(raw, '['), strings.LastIndexByte(raw, ']'); start >= 0 && end > start {
		raw = raw[start : end+1]
	}
	var out []suggestionWire
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}
	if len(out) > 5 {
		out = out[:5]
	}
	return out, nil
}

// generate streams the artifact model and mirrors its output as <kind>Delta
// frames. Text documents stream deltas; code and sheets stream the full
// content so far.
func (a *artifactTools) generate(ctx context.Context, kind models.DocumentKind, system, prompt string) (string, error) {
	chatModel, err := a.models.ChatModel(ctx, a.model, 0)
	if err != nil {
		return "", fmt.Errorf("artifact model: %w", err)
	}
	reader, err := chatModel.Stream(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(prompt),
	})
	if err != nil {
		return "", fmt.Errorf("generate document: %w", err)
	}
	defer reader.Close()

	tc := ToolContextFrom(ctx)
	frame := string(kind) + "Delta"
	var content strings.Builder
	for {
		chunk, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("generate document: %w", err)
		}
		if chunk.Content == "" {
			continue
		}
		content.WriteString(chunk.Content)
		if kind == models.DocumentText {
			tc.Emit(models.DataFrame(frame, chunk.Content, true))
		} else {
			tc.Emit(models.DataFrame(frame, content.String(), true))
		}
	}
	return content.String(), nil
}
