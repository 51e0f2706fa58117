package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbff/internal/blob"
	"chatbff/internal/config"
	"chatbff/internal/memory"
	"chatbff/internal/models"
	"chatbff/internal/store"
)

type fakeModel struct {
	reply string
}

func (f *fakeModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	var chunks []*schema.Message
	for _, word := range strings.SplitAfter(f.reply, " ") {
		chunks = append(chunks, schema.AssistantMessage(word, nil))
	}
	return schema.StreamReaderFromArray(chunks), nil
}

func (f *fakeModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return f, nil
}

type fakeProvider struct {
	model *fakeModel
}

func (p fakeProvider) ChatModel(ctx context.Context, id string, thinkingBudget int) (model.ToolCallingChatModel, error) {
	return p.model, nil
}

type memDocuments struct {
	mu          sync.Mutex
	docs        []models.Document
	suggestions []models.Suggestion
}

func (m *memDocuments) SaveDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, *doc)
	return nil
}

func (m *memDocuments) LatestDocument(ctx context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.docs) - 1; i >= 0; i-- {
		if m.docs[i].ID == id {
			d := m.docs[i]
			return &d, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memDocuments) SaveSuggestions(ctx context.Context, s []models.Suggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suggestions = append(m.suggestions, s...)
	return nil
}

type fakeImages struct {
	req goopenai.ImageRequest
}

func (f *fakeImages) CreateImage(ctx context.Context, req goopenai.ImageRequest) (goopenai.ImageResponse, error) {
	f.req = req
	return goopenai.ImageResponse{Data: []goopenai.ImageResponseDataInner{{
		B64JSON: base64.StdEncoding.EncodeToString([]byte("png-bytes")),
	}}}, nil
}

type frameRecorder struct {
	mu     sync.Mutex
	frames []models.Frame
}

func (r *frameRecorder) emit(f models.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *frameRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f.Type)
	}
	return out
}

func newTestRegistry(t *testing.T, reply string, mem *memory.Client) (*Registry, *memDocuments, *fakeImages) {
	t.Helper()
	blobs, err := blob.NewLocalStore(t.TempDir(), "http://localhost:8090/blobs")
	require.NoError(t, err)
	docs := &memDocuments{}
	images := &fakeImages{}
	reg := NewRegistry(context.Background(), Deps{
		Tools:         config.ToolsConfig{ImagesPerMinute: 5},
		Documents:     docs,
		Blobs:         blobs,
		Images:        images,
		Models:        fakeProvider{model: &fakeModel{reply: reply}},
		ArtifactModel: "artifact-model",
		Memory:        mem,
	})
	return reg, docs, images
}

func TestBuildReasoningModelHasNoTools(t *testing.T) {
	mem := memory.NewClient(config.MemoryConfig{BaseURL: "http://localhost", APIKey: "k"}, nil)
	reg, _, _ := newTestRegistry(t, "", mem)
	principal := &models.Principal{ID: "u1"}

	for _, id := range []string{"chat-model-reasoning", "gemini-thinking"} {
		ts, err := reg.Build(context.Background(), Request{
			ModelID: id, SearchEnabled: true, MemoryEnabled: true, Principal: principal,
		})
		require.NoError(t, err)
		assert.Empty(t, ts.Active, id)
		assert.Empty(t, ts.Tools, id)
		assert.False(t, ts.Smooth)
		assert.Equal(t, 10000, ts.ThinkingBudget)
	}
}

func TestBuildComposesToolSet(t *testing.T) {
	mem := memory.NewClient(config.MemoryConfig{BaseURL: "http://localhost", APIKey: "k"}, nil)
	reg, _, _ := newTestRegistry(t, "", mem)
	principal := &models.Principal{ID: "u1"}
	ctx := context.Background()

	ts, err := reg.Build(ctx, Request{ModelID: "chat-model", Principal: principal})
	require.NoError(t, err)
	assert.Equal(t, baselineTools, ts.Active)
	assert.True(t, ts.Smooth)
	assert.Len(t, ts.Infos, len(baselineTools))
	assert.Zero(t, ts.ThinkingBudget)

	ts, err = reg.Build(ctx, Request{ModelID: "chat-model", MemoryEnabled: true, Principal: principal})
	require.NoError(t, err)
	assert.True(t, ts.Memory)
	assert.Contains(t, ts.Active, ToolSearchMemories)
	assert.Contains(t, ts.Active, ToolAddMemory)

	ts, err = reg.Build(ctx, Request{ModelID: "chat-model", MemoryEnabled: true, Incognito: true, Principal: principal})
	require.NoError(t, err)
	assert.False(t, ts.Memory, "incognito disables memory")
	assert.NotContains(t, ts.Active, ToolSearchMemories)

	ts, err = reg.Build(ctx, Request{ModelID: "chat-model", MemoryEnabled: true})
	require.NoError(t, err)
	assert.NotContains(t, ts.Active, ToolAddMemory, "memory needs a principal")

	if reg.search != nil {
		ts, err = reg.Build(ctx, Request{ModelID: "chat-model", SearchEnabled: true})
		require.NoError(t, err)
		assert.Contains(t, ts.Active, ToolWebSearch)
	}
}

func TestBuildWithoutMemoryBackend(t *testing.T) {
	reg, _, _ := newTestRegistry(t, "", nil)
	ts, err := reg.Build(context.Background(), Request{
		ModelID: "chat-model", MemoryEnabled: true, Principal: &models.Principal{ID: "u1"},
	})
	require.NoError(t, err)
	assert.False(t, ts.Memory)
	assert.NotContains(t, ts.Active, ToolSearchMemories)
}

func TestGenerateImageStoresBlobAndEmitsFrame(t *testing.T) {
	reg, _, images := newTestRegistry(t, "", nil)
	rec := &frameRecorder{}
	ctx := WithToolContext(context.Background(), ToolContext{
		Principal: models.Principal{ID: "u1"},
		Emit:      rec.emit,
	})

	out, err := reg.baseline[ToolGenerateImage].InvokableRun(ctx, `{"prompt":"a red fox"}`)
	require.NoError(t, err)

	var result imageResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "Image generated successfully", result.Message)
	assert.True(t, strings.HasPrefix(result.ImageURL, "http://localhost:8090/blobs/generated-"))
	assert.Equal(t, goopenai.CreateImageModelDallE3, images.req.Model)
	assert.Equal(t, goopenai.CreateImageSize1024x1024, images.req.Size)

	require.Len(t, rec.frames, 1)
	assert.Equal(t, "data-image", rec.frames[0].Type)
	assert.Equal(t, result.ImageURL, rec.frames[0].Data)
	assert.True(t, rec.frames[0].Transient)
}

func TestDocumentToolsLifecycle(t *testing.T) {
	reg, docs, _ := newTestRegistry(t, "Hello brave new world", nil)
	rec := &frameRecorder{}
	ctx := WithToolContext(context.Background(), ToolContext{
		Principal: models.Principal{ID: "u1"},
		Emit:      rec.emit,
	})

	out, err := reg.baseline[ToolCreateDocument].InvokableRun(ctx, `{"title":"Plan","kind":"text"}`)
	require.NoError(t, err)
	var created documentResult
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.NotEmpty(t, created.ID)
	require.Len(t, docs.docs, 1)
	assert.Equal(t, "Hello brave new world", docs.docs[0].Content)

	types := rec.types()
	assert.Equal(t, []string{"data-kind", "data-id", "data-title", "data-clear"}, types[:4])
	assert.Equal(t, "data-textDelta", types[4])
	assert.Equal(t, "data-finish", types[len(types)-1])

	_, err = reg.baseline[ToolUpdateDocument].InvokableRun(ctx, `{"id":"`+created.ID+`","description":"shorter"}`)
	require.NoError(t, err)
	require.Len(t, docs.docs, 2)
	assert.True(t, docs.docs[1].CreatedAt.After(docs.docs[0].CreatedAt))

	out, err = reg.baseline[ToolUpdateDocument].InvokableRun(ctx, `{"id":"missing","description":"x"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Document not found"}`, out)
}

func TestRequestSuggestions(t *testing.T) {
	reply := "```json\n[{\"originalSentence\":\"a\",\"suggestedSentence\":\"b\",\"description\":\"c\"}]\n```"
	reg, docs, _ := newTestRegistry(t, reply, nil)
	require.NoError(t, docs.SaveDocument(context.Background(), &models.Document{ID: "d1", Title: "T", Kind: models.DocumentText, UserID: "u1"}))
	rec := &frameRecorder{}
	ctx := WithToolContext(context.Background(), ToolContext{Principal: models.Principal{ID: "u1"}, Emit: rec.emit})

	_, err := reg.baseline[ToolRequestSuggestions].InvokableRun(ctx, `{"documentId":"d1"}`)
	require.NoError(t, err)
	require.Len(t, docs.suggestions, 1)
	assert.Equal(t, "b", docs.suggestions[0].SuggestedText)
	assert.Equal(t, []string{"data-suggestion"}, rec.types())

	other := WithToolContext(context.Background(), ToolContext{Principal: models.Principal{ID: "u2"}})
	out, err := reg.baseline[ToolRequestSuggestions].InvokableRun(other, `{"documentId":"d1"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Document not found"}`, out)
}

func TestToolOutputJSON(t *testing.T) {
	assert.JSONEq(t, `{"a":1}`, string(ToolOutputJSON(` {"a":1} `)))
	assert.Equal(t, `"plain text"`, string(ToolOutputJSON("plain text")))
	assert.Equal(t, `""`, string(ToolOutputJSON("")))
}

func TestPromptsAndTitles(t *testing.T) {
	hints := RequestHints{Latitude: "1", Longitude: "2", City: "Oslo", Country: "NO"}
	regular := SystemPrompt("chat-model", hints)
	assert.Contains(t, regular, "city: Oslo")
	assert.Contains(t, regular, "createDocument")
	assert.NotContains(t, SystemPrompt("chat-model-reasoning", hints), "createDocument")

	assert.Equal(t, "Trip to Oslo", cleanTitle("\"Trip to: Oslo\"\nextra"))
	assert.Len(t, []rune(cleanTitle(strings.Repeat("x", 120))), 80)
}

type fakeTranscriber struct {
	req goopenai.AudioRequest
	err error
}

func (f *fakeTranscriber) CreateTranscription(ctx context.Context, req goopenai.AudioRequest) (goopenai.AudioResponse, error) {
	f.req = req
	return goopenai.AudioResponse{Text: "hello there"}, f.err
}

func TestTranscribeUsesWhisper(t *testing.T) {
	tr := &fakeTranscriber{}
	text, err := Transcribe(context.Background(), tr, strings.NewReader("audio"))
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
	assert.Equal(t, goopenai.Whisper1, tr.req.Model)
	assert.Equal(t, "recording.m4a", tr.req.FilePath)

	tr.err = errors.New("boom")
	_, err = Transcribe(context.Background(), tr, strings.NewReader("audio"))
	assert.Error(t, err)
}

func TestTitleGenerator(t *testing.T) {
	gen := NewTitleGenerator(fakeProvider{model: &fakeModel{reply: "Weather in Paris"}}, "title-model")
	title, err := gen.GenerateTitle(context.Background(), models.Message{
		Role: models.RoleUser, Parts: []models.Part{models.TextPart("what's the weather in paris?")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Weather in Paris", title)

	title, err = gen.GenerateTitle(context.Background(), models.Message{Role: models.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, models.PlaceholderTitle, title)
}
