package ai

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudwego/eino/schema"
	goopenai "github.com/sashabaranov/go-openai"

	"chatbff/internal/models"
)

// TitleGenerator names new chats from their first user message.
type TitleGenerator struct {
	models  ModelProvider
	modelID string
}

func NewTitleGenerator(provider ModelProvider, modelID string) *TitleGenerator {
	return &TitleGenerator{models: provider, modelID: modelID}
}

func (g *TitleGenerator) GenerateTitle(ctx context.Context, message models.Message) (string, error) {
	text := message.TextContent()
	if text == "" {
		return models.PlaceholderTitle, nil
	}
	chatModel, err := g.models.ChatModel(ctx, g.modelID, 0)
	if err != nil {
		return "", fmt.Errorf("title model: %w", err)
	}
	resp, err := chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(titlePrompt),
		schema.UserMessage(text),
	})
	if err != nil {
		return "", fmt.Errorf("generate title failed: %w", err)
	}
	title := cleanTitle(resp.Content)
	if title == "" {
		return models.PlaceholderTitle, nil
	}
	return title, nil
}

// MinAudioBytes is the smallest upload accepted for transcription.
const MinAudioBytes = 100

// Transcriber is the part of the OpenAI client used for speech to text.
type Transcriber interface {
	CreateTranscription(ctx context.Context, req goopenai.AudioRequest) (goopenai.AudioResponse, error)
}

// Transcribe converts recorded audio to text with whisper-1.
func Transcribe(ctx context.Context, client Transcriber, audio io.Reader) (string, error) {
	resp, err := client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    goopenai.Whisper1,
		FilePath: "recording.m4a",
		Reader:   audio,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return resp.Text, nil
}
