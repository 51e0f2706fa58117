package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	goopenai "github.com/sashabaranov/go-openai"

	"chatbff/internal/blob"
	"chatbff/internal/config"
	"chatbff/internal/models"
)

// ImageGenerator is the part of the OpenAI client used for images.
type ImageGenerator interface {
	CreateImage(ctx context.Context, req goopenai.ImageRequest) (goopenai.ImageResponse, error)
}

// BlobPutter stores bytes and returns their public location.
type BlobPutter interface {
	Put(ctx context.Context, pathname string, data []byte, contentType string) (*blob.Blob, error)
}

type imageTool struct {
	images  ImageGenerator
	blobs   BlobPutter
	model   string
	limiter *userLimiter
	logger  *slog.Logger
	now     func() time.Time
}

type imageParams struct {
	Prompt string `json:"prompt"`
}

type imageResult struct {
	Success  bool   `json:"success"`
	ImageURL string `json:"imageUrl"`
	Message  string `json:"message"`
}

func newImageTool(images ImageGenerator, blobs BlobPutter, cfg config.ToolsConfig, logger *slog.Logger) tool.InvokableTool {
	model := cfg.ImageModel
	if model == "" {
		model = goopenai.CreateImageModelDallE3
	}
	t := &imageTool{
		images:  images,
		blobs:   blobs,
		model:   model,
		limiter: newUserLimiter(cfg.ImagesPerMinute),
		logger:  logger,
		now:     time.Now,
	}
	info := &schema.ToolInfo{
		Name: ToolGenerateImage,
		Desc: "Generate, create, or make an image, picture, photo, or illustration based on a text description. " +
			"Use this tool whenever the user asks to create, generate, draw, make, or produce any kind of visual image.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"prompt": {
				Desc: "A detailed text description of the image to generate. Be as descriptive as possible " +
					"about the subject, style, colors, composition, and mood.",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, t.run)
}

func (t *imageTool) run(ctx context.Context, params *imageParams) (*imageResult, error) {
	if t.images == nil || t.blobs == nil {
		return nil, errors.New("image generation is not configured")
	}
	if params == nil || strings.TrimSpace(params.Prompt) == "" {
		return nil, errors.New("prompt must not be empty")
	}
	tc := ToolContextFrom(ctx)
	if !t.limiter.Allow(tc.Principal.ID) {
		return nil, errors.New("image generation rate limit exceeded, please retry in a minute")
	}

	resp, err := t.images.CreateImage(ctx, goopenai.ImageRequest{
		Prompt:         params.Prompt,
		Model:          t.model,
		N:              1,
		Size:           goopenai.CreateImageSize1024x1024,
		ResponseFormat: goopenai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("generate image: empty response")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	name := fmt.Sprintf("generated-%d.png", t.now().UnixMilli())
	stored, err := t.blobs.Put(ctx, name, data, "image/png")
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	t.logger.Info("image generated", "url", stored.URL, "bytes", len(data))

	tc.Emit(models.DataFrame("image", stored.URL, true))
	return &imageResult{
		Success:  true,
		ImageURL: stored.URL,
		Message:  "Image generated successfully",
	}, nil
}

// NewOpenAIClient builds the go-openai client used for images and speech from
// the "openai" provider entry. It returns nil when no API key is configured.
func NewOpenAIClient(cfg *config.Config) *goopenai.Client {
	prov, ok := cfg.Providers["openai"]
	if !ok || prov.APIKey == "" {
		return nil
	}
	clientCfg := goopenai.DefaultConfig(prov.APIKey)
	if prov.BaseURL != "" {
		clientCfg.BaseURL = prov.BaseURL
	}
	return goopenai.NewClientWithConfig(clientCfg)
}
