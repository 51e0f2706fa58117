// Package normalize turns stored and inbound messages into the canonical form
// used for model input.
package normalize

import (
	"bytes"
	"context"
	"encoding/base64"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"chatbff/internal/metrics"
	"chatbff/internal/models"
)

// Normalizer resolves file parts and projects messages onto model input.
type Normalizer struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// New builds a normalizer. local may be nil; remote handles every URL local
// does not serve.
func New(local, remote Fetcher, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{fetcher: chain{local: local, remote: remote}, logger: logger}
}

type fileRef struct {
	msg, part int
}

// Normalize returns history followed by msg with every file part resolved.
// Parts whose content cannot be fetched are dropped. Inputs are not modified.
func (n *Normalizer) Normalize(ctx context.Context, history []models.Message, msg models.Message) []models.Message {
	out := make([]models.Message, 0, len(history)+1)
	for _, m := range history {
		out = append(out, cloneMessage(m))
	}
	out = append(out, cloneMessage(msg))

	var refs []fileRef
	for i := range out {
		for j, p := range out[i].Parts {
			if p.Type == models.PartFile {
				refs = append(refs, fileRef{msg: i, part: j})
			}
		}
	}
	if len(refs) == 0 {
		return out
	}

	failed := make([]bool, len(refs))
	g := new(errgroup.Group)
	g.SetLimit(fetchConcurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			part := &out[ref.msg].Parts[ref.part]
			data, mediaType, err := n.fetcher.Fetch(ctx, part.URL)
			if err != nil {
				n.logger.Warn("dropping file part", "url", part.URL, "error", err)
				failed[i] = true
				return nil
			}
			part.Content = data
			if part.MediaType == "" {
				part.MediaType = baseMediaType(mediaType)
			}
			return nil
		})
	}
	_ = g.Wait()

	drop := make(map[fileRef]bool)
	for i, ref := range refs {
		if failed[i] {
			drop[ref] = true
			metrics.DroppedAttachments.Inc()
		}
	}
	if len(drop) == 0 {
		return out
	}
	for i := range out {
		kept := out[i].Parts[:0]
		for j, p := range out[i].Parts {
			if drop[fileRef{msg: i, part: j}] {
				continue
			}
			kept = append(kept, p)
		}
		out[i].Parts = kept
	}
	return out
}

func cloneMessage(m models.Message) models.Message {
	parts := make([]models.Part, len(m.Parts))
	copy(parts, m.Parts)
	m.Parts = parts
	return m
}

func baseMediaType(v string) string {
	mediaType, _, _ := strings.Cut(v, ";")
	return strings.TrimSpace(mediaType)
}

// ToModelMessages projects canonical messages onto model input. Only text,
// file and image parts are kept; messages left empty are skipped.
func ToModelMessages(ctx context.Context, msgs []models.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		var parts []schema.ChatMessagePart
		for _, p := range m.Parts {
			if !p.IsModelVisible() {
				continue
			}
			if mp, ok := modelPart(ctx, p); ok {
				parts = append(parts, mp)
			}
		}
		if len(parts) == 0 {
			continue
		}

		msg := &schema.Message{Role: modelRole(m.Role)}
		if allText(parts) || msg.Role != schema.User {
			var b strings.Builder
			for _, mp := range parts {
				if mp.Type == schema.ChatMessagePartTypeText {
					b.WriteString(mp.Text)
				}
			}
			msg.Content = b.String()
			if msg.Content == "" {
				continue
			}
		} else {
			msg.MultiContent = parts
		}
		out = append(out, msg)
	}
	return out
}

func modelRole(r models.Role) schema.RoleType {
	switch r {
	case models.RoleAssistant:
		return schema.Assistant
	case models.RoleSystem:
		return schema.System
	}
	return schema.User
}

func allText(parts []schema.ChatMessagePart) bool {
	for _, p := range parts {
		if p.Type != schema.ChatMessagePartTypeText {
			return false
		}
	}
	return true
}

func modelPart(ctx context.Context, p models.Part) (schema.ChatMessagePart, bool) {
	switch p.Type {
	case models.PartText:
		if p.Text == "" {
			return schema.ChatMessagePart{}, false
		}
		return schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: p.Text}, true

	case models.PartImage:
		return schema.ChatMessagePart{
			Type:     schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{URL: p.URL, MIMEType: p.MediaType},
		}, true

	case models.PartFile:
		if len(p.Content) == 0 {
			return schema.ChatMessagePart{}, false
		}
		if isTextLike(p.MediaType) {
			text, err := decodeText(ctx, p.Content)
			if err != nil || text == "" {
				return schema.ChatMessagePart{}, false
			}
			if p.Filename != "" {
				text = p.Filename + ":\n" + text
			}
			return schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: text}, true
		}
		dataURL := "data:" + p.MediaType + ";base64," + base64.StdEncoding.EncodeToString(p.Content)
		if strings.HasPrefix(p.MediaType, "image/") {
			return schema.ChatMessagePart{
				Type:     schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{URL: dataURL, MIMEType: p.MediaType},
			}, true
		}
		return schema.ChatMessagePart{
			Type:    schema.ChatMessagePartTypeFileURL,
			FileURL: &schema.ChatMessageFileURL{URL: dataURL, MIMEType: p.MediaType, Name: p.Filename},
		}, true
	}
	return schema.ChatMessagePart{}, false
}

func isTextLike(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/") || mediaType == "application/json"
}

func decodeText(ctx context.Context, content []byte) (string, error) {
	docs, err := parser.TextParser{}.Parse(ctx, bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, d := range docs {
		b.WriteString(d.Content)
	}
	return strings.TrimSpace(b.String()), nil
}
