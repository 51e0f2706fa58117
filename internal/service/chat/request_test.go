package chat

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbff/internal/models"
)

func TestRequestDecodeAndValidate(t *testing.T) {
	body := `{
		"id": "c1",
		"message": {
			"id": "m1",
			"role": "user",
			"parts": [
				{"type": "text", "text": "What is in this picture?"},
				{"type": "file", "url": "http://localhost:8090/blobs/cat.png", "mediaType": "image/png", "filename": "cat.png"}
			]
		},
		"selectedChatModel": "chat-model",
		"selectedVisibilityType": "private",
		"searchEnabled": true
	}`
	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.NoError(t, req.Validate())
	assert.True(t, req.SearchEnabled)
	assert.False(t, req.IncognitoMode)
	require.Len(t, req.Message.Parts, 2)
	assert.Equal(t, models.PartFile, req.Message.Parts[1].Type)
}

func TestRequestValidateRejects(t *testing.T) {
	valid := func() Request { return newRequest("c1", "hello") }

	cases := map[string]func(r *Request){
		"missing id":         func(r *Request) { r.ID = "" },
		"missing message id": func(r *Request) { r.Message.ID = "" },
		"assistant role":     func(r *Request) { r.Message.Role = models.RoleAssistant },
		"no parts":           func(r *Request) { r.Message.Parts = nil },
		"empty text":         func(r *Request) { r.Message.Parts = []models.Part{models.TextPart("")} },
		"long text":          func(r *Request) { r.Message.Parts = []models.Part{models.TextPart(strings.Repeat("a", 2001))} },
		"file without url":   func(r *Request) { r.Message.Parts = []models.Part{{Type: models.PartFile}} },
		"reasoning part":     func(r *Request) { r.Message.Parts = []models.Part{{Type: models.PartReasoning, Text: "x"}} },
		"no model":           func(r *Request) { r.SelectedChatModel = "" },
		"bad visibility":     func(r *Request) { r.SelectedVisibilityType = "team" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := valid()
			mutate(&r)
			assert.Error(t, r.Validate())
		})
	}

	r := valid()
	r.Message.Parts = []models.Part{models.TextPart(strings.Repeat("é", 2000))}
	assert.NoError(t, r.Validate())
}
