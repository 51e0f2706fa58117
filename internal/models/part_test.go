package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePartToolPrefix(t *testing.T) {
	raw := []byte(`{"type":"tool-getWeather","toolCallId":"call_1","state":"output-available","input":{"latitude":1},"output":{"temp":20}}`)

	part, err := ParsePart(raw)
	require.NoError(t, err)
	require.Equal(t, PartToolInvocation, part.Type)
	require.NotNil(t, part.Tool)
	assert.Equal(t, "getWeather", part.Tool.ToolName)
	assert.Equal(t, "call_1", part.Tool.ToolCallID)
	assert.JSONEq(t, `{"temp":20}`, string(part.Tool.Output))

	out, err := json.Marshal(part)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(out))
}

func TestParsePartLegacyToolInvocation(t *testing.T) {
	raw := []byte(`{"type":"tool-invocation","toolInvocation":{"toolName":"createDocument","toolCallId":"c9","state":"result","args":{"title":"x"},"result":{"id":"d1"}}}`)

	part, err := ParsePart(raw)
	require.NoError(t, err)
	require.Equal(t, PartToolInvocation, part.Type)
	assert.Equal(t, "createDocument", part.Tool.ToolName)
	assert.Equal(t, ToolStateOutputAvailable, part.Tool.State)

	out, err := json.Marshal(part)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool-createDocument","toolCallId":"c9","state":"output-available","input":{"title":"x"},"output":{"id":"d1"}}`, string(out))
}

func TestParsePartUnknownTypeIsLossless(t *testing.T) {
	raw := []byte(`{"type":"step-start","extra":[1,2]}`)

	part, err := ParsePart(raw)
	require.NoError(t, err)
	assert.Equal(t, PartData, part.Type)
	assert.False(t, part.IsModelVisible())

	out, err := json.Marshal(part)
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(out))
}

func TestParsePartRejectsMissingType(t *testing.T) {
	_, err := ParsePart([]byte(`{"text":"hi"}`))
	assert.Error(t, err)
}

func TestMessageRoundTripIsStable(t *testing.T) {
	in := []byte(`{"id":"m1","role":"user","parts":[
		{"type":"text","text":"hello"},
		{"type":"file","url":"https://example.com/a.pdf","mediaType":"application/pdf","filename":"a.pdf"},
		{"type":"tool-web_search","toolCallId":"t1","state":"input-available","input":{"query":"go"}},
		{"type":"data-chat-title","data":"Hi"}
	],"attachments":[],"createdAt":"2024-01-01T00:00:00Z"}`)

	var first Message
	require.NoError(t, json.Unmarshal(in, &first))
	once, err := json.Marshal(first)
	require.NoError(t, err)

	var second Message
	require.NoError(t, json.Unmarshal(once, &second))
	twice, err := json.Marshal(second)
	require.NoError(t, err)

	assert.Equal(t, string(once), string(twice))
}

func TestPersistentPartsDropsDataParts(t *testing.T) {
	msg := Message{Parts: []Part{
		TextPart("answer"),
		{Type: PartData, Data: &DataPart{Name: "image", Payload: json.RawMessage(`"u"`), Transient: true}},
		{Type: PartData, Data: &DataPart{Name: "step-start", Raw: json.RawMessage(`{"type":"step-start"}`)}},
	}}

	kept := msg.PersistentParts()
	require.Len(t, kept, 2)
	assert.Equal(t, PartText, kept[0].Type)
	assert.Equal(t, "step-start", kept[1].Data.Name)
}
