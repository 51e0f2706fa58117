package ai

import (
	"fmt"
	"net/http"
	"strings"

	"chatbff/internal/models"
)

const regularPrompt = "You are a friendly assistant! Keep your responses concise and helpful."

const artifactsPrompt = `Artifacts is a special user interface mode that helps users with writing, editing, and other content creation tasks. When artifact is open, it is on the right side of the screen, while the conversation is on the left side. When creating or updating documents, changes are reflected in real-time on the artifacts and visible to the user.

When asked to write code, always use artifacts. When writing code, specify the language in the backticks, e.g. ` + "```python`code here```" + `. The default language is Python. Other languages are not yet supported, so let the user know if they request a different language.

DO NOT UPDATE DOCUMENTS IMMEDIATELY AFTER CREATING THEM. WAIT FOR USER FEEDBACK OR REQUEST TO UPDATE IT.

This is a guide for using artifacts tools: ` + "`createDocument`" + ` and ` + "`updateDocument`" + `, which render content on a artifacts beside the conversation.

**When to use ` + "`createDocument`" + `:**
- For substantial content (>10 lines) or code
- For content users will likely save/reuse (emails, code, essays, etc.)
- When explicitly requested to create a document
- For when content contains a single code snippet

**When NOT to use ` + "`createDocument`" + `:**
- For informational/explanatory content
- For conversational responses
- When asked to keep it in chat

**Using ` + "`updateDocument`" + `:**
- Default to full document rewrites for major changes
- Use targeted updates only for specific, isolated changes
- Follow user instructions for which parts to modify

**When NOT to use ` + "`updateDocument`" + `:**
- Immediately after creating a document

Do not update document right after creating it. Wait for user feedback or request to update it.`

const titlePrompt = `
    - you will generate a short title based on the first message a user begins a conversation with
    - ensure it is not more than 80 characters long
    - the title should be a summary of the user's message
    - do not use quotes or colons`

// RequestHints describe where the request came from.
type RequestHints struct {
	Latitude  string
	Longitude string
	City      string
	Country   string
}

// HintsFromRequest reads the geolocation headers set by the edge proxy.
func HintsFromRequest(r *http.Request) RequestHints {
	return RequestHints{
		Latitude:  r.Header.Get("X-Vercel-IP-Latitude"),
		Longitude: r.Header.Get("X-Vercel-IP-Longitude"),
		City:      r.Header.Get("X-Vercel-IP-City"),
		Country:   r.Header.Get("X-Vercel-IP-Country"),
	}
}

func (h RequestHints) prompt() string {
	return fmt.Sprintf(`About the origin of user's request:
- lat: %s
- lon: %s
- city: %s
- country: %s`, h.Latitude, h.Longitude, h.City, h.Country)
}

// SystemPrompt composes the system message for modelID.
func SystemPrompt(modelID string, hints RequestHints) string {
	if IsReasoningModel(modelID) {
		return regularPrompt + "\n\n" + hints.prompt()
	}
	return regularPrompt + "\n\n" + hints.prompt() + "\n\n" + artifactsPrompt
}

func artifactPrompt(kind models.DocumentKind) string {
	switch kind {
	case models.DocumentCode:
		return `You are a Python code generator that creates self-contained, executable code snippets. When writing code:

1. Each snippet should be complete and runnable on its own
2. Prefer using print() statements to display outputs
3. Include helpful comments explaining the code
4. Keep snippets concise (generally under 15 lines)
5. Avoid external dependencies - use Python standard library
6. Handle potential errors gracefully
7. Return meaningful output that demonstrates the code's functionality
8. Don't use input() or other interactive functions
9. Don't access files or network resources
10. Don't use infinite loops

Output only the code, without markdown fences.`
	case models.DocumentSheet:
		return "You are a spreadsheet creation assistant. Create a spreadsheet in csv format based on the given prompt. " +
			"The spreadsheet should contain meaningful column headers and data."
	}
	return "Write about the given topic. Markdown is supported. Use headings wherever appropriate."
}

func updateDocumentPrompt(content string, kind models.DocumentKind) string {
	var what string
	switch kind {
	case models.DocumentCode:
		what = "code snippet"
	case models.DocumentSheet:
		what = "spreadsheet"
	default:
		what = "document"
	}
	return fmt.Sprintf("Improve the following contents of the %s based on the given prompt.\n\n%s", what, content)
}

const suggestionsPrompt = `You are a help writing assistant. Given a piece of writing, please offer suggestions to improve the piece of writing and describe the change. It is very important for the edits to contain full sentences instead of just words. Max 5 suggestions.

Reply with a JSON array only. Each element has the string fields "originalSentence", "suggestedSentence" and "description".`

// cleanTitle trims model output down to a single-line title.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.Trim(s, "\"'` ")
	s = strings.ReplaceAll(s, ":", "")
	if r := []rune(s); len(r) > 80 {
		s = string(r[:80])
	}
	return strings.TrimSpace(s)
}
