package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"chatbff/internal/memory"
)

type memoryTools struct {
	client *memory.Client
}

type searchMemoriesParams struct {
	InformationToGet string `json:"informationToGet"`
}

type addMemoryParams struct {
	Memory string `json:"memory"`
}

type searchMemoriesResult struct {
	Success bool            `json:"success"`
	Results []memory.Memory `json:"results"`
	Count   int             `json:"count"`
}

type addMemoryResult struct {
	Success bool   `json:"success"`
	ID      string `json:"memoryId,omitempty"`
}

func newMemoryTools(client *memory.Client) map[string]tool.InvokableTool {
	m := &memoryTools{client: client}
	return map[string]tool.InvokableTool{
		ToolSearchMemories: utils.NewTool(&schema.ToolInfo{
			Name: ToolSearchMemories,
			Desc: "Search (recall) memories/details/information about the user or other facts or entities. Run when explicitly asked or when context about user's past choices would be helpful.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"informationToGet": {Desc: "Terms to search for in the user's memories", Type: schema.String, Required: true},
			}),
		}, m.search),
		ToolAddMemory: utils.NewTool(&schema.ToolInfo{
			Name: ToolAddMemory,
			Desc: "Add (remember) memories/details/information about the user or other facts or entities. Run when explicitly asked or when the user mentions any information generalizable beyond the context of the current conversation.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"memory": {Desc: "The text content of the memory to add", Type: schema.String, Required: true},
			}),
		}, m.add),
	}
}

func (m *memoryTools) search(ctx context.Context, params *searchMemoriesParams) (*searchMemoriesResult, error) {
	if params == nil || strings.TrimSpace(params.InformationToGet) == "" {
		return nil, errors.New("informationToGet is required")
	}
	tc := ToolContextFrom(ctx)
	if tc.Principal.ID == "" {
		return nil, errors.New("memories require a signed in user")
	}
	results, err := m.client.Search(ctx, tc.Principal.ID, params.InformationToGet)
	if err != nil {
		return nil, err
	}
	return &searchMemoriesResult{Success: true, Results: results, Count: len(results)}, nil
}

func (m *memoryTools) add(ctx context.Context, params *addMemoryParams) (*addMemoryResult, error) {
	if params == nil || strings.TrimSpace(params.Memory) == "" {
		return nil, errors.New("memory is required")
	}
	tc := ToolContextFrom(ctx)
	if tc.Principal.ID == "" {
		return nil, errors.New("memories require a signed in user")
	}
	id, err := m.client.Add(ctx, tc.Principal.ID, params.Memory, tc.ChatID)
	if err != nil {
		return nil, err
	}
	return &addMemoryResult{Success: true, ID: id}, nil
}
