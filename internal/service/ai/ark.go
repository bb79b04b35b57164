package ai

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-journal/backend/internal/model/chat"
)

// ChatModelFactory creates a fresh Ark chat model.
type ChatModelFactory func(ctx context.Context) (model.ChatModel, error)

// ArkCompleter runs completions through eino chains over Ark chat models.
// Tools are bound when the completer is built; a request that carries tools
// uses the tool-bound chain and one without tools uses the plain chain.
type ArkCompleter struct {
	plain     compose.Runnable[map[string]any, *schema.Message]
	withTools compose.Runnable[map[string]any, *schema.Message]
}

// NewArkCompleter compiles both chains. BindTools mutates the model, so the
// factory is called once per chain.
func NewArkCompleter(ctx context.Context, newModel ChatModelFactory, tools []chat.Tool) (*ArkCompleter, error) {
	plainModel, err := newModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	plain, err := compileChain(ctx, plainModel)
	if err != nil {
		return nil, err
	}

	c := &ArkCompleter{plain: plain, withTools: plain}
	if len(tools) == 0 {
		return c, nil
	}

	toolModel, err := newModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	if err := toolModel.BindTools(toToolInfos(tools)); err != nil {
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}
	if c.withTools, err = compileChain(ctx, toolModel); err != nil {
		return nil, err
	}
	return c, nil
}

func compileChain(ctx context.Context, chatModel model.ChatModel) (compose.Runnable[map[string]any, *schema.Message], error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return runnable, nil
}

// Complete implements Completer.
func (c *ArkCompleter) Complete(ctx context.Context, req Request) (chat.Message, error) {
	runnable := c.plain
	if len(req.Tools) > 0 {
		runnable = c.withTools
	}

	response, err := runnable.Invoke(ctx, map[string]any{
		"system":  req.System,
		"history": toSchemaMessages(req.History),
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("failed to run AI chain: %w", err)
	}

	msg := fromSchemaMessage(response)
	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		return chat.Message{}, ErrEmptyResponse
	}
	log.Printf("[ai] ark completion length=%d toolCalls=%d", len(msg.Content), len(msg.ToolCalls))
	return msg, nil
}

func toSchemaMessages(history []chat.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleUser:
			out = append(out, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			var calls []schema.ToolCall
			for _, call := range msg.ToolCalls {
				calls = append(calls, schema.ToolCall{
					ID:       call.ID,
					Type:     "function",
					Function: schema.FunctionCall{Name: call.Name, Arguments: call.Arguments},
				})
			}
			out = append(out, schema.AssistantMessage(msg.Content, calls))
		case chat.RoleTool:
			out = append(out, schema.ToolMessage(msg.Content, msg.ToolCallID))
		case chat.RoleSystem:
			out = append(out, schema.SystemMessage(msg.Content))
		}
	}
	return out
}

func fromSchemaMessage(m *schema.Message) chat.Message {
	msg := chat.Message{Role: chat.RoleAssistant, CreatedAt: time.Now().UTC()}
	if m == nil {
		return msg
	}
	msg.Content = m.Content
	for _, call := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return msg
}

func toToolInfos(tools []chat.Tool) []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, tool := range tools {
		params := make(map[string]*schema.ParameterInfo, len(tool.Parameters))
		for name, raw := range tool.Parameters {
			spec, _ := raw.(map[string]any)
			info := &schema.ParameterInfo{Type: schema.String}
			if desc, ok := spec["description"].(string); ok {
				info.Desc = desc
			}
			if enum, ok := spec["enum"].([]string); ok {
				info.Enum = enum
			}
			for _, req := range tool.Required {
				if req == name {
					info.Required = true
				}
			}
			params[name] = info
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        tool.Name,
			Desc:        tool.Description,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos
}
