package ai

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openai/openai-go"

	"github.com/zhouzirui/z-journal/backend/internal/model/chat"
)

// OpenAICompleter runs completions against the Chat Completions API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter wraps an existing client; model defaults to gpt-4o-mini.
func NewOpenAICompleter(client *openai.Client, model string) *OpenAICompleter {
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAICompleter{client: client, model: model}
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (chat.Message, error) {
	params := openai.ChatCompletionNewParams{
		Messages: buildOpenAIMessages(req),
		Model:    c.model,
	}
	if len(req.Tools) > 0 {
		params.Tools = buildOpenAITools(req.Tools)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return chat.Message{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return chat.Message{}, ErrEmptyResponse
	}

	choice := resp.Choices[0].Message
	msg := chat.Message{Role: chat.RoleAssistant, Content: choice.Content, CreatedAt: time.Now().UTC()}
	for _, call := range choice.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, chat.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		return chat.Message{}, ErrEmptyResponse
	}
	log.Printf("[ai] openai completion model=%s length=%d toolCalls=%d", c.model, len(msg.Content), len(msg.ToolCalls))
	return msg, nil
}

func buildOpenAIMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, msg := range req.History {
		switch msg.Role {
		case chat.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case chat.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case chat.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID:   call.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: calls,
				},
			})
		case chat.RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}
	return messages
}

func buildOpenAITools(tools []chat.Tool) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, tool := range tools {
		out[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(jsonSchema(tool)),
			},
		}
	}
	return out
}

// jsonSchema renders the tool arguments as a JSON schema object.
func jsonSchema(tool chat.Tool) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": tool.Parameters,
	}
	if len(tool.Required) > 0 {
		schema["required"] = tool.Required
	}
	return schema
}
