// Package llm provides concrete model.Client adapters over real provider
// SDKs, implementing the injected promptAiSdk* capability the Agent Loop
// (C6) consumes only through the model.Client/model.Streamer interfaces.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/flowctl/agentrt/model"
	"github.com/flowctl/agentrt/tools"
)

// AnthropicClient adapts anthropic-sdk-go to model.Client.
type AnthropicClient struct {
	client       anthropic.Client
	defaultModel string
}

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// NewAnthropicClient constructs an AnthropicClient. APIKey is required.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: anthropic API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Complete drains Stream into a single Response. Most callers in this
// runtime use Stream directly so the Stream Parser (C2) can observe tokens
// as they arrive; Complete exists for capabilities (e.g. the Agent Loop's
// direct-command classifier, spec.md §4.6) that need one-shot output.
func (c *AnthropicClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	streamer, err := c.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	resp := &model.Response{}
	var text strings.Builder
	for {
		chunk, err := streamer.Recv()
		if errors.Is(err, errStreamDone) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch chunk.Type {
		case model.ChunkTypeText:
			if chunk.Message != nil {
				for _, p := range chunk.Message.Parts {
					if tp, ok := p.(model.TextPart); ok {
						text.WriteString(tp.Text)
					}
				}
			}
		case model.ChunkTypeToolCall:
			if chunk.ToolCall != nil {
				resp.ToolCalls = append(resp.ToolCalls, *chunk.ToolCall)
			}
		case model.ChunkTypeUsage:
			if chunk.UsageDelta != nil {
				resp.Usage = *chunk.UsageDelta
			}
		case model.ChunkTypeStop:
			resp.StopReason = chunk.StopReason
		}
	}
	if text.Len() > 0 {
		resp.Content = []model.Message{{
			Role:  model.ConversationRoleAssistant,
			Parts: []model.Part{model.TextPart{Text: text.String()}},
		}}
	}
	return resp, nil
}

// errStreamDone is the sentinel anthropicStreamer.Recv and openAIStreamer.Recv
// return once the final model.ChunkTypeStop chunk has been delivered. It
// wraps io.EOF, so callers that drain a model.Streamer until io.EOF stop
// cleanly.
var errStreamDone = fmt.Errorf("llm: stream done: %w", io.EOF)

// Stream implements model.Client.
func (c *AnthropicClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("llm: anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.modelOrDefault(req.Model)),
		Messages:  messages,
		MaxTokens: int64(maxTokensOrDefault(req.MaxTokens)),
	}
	if sys := systemText(req.Messages); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("llm: anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}
	if req.Thinking != nil && req.Thinking.Enable {
		budget := int64(req.Thinking.BudgetTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	return &anthropicStreamer{stream: stream, model: c.modelOrDefault(req.Model)}, nil
}

func (c *AnthropicClient) modelOrDefault(m string) string {
	if m == "" {
		return c.defaultModel
	}
	return m
}

func maxTokensOrDefault(n int) int {
	if n <= 0 {
		return 4096
	}
	return n
}

func systemText(messages []*model.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		if m.Role != model.ConversationRoleSystem {
			continue
		}
		for _, p := range m.Parts {
			if tp, ok := p.(model.TextPart); ok {
				sb.WriteString(tp.Text)
			}
		}
	}
	return sb.String()
}

func convertMessages(messages []*model.Message) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == model.ConversationRoleSystem {
			continue
		}
		var content []anthropic.ContentBlockParamUnion
		for _, p := range msg.Parts {
			switch v := p.(type) {
			case model.TextPart:
				content = append(content, anthropic.NewTextBlock(v.Text))
			case model.ToolUsePart:
				content = append(content, anthropic.NewToolUseBlock(v.ID, v.Input, v.Name))
			case model.ToolResultPart:
				text, _ := v.Content.(string)
				if text == "" {
					if raw, err := json.Marshal(v.Content); err == nil {
						text = string(raw)
					}
				}
				content = append(content, anthropic.NewToolResultBlock(v.ToolUseID, text, v.IsError))
			}
		}
		if len(content) == 0 {
			continue
		}
		if msg.Role == model.ConversationRoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(content...))
		} else {
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out, nil
}

func convertTools(defs []*model.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	var out []anthropic.ToolUnionParam
	for _, d := range defs {
		raw, err := json.Marshal(d.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", d.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", d.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, d.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(d.Description)
		}
		out = append(out, param)
	}
	return out, nil
}

type anthropicStreamer struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	model  string

	toolID    string
	toolName  string
	toolInput strings.Builder
	inTool    bool

	inputTokens  int
	outputTokens int
	finished     bool
}

func (s *anthropicStreamer) Recv() (model.Chunk, error) {
	for s.stream.Next() {
		event := s.stream.Current()
		switch event.Type {
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				tu := block.AsToolUse()
				s.toolID, s.toolName = tu.ID, tu.Name
				s.toolInput.Reset()
				s.inTool = true
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					return model.Chunk{Type: model.ChunkTypeText, Message: &model.Message{
						Role:  model.ConversationRoleAssistant,
						Parts: []model.Part{model.TextPart{Text: delta.Text}},
					}}, nil
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					return model.Chunk{Type: model.ChunkTypeThinking, Thinking: delta.Thinking}, nil
				}
			case "input_json_delta":
				s.toolInput.WriteString(delta.PartialJSON)
				return model.Chunk{
					Type: model.ChunkTypeToolCallDelta,
					ToolCallDelta: &model.ToolCallDelta{
						Name: tools.Ident(s.toolName), ID: s.toolID, Delta: delta.PartialJSON,
					},
				}, nil
			}
		case "content_block_stop":
			if s.inTool {
				s.inTool = false
				return model.Chunk{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{
					Name:    tools.Ident(s.toolName),
					ID:      s.toolID,
					Payload: json.RawMessage(s.toolInput.String()),
				}}, nil
			}
		case "message_start":
			if u := event.AsMessageStart().Message.Usage; u.InputTokens > 0 {
				s.inputTokens = int(u.InputTokens)
			}
		case "message_delta":
			if u := event.AsMessageDelta().Usage; u.OutputTokens > 0 {
				s.outputTokens = int(u.OutputTokens)
			}
		case "message_stop":
			s.finished = true
			return model.Chunk{
				Type:       model.ChunkTypeStop,
				StopReason: "end_turn",
				UsageDelta: &model.TokenUsage{
					InputTokens:  s.inputTokens,
					OutputTokens: s.outputTokens,
					TotalTokens:  s.inputTokens + s.outputTokens,
				},
			}, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return model.Chunk{}, model.NewProviderError("anthropic", "stream", 0, model.ProviderErrorKindUnknown, "", err.Error(), "", true, err)
	}
	if !s.finished {
		s.finished = true
		return model.Chunk{Type: model.ChunkTypeStop, StopReason: "end_turn"}, nil
	}
	return model.Chunk{}, errStreamDone
}

func (s *anthropicStreamer) Close() error { return s.stream.Close() }

func (s *anthropicStreamer) Metadata() map[string]any {
	return map[string]any{"model": s.model}
}
