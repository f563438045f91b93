package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/flowctl/agentrt/model"
	"github.com/flowctl/agentrt/tools"
)

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// OpenAIClient adapts openai-go's Chat Completions API to model.Client,
// mirroring AnthropicClient's shape so the Agent Loop (C6) can swap
// providers without caring which one backs a given AgentTemplate.Model.
type OpenAIClient struct {
	client       openai.Client
	defaultModel string
}

// NewOpenAIClient constructs an OpenAIClient. APIKey is required.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: openai API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), defaultModel: cfg.DefaultModel}, nil
}

// Complete implements model.Client.
func (c *OpenAIClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("llm: openai: messages are required")
	}
	params, err := c.newParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapOpenAIError("chat.completions.create", err)
	}
	return translateCompletion(resp), nil
}

// Stream implements model.Client.
func (c *OpenAIClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("llm: openai: messages are required")
	}
	params, err := c.newParams(req)
	if err != nil {
		return nil, err
	}
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	return &openAIStreamer{stream: stream, model: c.modelOrDefault(req.Model)}, nil
}

func (c *OpenAIClient) modelOrDefault(m string) string {
	if m == "" {
		return c.defaultModel
	}
	return m
}

func (c *OpenAIClient) newParams(req *model.Request) (openai.ChatCompletionNewParams, error) {
	messages, err := convertOpenAIMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("llm: openai: convert messages: %w", err)
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.modelOrDefault(req.Model)),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if len(req.Tools) > 0 {
		tools, err := convertOpenAITools(req.Tools)
		if err != nil {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("llm: openai: convert tools: %w", err)
		}
		params.Tools = tools
	}
	return params, nil
}

func convertOpenAIMessages(messages []*model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		text := flattenText(msg)
		switch msg.Role {
		case model.ConversationRoleSystem:
			out = append(out, openai.SystemMessage(text))
		case model.ConversationRoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if text != "" {
				assistant.Content.OfString = openai.String(text)
			}
			for _, p := range msg.Parts {
				tu, ok := p.(model.ToolUsePart)
				if !ok {
					continue
				}
				args, err := json.Marshal(tu.Input)
				if err != nil {
					return nil, fmt.Errorf("marshal tool input for %s: %w", tu.Name, err)
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tu.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tu.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		default:
			var handled bool
			for _, p := range msg.Parts {
				tr, ok := p.(model.ToolResultPart)
				if !ok {
					continue
				}
				content, _ := tr.Content.(string)
				if content == "" {
					if raw, err := json.Marshal(tr.Content); err == nil {
						content = string(raw)
					}
				}
				out = append(out, openai.ToolMessage(content, tr.ToolUseID))
				handled = true
			}
			if !handled {
				out = append(out, openai.UserMessage(text))
			}
		}
	}
	return out, nil
}

func flattenText(msg *model.Message) string {
	var sb strings.Builder
	for _, p := range msg.Parts {
		if tp, ok := p.(model.TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

func convertOpenAITools(defs []*model.ToolDefinition) ([]openai.ChatCompletionToolParam, error) {
	var out []openai.ChatCompletionToolParam
	for _, d := range defs {
		raw, err := json.Marshal(d.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", d.Name, err)
		}
		var params map[string]any
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("invalid schema for %s: %w", d.Name, err)
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  params,
			},
		})
	}
	return out, nil
}

func translateCompletion(resp *openai.ChatCompletion) *model.Response {
	out := &model.Response{
		Usage: model.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}
	for _, choice := range resp.Choices {
		out.StopReason = string(choice.FinishReason)
		if text := choice.Message.Content; text != "" {
			out.Content = append(out.Content, model.Message{
				Role:  model.ConversationRoleAssistant,
				Parts: []model.Part{model.TextPart{Text: text}},
			})
		}
		for _, call := range choice.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				Name:    tools.Ident(call.Function.Name),
				ID:      call.ID,
				Payload: json.RawMessage(call.Function.Arguments),
			})
		}
	}
	return out
}

func wrapOpenAIError(operation string, err error) error {
	return model.NewProviderError("openai", operation, 0, model.ProviderErrorKindUnknown, "", err.Error(), "", isRetryableOpenAIError(err), err)
}

func isRetryableOpenAIError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "connection"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

type openAIStreamer struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	model  string

	toolCalls map[int64]*pendingOpenAIToolCall
	toolOrder []int64
	next      int
	usage     model.TokenUsage
	finished  bool
}

type pendingOpenAIToolCall struct {
	id    string
	name  string
	args  strings.Builder
	ready bool
}

func (s *openAIStreamer) Recv() (model.Chunk, error) {
	if s.toolCalls == nil {
		s.toolCalls = make(map[int64]*pendingOpenAIToolCall)
	}
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if u := chunk.Usage; u.TotalTokens > 0 {
			s.usage = model.TokenUsage{
				InputTokens:  int(u.PromptTokens),
				OutputTokens: int(u.CompletionTokens),
				TotalTokens:  int(u.TotalTokens),
			}
		}
		if choice.Delta.Content != "" {
			return model.Chunk{Type: model.ChunkTypeText, Message: &model.Message{
				Role:  model.ConversationRoleAssistant,
				Parts: []model.Part{model.TextPart{Text: choice.Delta.Content}},
			}}, nil
		}
		for _, tc := range choice.Delta.ToolCalls {
			pending, ok := s.toolCalls[tc.Index]
			if !ok {
				pending = &pendingOpenAIToolCall{}
				s.toolCalls[tc.Index] = pending
				s.toolOrder = append(s.toolOrder, tc.Index)
			}
			if tc.ID != "" {
				pending.id = tc.ID
			}
			if tc.Function.Name != "" {
				pending.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pending.args.WriteString(tc.Function.Arguments)
				return model.Chunk{
					Type: model.ChunkTypeToolCallDelta,
					ToolCallDelta: &model.ToolCallDelta{
						Name: tools.Ident(pending.name), ID: pending.id, Delta: tc.Function.Arguments,
					},
				}, nil
			}
		}
		if string(choice.FinishReason) != "" {
			return s.drainToolCalls(string(choice.FinishReason))
		}
	}
	if err := s.stream.Err(); err != nil {
		return model.Chunk{}, wrapOpenAIError("chat.completions.stream", err)
	}
	if !s.finished {
		return s.drainToolCalls("stop")
	}
	return model.Chunk{}, errStreamDone
}

// drainToolCalls emits queued completed tool calls one at a time before the
// final stop chunk, since model.Chunk carries at most one ToolCall.
func (s *openAIStreamer) drainToolCalls(finishReason string) (model.Chunk, error) {
	for s.next < len(s.toolOrder) {
		idx := s.toolOrder[s.next]
		s.next++
		pending := s.toolCalls[idx]
		if pending == nil || pending.ready {
			continue
		}
		pending.ready = true
		return model.Chunk{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{
			Name:    tools.Ident(pending.name),
			ID:      pending.id,
			Payload: json.RawMessage(pending.args.String()),
		}}, nil
	}
	s.finished = true
	return model.Chunk{
		Type:       model.ChunkTypeStop,
		StopReason: finishReason,
		UsageDelta: &s.usage,
	}, nil
}

func (s *openAIStreamer) Close() error { return s.stream.Close() }

func (s *openAIStreamer) Metadata() map[string]any {
	return map[string]any{"model": s.model}
}
