// Package streamparse turns a raw LLM token stream into text, reasoning, and
// tool-call events by scanning for the <codebuff_tool_call> envelope inline
// in otherwise free-form assistant text.
package streamparse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowctl/agentrt/toolerrors"
	"github.com/flowctl/agentrt/tools"
)

const (
	openTag  = "<codebuff_tool_call>"
	closeTag = "</codebuff_tool_call>"

	resultOpenTag  = "<tool_result>"
	resultCloseTag = "</tool_result>"
)

// ChunkKind classifies an inbound provider stream chunk, mirroring
// model.ChunkTypeText/model.ChunkTypeThinking/error without importing the
// model package, since a Parser only needs these three string kinds.
type ChunkKind string

const (
	ChunkKindText      ChunkKind = "text"
	ChunkKindReasoning ChunkKind = "reasoning"
	ChunkKindError     ChunkKind = "error"
)

// Chunk is one inbound unit from the provider stream, per spec.md §4.2.
type Chunk struct {
	Kind    ChunkKind
	Text    string
	Message string // populated when Kind is ChunkKindError
}

// EventType classifies a parsed output event.
type EventType string

const (
	EventText          EventType = "text"
	EventToolCall      EventType = "tool_call"
	EventToolCallError EventType = "tool_call_error"
	EventReasoning     EventType = "reasoning"
)

// ToolCall is a complete, structurally validated tool invocation parsed out
// of the stream.
type ToolCall struct {
	ToolName tools.Ident
	Input    map[string]any
}

// Event is one item in the lazy sequence streamparse.Parser.Feed produces.
type Event struct {
	Type EventType

	// Delta carries the new text for EventText/EventReasoning: only the text
	// that follows what has already been emitted for the same logical
	// stream, never a repeat of it.
	Delta string

	Call *ToolCall

	// Raw and Reason are populated for EventToolCallError.
	Raw    string
	Reason string
}

// Resolver is the subset of tools.Registry a Parser needs to validate a
// parsed tool call's structure and to know when a call ends the step.
// Matches tools.Registry's method set so a live registry satisfies it with
// no adapter, but keeps this package decoupled from tools.Registry's
// concrete type for testing.
type Resolver interface {
	Resolve(name tools.Ident) (*tools.ToolSpec, bool)
	ValidateInput(name tools.Ident, value map[string]any) *toolerrors.ToolError
}

// Parser is a stateful, streaming reader of the <codebuff_tool_call> and
// <tool_result> envelope grammar. It is not safe for concurrent use; each
// in-flight model response gets its own Parser.
type Parser struct {
	resolver Resolver

	inTool   bool
	toolBuf  strings.Builder
	pending  strings.Builder // text held back because it may be a delimiter prefix
	inResult bool
	stopped  bool // true once end_turn or an endsStep call has been observed
}

// New constructs a Parser that validates parsed calls against resolver.
func New(resolver Resolver) *Parser {
	return &Parser{resolver: resolver}
}

// Feed consumes one provider chunk and returns the events it produces. It
// returns no events once the parser has observed a step-ending tool call
// (spec.md §4.2 rule 5), even if more chunks are fed afterward.
func (p *Parser) Feed(c Chunk) []Event {
	if p.stopped {
		return nil
	}
	switch c.Kind {
	case ChunkKindReasoning:
		if c.Text == "" {
			return nil
		}
		return []Event{{Type: EventReasoning, Delta: c.Text}}
	case ChunkKindError:
		return []Event{{Type: EventToolCallError, Raw: c.Message, Reason: c.Message}}
	}
	return p.feedText(c.Text)
}

func (p *Parser) feedText(text string) []Event {
	var events []Event
	p.pending.WriteString(text)
	for {
		buf := p.pending.String()
		if p.inTool {
			idx := strings.Index(buf, closeTag)
			if idx < 0 {
				// No closing delimiter yet; keep the body in pending (never
				// emitted as text) so a delimiter split across chunks is found.
				return events
			}
			p.toolBuf.WriteString(buf[:idx])
			rest := buf[idx+len(closeTag):]
			p.pending.Reset()
			p.pending.WriteString(rest)
			p.inTool = false

			body := p.toolBuf.String()
			p.toolBuf.Reset()
			ev := p.parseBody(body)
			events = append(events, ev)
			if ev.Type == EventToolCall && (ev.Call.ToolName == tools.EndTurn || p.endsStep(ev.Call.ToolName)) {
				p.stopped = true
				return events
			}
			continue
		}

		if p.inResult {
			idx := strings.Index(buf, resultCloseTag)
			if idx < 0 {
				// Keep the result body in pending so a split closing tag is found.
				return events
			}
			p.pending.Reset()
			p.pending.WriteString(buf[idx+len(resultCloseTag):])
			p.inResult = false
			continue
		}

		openIdx := strings.Index(buf, openTag)
		resultIdx := strings.Index(buf, resultOpenTag)
		switch {
		case openIdx >= 0 && (resultIdx < 0 || openIdx <= resultIdx):
			if openIdx > 0 {
				events = append(events, Event{Type: EventText, Delta: buf[:openIdx]})
			}
			p.pending.Reset()
			p.pending.WriteString(buf[openIdx+len(openTag):])
			p.inTool = true
			continue
		case resultIdx >= 0:
			if resultIdx > 0 {
				events = append(events, Event{Type: EventText, Delta: buf[:resultIdx]})
			}
			p.pending.Reset()
			p.pending.WriteString(buf[resultIdx+len(resultOpenTag):])
			p.inResult = true
			continue
		default:
			// No full delimiter present. Withhold a suffix that could be a
			// prefix of either opening delimiter so a split delimiter
			// across chunk boundaries is reassembled correctly.
			safe := longestSafePrefixLen(buf)
			if safe > 0 {
				events = append(events, Event{Type: EventText, Delta: buf[:safe]})
			}
			p.pending.Reset()
			p.pending.WriteString(buf[safe:])
			return events
		}
	}
}

// longestSafePrefixLen returns how much of buf can be safely emitted as
// plain text: everything except a trailing suffix that could still grow
// into openTag or resultOpenTag once more text arrives.
func longestSafePrefixLen(buf string) int {
	cut := len(buf)
	for _, tag := range []string{openTag, resultOpenTag} {
		n := len(tag) - 1
		if n > len(buf) {
			n = len(buf)
		}
		for k := n; k > 0; k-- {
			if strings.HasSuffix(buf, tag[:k]) {
				if c := len(buf) - k; c < cut {
					cut = c
				}
				break
			}
		}
	}
	return cut
}

func (p *Parser) endsStep(name tools.Ident) bool {
	spec, ok := p.resolver.Resolve(name)
	return ok && spec.EndsStep
}

func (p *Parser) parseBody(body string) Event {
	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Event{Type: EventToolCallError, Raw: body, Reason: "Invalid JSON"}
	}
	rawName, ok := raw["cb_tool_name"].(string)
	if !ok || rawName == "" {
		return Event{Type: EventToolCallError, Raw: body, Reason: "Invalid JSON"}
	}
	name := tools.Ident(rawName)
	delete(raw, "cb_tool_name")

	if _, ok := p.resolver.Resolve(name); !ok {
		return Event{Type: EventToolCallError, Raw: body, Reason: fmt.Sprintf("Tool %s not found", rawName)}
	}
	unescapeCommandInput(name, raw)

	if toolErr := p.resolver.ValidateInput(name, raw); toolErr != nil {
		return Event{Type: EventToolCallError, Raw: body, Reason: toolErr.Message}
	}
	return Event{Type: EventToolCall, Call: &ToolCall{ToolName: name, Input: raw}}
}

// unescapeCommandInput undoes the `&amp;` escaping a model applies when it
// embeds a shell command containing `&` inside the pseudo-XML
// <codebuff_tool_call> envelope, per spec.md §4.2's normative "&amp;
// sequences in command inputs must be unescaped to & before dispatch".
func unescapeCommandInput(name tools.Ident, raw map[string]any) {
	if name != tools.RunTerminalCommand {
		return
	}
	if cmd, ok := raw["command"].(string); ok {
		raw["command"] = strings.ReplaceAll(cmd, "&amp;", "&")
	}
}
