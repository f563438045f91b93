package runtime

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/agentrt/agent"
	"github.com/flowctl/agentrt/model"
	"github.com/flowctl/agentrt/run"
	runinmem "github.com/flowctl/agentrt/run/inmem"
	"github.com/flowctl/agentrt/session"
)

type fakeTemplates struct {
	byID map[agent.Ident]*session.AgentTemplate
}

func (f fakeTemplates) Template(id agent.Ident) (*session.AgentTemplate, bool) {
	t, ok := f.byID[id]
	return t, ok
}

type fakeStreamer struct {
	chunks []model.Chunk
	idx    int
}

func (s *fakeStreamer) Recv() (model.Chunk, error) {
	if s.idx >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, nil
}
func (s *fakeStreamer) Close() error             { return nil }
func (s *fakeStreamer) Metadata() map[string]any { return nil }

type fakeClient struct{}

func (fakeClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	return nil, errors.New("not implemented")
}

func (fakeClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	body := `<codebuff_tool_call>{"cb_tool_name":"end_turn"}</codebuff_tool_call>`
	return &fakeStreamer{chunks: []model.Chunk{
		{Type: model.ChunkTypeText, Message: &model.Message{Parts: []model.Part{model.TextPart{Text: body}}}},
	}}, nil
}

func newTestRuntime(t *testing.T) (*Runtime, run.Store) {
	t.Helper()
	templates := fakeTemplates{byID: map[agent.Ident]*session.AgentTemplate{
		"main": {
			ID:           agent.Ident("main"),
			Model:        "test-model",
			SystemPrompt: "You are helpful.",
		},
	}}
	runStore := runinmem.New()
	rt := New(Options{Templates: templates, RunStore: runStore})
	require.NoError(t, rt.RegisterModel("test-model", fakeClient{}))
	return rt, runStore
}

func TestRuntimeRunPromptCompletesAndRecordsRun(t *testing.T) {
	rt, runStore := newTestRuntime(t)

	out, err := rt.RunPrompt(context.Background(), agent.Ident("main"), "run-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, session.AgentOutputLastMessage, out.Type)

	rec, err := runStore.Load(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.StatusCompleted, rec.Status)
	assert.Equal(t, agent.Ident("main"), rec.AgentID)
}

func TestRuntimeRunPromptUnknownAgent(t *testing.T) {
	rt, _ := newTestRuntime(t)

	_, err := rt.RunPrompt(context.Background(), agent.Ident("nope"), "run-2", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestRuntimeRunPromptUnknownModel(t *testing.T) {
	templates := fakeTemplates{byID: map[agent.Ident]*session.AgentTemplate{
		"main": {ID: agent.Ident("main"), Model: "missing-model"},
	}}
	rt := New(Options{Templates: templates})

	_, err := rt.RunPrompt(context.Background(), agent.Ident("main"), "run-3", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestRuntimeRegisterModelRejectsEmptyIDOrNilClient(t *testing.T) {
	rt := New(Options{})
	assert.Error(t, rt.RegisterModel("", fakeClient{}))
	assert.Error(t, rt.RegisterModel("m", nil))
}
