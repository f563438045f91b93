package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/agentrt/model"
)

type stubClient struct {
	completeErr error
	calls       int
}

func (s *stubClient) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	s.calls++
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	return &model.Response{}, nil
}

func (s *stubClient) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	panic("not used")
}

func TestAdaptiveRateLimiterBacksOffOnRateLimit(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(6000, 12000)
	stub := &stubClient{completeErr: model.ErrRateLimited}
	wrapped := limiter.Middleware()(stub)

	req := &model.Request{Messages: []*model.Message{{Parts: []model.Part{model.TextPart{Text: "hello"}}}}}
	_, err := wrapped.Complete(context.Background(), req)
	require.ErrorIs(t, err, model.ErrRateLimited)

	assert.Less(t, limiter.currentTPM, 6000.0)
	assert.GreaterOrEqual(t, limiter.currentTPM, limiter.minTPM)
}

func TestAdaptiveRateLimiterProbesUpOnSuccess(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(1000, 2000)
	limiter.currentTPM = 1000
	stub := &stubClient{}
	wrapped := limiter.Middleware()(stub)

	req := &model.Request{Messages: []*model.Message{{Parts: []model.Part{model.TextPart{Text: "hello"}}}}}
	_, err := wrapped.Complete(context.Background(), req)
	require.NoError(t, err)

	assert.Greater(t, limiter.currentTPM, 1000.0)
	assert.LessOrEqual(t, limiter.currentTPM, limiter.maxTPM)
}

func TestAdaptiveRateLimiterMiddlewareNilPassthrough(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(1000, 1000)
	assert.Nil(t, limiter.Middleware()(nil))
}

func TestEstimateTokensMinimumFloor(t *testing.T) {
	req := &model.Request{}
	assert.Equal(t, 500, estimateTokens(req))
}
