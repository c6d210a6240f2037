package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIterationLimiter_NeverExceedsMax(t *testing.T) {
	l := NewIterationLimiter(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Increment())
	}
	err := l.Increment()
	assert.ErrorIs(t, err, ErrIterationLimit)
	assert.Equal(t, 3, l.Count())
	assert.Equal(t, 0, l.Remaining())
}

func TestIterationLimiter_MinimumOfOne(t *testing.T) {
	l := NewIterationLimiter(0)
	assert.Equal(t, 1, l.Max())
	require.NoError(t, l.Increment())
	assert.Error(t, l.Increment())
}

func TestRunContext_UsageAndText(t *testing.T) {
	rc, _ := newRunContextForTest(5)

	rc.AddUsage(Usage{InputTokens: 10, OutputTokens: 5})
	rc.AddUsage(Usage{InputTokens: 1, OutputTokens: 2, CachedTokens: 7, CacheCreationTokens: 3})
	assert.Equal(t, Usage{InputTokens: 11, OutputTokens: 7, CachedTokens: 7, CacheCreationTokens: 3}, rc.Usage())

	rc.AppendText("hello ")
	rc.AppendText("")
	rc.AppendText("world")
	assert.Equal(t, "hello world", rc.FinalText())

	rc.SetFinalText("replaced")
	assert.Equal(t, "replaced", rc.FinalText())

	assert.Equal(t, 0, rc.Iteration())
	assert.Equal(t, 5, rc.MaxIterations())
}

func TestRunContext_GeneratesRunID(t *testing.T) {
	rc := NewRunContext(context.Background(), "", "q", 1, nil, nil)
	assert.NotEmpty(t, rc.RunID)
	assert.Equal(t, 1, rc.Conversation.Len())
}

func TestToolContext_Artifacts(t *testing.T) {
	rc, store := newRunContextForTest(1)
	tc := NewToolContext(rc, ToolCall{ID: "call-1", Name: "take_screenshot"})

	assert.Equal(t, "run-x", tc.RunID())
	assert.Equal(t, "call-1", tc.ToolCallID())
	assert.Equal(t, "take_screenshot", tc.ToolName())

	ref, err := tc.SaveArtifact("shot.png", []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "artifact://run-x/shot.png", ref)
	assert.Equal(t, []byte{1, 2, 3}, store.saved["run-x"]["shot.png"])

	data, err := tc.LoadArtifact("shot.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestToolContext_NoArtifactStore(t *testing.T) {
	tc := NewStandaloneToolContext(context.Background(), "c", nil)
	_, err := tc.SaveArtifact("x", nil)
	assert.ErrorIs(t, err, ErrStoreNotConfigured)
	assert.NotNil(t, tc.Logger())
}

func TestPricing_Cost(t *testing.T) {
	u := Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000, CacheCreationTokens: 1_000_000, CachedTokens: 1_000_000}
	assert.InDelta(t, 3+15+3.75+0.30, DefaultPricing.Cost(u), 1e-9)
	assert.Equal(t, int64(2_000_000), u.Total())
}
