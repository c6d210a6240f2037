package model

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/toolmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedModel_ReplaysInOrder(t *testing.T) {
	m := NewScriptedModel(
		ToolCallTurn("looking", Call("c1", "list_directory", map[string]any{"path": "."})),
		TextTurn("done", StopEndTurn),
	)

	req := Request{Messages: []core.Message{core.NewUserMessage("hi")}}

	r1, err := m.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StopToolUse, r1.StopReason)
	require.Len(t, r1.Message.ToolCalls(), 1)
	assert.JSONEq(t, `{"path":"."}`, string(r1.Message.ToolCalls()[0].Input))

	r2, err := m.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "done", r2.Message.Text())

	_, err = m.Generate(context.Background(), req)
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Equal(t, 3, m.Calls())
	assert.Len(t, m.Requests(), 3)
}

func TestScriptedModel_ErrorsAndRepeat(t *testing.T) {
	boom := errors.New("provider unavailable")
	m := NewScriptedModel(Turn{Err: boom}).RepeatForever(TextTurn("again", StopMaxTokens))

	_, err := m.Generate(context.Background(), Request{})
	assert.ErrorIs(t, err, boom)

	for i := 0; i < 3; i++ {
		r, err := m.Generate(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, "again", r.Message.Text())
	}
}

func TestScriptedModel_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScriptedModel(TextTurn("x", StopEndTurn)).Generate(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
