package selection

import (
	"testing"

	"tabclip/internal/protocol"
	"tabclip/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_DragProducesNormalisedRect(t *testing.T) {
	var sent []protocol.Message
	c := New(SenderFunc(func(m protocol.Message) { sent = append(sent, m) }))

	c.Begin(310, 220)
	c.Move(100, 100)
	assert.Equal(t, model.Rect{Left: 100, Top: 100, Width: 210, Height: 120}, c.Rect())

	ok := c.End(10, 20, model.Viewport{Width: 1280, Height: 800})
	require.True(t, ok)
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.CmdStartCapture, sent[0].Command)
	assert.Equal(t, model.Rect{Left: 10, Top: 20, Width: 300, Height: 200}, sent[0].Rect)
	assert.Equal(t, model.Viewport{Width: 1280, Height: 800}, sent[0].Viewport)
}

func TestCollector_IgnoresMoveAndUpBeforeDown(t *testing.T) {
	var sent int
	c := New(SenderFunc(func(protocol.Message) { sent++ }))

	c.Move(50, 50)
	assert.False(t, c.End(60, 60, model.Viewport{}))
	assert.Equal(t, model.Rect{}, c.Rect())
	assert.Zero(t, sent)
}

func TestCollector_EmitsOnce(t *testing.T) {
	var sent int
	c := New(SenderFunc(func(protocol.Message) { sent++ }))

	c.Handle(protocol.Message{Command: protocol.CmdPointer, Phase: protocol.PointerDown, X: 1, Y: 1})
	c.Handle(protocol.Message{Command: protocol.CmdPointer, Phase: protocol.PointerUp, X: 5, Y: 5})
	c.Handle(protocol.Message{Command: protocol.CmdPointer, Phase: protocol.PointerDown, X: 9, Y: 9})
	c.Handle(protocol.Message{Command: protocol.CmdPointer, Phase: protocol.PointerUp, X: 20, Y: 20})

	assert.Equal(t, 1, sent)
	assert.True(t, c.Selected())
	assert.Equal(t, model.Rect{Left: 1, Top: 1, Width: 4, Height: 4}, c.Rect())
}
