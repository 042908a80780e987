package protocol

import (
	"testing"

	"tabclip/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestEncode_StartCaptureLayout(t *testing.T) {
	msg := StartCapture(model.Rect{Left: 10, Top: 20, Width: 300, Height: 200}, model.Viewport{Width: 1280, Height: 800})
	data, err := Encode(msg)
	require.NoError(t, err)

	res := gjson.ParseBytes(data)
	assert.Equal(t, "start-capture", res.Get("command").String())
	assert.Equal(t, int64(10), res.Get("rect.left").Int())
	assert.Equal(t, int64(20), res.Get("rect.top").Int())
	assert.Equal(t, int64(300), res.Get("rect.width").Int())
	assert.Equal(t, int64(200), res.Get("rect.height").Int())
	assert.Equal(t, int64(1280), res.Get("innerWidth").Int())
	assert.Equal(t, int64(800), res.Get("innerHeight").Int())
}

func TestEncode_OverlayCommandsCarryNoFields(t *testing.T) {
	data, err := Encode(CloseOverlay())
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"close-overlay"}`, string(data))

	data, err = Encode(ShowOverlay())
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"show-overlay"}`, string(data))
}

func TestDecode_FromPagePayload(t *testing.T) {
	payload := `{"command":"start-capture","rect":{"left":5,"top":6,"width":7,"height":8},"innerWidth":640,"innerHeight":480}`
	msg, err := Decode([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, CmdStartCapture, msg.Command)
	assert.Equal(t, model.Rect{Left: 5, Top: 6, Width: 7, Height: 8}, msg.Rect)
	assert.Equal(t, model.Viewport{Width: 640, Height: 480}, msg.Viewport)
}

func TestDecode_Pointer(t *testing.T) {
	msg, err := Decode([]byte(`{"command":"pointer","phase":"move","x":12,"y":34,"innerWidth":100,"innerHeight":50}`))
	require.NoError(t, err)
	assert.Equal(t, PointerMove, msg.Phase)
	assert.Equal(t, 12, msg.X)
	assert.Equal(t, 34, msg.Y)
	assert.Equal(t, model.Viewport{Width: 100, Height: 50}, msg.Viewport)

	_, err = Decode([]byte(`{"command":"pointer","phase":"hover"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"rect":{}}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"command":"self-destruct"}`))
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = Decode([]byte(`{"command":"start-capture"}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_FocusChanged(t *testing.T) {
	msg, err := Decode([]byte(`{"command":"focus-changed","focused":false}`))
	require.NoError(t, err)
	assert.Equal(t, CmdFocusChanged, msg.Command)
	assert.False(t, msg.Focused)
}
