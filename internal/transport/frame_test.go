package transport

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrame_RoundTrip(t *testing.T) {
	original := BinaryFrame{
		Version: FrameVersion,
		Type:    FrameMessage,
		Flags:   0,
		Payload: []byte(`{"jsonrpc":"2.0","method":"ping"}`),
	}

	buf := EncodeFrame(original)
	decoded, consumed, ok := DecodeFrame(buf)

	require.True(t, ok)
	assert.Equal(t, len(buf), consumed)
	assert.Equal(t, original.Version, decoded.Version)
	assert.Equal(t, original.Type, decoded.Type)
	assert.Equal(t, original.Payload, decoded.Payload)
}

func TestDecodeFrame_PartialHeaderIsNotOK(t *testing.T) {
	full := EncodeFrame(BinaryFrame{Version: FrameVersion, Type: FrameMessage, Payload: []byte("hello")})

	_, _, ok := DecodeFrame(full[:frameHeaderLen-1])
	assert.False(t, ok)
}

func TestDecodeFrame_PartialPayloadIsNotOK(t *testing.T) {
	full := EncodeFrame(BinaryFrame{Version: FrameVersion, Type: FrameMessage, Payload: []byte("hello world")})

	_, _, ok := DecodeFrame(full[:frameHeaderLen+3])
	assert.False(t, ok)
}

// TestDecodeFrame_MultipleFramesInBuffer exercises the scenario of two
// frames arriving back to back on a stream, as framed-TCP delivers them
// (spec section 8 scenario 4).
func TestDecodeFrame_MultipleFramesInBuffer(t *testing.T) {
	f1 := EncodeFrame(BinaryFrame{Version: FrameVersion, Type: FrameMessage, Payload: []byte("one")})
	f2 := EncodeFrame(BinaryFrame{Version: FrameVersion, Type: FrameNotification, Payload: []byte("two")})
	buf := append(append([]byte{}, f1...), f2...)

	first, consumed1, ok := DecodeFrame(buf)
	require.True(t, ok)
	assert.Equal(t, []byte("one"), first.Payload)

	second, consumed2, ok := DecodeFrame(buf[consumed1:])
	require.True(t, ok)
	assert.Equal(t, []byte("two"), second.Payload)
	assert.Equal(t, len(buf), consumed1+consumed2)
}

func TestFrameReader_ReadFrame_PartialStreamReturnsError(t *testing.T) {
	full := EncodeFrame(BinaryFrame{Version: FrameVersion, Type: FrameMessage, Payload: []byte("truncated payload")})
	truncated := full[:len(full)-5]

	fr := newFrameReader(bytes.NewReader(truncated))
	_, err := fr.ReadFrame()

	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF, "a mid-payload truncation should be reported distinctly from a clean EOF before any header")
}

func TestFrameReader_ReadFrame_SequentialFrames(t *testing.T) {
	f1 := EncodeFrame(BinaryFrame{Version: FrameVersion, Type: FramePing})
	f2 := EncodeFrame(BinaryFrame{Version: FrameVersion, Type: FramePong})
	fr := newFrameReader(bytes.NewReader(append(append([]byte{}, f1...), f2...)))

	got1, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, FramePing, got1.Type)

	got2, err := fr.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, FramePong, got2.Type)

	_, err = fr.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}
