package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// FrameType is the 1-byte type code in a binary frame (spec section 3).
type FrameType byte

const (
	FrameMessage      FrameType = 1
	FrameNotification FrameType = 2
	FrameResponse     FrameType = 3
	FramePing         FrameType = 4
	FramePong         FrameType = 5
)

// FrameVersion is the wire version this fabric emits.
const FrameVersion byte = 1

// frameHeaderLen is version(1) + type(1) + flags(1) + length(4).
const frameHeaderLen = 7

// BinaryFrame is the fixed header + payload layout framed-TCP uses to
// delimit JSON-RPC messages on a raw byte stream (spec section 3).
type BinaryFrame struct {
	Version byte
	Type    FrameType
	Flags   byte
	Payload []byte
}

// EncodeFrame serializes f to its wire representation.
func EncodeFrame(f BinaryFrame) []byte {
	buf := make([]byte, frameHeaderLen+len(f.Payload))
	buf[0] = f.Version
	buf[1] = byte(f.Type)
	buf[2] = f.Flags
	binary.BigEndian.PutUint32(buf[3:7], uint32(len(f.Payload)))
	copy(buf[frameHeaderLen:], f.Payload)
	return buf
}

// frameReader incrementally decodes frames from a stream, treating short
// reads as partial frames rather than errors (spec section 3 invariant).
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadFrame blocks until a complete frame is available, or returns an
// error (including io.EOF) if the stream ends mid-frame or closes.
func (fr *frameReader) ReadFrame() (BinaryFrame, error) {
	header := make([]byte, frameHeaderLen)
	if _, err := io.ReadFull(fr.r, header); err != nil {
		return BinaryFrame{}, err
	}
	length := binary.BigEndian.Uint32(header[3:7])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(fr.r, payload); err != nil {
			return BinaryFrame{}, fmt.Errorf("transport: partial frame payload: %w", err)
		}
	}
	return BinaryFrame{
		Version: header[0],
		Type:    FrameType(header[1]),
		Flags:   header[2],
		Payload: payload,
	}, nil
}

// DecodeFrame decodes a single complete frame from buf, returning the
// frame, the number of bytes consumed, and ok=false if buf does not yet
// contain a complete frame (the caller must not advance the stream in that
// case — spec section 3 invariant).
func DecodeFrame(buf []byte) (frame BinaryFrame, consumed int, ok bool) {
	if len(buf) < frameHeaderLen {
		return BinaryFrame{}, 0, false
	}
	length := int(binary.BigEndian.Uint32(buf[3:7]))
	total := frameHeaderLen + length
	if len(buf) < total {
		return BinaryFrame{}, 0, false
	}
	payload := make([]byte, length)
	copy(payload, buf[frameHeaderLen:total])
	return BinaryFrame{
		Version: buf[0],
		Type:    FrameType(buf[1]),
		Flags:   buf[2],
		Payload: payload,
	}, total, true
}
