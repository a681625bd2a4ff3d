package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// 火山引擎双向 TTS 二进制帧:
//
//	byte0: version(4) | header size in 4-byte words(4)
//	byte1: frame kind(4) | flags(4)
//	byte2: serialization(4) | compression(4)
//	byte3: reserved
//
// 之后依次为可选 sequence、可选 event 元数据、(错误帧的 error code)、payload size 与 payload，全部大端序。
const frameVersion = 0b0001

type frameKind uint8

const (
	kindClientRequest frameKind = 0b0001
	kindServerFull    frameKind = 0b1001
	kindServerAudio   frameKind = 0b1011
	kindServerError   frameKind = 0b1111
)

type frameFlags uint8

const (
	flagNone         frameFlags = 0b0000
	flagSequence     frameFlags = 0b0001
	flagLast         frameFlags = 0b0010
	flagLastSequence frameFlags = 0b0011
	flagEvent        frameFlags = 0b0100

	sequenceMask = 0b0011
)

const (
	serializationRaw  uint8 = 0b0000
	serializationJSON uint8 = 0b0001
)

type compression uint8

const (
	compressionNone compression = 0b0000
	compressionGzip compression = 0b0001
)

type ttsEvent int32

const (
	eventStartConnection    ttsEvent = 1
	eventFinishConnection   ttsEvent = 2
	eventConnectionStarted  ttsEvent = 50
	eventConnectionFailed   ttsEvent = 51
	eventConnectionFinished ttsEvent = 52
	eventSessionStarted     ttsEvent = 150
	eventSessionFinished    ttsEvent = 152
	eventSessionFailed      ttsEvent = 153
)

// 连接级事件不带 session id，只有服务端连接事件带 connect id
func (e ttsEvent) connectionScoped() bool {
	return e == eventStartConnection || e == eventFinishConnection || e.carriesConnectID()
}

func (e ttsEvent) carriesConnectID() bool {
	return e == eventConnectionStarted || e == eventConnectionFailed || e == eventConnectionFinished
}

var errShortFrame = errors.New("frame truncated")

type frame struct {
	kind          frameKind
	flags         frameFlags
	serialization uint8
	compression   compression
	sequence      int32
	event         ttsEvent
	sessionID     string
	connectID     string
	errorCode     uint32
	payload       []byte
}

// newRequestFrame wraps a JSON request body as an uncompressed full client request.
func newRequestFrame(body []byte) *frame {
	return &frame{kind: kindClientRequest, serialization: serializationJSON, payload: body}
}

func (f *frame) hasSequence() bool {
	s := f.flags & sequenceMask
	return s == flagSequence || s == flagLastSequence
}

func (f *frame) hasEvent() bool { return f.flags&flagEvent != 0 }

// last reports whether the server marked this frame as the final packet.
func (f *frame) last() bool {
	s := f.flags & sequenceMask
	return s == flagLast || s == flagLastSequence
}

func (f *frame) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write([]byte{
		frameVersion<<4 | 1,
		uint8(f.kind)<<4 | uint8(f.flags),
		f.serialization<<4 | uint8(f.compression),
		0,
	})

	put := func(v uint32) { _ = binary.Write(&buf, binary.BigEndian, v) }
	putString := func(s string) {
		put(uint32(len(s)))
		buf.WriteString(s)
	}

	if f.hasSequence() {
		put(uint32(f.sequence))
	}
	if f.hasEvent() {
		put(uint32(f.event))
		if !f.event.connectionScoped() {
			putString(f.sessionID)
		}
		if f.event.carriesConnectID() {
			putString(f.connectID)
		}
	}
	if f.kind == kindServerError {
		put(f.errorCode)
	}
	put(uint32(len(f.payload)))
	buf.Write(f.payload)

	return buf.Bytes(), nil
}

// frameReader 顺序读取大端字段，第一次出错后后续读取均为空操作
type frameReader struct {
	data []byte
	err  error
}

func (r *frameReader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data) < n {
		r.err = errShortFrame
		return nil
	}
	out := r.data[:n]
	r.data = r.data[n:]
	return out
}

func (r *frameReader) uint32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *frameReader) string() string {
	return string(r.next(int(r.uint32())))
}

func parseFrame(data []byte) (*frame, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("header too short: got %d bytes", len(data))
	}
	if v := data[0] >> 4; v != frameVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", v)
	}

	f := &frame{
		kind:          frameKind(data[1] >> 4),
		flags:         frameFlags(data[1] & 0x0F),
		serialization: data[2] >> 4,
		compression:   compression(data[2] & 0x0F),
	}

	r := &frameReader{data: data[4:]}
	if words := int(data[0] & 0x0F); words > 1 {
		r.next((words - 1) * 4)
	}
	if f.hasSequence() {
		f.sequence = int32(r.uint32())
	}
	if f.hasEvent() {
		f.event = ttsEvent(r.uint32())
		if !f.event.connectionScoped() {
			f.sessionID = r.string()
		}
		if f.event.carriesConnectID() {
			f.connectID = r.string()
		}
	}
	if f.kind == kindServerError {
		f.errorCode = r.uint32()
	}
	if size := r.uint32(); size > 0 {
		f.payload = r.next(int(size))
	}

	if r.err != nil {
		return nil, fmt.Errorf("parse %d-byte frame: %w", len(data), r.err)
	}
	return f, nil
}

// body returns the decompressed payload.
func (f *frame) body() ([]byte, error) {
	switch f.compression {
	case compressionNone:
		return f.payload, nil
	case compressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(f.payload))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", f.compression)
	}
}
