package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
)

// 火山引擎语音 WebSocket 二进制帧：4 字节头 + 可选序号/事件 + 4 字节长度 + payload。
const frameVersion = 0b0001

type frameType uint8

const (
	frameFullClientRequest  frameType = 0b0001
	frameAudioOnlyRequest   frameType = 0b0010
	frameFullServerResponse frameType = 0b1001
	frameAudioOnlyResponse  frameType = 0b1011
	frameError              frameType = 0b1111
)

type frameFlags uint8

const (
	flagNoSequence       frameFlags = 0b0000
	flagPositiveSequence frameFlags = 0b0001
	flagLastNoSequence   frameFlags = 0b0010
	flagNegativeSequence frameFlags = 0b0011
	flagWithEvent        frameFlags = 0b0100
)

type frameEvent int32

const (
	eventStartConnection    frameEvent = 1
	eventFinishConnection   frameEvent = 2
	eventConnectionStarted  frameEvent = 50
	eventConnectionFailed   frameEvent = 51
	eventConnectionFinished frameEvent = 52
	eventSessionFinished    frameEvent = 152
)

const (
	serializationNone uint8 = 0b0000
	serializationJSON uint8 = 0b0001

	compressionNone uint8 = 0b0000
	compressionGzip uint8 = 0b0001
)

type frame struct {
	Type          frameType
	Flags         frameFlags
	Serialization uint8
	Compression   uint8
	Sequence      int32
	Event         frameEvent
	SessionID     string
	ConnectID     string
	ErrorCode     uint32
	Payload       []byte
}

func (f *frame) hasSequence() bool {
	switch f.Flags & 0b0011 {
	case flagPositiveSequence, flagNegativeSequence:
		return true
	}
	return false
}

func (f *frame) isLast() bool {
	switch f.Flags & 0b0011 {
	case flagLastNoSequence, flagNegativeSequence:
		return true
	}
	return false
}

func (f *frame) hasEvent() bool {
	return f.Flags&flagWithEvent == flagWithEvent
}

func eventOmitsSessionID(e frameEvent) bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func eventCarriesConnectID(e frameEvent) bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func writeSized(buf *bytes.Buffer, data []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
}

func (f *frame) marshal() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{
		frameVersion<<4 | 0b0001,
		uint8(f.Type)<<4 | uint8(f.Flags),
		f.Serialization<<4 | f.Compression,
		0x00,
	})
	if f.hasSequence() {
		_ = binary.Write(&buf, binary.BigEndian, f.Sequence)
	}
	if f.hasEvent() {
		_ = binary.Write(&buf, binary.BigEndian, int32(f.Event))
		if !eventOmitsSessionID(f.Event) {
			writeSized(&buf, []byte(f.SessionID))
		}
		if eventCarriesConnectID(f.Event) {
			writeSized(&buf, []byte(f.ConnectID))
		}
	}
	if f.Type == frameError {
		_ = binary.Write(&buf, binary.BigEndian, f.ErrorCode)
	}
	writeSized(&buf, f.Payload)
	return buf.Bytes()
}

func readSized(r io.Reader, what string) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, fmt.Errorf("failed to read %s size: %w", what, err)
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read %s (expected %d bytes): %w", what, size, err)
	}
	return data, nil
}

func parseFrame(data []byte) (*frame, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(data))
	}
	if version := data[0] >> 4; version != frameVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}

	f := &frame{
		Type:          frameType(data[1] >> 4),
		Flags:         frameFlags(data[1] & 0x0F),
		Serialization: data[2] >> 4,
		Compression:   data[2] & 0x0F,
	}

	headerSize := int(data[0]&0x0F) * 4
	if headerSize < 4 || headerSize > len(data) {
		return nil, fmt.Errorf("invalid header size: %d", headerSize)
	}
	r := bytes.NewReader(data[headerSize:])

	if f.hasSequence() {
		if err := binary.Read(r, binary.BigEndian, &f.Sequence); err != nil {
			return nil, fmt.Errorf("failed to read sequence: %w", err)
		}
	}
	if f.hasEvent() {
		var event int32
		if err := binary.Read(r, binary.BigEndian, &event); err != nil {
			return nil, fmt.Errorf("failed to read event type: %w", err)
		}
		f.Event = frameEvent(event)
		if !eventOmitsSessionID(f.Event) {
			session, err := readSized(r, "session id")
			if err != nil {
				return nil, err
			}
			f.SessionID = string(session)
		}
		if eventCarriesConnectID(f.Event) {
			connect, err := readSized(r, "connect id")
			if err != nil {
				return nil, err
			}
			f.ConnectID = string(connect)
		}
	}
	if f.Type == frameError {
		if err := binary.Read(r, binary.BigEndian, &f.ErrorCode); err != nil {
			return nil, fmt.Errorf("failed to read error code: %w", err)
		}
	}

	payload, err := readSized(r, "payload")
	if err != nil {
		return nil, err
	}
	f.Payload = payload
	return f, nil
}

// body 返回解压后的 payload。
func (f *frame) body() ([]byte, error) {
	switch f.Compression {
	case compressionNone:
		return f.Payload, nil
	case compressionGzip:
		return gunzip(f.Payload)
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", f.Compression)
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return out, nil
}

func jsonRequestFrame(payload []byte, compression uint8) *frame {
	return &frame{
		Type:          frameFullClientRequest,
		Flags:         flagNoSequence,
		Serialization: serializationJSON,
		Compression:   compression,
		Payload:       payload,
	}
}

// audioFrame 构造音频包；最后一包的序号取负数。
func audioFrame(chunk []byte, sequence int32, last bool) *frame {
	f := &frame{
		Type:          frameAudioOnlyRequest,
		Serialization: serializationNone,
		Compression:   compressionGzip,
		Sequence:      sequence,
		Payload:       chunk,
	}
	switch {
	case last && sequence != 0:
		f.Flags = flagNegativeSequence
		f.Sequence = -sequence
	case last:
		f.Flags = flagLastNoSequence
	case sequence > 0:
		f.Flags = flagPositiveSequence
	default:
		f.Flags = flagNoSequence
	}
	return f
}
