// Package sessionlog implements the on-disk session log: a sequence of
// independently compressed, length-prefixed Snapshot frames plus a YAML
// metadata sidecar and a writer lock.
//
// Frame layout:
//
//	[4-byte little-endian payload length][zstd frame]
//
// The zstd frame decompresses to the JSON encoding of one snapshot.Snapshot.
package sessionlog

import (
	"encoding/binary"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"

	"github.com/grovetools/pgpulse/pkg/snapshot"
)

const (
	// HeaderSize is the length prefix size in bytes.
	HeaderSize = 4

	// MaxPayload bounds a single compressed frame. Larger length headers are
	// treated as corruption.
	MaxPayload = 64 << 20

	// Extension is the session log file extension.
	Extension = ".pgsl"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

// codec returns the shared encoder and decoder. EncodeAll and DecodeAll are
// safe for concurrent use.
func codec() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(MaxPayload*4))
	})
	return encoder, decoder, codecErr
}

// EncodeFrame serializes s into one complete frame, header included.
func EncodeFrame(s snapshot.Snapshot) ([]byte, error) {
	enc, _, err := codec()
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %d: %w", s.Sequence, err)
	}

	frame := make([]byte, HeaderSize, HeaderSize+len(payload)/2)
	frame = enc.EncodeAll(payload, frame)
	size := len(frame) - HeaderSize
	if size > MaxPayload {
		return nil, fmt.Errorf("snapshot %d compresses to %d bytes, limit is %d", s.Sequence, size, MaxPayload)
	}
	binary.LittleEndian.PutUint32(frame[:HeaderSize], uint32(size))
	return frame, nil
}

// DecodePayload decompresses and decodes one frame payload (header excluded).
func DecodePayload(payload []byte) (snapshot.Snapshot, error) {
	_, dec, err := codec()
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	raw, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("decompress: %w", err)
	}
	var s snapshot.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("decode: %w", err)
	}
	return s, nil
}

func payloadLength(header []byte) int64 {
	return int64(binary.LittleEndian.Uint32(header))
}
