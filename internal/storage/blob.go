package storage

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/segfit/pkg/segment"
)

// Blob encodings recorded in channels.encoding
const (
	encodingMsgpack     = "msgpack"
	encodingMsgpackZstd = "msgpack+zstd"
)

var errChecksumMismatch = errors.New("channel state checksum mismatch")

var encoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder: %v", err))
		}
		return enc
	},
}

var decoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
		}
		return dec
	},
}

// stateBlob is a channel state as stored in the channels table
type stateBlob struct {
	data     []byte
	encoding string
	checksum string
}

func checksum(raw []byte) string {
	return strconv.FormatUint(xxhash.Sum64(raw), 16)
}

// encodeState serializes a channel state to msgpack, using the JSON field
// names, and compresses it
func encodeState(state *segment.ChannelState) (stateBlob, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(state); err != nil {
		return stateBlob{}, err
	}

	z := encoderPool.Get().(*zstd.Encoder)
	defer encoderPool.Put(z)

	return stateBlob{
		data:     z.EncodeAll(buf.Bytes(), nil),
		encoding: encodingMsgpackZstd,
		checksum: checksum(buf.Bytes()),
	}, nil
}

// decodeState reverses encodeState. Rows written before compression was
// introduced carry plain msgpack and no checksum.
func decodeState(blob stateBlob) (*segment.ChannelState, error) {
	raw := blob.data
	switch blob.encoding {
	case encodingMsgpack, "":
	case encodingMsgpackZstd:
		z := decoderPool.Get().(*zstd.Decoder)
		defer decoderPool.Put(z)
		var err error
		if raw, err = z.DecodeAll(blob.data, nil); err != nil {
			return nil, fmt.Errorf("zstd decompression failed: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown channel state encoding %q", blob.encoding)
	}

	if blob.checksum != "" && checksum(raw) != blob.checksum {
		return nil, errChecksumMismatch
	}

	dec := msgpack.NewDecoder(bytes.NewReader(raw))
	dec.SetCustomStructTag("json")
	var state segment.ChannelState
	if err := dec.Decode(&state); err != nil {
		return nil, err
	}
	return &state, nil
}
