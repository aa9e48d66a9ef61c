package store

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"github.com/dd0wney/skyfactory/pkg/table"
)

// Column file format:
//   [Header: magic(4) | version(2) | kind(1) | codec(1) | rows(8) | payload_len(8)]
//   [Payload: little-endian array, compressed with codec]
//   [Footer: xxhash64 of header and payload (8)]

const (
	ColumnMagic   = 0x534B5943 // "SKYC"
	ColumnVersion = 1
	HeaderSize    = 24
	FooterSize    = 8
	FileExt       = ".col"
)

// Codec selects the payload compression.
type Codec uint8

const (
	CodecNone   Codec = 0
	CodecSnappy Codec = 1
	CodecZstd   Codec = 2
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	case CodecZstd:
		return "zstd"
	}
	return fmt.Sprintf("codec(%d)", uint8(c))
}

// ParseCodec converts a configuration name to a Codec. Empty means snappy.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "snappy":
		return CodecSnappy, nil
	case "none":
		return CodecNone, nil
	case "zstd":
		return CodecZstd, nil
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

// ColumnHeader is the fixed-size prefix of every column file
type ColumnHeader struct {
	Magic      uint32
	Version    uint16
	Kind       table.Kind
	Codec      Codec
	Rows       uint64
	PayloadLen uint64
}

func (h ColumnHeader) marshal(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], h.Magic)
	binary.LittleEndian.PutUint16(dst[4:6], h.Version)
	dst[6] = byte(h.Kind)
	dst[7] = byte(h.Codec)
	binary.LittleEndian.PutUint64(dst[8:16], h.Rows)
	binary.LittleEndian.PutUint64(dst[16:24], h.PayloadLen)
}

func parseHeader(src []byte) (ColumnHeader, error) {
	if len(src) < HeaderSize {
		return ColumnHeader{}, fmt.Errorf("short header: %d bytes", len(src))
	}
	h := ColumnHeader{
		Magic:      binary.LittleEndian.Uint32(src[0:4]),
		Version:    binary.LittleEndian.Uint16(src[4:6]),
		Kind:       table.Kind(src[6]),
		Codec:      Codec(src[7]),
		Rows:       binary.LittleEndian.Uint64(src[8:16]),
		PayloadLen: binary.LittleEndian.Uint64(src[16:24]),
	}
	if h.Magic != ColumnMagic {
		return h, fmt.Errorf("invalid magic: %x", h.Magic)
	}
	if h.Version != ColumnVersion {
		return h, fmt.Errorf("unsupported version: %d", h.Version)
	}
	if h.Kind != table.KindInt64 && h.Kind != table.KindFloat64 {
		return h, fmt.Errorf("unknown kind: %d", h.Kind)
	}
	return h, nil
}

// zstd encoders are large; reuse them.
var zstdEncoders = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic("failed to create zstd encoder: " + err.Error())
		}
		return enc
	},
}

// Stream decoders are reset per column; concurrency 1 keeps them synchronous.
var zstdDecoders = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic("failed to create zstd decoder: " + err.Error())
		}
		return dec
	},
}

func compress(codec Codec, raw []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return append([]byte(nil), raw...), nil
	case CodecSnappy:
		return snappy.Encode(nil, raw), nil
	case CodecZstd:
		enc := zstdEncoders.Get().(*zstd.Encoder)
		defer zstdEncoders.Put(enc)
		return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	}
	return nil, fmt.Errorf("unknown codec %d", codec)
}

// readPayload decompresses the payload section into raw, which must have
// exactly the decoded length.
func readPayload(codec Codec, payload *io.SectionReader, raw []byte) error {
	switch codec {
	case CodecNone:
		if payload.Size() != int64(len(raw)) {
			return fmt.Errorf("payload holds %d bytes, want %d", payload.Size(), len(raw))
		}
		_, err := io.ReadFull(payload, raw)
		return err
	case CodecSnappy:
		buf := defaultBytePool.Get(int(payload.Size()))
		defer defaultBytePool.Put(buf)
		if _, err := io.ReadFull(payload, buf); err != nil {
			return err
		}
		n, err := snappy.DecodedLen(buf)
		if err != nil {
			return err
		}
		if n != len(raw) {
			return fmt.Errorf("payload holds %d bytes, want %d", n, len(raw))
		}
		_, err = snappy.Decode(raw, buf)
		return err
	case CodecZstd:
		dec := zstdDecoders.Get().(*zstd.Decoder)
		defer zstdDecoders.Put(dec)
		if err := dec.Reset(payload); err != nil {
			return err
		}
		if _, err := io.ReadFull(dec, raw); err != nil {
			return fmt.Errorf("payload shorter than %d bytes: %w", len(raw), err)
		}
		var extra [1]byte
		if n, _ := dec.Read(extra[:]); n != 0 {
			return fmt.Errorf("payload longer than %d bytes", len(raw))
		}
		return nil
	}
	return fmt.Errorf("unknown codec %d", codec)
}

// encodeColumn serializes a column into a complete file image.
func encodeColumn(c table.Column, codec Codec) ([]byte, error) {
	rows := c.Len()
	raw := defaultBytePool.Get(rows * 8)
	defer defaultBytePool.Put(raw)

	switch v := c.(type) {
	case table.Int64s:
		for i, x := range v {
			binary.LittleEndian.PutUint64(raw[i*8:], uint64(x))
		}
	case table.Float64s:
		for i, x := range v {
			binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(x))
		}
	default:
		return nil, fmt.Errorf("unsupported column type %T", c)
	}

	payload, err := compress(codec, raw)
	if err != nil {
		return nil, err
	}

	out := make([]byte, HeaderSize+len(payload)+FooterSize)
	ColumnHeader{
		Magic:      ColumnMagic,
		Version:    ColumnVersion,
		Kind:       c.Kind(),
		Codec:      codec,
		Rows:       uint64(rows),
		PayloadLen: uint64(len(payload)),
	}.marshal(out)
	copy(out[HeaderSize:], payload)
	sum := xxhash.Sum64(out[:HeaderSize+len(payload)])
	binary.LittleEndian.PutUint64(out[HeaderSize+len(payload):], sum)
	return out, nil
}

// decodeColumn reads a column file of the given size through r. The
// checksum is streamed over the header and payload, and only the payload is
// copied out for decompression.
func decodeColumn(r io.ReaderAt, size int64) (table.Column, ColumnHeader, error) {
	var hdr [HeaderSize]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, ColumnHeader{}, fmt.Errorf("short header: %w", err)
	}
	h, err := parseHeader(hdr[:])
	if err != nil {
		return nil, h, err
	}
	end := HeaderSize + int64(h.PayloadLen)
	if h.PayloadLen > uint64(size) || size != end+FooterSize {
		return nil, h, fmt.Errorf("file size %d does not match payload length %d", size, h.PayloadLen)
	}

	var foot [FooterSize]byte
	if _, err := r.ReadAt(foot[:], end); err != nil {
		return nil, h, fmt.Errorf("read footer: %w", err)
	}
	digest := xxhash.New()
	if _, err := io.Copy(digest, io.NewSectionReader(r, 0, end)); err != nil {
		return nil, h, fmt.Errorf("checksum: %w", err)
	}
	if got, want := digest.Sum64(), binary.LittleEndian.Uint64(foot[:]); got != want {
		return nil, h, fmt.Errorf("checksum mismatch: got %016x, want %016x", got, want)
	}

	raw := defaultBytePool.Get(int(h.Rows) * 8)
	defer defaultBytePool.Put(raw)
	if err := readPayload(h.Codec, io.NewSectionReader(r, HeaderSize, int64(h.PayloadLen)), raw); err != nil {
		return nil, h, fmt.Errorf("decompress: %w", err)
	}

	switch h.Kind {
	case table.KindInt64:
		out := make(table.Int64s, h.Rows)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return out, h, nil
	default:
		out := make(table.Float64s, h.Rows)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return out, h, nil
	}
}
