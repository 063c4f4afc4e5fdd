// Copyright 2026 The Ignition Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootlog reads and writes framed lifecycle record files,
// primarily transition reports.
//
// A record file is a single frame:
//
//	magic "IGNR" (4) | format version (1) | compression tag (1) |
//	keyed BLAKE3 digest (32) | uncompressed length (8, LE) |
//	compressed length (8, LE) | payload
//
// The payload is deterministic CBOR (lib/codec), optionally
// compressed. The digest is computed over the uncompressed CBOR
// bytes, so it is stable across compression algorithm changes, and it
// is keyed with a domain key so a bootlog digest can never collide
// with a digest from another context.
package bootlog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/ignition-foundation/ignition/lib/codec"
)

// FormatVersion is the current frame format version.
const FormatVersion = 1

var magic = [4]byte{'I', 'G', 'N', 'R'}

// ErrBadMagic is returned when the input does not start with a
// record frame.
var ErrBadMagic = errors.New("bootlog: bad magic")

// ErrDigestMismatch is returned when the payload digest does not
// verify; the record is corrupt or was tampered with.
var ErrDigestMismatch = errors.New("bootlog: digest mismatch")

// recordDomainKey is the 32-byte BLAKE3 key for record digests. The
// bytes are the ASCII domain name zero-padded to 32, inspectable in
// hex dumps.
var recordDomainKey = [32]byte{
	'i', 'g', 'n', 'i', 't', 'i', 'o', 'n', '.', 'b', 'o', 'o', 't', 'l', 'o', 'g',
	'.', 'r', 'e', 'c', 'o', 'r', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Compression identifies the payload compression. Tags are stored in
// the frame (1 byte) — changing the values breaks existing files.
type Compression uint8

const (
	// CompressionNone stores the CBOR payload as is. Reports are
	// small; this is a fine default for humans doing forensics.
	CompressionNone Compression = 0

	// CompressionLZ4 applies LZ4 block compression.
	CompressionLZ4 Compression = 1

	// CompressionZstd applies zstd at the default level.
	CompressionZstd Compression = 2
)

// String returns the tag's name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a tag name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("bootlog: unknown compression %q", name)
	}
}

// errIncompressible signals that compression did not shrink the
// payload; the frame falls back to CompressionNone.
var errIncompressible = errors.New("bootlog: incompressible payload")

// zstdEncoder and zstdDecoder are reused across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("bootlog: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("bootlog: zstd decoder initialization failed: " + err.Error())
	}
}

// Write encodes record as deterministic CBOR and writes one frame to
// w with the requested compression. If the payload does not shrink,
// the frame silently falls back to CompressionNone — the tag in the
// file records what was actually used.
func Write(w io.Writer, record any, compression Compression) error {
	payload, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	compressed, actual, err := compress(payload, compression)
	if err != nil {
		return err
	}

	digest := recordDigest(payload)

	header := make([]byte, 0, 4+1+1+32+8+8)
	header = append(header, magic[:]...)
	header = append(header, FormatVersion, byte(actual))
	header = append(header, digest[:]...)
	header = binary.LittleEndian.AppendUint64(header, uint64(len(payload)))
	header = binary.LittleEndian.AppendUint64(header, uint64(len(compressed)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing record header: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("writing record payload: %w", err)
	}
	return nil
}

// Read reads one frame from r, verifies its digest, and decodes the
// payload into record. It returns the compression tag the frame
// carried.
func Read(r io.Reader, record any) (Compression, error) {
	payload, compression, err := ReadRaw(r)
	if err != nil {
		return compression, err
	}
	if err := codec.Unmarshal(payload, record); err != nil {
		return compression, fmt.Errorf("decoding record: %w", err)
	}
	return compression, nil
}

// ReadRaw reads one frame and returns the verified, decompressed CBOR
// payload without decoding it. The report tool uses this for CBOR
// diagnostic output.
func ReadRaw(r io.Reader) ([]byte, Compression, error) {
	header := make([]byte, 4+1+1+32+8+8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, fmt.Errorf("reading record header: %w", err)
	}
	if !bytes.Equal(header[:4], magic[:]) {
		return nil, 0, ErrBadMagic
	}
	if header[4] != FormatVersion {
		return nil, 0, fmt.Errorf("bootlog: unsupported format version %d", header[4])
	}

	compression := Compression(header[5])
	var digest [32]byte
	copy(digest[:], header[6:38])
	uncompressedLength := binary.LittleEndian.Uint64(header[38:46])
	compressedLength := binary.LittleEndian.Uint64(header[46:54])

	const maxRecordSize = 64 << 20 // no legitimate record comes close
	if uncompressedLength > maxRecordSize || compressedLength > maxRecordSize {
		return nil, compression, fmt.Errorf("bootlog: implausible record size %d/%d",
			compressedLength, uncompressedLength)
	}

	compressed := make([]byte, compressedLength)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, compression, fmt.Errorf("reading record payload: %w", err)
	}

	payload, err := decompress(compressed, compression, int(uncompressedLength))
	if err != nil {
		return nil, compression, err
	}
	if recordDigest(payload) != digest {
		return nil, compression, ErrDigestMismatch
	}
	return payload, compression, nil
}

// recordDigest computes the domain-keyed BLAKE3 digest of the
// uncompressed payload.
func recordDigest(payload []byte) [32]byte {
	hasher, err := blake3.NewKeyed(recordDomainKey[:])
	if err != nil {
		panic("bootlog: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(payload)
	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}

func compress(payload []byte, requested Compression) ([]byte, Compression, error) {
	switch requested {
	case CompressionNone:
		return payload, CompressionNone, nil
	case CompressionLZ4:
		compressed, err := compressLZ4(payload)
		if errors.Is(err, errIncompressible) {
			return payload, CompressionNone, nil
		}
		if err != nil {
			return nil, 0, err
		}
		return compressed, CompressionLZ4, nil
	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(payload, nil)
		if len(compressed) >= len(payload) {
			return payload, CompressionNone, nil
		}
		return compressed, CompressionZstd, nil
	default:
		return nil, 0, fmt.Errorf("bootlog: unsupported compression tag %d", requested)
	}
}

func decompress(compressed []byte, tag Compression, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("bootlog: stored size %d does not match expected %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil

	case CompressionLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(compressed, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
		}
		return destination, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
		}
		return result, nil

	default:
		return nil, fmt.Errorf("bootlog: unsupported compression tag %d", tag)
	}
}

func compressLZ4(payload []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(payload)))
	written, err := lz4.CompressBlock(payload, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input; also fall
	// back when the output failed to shrink.
	if written == 0 || written >= len(payload) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}
