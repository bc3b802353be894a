package snapshot

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/zstd"
	"github.com/pelletier/go-toml/v2"
	"github.com/pierrec/lz4/v4"
	"github.com/tidwall/jsonc"
)

// Format is the encoding of a snapshot file
type Format int

const (
	FormatJSON Format = iota
	FormatJSONC
	FormatYAML
	FormatTOML
	FormatCBOR
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatJSONC:
		return "jsonc"
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	case FormatCBOR:
		return "cbor"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// Compression wraps the encoded bytes
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	cborEnc, err = encOptions.EncMode()
	if err != nil {
		panic("snapshot: cbor encoder initialization failed: " + err.Error())
	}

	cborDec, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("snapshot: cbor decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

// DetectFormat reads the format and compression from a file name such as
// "trace.yaml" or "trace.cbor.zst"
func DetectFormat(path string) (Format, Compression, error) {
	name := strings.ToLower(filepath.Base(path))

	compression := CompressionNone
	switch {
	case strings.HasSuffix(name, ".zst"):
		compression = CompressionZstd
		name = strings.TrimSuffix(name, ".zst")
	case strings.HasSuffix(name, ".lz4"):
		compression = CompressionLZ4
		name = strings.TrimSuffix(name, ".lz4")
	}

	switch filepath.Ext(name) {
	case ".json":
		return FormatJSON, compression, nil
	case ".jsonc":
		return FormatJSONC, compression, nil
	case ".yaml", ".yml":
		return FormatYAML, compression, nil
	case ".toml":
		return FormatTOML, compression, nil
	case ".cbor":
		return FormatCBOR, compression, nil
	default:
		return 0, 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Marshal encodes a snapshot. JSONC is written as plain JSON.
func Marshal(snap *Snapshot, format Format, compression Compression) ([]byte, error) {
	data, err := encode(snap, format)
	if err != nil {
		return nil, fmt.Errorf("encode %s snapshot: %w", format, err)
	}
	return compress(data, compression)
}

// Unmarshal decodes a snapshot and checks its version
func Unmarshal(data []byte, format Format, compression Compression) (*Snapshot, error) {
	raw, err := decompress(data, compression)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := decode(raw, format, &snap); err != nil {
		return nil, fmt.Errorf("decode %s snapshot: %w", format, err)
	}
	if err := snap.normalize(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// LoadFile reads a snapshot, picking the codec from the file name
func LoadFile(path string) (*Snapshot, error) {
	format, compression, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Unmarshal(data, format, compression)
}

// SaveFile writes a snapshot, picking the codec from the file name. The
// file is replaced atomically.
func SaveFile(path string, snap *Snapshot) error {
	format, compression, err := DetectFormat(path)
	if err != nil {
		return err
	}

	data, err := Marshal(snap, format, compression)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func encode(snap *Snapshot, format Format) ([]byte, error) {
	switch format {
	case FormatJSON, FormatJSONC:
		// ConfigStd sorts map keys, so equal snapshots give equal files
		return sonic.ConfigStd.MarshalIndent(snap, "", "  ")
	case FormatYAML:
		return yaml.Marshal(snap)
	case FormatTOML:
		return toml.Marshal(snap)
	case FormatCBOR:
		return cborEnc.Marshal(snap)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func decode(data []byte, format Format, snap *Snapshot) error {
	switch format {
	case FormatJSON:
		return sonic.Unmarshal(data, snap)
	case FormatJSONC:
		return sonic.Unmarshal(jsonc.ToJSON(data), snap)
	case FormatYAML:
		return yaml.Unmarshal(data, snap)
	case FormatTOML:
		return toml.Unmarshal(data, snap)
	case FormatCBOR:
		return cborDec.Unmarshal(data, snap)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func compress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", compression)
	}
}

func decompress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return out, nil
	case CompressionLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression: %s", compression)
	}
}
