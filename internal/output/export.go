package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/ctagard/dap-dump/pkg/types"
)

// cborEncMode uses canonical options so equal documents encode to equal
// bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("output: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EncodeCBOR serializes a parsed document to CBOR.
func EncodeCBOR(doc *types.Document) ([]byte, error) {
	data, err := cborEncMode.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("output: marshal cbor: %w", err)
	}
	return data, nil
}

// DecodeCBOR deserializes a document written by EncodeCBOR, compressed
// or not.
func DecodeCBOR(data []byte) (*types.Document, error) {
	data, err := Decompress(data)
	if err != nil {
		return nil, err
	}
	var doc types.Document
	if err := cbor.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("output: unmarshal cbor: %w", err)
	}
	return &doc, nil
}

// EncodeJSON serializes a parsed document to indented JSON.
func EncodeJSON(doc *types.Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("output: marshal json: %w", err)
	}
	return data, nil
}

// Convert parses a protocol document and re-encodes it as "json" or
// "cbor".
func Convert(doc, format string) ([]byte, error) {
	parsed, err := Parse(doc)
	if err != nil {
		return nil, err
	}
	switch format {
	case "json":
		return EncodeJSON(parsed)
	case "cbor":
		return EncodeCBOR(parsed)
	}
	return nil, fmt.Errorf("output: unknown format %q", format)
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Compress wraps data in a zstd frame.
func Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("output: zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// Decompress unwraps a zstd frame. Data without the zstd magic is
// returned as is.
func Decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("output: zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("output: zstd decode: %w", err)
	}
	return out, nil
}
