package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("pickletool: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// detectFormat resolves "auto" from the file extension, then from the
// first byte of the input.
func detectFormat(format, path string, data []byte) string {
	format = strings.ToLower(format)
	if format != "auto" {
		return format
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".cbor":
		return "cbor"
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 {
		switch trimmed[0] {
		case '{', '[', '"', 't', 'f', 'n', '-',
			'0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			if json.Valid(trimmed) {
				return "json"
			}
		}
	}
	return "cbor"
}

// decodeValue parses a value fixture into plain Go values the reference
// engine understands.
func decodeValue(data []byte, format string) (any, error) {
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return normalizeJSON(v), nil
	case "cbor":
		var v any
		if err := cbor.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode cbor: %w", err)
		}
		return v, nil
	}
	return nil, fmt.Errorf("unknown value format %q", format)
}

func encodeValue(v any, format string) ([]byte, error) {
	switch format {
	case "json":
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode json: %w", err)
		}
		return append(out, '\n'), nil
	case "cbor":
		out, err := cborEncMode.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode cbor: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown value format %q", format)
}

// normalizeJSON replaces json.Number with int64 when the number is
// integral and float64 otherwise.
func normalizeJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = normalizeJSON(x[i])
		}
		return x
	case map[string]any:
		for k, el := range x {
			x[k] = normalizeJSON(el)
		}
		return x
	}
	return v
}
