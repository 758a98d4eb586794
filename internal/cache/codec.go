package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/andybalholm/brotli"
)

// Compressed payloads are stored as a one-byte tag followed by brotli data.
// The tag records how the value was turned into bytes before compression.
const (
	tagBrotliBytes  byte = 0x01
	tagBrotliString byte = 0x02
	tagBrotliJSON   byte = 0x03
)

var errCorruptPayload = errors.New("corrupt compressed payload")

// brotliLevel trades a little ratio for speed; values are compressed on the request path.
const brotliLevel = 5

// estimateSize approximates the serialized size of v in bytes.
// Values that cannot be JSON encoded fall back to the length of their %v rendering.
func estimateSize(v any) int64 {
	switch x := v.(type) {
	case nil:
		return 0
	case []byte:
		return int64(len(x))
	case string:
		return int64(len(x))
	case json.RawMessage:
		return int64(len(x))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return int64(len(fmt.Sprintf("%v", v)))
	}
	return int64(len(b))
}

// compress serializes v and returns its tagged brotli form. Byte slices and
// strings, including named types such as json.RawMessage, are stored verbatim.
func compress[V any](v V) ([]byte, error) {
	var (
		tag byte
		raw []byte
	)
	rv := reflect.ValueOf(any(v))
	switch {
	case isByteSlice(rv):
		tag, raw = tagBrotliBytes, rv.Bytes()
	case rv.Kind() == reflect.String:
		tag, raw = tagBrotliString, []byte(rv.String())
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode value: %w", err)
		}
		tag, raw = tagBrotliJSON, b
	}

	var buf bytes.Buffer
	buf.WriteByte(tag)
	w := brotli.NewWriterLevel(&buf, brotliLevel)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("brotli write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli close: %w", err)
	}
	return buf.Bytes(), nil
}

// decompress reverses compress.
func decompress[V any](packed []byte) (V, error) {
	var zero V
	if len(packed) < 2 {
		return zero, errCorruptPayload
	}
	raw, err := io.ReadAll(brotli.NewReader(bytes.NewReader(packed[1:])))
	if err != nil {
		return zero, fmt.Errorf("brotli read: %w", err)
	}

	switch packed[0] {
	case tagBrotliBytes:
		return decodeAs[V](raw, reflect.Slice)
	case tagBrotliString:
		return decodeAs[V](string(raw), reflect.String)
	case tagBrotliJSON:
		var v V
		if err := json.Unmarshal(raw, &v); err != nil {
			return zero, fmt.Errorf("decode value: %w", err)
		}
		return v, nil
	default:
		return zero, fmt.Errorf("%w: unknown tag 0x%02x", errCorruptPayload, packed[0])
	}
}

func isByteSlice(rv reflect.Value) bool {
	return rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8
}

// decodeAs converts a verbatim payload into V. Named byte slice and string
// types are rebuilt through reflection; interface types receive the plain value.
func decodeAs[V any](x any, kind reflect.Kind) (V, error) {
	var zero V
	if v, ok := x.(V); ok {
		return v, nil
	}
	t := reflect.TypeFor[V]()
	if t.Kind() != kind || (kind == reflect.Slice && t.Elem().Kind() != reflect.Uint8) {
		return zero, fmt.Errorf("%w: %T payload for %v", errCorruptPayload, x, t)
	}
	out := reflect.New(t).Elem()
	if kind == reflect.Slice {
		out.SetBytes(x.([]byte))
	} else {
		out.SetString(x.(string))
	}
	return out.Interface().(V), nil
}

// losslessKind reports whether every value of V survives compress unchanged,
// so the packed form does not need to be verified.
func losslessKind[V any]() bool {
	t := reflect.TypeFor[V]()
	switch t.Kind() {
	case reflect.String:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	}
	return false
}

// roundTrips reports whether packed decodes back to a value deep-equal to v.
func roundTrips[V any](v V, packed []byte) bool {
	if losslessKind[V]() {
		return true
	}
	got, err := decompress[V](packed)
	return err == nil && reflect.DeepEqual(got, v)
}
