package progress

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrNotProgressLine is returned by Decode for ordinary worker output.
var ErrNotProgressLine = errors.New("not a progress line")

// ErrMalformed is wrapped by every DecodeError.
var ErrMalformed = errors.New("malformed progress line")

// DecodeError reports a line that carried the sentinel prefix but could not
// be turned into an Event.
type DecodeError struct {
	Reason  string
	Payload string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformed, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return ErrMalformed
}

// IsProgressLine reports whether line carries the protocol prefix.
func IsProgressLine(line string) bool {
	return strings.HasPrefix(line, Prefix)
}

// Decode parses a single output line. Missing or wrongly typed members fall
// back to "" for text and 0 for counts; only the payload shape and the
// "type" member can make a protocol line fail.
func Decode(line string) (Event, error) {
	payload, ok := strings.CutPrefix(line, Prefix)
	if !ok {
		return nil, ErrNotProgressLine
	}
	if !gjson.Valid(payload) {
		return nil, &DecodeError{Reason: "payload is not valid JSON", Payload: payload}
	}
	doc := gjson.Parse(payload)
	if !doc.IsObject() {
		return nil, &DecodeError{Reason: "payload is not a JSON object", Payload: payload}
	}

	kind := member(doc, "type")
	if kind.Type != gjson.String {
		return nil, &DecodeError{Reason: "missing event type", Payload: payload}
	}

	switch Kind(kind.Str) {
	case KindAlbumStart:
		return AlbumStart{
			Title:  text(doc, "title"),
			Source: text(doc, "source"),
			Total:  count(doc, "total"),
		}, nil
	case KindSongStart:
		return SongStart{
			Index: count(doc, "index"),
			Total: count(doc, "total"),
			Title: text(doc, "title"),
		}, nil
	case KindSongComplete:
		return SongComplete{
			Index:   count(doc, "index"),
			Title:   text(doc, "title"),
			Status:  text(doc, "status"),
			Size:    byteCount(doc, "size"),
			Message: text(doc, "message"),
		}, nil
	case KindAlbumComplete:
		return AlbumComplete{
			Success: count(doc, "success"),
			Failed:  count(doc, "failed"),
			Skipped: count(doc, "skipped"),
			Total:   count(doc, "total"),
		}, nil
	case KindError:
		return Error{Message: text(doc, "message")}, nil
	default:
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown event type %q", kind.Str), Payload: payload}
	}
}

// Encode renders event as a protocol line, members in wire order.
func Encode(event Event) (string, error) {
	doc, err := sjson.Set("{}", "type", string(event.Kind()))
	if err != nil {
		return "", err
	}
	for _, field := range event.Fields() {
		doc, err = sjson.Set(doc, field.Name, field.Value)
		if err != nil {
			return "", fmt.Errorf("encode %s.%s: %w", event.Kind(), field.Name, err)
		}
	}
	return Prefix + doc, nil
}

// member returns the last occurrence of key in doc, so a repeated key
// overrides earlier ones.
func member(doc gjson.Result, key string) gjson.Result {
	var found gjson.Result
	doc.ForEach(func(k, v gjson.Result) bool {
		if k.Str == key {
			found = v
		}
		return true
	})
	return found
}

func text(doc gjson.Result, key string) string {
	value := member(doc, key)
	if value.Type != gjson.String {
		return ""
	}
	return value.Str
}

// count accepts only non-negative JSON integers that fit an int.
func count(doc gjson.Result, key string) int {
	parsed, ok := unsigned(member(doc, key), strconv.IntSize-1)
	if !ok {
		return 0
	}
	return int(parsed)
}

// byteCount accepts the full unsigned 64-bit range.
func byteCount(doc gjson.Result, key string) uint64 {
	parsed, _ := unsigned(member(doc, key), 64)
	return parsed
}

func unsigned(value gjson.Result, bits int) (uint64, bool) {
	if value.Type != gjson.Number {
		return 0, false
	}
	parsed, err := strconv.ParseUint(value.Raw, 10, bits)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
