// Package wireformat encodes diff results and API payloads as JSON, JSON lines, MessagePack, or a line-oriented text form, and decodes request bodies.
//
// MessagePack uses the json struct tags, so every format shares field names.
package wireformat

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/term"

	"github.com/msglog/msglog/internal/tokendiff"
)

type Format string

const (
	FormatAuto    Format = "" // resolved by Auto
	FormatJSON    Format = "json"
	FormatJSONL   Format = "jsonl"
	FormatMsgPack Format = "msgpack"
	FormatText    Format = "text"
)

// Content types.
const (
	ContentTypeJSON    = "application/json"
	ContentTypeJSONL   = "application/x-ndjson"
	ContentTypeMsgPack = "application/msgpack"
	ContentTypeText    = "text/plain; charset=utf-8"
)

// ParseFormat parses a --format value. "" and "auto" give FormatAuto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "auto":
		return FormatAuto, nil
	case FormatAuto, FormatJSON, FormatJSONL, FormatMsgPack, FormatText:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want json, jsonl, msgpack, text, or auto)", s)
}

// Auto returns FormatText when w is a terminal and FormatJSON otherwise.
func Auto(w io.Writer) Format {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return FormatText
	}
	return FormatJSON
}

// Resolve returns f, or Auto(w) when f is FormatAuto.
func Resolve(f Format, w io.Writer) Format {
	if f == FormatAuto {
		return Auto(w)
	}
	return f
}

// ContentType returns the HTTP content type for f.
func ContentType(f Format) string {
	switch f {
	case FormatJSONL:
		return ContentTypeJSONL
	case FormatMsgPack:
		return ContentTypeMsgPack
	case FormatText:
		return ContentTypeText
	default:
		return ContentTypeJSON
	}
}

// Negotiate picks a response format from an Accept header: msgpack or plain text when asked for, JSON otherwise.
func Negotiate(accept string) Format {
	for _, part := range strings.Split(accept, ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch {
		case isMsgPack(mt):
			return FormatMsgPack
		case mt == "application/x-ndjson":
			return FormatJSONL
		case mt == "text/plain":
			return FormatText
		case mt == "application/json":
			return FormatJSON
		}
	}
	return FormatJSON
}

func isMsgPack(mediaType string) bool {
	switch mediaType {
	case "application/msgpack", "application/x-msgpack", "application/vnd.msgpack":
		return true
	}
	return false
}

// Encode writes v to w in format f. FormatAuto is resolved against w.
//
// FormatJSON is indented; FormatJSONL is one compact line. FormatText renders a tokendiff.Result or tokendiff.Stats as text and falls back to indented JSON for anything else.
func Encode(w io.Writer, f Format, v any) error {
	switch Resolve(f, w) {
	case FormatJSONL:
		return json.NewEncoder(w).Encode(v)
	case FormatMsgPack:
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		enc.UseCompactInts(true)
		return enc.Encode(v)
	case FormatText:
		switch vv := v.(type) {
		case tokendiff.Result:
			return WriteText(w, vv)
		case tokendiff.Stats:
			_, err := fmt.Fprintf(w, "strategy=%s old_tokens=%d new_tokens=%d cells=%d segments=%d\n", vv.Strategy, vv.OldTokens, vv.NewTokens, vv.Cells, vv.Segments)
			return err
		}
		fallthrough
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// Decode reads one value from r according to contentType: MessagePack for the msgpack media types, JSON for everything else (including an empty content type).
func Decode(r io.Reader, contentType string, v any) error {
	mt := ""
	if contentType != "" {
		parsed, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return fmt.Errorf("content type %q: %w", contentType, err)
		}
		mt = parsed
	}
	if isMsgPack(mt) {
		dec := msgpack.NewDecoder(r)
		dec.SetCustomStructTag("json")
		return dec.Decode(v)
	}
	return json.NewDecoder(r).Decode(v)
}

// opPrefix is the text-form marker for each op.
var opPrefix = map[tokendiff.Op]byte{
	tokendiff.OpUnchanged: '=',
	tokendiff.OpAdded:     '+',
	tokendiff.OpRemoved:   '-',
}

// WriteText writes one line per segment: '=', '+' or '-', a space, and the Go-quoted text.
func WriteText(w io.Writer, r tokendiff.Result) error {
	bw := bufio.NewWriter(w)
	for _, seg := range r {
		p, ok := opPrefix[seg.Op]
		if !ok {
			return fmt.Errorf("invalid op %d", int(seg.Op))
		}
		bw.WriteByte(p)
		bw.WriteByte(' ')
		bw.WriteString(strconv.Quote(seg.Text))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadText parses the output of WriteText. Blank lines are skipped.
func ReadText(rd io.Reader) (tokendiff.Result, error) {
	var out tokendiff.Result
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 64<<20)
	for line := 1; sc.Scan(); line++ {
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if len(text) < 3 || text[1] != ' ' {
			return nil, fmt.Errorf("line %d: malformed segment", line)
		}
		var op tokendiff.Op
		switch text[0] {
		case '=':
			op = tokendiff.OpUnchanged
		case '+':
			op = tokendiff.OpAdded
		case '-':
			op = tokendiff.OpRemoved
		default:
			return nil, fmt.Errorf("line %d: unknown marker %q", line, text[0])
		}
		s, err := strconv.Unquote(text[2:])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, tokendiff.Segment{Op: op, Text: s})
	}
	return out, sc.Err()
}
