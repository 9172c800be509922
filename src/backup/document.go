package backup

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// Document is a configuration snapshot exactly as the device returned it.
// It is never mutated; only its indentation changes when written.
type Document struct {
	raw []byte
}

// ParseDocument wraps raw JSON. Anything well-formed is accepted.
func ParseDocument(raw []byte) (Document, error) {
	if !json.Valid(raw) {
		return Document{}, errors.New("configuration is not valid JSON")
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return Document{raw: out}, nil
}

// LoadDocument reads a backup file from disk.
func LoadDocument(path string) (Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	doc, err := ParseDocument(b)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Raw returns the bytes as received.
func (d Document) Raw() []byte { return d.raw }

// Indented renders the document with 2-space indentation and a trailing
// newline, preserving key order.
func (d Document) Indented() ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, d.raw, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Equal reports whether two documents hold the same JSON modulo whitespace.
func (d Document) Equal(o Document) bool {
	var a, b bytes.Buffer
	if json.Compact(&a, d.raw) != nil || json.Compact(&b, o.raw) != nil {
		return false
	}
	return bytes.Equal(a.Bytes(), b.Bytes())
}

// Servo is the part of a servo record used for reporting.
type Servo struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	IsPair  bool   `json:"isPair"`
}

// Board is the part of a board record used for reporting.
type Board struct {
	Index   int     `json:"index"`
	Address int     `json:"address"`
	Name    string  `json:"name"`
	Servos  []Servo `json:"servos"`
}

// Boards decodes board records best-effort. ok is false when the document
// does not report success or carries no boards. A board is skipped only when
// its index or address cannot be read; odd servo fields are read for their
// truthiness instead of failing the board.
func (d Document) Boards() (boards []Board, ok bool) {
	var top struct {
		Success bool              `json:"success"`
		Boards  []json.RawMessage `json:"boards"`
	}
	if err := json.Unmarshal(d.raw, &top); err != nil {
		return nil, false
	}
	if !top.Success || len(top.Boards) == 0 {
		return nil, false
	}
	for _, rb := range top.Boards {
		if b, ok := decodeBoard(rb); ok {
			boards = append(boards, b)
		}
	}
	return boards, true
}

func decodeBoard(raw json.RawMessage) (Board, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Board{}, false
	}
	var b Board
	if err := json.Unmarshal(fields["index"], &b.Index); err != nil {
		return Board{}, false
	}
	if err := json.Unmarshal(fields["address"], &b.Address); err != nil {
		return Board{}, false
	}
	_ = json.Unmarshal(fields["name"], &b.Name)

	var servos []map[string]any
	if err := json.Unmarshal(fields["servos"], &servos); err != nil {
		return b, true
	}
	for i, sv := range servos {
		s := Servo{Index: i, Enabled: truthy(sv["enabled"]), IsPair: truthy(sv["isPair"])}
		if n, ok := sv["index"].(float64); ok {
			s.Index = int(n)
		}
		s.Name, _ = sv["name"].(string)
		b.Servos = append(b.Servos, s)
	}
	return b, true
}

// truthy reads a flag loosely: true, non-zero numbers and non-empty values
// count as set.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return false
}
