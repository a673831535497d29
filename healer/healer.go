// Package healer implements an incremental JSON-healing state machine.
// It consumes a stream of text fragments produced by an LLM, forwards
// the portion that is safe to emit immediately, and on end-of-stream
// synthesizes a closing tail that terminates any open string, object,
// or array and injects schema-required properties that never arrived.
//
// The healer is a single-pass character scanner, not a JSON parser: it
// tracks just enough state (string boundaries, nesting depth, the
// current object key) to answer the questions tail synthesis needs. It
// never fails and never rejects input; malformed or truncated JSON is
// healed best-effort.
package healer

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/mrorigo/stream-healer/schema"
)

// maxPreamble bounds how long the healer will buffer text that has not
// yet produced a JSON opener before giving up and treating the stream
// as plain, non-JSON text.
const maxPreamble = 500

// frame describes one open container on the nesting stack.
type frame struct {
	closer     byte
	isObject   bool
	keysSeen   map[string]struct{}
	currentKey *string
	hasContent bool
}

// IsObject implements schema.Frame.
func (f *frame) IsObject() bool { return f.isObject }

// CurrentKey implements schema.Frame.
func (f *frame) CurrentKey() (string, bool) {
	if f.currentKey == nil {
		return "", false
	}

	return *f.currentKey, true
}

// Healer is not safe for concurrent use; one instance owns exactly one
// stream. Construct with New, feed chunks to Process, and call Finish
// exactly once when the stream ends.
type Healer struct {
	resolver *schema.Resolver

	preamble strings.Builder
	started  bool
	noJSON   bool

	inString   bool
	escapeNext bool
	pendingKey strings.Builder

	stack []*frame

	finished bool
}

// New constructs a Healer. root may be nil, in which case the healer
// performs structural repair only and never injects missing properties.
func New(root *schema.Node) *Healer {
	return &Healer{resolver: schema.NewResolver(root)}
}

// Process feeds chunk through the healer and returns the portion safe
// to forward downstream now. It never fails.
func (h *Healer) Process(chunk string) string {
	if h.finished {
		return ""
	}

	if !h.started {
		return h.processPreamble(chunk)
	}

	if h.noJSON {
		return chunk
	}

	h.scan(chunk)

	return chunk
}

func (h *Healer) processPreamble(chunk string) string {
	h.preamble.WriteString(chunk)
	buf := h.preamble.String()

	if idx := indexOpener(buf); idx >= 0 {
		h.started = true
		rest := buf[idx:]
		h.preamble.Reset()
		h.scan(rest)

		return rest
	}

	if len(buf) > maxPreamble {
		h.started = true
		h.noJSON = true
		h.preamble.Reset()
		h.scan(buf)

		return buf
	}

	return ""
}

// Finish returns the synthesized closing tail. Calling Finish more than
// once, or calling Process after Finish, is a programming error; the
// healer treats both as no-ops rather than panicking.
func (h *Healer) Finish() string {
	if h.finished {
		return ""
	}

	h.finished = true

	if !h.started {
		return h.preamble.String()
	}

	var tail strings.Builder

	if h.inString {
		tail.WriteByte('"')

		if top := h.top(); top != nil && top.isObject && top.currentKey == nil {
			top.keysSeen[h.pendingKey.String()] = struct{}{}
		}
	}

	frames := h.frames()

	for i := len(h.stack) - 1; i >= 0; i-- {
		f := h.stack[i]
		if f.isObject {
			h.writeInjection(&tail, frames, f, i)
		}

		tail.WriteByte(f.closer)
	}

	return tail.String()
}

func (h *Healer) frames() []schema.Frame {
	out := make([]schema.Frame, len(h.stack))
	for i, f := range h.stack {
		out[i] = f
	}

	return out
}

// writeInjection appends the missing-required-property entries for
// frame f (at the given stack depth) to tail, per §4.1.3: missing keys
// in required-list order, comma-joined, with a leading comma only if
// the frame already has content.
func (h *Healer) writeInjection(tail *strings.Builder, frames []schema.Frame, f *frame, depth int) {
	node, ok := h.resolver.Resolve(frames, depth)
	if !ok || len(node.Required) == 0 {
		return
	}

	var injection strings.Builder

	written := 0

	for _, name := range node.Required {
		if _, seen := f.keysSeen[name]; seen {
			continue
		}

		if written > 0 {
			injection.WriteByte(',')
		}

		written++

		keyBytes, _ := json.Marshal(name)
		injection.Write(keyBytes)
		injection.WriteByte(':')
		injection.Write(requiredValue(node, name))
	}

	if written == 0 {
		return
	}

	if f.hasContent {
		tail.WriteByte(',')
	}

	tail.WriteString(injection.String())
}

// requiredValue returns the compact-JSON default for property name on
// node, falling back to the null literal when no default is declared or
// resolvable.
func requiredValue(node *schema.Node, name string) json.RawMessage {
	if node.Properties != nil {
		if prop, ok := node.Properties[name]; ok {
			if def, ok := prop.Default(); ok {
				var compact bytes.Buffer
				if err := json.Compact(&compact, def); err == nil {
					return compact.Bytes()
				}

				return def
			}
		}
	}

	return json.RawMessage("null")
}

func (h *Healer) top() *frame {
	if len(h.stack) == 0 {
		return nil
	}

	return h.stack[len(h.stack)-1]
}

func (h *Healer) push(isObject bool) {
	if top := h.top(); top != nil {
		top.hasContent = true
	}

	closer := byte('}')
	if !isObject {
		closer = ']'
	}

	h.stack = append(h.stack, &frame{
		closer:   closer,
		isObject: isObject,
		keysSeen: make(map[string]struct{}),
	})
}

func (h *Healer) pop(closer byte) {
	top := h.top()
	if top == nil || top.closer != closer {
		return
	}

	h.stack = h.stack[:len(h.stack)-1]
}

func (h *Healer) scan(s string) {
	for i := 0; i < len(s); i++ {
		h.step(s[i])
	}
}

func (h *Healer) step(c byte) {
	if h.inString {
		h.stepInString(c)
		return
	}

	switch c {
	case '"':
		h.inString = true
		h.pendingKey.Reset()

		if top := h.top(); top != nil {
			top.hasContent = true
		}
	case '{':
		h.push(true)
	case '[':
		h.push(false)
	case '}':
		h.pop('}')
	case ']':
		h.pop(']')
	case ',':
		if top := h.top(); top != nil && top.isObject {
			top.currentKey = nil
		}
	case ':':
		// The key-to-value transition is already captured when the
		// key's closing quote is scanned; nothing to do here.
	default:
		if isJSONWhitespace(c) {
			return
		}

		if top := h.top(); top != nil {
			top.hasContent = true
		}
	}
}

func (h *Healer) stepInString(c byte) {
	switch {
	case h.escapeNext:
		h.escapeNext = false
	case c == '\\':
		h.escapeNext = true
	case c == '"':
		h.inString = false

		if top := h.top(); top != nil && top.isObject && top.currentKey == nil {
			key := h.pendingKey.String()
			top.currentKey = &key
			top.keysSeen[key] = struct{}{}
		}
	default:
		if top := h.top(); top != nil && top.isObject && top.currentKey == nil {
			h.pendingKey.WriteByte(c)
		}
	}
}

func indexOpener(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			return i
		}
	}

	return -1
}

func isJSONWhitespace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r':
		return true
	default:
		return false
	}
}
