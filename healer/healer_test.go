package healer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrorigo/stream-healer/schema"
)

func mustParse(t *testing.T, raw string) *schema.Node {
	t.Helper()

	node, err := schema.Parse([]byte(raw))
	require.NoError(t, err)

	return node
}

// Table-driven end-to-end scenarios, one per row of the specification's
// concrete scenario table.
func TestHeal_SpecScenarios(t *testing.T) {
	cases := []struct {
		name        string
		schema      string
		input       string
		wantForward string
		wantTail    string
	}{
		{
			name:        "conversational preamble, no schema",
			input:       `Here is the code: {"foo": "bar"`,
			wantForward: `{"foo": "bar"`,
			wantTail:    `}`,
		},
		{
			name:        "missing required key, no default",
			schema:      `{"required":["a","b"]}`,
			input:       `{"a":1`,
			wantForward: `{"a":1`,
			wantTail:    `,"b":null}`,
		},
		{
			name:        "missing required keys with defaults",
			schema:      `{"required":["a","b","c"],"properties":{"b":{"default":"x"},"c":{"default":42}}}`,
			input:       `{"a":1`,
			wantForward: `{"a":1`,
			wantTail:    `,"b":"x","c":42}`,
		},
		{
			name:        "deep nesting, no schema",
			input:       `{"a":[{"b":{"c":[1,2`,
			wantForward: `{"a":[{"b":{"c":[1,2`,
			wantTail:    `]}}]}`,
		},
		{
			name:        "nested object via $ref",
			schema:      `{"required":["user"],"properties":{"user":{"$ref":"#/definitions/User"}},"definitions":{"User":{"required":["name","id"]}}}`,
			input:       `{"user":{"name":"A"`,
			wantForward: `{"user":{"name":"A"`,
			wantTail:    `,"id":null}}`,
		},
		{
			name:        "nested empty object via $ref with default",
			schema:      `{"required":["config"],"properties":{"config":{"$ref":"#/definitions/Cfg"}},"definitions":{"Cfg":{"required":["mode"],"properties":{"mode":{"default":"dark"}}}}}`,
			input:       `{"config":{`,
			wantForward: `{"config":{`,
			wantTail:    `"mode":"dark"}}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var node *schema.Node
			if tc.schema != "" {
				node = mustParse(t, tc.schema)
			}

			h := New(node)
			forwarded := h.Process(tc.input)
			tail := h.Finish()

			assert.Equal(t, tc.wantForward, forwarded)
			assert.Equal(t, tc.wantTail, tail)
			assert.True(t, json.Valid([]byte(forwarded+tail)), "healed output must be valid JSON")
		})
	}
}

func TestHeal_PassThroughOnCompleteInput(t *testing.T) {
	h := New(mustParse(t, `{"required":["a"]}`))

	forwarded := h.Process(`{"a":1}`)
	tail := h.Finish()

	assert.Equal(t, `{"a":1}`, forwarded)
	assert.Empty(t, tail)
}

func TestHeal_EmptyInput(t *testing.T) {
	h := New(nil)

	forwarded := h.Process("")
	tail := h.Finish()

	assert.Empty(t, forwarded)
	assert.Empty(t, tail)
}

func TestHeal_WhitespaceOnlyInput(t *testing.T) {
	h := New(nil)

	forwarded := h.Process("   \n\t")
	tail := h.Finish()

	assert.Empty(t, forwarded)
	assert.Equal(t, "   \n\t", tail)
}

func TestHeal_SingleOpenBraceNoSchema(t *testing.T) {
	h := New(nil)

	forwarded := h.Process("{")
	tail := h.Finish()

	assert.Equal(t, "{", forwarded)
	assert.Equal(t, "}", tail)
}

func TestHeal_SingleOpenBraceWithSchema(t *testing.T) {
	h := New(mustParse(t, `{"required":["k1","k2"]}`))

	forwarded := h.Process("{")
	tail := h.Finish()

	assert.Equal(t, "{", forwarded)
	assert.Equal(t, `"k1":null,"k2":null}`, tail)
}

func TestHeal_UnterminatedStringValue(t *testing.T) {
	h := New(nil)

	forwarded := h.Process(`{"a":"unterminated`)
	tail := h.Finish()

	assert.Equal(t, `"}`, tail)
	assert.True(t, json.Valid([]byte(forwarded+tail)))
}

func TestHeal_UnterminatedStringKeyRecordedAndInjected(t *testing.T) {
	h := New(mustParse(t, `{"required":["partial","b"]}`))

	forwarded := h.Process(`{"parti`)
	tail := h.Finish()

	// The dangling string closes as the key "parti", which never matches
	// the required name "partial", so both required keys are still
	// reported missing and injected.
	assert.Equal(t, `","partial":null,"b":null}`, tail)
	assert.True(t, json.Valid([]byte(forwarded+tail)))
}

func TestHeal_PreambleSafetyBound(t *testing.T) {
	h := New(nil)

	plain := make([]byte, 0, 600)
	for i := 0; i < 600; i++ {
		plain = append(plain, byte('a'+i%26))
	}

	forwarded := h.Process(string(plain))
	require.Equal(t, string(plain), forwarded, "no bytes should be lost once the safety bound is crossed")

	tail := h.Finish()
	assert.Empty(t, tail)
}

func TestHeal_PreambleSplitAcrossChunks(t *testing.T) {
	h := New(nil)

	first := h.Process("Here is ")
	second := h.Process("the answer: ")
	third := h.Process(`{"a":1}`)

	assert.Empty(t, first)
	assert.Empty(t, second)
	assert.Equal(t, `{"a":1}`, third)
	assert.Empty(t, h.Finish())
}

func TestHeal_MismatchedCloserIgnored(t *testing.T) {
	h := New(nil)

	forwarded := h.Process(`{"a":1]`)
	tail := h.Finish()

	assert.Equal(t, `{"a":1]`, forwarded)
	assert.Equal(t, `}`, tail, "the stray ']' must not pop the object frame")
}

func TestHeal_UnresolvableSchemaClosesWithoutInjection(t *testing.T) {
	h := New(mustParse(t, `{"required":["a"],"properties":{"a":{"$ref":"#/definitions/Missing"}}}`))

	forwarded := h.Process(`{"a":{"x":1`)
	tail := h.Finish()

	assert.Equal(t, `{"a":{"x":1`, forwarded)
	assert.Equal(t, `}}`, tail, "an unresolvable nested schema still closes structurally")
}

func TestHeal_IdempotentOnFullyHealedOutput(t *testing.T) {
	schemaRaw := `{"required":["a","b"]}`

	first := New(mustParse(t, schemaRaw))
	forwarded := first.Process(`{"a":1`)
	healed := forwarded + first.Finish()

	require.Equal(t, `{"a":1,"b":null}`, healed)

	second := New(mustParse(t, schemaRaw))
	reforwarded := second.Process(healed)
	retail := second.Finish()

	assert.Equal(t, healed, reforwarded)
	assert.Empty(t, retail)
}

func TestHeal_ChunkBoundarySplitsEscapeSequence(t *testing.T) {
	h := New(nil)

	var forwarded string
	forwarded += h.Process(`{"a":"line1\`)
	forwarded += h.Process(`n line2`)
	tail := h.Finish()

	assert.Equal(t, `{"a":"line1\n line2`, forwarded)
	assert.Equal(t, `"}`, tail)
	assert.True(t, json.Valid([]byte(forwarded+tail)))
}

func TestHeal_ArrayNeverInjected(t *testing.T) {
	h := New(mustParse(t, `{"required":["items"],"properties":{"items":{"items":{"required":["x"]}}}}`))

	forwarded := h.Process(`{"items":[1,2`)
	tail := h.Finish()

	assert.Equal(t, `{"items":[1,2`, forwarded)
	assert.Equal(t, `]}`, tail, "array frames are never schema-injected, only closed")
}

func TestHeal_ProcessAfterFinishIsNoop(t *testing.T) {
	h := New(nil)

	_ = h.Process(`{"a":1}`)
	_ = h.Finish()

	assert.Empty(t, h.Process("more"))
	assert.Empty(t, h.Finish())
}
