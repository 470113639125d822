package prompt

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var groupSchema = Schema{{Name: "group_id", Kind: FieldInt}, {Name: "mode", Kind: FieldString}}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		id     Identity
		schema Schema
	}{
		{
			name:   "full",
			id:     Identity{Command: "bind", Wizard: "group", UserID: 123456789012345678, MessageID: 1234567890123456789, Page: 3, Component: "new_bind", Extra: []Field{{"group_id", "1234567"}, {"mode", "x:y"}}},
			schema: groupSchema,
		},
		{
			name: "unknown message and no component",
			id:   Identity{Command: "bind", Wizard: "asset", UserID: 5, Page: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Encode(tt.id)
			require.NoError(t, err)
			assert.LessOrEqual(t, Length(s), MaxCustomIDLength)

			got, err := Decode(s, tt.schema)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.id, got); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}

			again, err := Encode(got)
			require.NoError(t, err)
			assert.Equal(t, s, again)
		})
	}
}

func TestEncodeUnknownMessageIsEmptySegment(t *testing.T) {
	s, err := Encode(Identity{Command: "c", Wizard: "w", UserID: 1, Page: 2, Component: "x"})
	require.NoError(t, err)
	assert.Equal(t, "c:w:1::2:x", s)
}

func TestEncodeTooLong(t *testing.T) {
	id := Identity{Command: "bind", Wizard: "group", UserID: 1, Extra: []Field{{"name", strings.Repeat("a", 90)}}}
	_, err := Encode(id)
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestLengthCountsUTF16Units(t *testing.T) {
	assert.Equal(t, 2, Length(SplitChar))

	// 48 split characters are 96 code units but only 48 runes.
	id := Identity{Command: "c", Wizard: "w", UserID: 1, Extra: make([]Field, 48)}
	_, err := Encode(id)
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"too few segments":   "bind:group:1:2:3",
		"bad user":           "bind:group:abc::0:x" + SplitChar + "1" + SplitChar + "m",
		"bad page":           "bind:group:1::-1:x" + SplitChar + "1" + SplitChar + "m",
		"missing field":      "bind:group:1::0:x" + SplitChar + "1",
		"extra field":        "bind:group:1::0:x" + SplitChar + "1" + SplitChar + "m" + SplitChar + "z",
		"int field not int":  "bind:group:1::0:x" + SplitChar + "one" + SplitChar + "m",
		"empty wizard":       "bind::1::0:x" + SplitChar + "1" + SplitChar + "m",
		"bad message":        "bind:group:1:zz:0:x" + SplitChar + "1" + SplitChar + "m",
		"over length":        strings.Repeat("a", 101),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(in, groupSchema)
			assert.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestEncodeRejectsSeparators(t *testing.T) {
	_, err := Encode(Identity{Command: "a:b", Wizard: "w", UserID: 1})
	assert.ErrorIs(t, err, ErrMalformedToken)

	_, err = Encode(Identity{Command: "a", Wizard: "w", UserID: 1, Extra: []Field{{"f", "x" + SplitChar}}})
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestSchemaCheck(t *testing.T) {
	schema := Schema{{Name: "group_id", Kind: FieldInt}, {Name: "mode", Kind: FieldString}}
	require.NoError(t, schema.Check([]Field{{"group_id", "4"}, {"mode", "m"}}))

	tests := map[string][]Field{
		"missing field": {{"group_id", "4"}},
		"wrong name":    {{"group", "4"}, {"mode", "m"}},
		"not integer":   {{"group_id", "four"}, {"mode", "m"}},
	}
	for name, extra := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, schema.Check(extra), ErrMalformedToken)
		})
	}
}

func TestPeek(t *testing.T) {
	s, err := Encode(Identity{Command: "bind", Wizard: "group", UserID: 9, Page: 1, Component: "c", Extra: []Field{{"group_id", "4"}, {"mode", "m"}}})
	require.NoError(t, err)

	r, err := Peek(s)
	require.NoError(t, err)
	assert.Equal(t, Route{Command: "bind", Wizard: "group"}, r)

	_, err = Peek("not-a-custom-id")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestIdentityAccessors(t *testing.T) {
	id := Identity{Extra: []Field{{"group_id", "42"}, {"mode", "m"}}}
	assert.Equal(t, int64(42), id.Int("group_id"))
	assert.Equal(t, "m", id.Get("mode"))
	assert.Equal(t, "", id.Get("missing"))
}
