package bind

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchRank(t *testing.T) {
	g := spaceRangers()
	tests := []struct {
		input string
		want  int
		ok    bool
	}{
		{input: "255", want: 255, ok: true},
		{input: " 10 ", want: 10, ok: true},
		{input: "999", ok: false},
		{input: "member", want: 10, ok: true},
		{input: "OWNER", want: 255, ok: true},
		{input: "offcer", want: 50, ok: true},
		{input: "zzz", ok: false},
		{input: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := matchRank(g, tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRankOptions(t *testing.T) {
	opts := rankOptions(spaceRangers())
	values := make([]string, len(opts))
	for i, o := range opts {
		values[i] = o.Value
	}
	assert.Equal(t, []string{"255", "50", "10"}, values)
	assert.Equal(t, "Rank 255", opts[0].Description)
	assert.False(t, usesRankModal(spaceRangers()))

	big := bigGroup()
	assert.True(t, usesRankModal(big))
	assert.Len(t, rankOptions(big), maxSelectOptions)
	assert.Equal(t, "200", rankOptions(big)[0].Value)
}

func TestRankPair(t *testing.T) {
	got, ok := rankPair([]string{"50", "10"})
	assert.True(t, ok)
	assert.Equal(t, [2]int{10, 50}, got)

	_, ok = rankPair([]string{"10", "10"})
	assert.False(t, ok)
	_, ok = rankPair([]string{"10"})
	assert.False(t, ok)
	_, ok = rankPair([]string{"x", "10"})
	assert.False(t, ok)
}
