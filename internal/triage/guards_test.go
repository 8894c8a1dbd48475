package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"  I DON\u200b’T   WANT\nto die  ", 0, "i don't want to die"},
		{"“Quoted”\ttext", 0, `"quoted" text`},
		{"abcdef", 3, "abc"},
		{"", 0, ""},
		{"a\x00b", 0, "ab"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in, tt.max), "Normalize(%q)", tt.in)
	}
}

func TestNegationGuard(t *testing.T) {
	g := NewNegationGuard([]string{"don't", "never", "won't"}, []string{"want to die"}, 3)
	require.NotNil(t, g)

	text := "i don't really think i want to die"
	spans := g.Spans(text)
	require.Len(t, spans, 1)
	assert.Equal(t, text[spans[0].Start:spans[0].End], "don't really think i want to die")

	assert.Empty(t, g.Spans("i don't know why everything hurts and i want to die"), "gap beyond three words")

	for _, text := range []string{
		"i won't lie. i want to die",
		"never mind. i want to die",
		"i don't care anymore. i want to die",
		"i don't care anymore, i want to die",
		"i don't care and i want to die",
		"never again! i want to die",
	} {
		assert.Empty(t, g.Spans(text), "negation ends at the clause: %q", text)
	}
	assert.Nil(t, NewNegationGuard(nil, []string{"x"}, 3))
}

func TestQuotationGuard(t *testing.T) {
	var g QuotationGuard

	spans := g.Spans(`he said "goodbye" and 'see you' later`)
	require.Len(t, spans, 2)

	assert.Empty(t, g.Spans("i don't think it's fair"), "apostrophes are not quotes")
	assert.Empty(t, g.Spans(`an "unclosed quote`))
}

func TestAttributionGuard(t *testing.T) {
	g := NewAttributionGuard(
		[]string{"he", "she", "my friend"},
		[]string{"wants to", "is going to", "are going to"},
		[]string{"said", "told me"},
		[]string{"i", "me", "myself"},
	)

	text := "my friend wants to end it all. i am fine"
	spans := g.Spans(text)
	require.NotEmpty(t, spans)
	assert.Equal(t, "my friend wants to end it all", text[spans[0].Start:spans[0].End])

	text = "she said she is tired but i want to sleep"
	spans = g.Spans(text)
	require.Len(t, spans, 1)
	assert.Equal(t, "said she is tired but ", text[spans[0].Start:spans[0].End])

	assert.Empty(t, g.Spans("he and i are going to leave"), "first person between subject and verb")
}

func TestHypotheticalGuard(t *testing.T) {
	g := NewHypotheticalGuard([]string{"in a movie", "hypothetically"})
	text := "in a movie someone says it. but i mean it"
	spans := g.Spans(text)
	require.Len(t, spans, 1)
	assert.Equal(t, "in a movie someone says it", text[spans[0].Start:spans[0].End])
}

func TestFilterMarkers(t *testing.T) {
	text := `"want to die" and want to die`
	spans := QuotationGuard{}.Spans(text)

	kept, suppressed := filterMarkers(text, []string{"want to die"}, spans, allGuards)
	assert.Equal(t, []string{"want to die"}, kept)
	assert.Empty(t, suppressed)

	text = `"want to die"`
	kept, suppressed = filterMarkers(text, []string{"want to die"}, QuotationGuard{}.Spans(text), allGuards)
	assert.Empty(t, kept)
	assert.Equal(t, []string{"quotation:want to die"}, suppressed)

	kept, _ = filterMarkers(text, []string{"want to die"}, QuotationGuard{}.Spans(text), func(string) bool { return false })
	assert.Equal(t, []string{"want to die"}, kept)
}

func TestCountDistinct(t *testing.T) {
	n, matched := countDistinct("my dog is dying", []string{"is dying", "dying"})
	assert.Equal(t, 1, n, "nested phrases count once")
	assert.Equal(t, []string{"is dying"}, matched)

	n, _ = countDistinct("cancer and hospice", []string{"cancer", "hospice"})
	assert.Equal(t, 2, n)
}

func TestHasWord(t *testing.T) {
	assert.True(t, hasWord("we put him down", "put"))
	assert.True(t, hasWord("my dog's bed", "dog"))
	assert.False(t, hasWord("output", "put"))
	assert.False(t, hasWord("catalog", "cat"))
}
