package doc

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KeepsNumbers(t *testing.T) {
	d, err := Parse([]byte(`{"_id":"game","_rev":"1-abc","big":12345678901234567890,"f":1.5}`))
	require.NoError(t, err)

	assert.Equal(t, "game", d.ID())
	assert.Equal(t, "1-abc", d.Rev())
	assert.Equal(t, json.Number("12345678901234567890"), d["big"])
	assert.Equal(t, json.Number("1.5"), d["f"])
}

func TestParse_RejectsNonObject(t *testing.T) {
	_, err := Parse([]byte(`[1,2]`))
	assert.Error(t, err)

	_, err = Parse([]byte(`null`))
	assert.Error(t, err)
}

func TestDocument_Accessors(t *testing.T) {
	d := Document{FieldID: 7, FieldRev: true}
	assert.Equal(t, "", d.ID(), "non-string id reads as empty")
	assert.Equal(t, "", d.Rev())
	assert.False(t, d.Deleted())

	d = Document{FieldID: "x", FieldDeleted: true}
	assert.True(t, d.Deleted())
}

func TestDocument_CloneIsDeep(t *testing.T) {
	d := Document{
		"_id":   "x",
		"stats": map[string]any{"str": json.Number("3")},
		"tags":  []any{"a"},
	}
	c := d.Clone()
	c["stats"].(map[string]any)["str"] = json.Number("9")
	c["tags"].([]any)[0] = "b"

	assert.Equal(t, json.Number("3"), d["stats"].(map[string]any)["str"])
	assert.Equal(t, "a", d["tags"].([]any)[0])
}

func TestDocument_WithAndBody(t *testing.T) {
	d := Document{"title": "Night"}
	w := d.With(map[string]any{FieldID: "game", FieldRev: "2-aa"})

	assert.Equal(t, "game", w.ID())
	assert.Equal(t, "2-aa", w.Rev())
	assert.NotContains(t, d, FieldID, "With must not mutate the receiver")

	body := w.Body()
	assert.NotContains(t, body, FieldRev)
	assert.Equal(t, "game", body.ID())
}

func TestDocument_MarshalJSONNoHTMLEscape(t *testing.T) {
	d := Document{"title": "<b>&</b>"}

	data, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"title":"<b>&</b>"}`, string(data))

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	require.NoError(t, enc.Encode(map[string]any{"doc": d}))
	assert.Equal(t, `{"doc":{"title":"<b>&</b>"}}`+"\n", buf.String())

	// json.Marshal escapes, but the value is unchanged.
	escaped, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"\u003cb\u003e\u0026\u003c/b\u003e"}`, string(escaped))
	back, err := Parse(escaped)
	require.NoError(t, err)
	assert.Equal(t, d, back)
}

func TestFromValue(t *testing.T) {
	type game struct {
		Title   string `json:"title"`
		Players int    `json:"players"`
	}
	d, err := FromValue(game{Title: "Fate", Players: 3})
	require.NoError(t, err)
	assert.Equal(t, "Fate", d["title"])
	assert.Equal(t, json.Number("3"), d["players"])
}
