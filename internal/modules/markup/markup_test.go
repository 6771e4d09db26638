package markup

import (
	"encoding/json"
	"html/template"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRich(t *testing.T) {
	out := Rich(`<b>bold</b><script>alert(1)</script>`)
	assert.Contains(t, string(out), "<b>bold</b>")
	assert.NotContains(t, string(out), "script")
}

func TestRender(t *testing.T) {
	tmpl := template.Must(template.New("t").Funcs(Funcs).Parse(`<p>{{.Title}}</p>{{rich .Body}}`))
	out, err := Render(tmpl, map[string]string{"Title": "<x>", "Body": "<em>ok</em>"})
	require.NoError(t, err)
	assert.Equal(t, `<p>&lt;x&gt;</p><em>ok</em>`, out)
}

func TestID(t *testing.T) {
	var p struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":3,"b":"7","c":""}`), &p))
	assert.Equal(t, ID(3), p.A)
	assert.Equal(t, ID(7), p.B)
	assert.Equal(t, ID(0), p.C)

	assert.Error(t, json.Unmarshal([]byte(`{"a":"x"}`), &p))
}

func TestDecode(t *testing.T) {
	var v struct{ Title string }
	require.NoError(t, Decode(nil, &v))
	require.NoError(t, Decode(json.RawMessage(`{"Title":"t"}`), &v))
	assert.Equal(t, "t", v.Title)
	assert.Error(t, Decode(json.RawMessage(`{`), &v))
}
