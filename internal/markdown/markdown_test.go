package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderHeaders(t *testing.T) {
	out := Render("# Assessment\n## Findings\n### Notes")
	assert.Contains(t, out, "<h1>Assessment</h1>")
	assert.Contains(t, out, "<h2>Findings</h2>")
	assert.Contains(t, out, "<h3>Notes</h3>")
}

func TestRenderEmphasis(t *testing.T) {
	out := Render("This is **important** and *noteworthy*.")
	assert.Contains(t, out, "<strong>important</strong>")
	assert.Contains(t, out, "<em>noteworthy</em>")
}

func TestRenderCode(t *testing.T) {
	out := Render("Take ```500mg twice daily``` or `250mg` as needed.")
	assert.Contains(t, out, "<pre><code>500mg twice daily</code></pre>")
	assert.Contains(t, out, "<code>250mg</code>")
}

func TestRenderLists(t *testing.T) {
	out := Render("- rest\n- fluids\n1. paracetamol")
	assert.Contains(t, out, "<li>rest</li>")
	assert.Contains(t, out, "<li>fluids</li>")
	assert.Contains(t, out, "<li>paracetamol</li>")
	assert.Contains(t, out, "<ul>")
}

func TestRenderParagraphs(t *testing.T) {
	out := Render("First line.\nSecond line.")
	assert.Contains(t, out, "<p>First line.</p>")
	assert.Contains(t, out, "<p>Second line.</p>")
}

func TestRenderEscapesHTML(t *testing.T) {
	out := Render(`<script>alert("x")</script>`)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestRenderEmpty(t *testing.T) {
	assert.Equal(t, "", Render(""))
}

func TestRenderPathologicalInputDoesNotPanic(t *testing.T) {
	inputs := []string{
		"**unbalanced bold",
		"``` open fence",
		"* item\n  * nested\n    * deeper",
		"#### not a supported header",
		"*",
		"```````",
		"1.missing space",
	}
	for _, input := range inputs {
		assert.NotPanics(t, func() { Render(input) }, "input: %q", input)
	}
}
