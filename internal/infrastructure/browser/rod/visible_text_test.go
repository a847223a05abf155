package rod

import (
	"strings"
	"testing"
)

func TestExtractVisibleText_SkipsScriptStyle(t *testing.T) {
	html := `
<body>
    <div id="main">Hello</div>
    <script>alert("hi")</script>
    <style>.x {}</style>
</body>`

	out := ExtractVisibleText(html)

	if strings.Contains(out, "alert") || strings.Contains(out, ".x") {
		t.Errorf("script/style contents must be dropped, output: %s", out)
	}
	if !strings.Contains(out, "Hello") {
		t.Errorf("expected visible text to survive, got %q", out)
	}
}

func TestExtractVisibleText_SkipsComments(t *testing.T) {
	html := `
<body>
    <!-- hidden note -->
    <div>Text</div>
</body>`

	out := ExtractVisibleText(html)

	if strings.Contains(out, "hidden note") {
		t.Errorf("comments must not leak into visible text")
	}
	if out != "Text" {
		t.Errorf("expected collapsed text %q, got %q", "Text", out)
	}
}

func TestExtractVisibleText_CollapsesWhitespace(t *testing.T) {
	html := `
<body>
    <button>   CREATE
        CREDENTIALS   </button>
    <span>DONE</span>
</body>`

	out := ExtractVisibleText(html)

	if out != "CREATE CREDENTIALS DONE" {
		t.Errorf("expected collapsed single-space text, got %q", out)
	}
}

func TestExtractVisibleText_NoMarkupInOutput(t *testing.T) {
	out := ExtractVisibleText(`<body><div class="c"><b>bold</b> plain</div></body>`)

	if strings.ContainsAny(out, "<>") {
		t.Errorf("markup leaked into visible text: %q", out)
	}
	if out != "bold plain" {
		t.Errorf("expected %q, got %q", "bold plain", out)
	}
}

func TestExtractVisibleText_Truncates(t *testing.T) {
	long := strings.Repeat("word ", 20_000)
	out := ExtractVisibleText("<body><p>" + long + "</p></body>")

	if len(out) > maxVisibleText {
		t.Errorf("output exceeds cap: %d bytes", len(out))
	}
}
