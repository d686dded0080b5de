package report

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderTabularProducesDocument(t *testing.T) {
	input := `[{"name":"A","rent":100},{"name":"B","rent":200}]`
	art := Render(input)
	if art.Kind != KindDocument {
		t.Fatalf("expected document artifact, got %s", art.Kind)
	}
	if art.MIME != "application/pdf" || art.Filename != "report.pdf" {
		t.Fatalf("unexpected document metadata: %s %s", art.MIME, art.Filename)
	}
	if !bytes.HasPrefix(art.Data, []byte("%PDF")) {
		t.Fatal("expected PDF payload")
	}
}

func TestRenderPlainTextPassesThrough(t *testing.T) {
	art := Render("hello world")
	if art.Kind != KindText {
		t.Fatalf("expected text artifact, got %s", art.Kind)
	}
	if art.Text != "hello world" {
		t.Fatalf("text must pass through unchanged, got %q", art.Text)
	}
}

func TestRenderUnwrapsDataField(t *testing.T) {
	input := `{"data":[{"unit":"1A","tenant":"Kim"},{"unit":"2B","tenant":"Lee"}]}`
	art := Render(input)
	if art.Kind != KindDocument {
		t.Fatalf("expected document artifact, got %s", art.Kind)
	}
}

func TestRenderNonTabularJSONFallsBack(t *testing.T) {
	for _, input := range []string{
		`{"note":"no data field"}`,
		`[1,2,3]`,
		`["a","b"]`,
		`[]`,
		`[{}]`,
		`[null]`,
		`{"data":"not an array"}`,
		`{invalid json`,
	} {
		art := Render(input)
		if art.Kind != KindText {
			t.Fatalf("input %q: expected text artifact, got %s", input, art.Kind)
		}
		if art.Text != input {
			t.Fatalf("input %q: text must pass through unchanged", input)
		}
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	input := `[{"name":"A","rent":100},{"name":"B","rent":200}]`
	a := Render(input)
	b := Render(input)
	if a.Kind != b.Kind || a.Text != b.Text || !bytes.Equal(a.Data, b.Data) {
		t.Fatal("Render must be a pure function of its input")
	}
}

func TestParseTableShape(t *testing.T) {
	tbl, ok := parseTable(`[{"b":2,"a":1},{"a":3,"c":"ignored"}]`)
	if !ok {
		t.Fatal("expected tabular parse")
	}
	if len(tbl.Columns) != 2 || tbl.Columns[0] != "a" || tbl.Columns[1] != "b" {
		t.Fatalf("header must come from the first element's keys, sorted: %v", tbl.Columns)
	}
	if tbl.Rows[0][0] != "1" || tbl.Rows[0][1] != "2" {
		t.Fatalf("unexpected first row: %v", tbl.Rows[0])
	}
	// Second element lacks "b": renders as an empty cell.
	if tbl.Rows[1][0] != "3" || tbl.Rows[1][1] != "" {
		t.Fatalf("unexpected second row: %v", tbl.Rows[1])
	}
}

func TestCoerceValues(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"text", "text"},
		{true, "true"},
		{float64(100), "100"},
		{float64(99.5), "99.5"},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
	}
	for _, tc := range cases {
		if got := coerce(tc.in); got != tc.want {
			t.Fatalf("coerce(%v)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHTMLTableEscapesValues(t *testing.T) {
	tbl, ok := parseTable(`[{"name":"<script>alert('x')</script>","rent":100}]`)
	if !ok {
		t.Fatal("expected tabular parse")
	}
	out := renderHTMLTable(tbl)
	if strings.Contains(out, "<script>") {
		t.Fatal("markup must be escaped")
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Fatalf("expected escaped value, got %q", out)
	}
	if !strings.Contains(out, "&#39;x&#39;") {
		t.Fatalf("expected escaped quotes, got %q", out)
	}
}
