package report

import (
	"encoding/json"
	"html"
	"sort"
	"strconv"
	"strings"
)

// ArtifactKind discriminates how a rendered answer should be delivered.
type ArtifactKind string

const (
	KindText     ArtifactKind = "text"
	KindDocument ArtifactKind = "document"
)

// Artifact is the output of Render: either a plain-text reply or a binary
// document. Transient; exists only for the duration of one dispatch.
type Artifact struct {
	Kind     ArtifactKind
	Text     string
	Data     []byte
	MIME     string
	Filename string
}

// Render interprets a raw AI answer. Answers that parse as uniform tabular
// JSON become a paginated PDF document; everything else passes through as
// plain text. Render is a pure function of its input and never fails:
// malformed input degrades to the text path.
func Render(answerText string) Artifact {
	table, ok := parseTable(answerText)
	if !ok {
		return Artifact{Kind: KindText, Text: answerText}
	}

	data, err := renderPDF(table)
	if err != nil {
		// Degrade to an escaped HTML table rather than dropping the rows.
		return Artifact{Kind: KindText, Text: renderHTMLTable(table)}
	}
	return Artifact{
		Kind:     KindDocument,
		Data:     data,
		MIME:     "application/pdf",
		Filename: "report.pdf",
	}
}

// table is the normalized tabular form: a fixed column order plus one
// stringified row per source element.
type table struct {
	Columns []string
	Rows    [][]string
}

// parseTable decides whether the answer is tabular: a JSON array of
// objects, or an object whose "data" field is such an array.
func parseTable(answerText string) (table, bool) {
	raw := strings.TrimSpace(answerText)
	if raw == "" {
		return table{}, false
	}

	var arr []map[string]any
	if err := json.Unmarshal([]byte(raw), &arr); err != nil {
		var wrapper struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapper); err != nil || wrapper.Data == nil {
			return table{}, false
		}
		if err := json.Unmarshal(wrapper.Data, &arr); err != nil {
			return table{}, false
		}
	}
	if len(arr) == 0 {
		return table{}, false
	}
	for _, el := range arr {
		if el == nil {
			return table{}, false
		}
	}

	columns := make([]string, 0, len(arr[0]))
	for k := range arr[0] {
		columns = append(columns, k)
	}
	if len(columns) == 0 {
		return table{}, false
	}
	sort.Strings(columns)

	rows := make([][]string, 0, len(arr))
	for _, el := range arr {
		row := make([]string, len(columns))
		for i, col := range columns {
			v, ok := el[col]
			if !ok {
				continue // missing key renders as an empty cell
			}
			row[i] = coerce(v)
		}
		rows = append(rows, row)
	}
	return table{Columns: columns, Rows: rows}, true
}

// coerce turns a decoded JSON value into cell text.
func coerce(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// renderHTMLTable emits a styled table with HTML-special characters
// escaped so answer values cannot inject markup.
func renderHTMLTable(t table) string {
	var b strings.Builder
	b.WriteString("<table>\n<tr>")
	for _, col := range t.Columns {
		b.WriteString("<th>")
		b.WriteString(html.EscapeString(col))
		b.WriteString("</th>")
	}
	b.WriteString("</tr>\n")
	for _, row := range t.Rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			b.WriteString("<td>")
			b.WriteString(html.EscapeString(cell))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</table>\n")
	return b.String()
}
