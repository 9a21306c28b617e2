package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"gopkg.in/yaml.v3"
)

// Formats lists the supported output formats.
var Formats = []string{"csv", "tsv", "json", "html", "yaml"}

// FormatFromPath infers the output format from a file extension.
func FormatFromPath(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "htm":
		return "html"
	case "yml":
		return "yaml"
	}
	return ext
}

// Write encodes the table in the given format.
func Write(ctx context.Context, w io.Writer, table *Table, format string) error {
	switch format {
	case "csv":
		return writeDelimited(w, table, ',')
	case "tsv":
		return writeDelimited(w, table, '\t')
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records(table, true))
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records(table, false)); err != nil {
			return err
		}
		return enc.Close()
	case "html":
		return HTMLTable(table).Render(ctx, w)
	default:
		return fmt.Errorf("unknown export format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// WriteFile writes the table to path. An empty format is inferred from the
// file extension.
func WriteFile(ctx context.Context, path string, table *Table, format string) error {
	if format == "" {
		format = FormatFromPath(path)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(ctx, f, table, format); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func writeDelimited(w io.Writer, table *Table, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(table.Columns); err != nil {
		return err
	}
	row := make([]string, len(table.Columns))
	for _, r := range table.Rows {
		for i, v := range r {
			row[i] = FormatCell(v)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatCell renders a cell as text. Nil is the empty string.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// records maps rows to column-keyed objects. JSON cannot carry NaN or Inf, so
// those become null when finiteOnly is set.
func records(table *Table, finiteOnly bool) []map[string]any {
	out := make([]map[string]any, len(table.Rows))
	for i, r := range table.Rows {
		rec := make(map[string]any, len(table.Columns))
		for j, c := range table.Columns {
			v := r[j]
			if f, ok := v.(float64); ok && finiteOnly && (math.IsNaN(f) || math.IsInf(f, 0)) {
				v = nil
			}
			rec[c] = v
		}
		out[i] = rec
	}
	return out
}

// HTMLTable renders the table as a standalone HTML table element.
func HTMLTable(table *Table) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<table class="export"><thead><tr>`)
		for _, c := range table.Columns {
			b.WriteString("<th>" + templ.EscapeString(c) + "</th>")
		}
		b.WriteString("</tr></thead><tbody>")
		for _, r := range table.Rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			b.WriteString("<tr>")
			for _, v := range r {
				b.WriteString("<td>" + templ.EscapeString(FormatCell(v)) + "</td>")
			}
			b.WriteString("</tr>")
		}
		b.WriteString("</tbody></table>\n")
		_, err := io.WriteString(w, b.String())
		return err
	})
}
