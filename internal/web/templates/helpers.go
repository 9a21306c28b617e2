package templates

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/emiliopalmerini/abcsmc/internal/util"
)

func formatFloat(x float64) string {
	return util.FormatFloat(x)
}

func formatDateTime(t time.Time) string {
	return util.FormatDateTime(t)
}

func formatEnd(t *time.Time) string {
	if t == nil {
		return "running"
	}
	return util.FormatDateTime(*t)
}

func shortUUID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runURL(id int64) templ.SafeURL {
	return templ.SafeURL(fmt.Sprintf("/runs/%d", id))
}

func populationURL(id int64, t int) templ.SafeURL {
	return templ.SafeURL(fmt.Sprintf("/runs/%d/populations/%d", id, t))
}

func exportURL(id int64, t int, format string) templ.SafeURL {
	return templ.SafeURL(fmt.Sprintf("/api/runs/%d/export?format=%s&t=%d", id, format, t))
}

// html accumulates escaped markup for a component.
type html struct {
	b strings.Builder
}

func (h *html) raw(s string) *html {
	h.b.WriteString(s)
	return h
}

func (h *html) text(s string) *html {
	h.b.WriteString(templ.EscapeString(s))
	return h
}

func (h *html) link(url templ.SafeURL, label string) *html {
	h.raw(`<a href="`).text(string(url)).raw(`">`).text(label).raw("</a>")
	return h
}

func (h *html) cells(tag string, values ...string) *html {
	h.raw("<tr>")
	for _, v := range values {
		h.raw("<" + tag + ">").text(v).raw("</" + tag + ">")
	}
	h.raw("</tr>")
	return h
}

func (h *html) flush(w io.Writer) error {
	_, err := io.WriteString(w, h.b.String())
	return err
}
