package templates

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/emiliopalmerini/abcsmc/internal/export"
)

// Layout wraps a page body with the document shell.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var h html
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`).text(title).
			raw(`</title><link rel="stylesheet" href="/static/style.css"></head><body><header><h1>`).
			link("/", "abcsmc").raw(`</h1></header><main>`)
		if err := h.flush(w); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</main></body></html>\n")
		return err
	})
}

// Analyses lists the stored analyses.
func Analyses(rows []AnalysisRow) templ.Component {
	return Layout("Analyses", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var h html
		h.raw("<h2>Analyses</h2>")
		if len(rows) == 0 {
			h.raw(`<p class="muted">No analyses stored yet.</p>`)
			return h.flush(w)
		}
		h.raw("<table><thead>").cells("th", "ID", "UUID", "Models", "Generations", "Started", "Finished").raw("</thead><tbody>")
		for _, r := range rows {
			h.raw("<tr><td>").link(runURL(r.ID), strconv.FormatInt(r.ID, 10)).raw("</td>")
			for _, v := range []string{shortUUID(r.UUID), strings.Join(r.Models, ", "), strconv.Itoa(r.Generations), formatDateTime(r.StartTime), formatEnd(r.EndTime)} {
				h.raw("<td>").text(v).raw("</td>")
			}
			h.raw("</tr>")
		}
		h.raw("</tbody></table>")
		return h.flush(w)
	}))
}

// Analysis shows the generations of one analysis.
func Analysis(d AnalysisDetail) templ.Component {
	title := fmt.Sprintf("Analysis %d", d.Analysis.ID)
	return Layout(title, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var h html
		h.raw("<h2>").text(title).raw(`</h2><p class="muted">`).text(d.Analysis.UUID).raw("</p>")
		h.raw("<p>Distance: <code>").text(d.Distance).raw("</code><br>Epsilon: <code>").text(d.Epsilon).raw("</code></p>")

		stats := func(caption string, s []Stat) {
			if len(s) == 0 {
				return
			}
			h.raw("<h3>").text(caption).raw("</h3><table><tbody>")
			for _, st := range s {
				h.cells("td", st.Name, st.Value)
			}
			h.raw("</tbody></table>")
		}
		stats("Observed summary statistics", d.Observed)
		stats("Options", d.Options)

		h.raw("<h3>Generations</h3>")
		if len(d.Populations) == 0 {
			h.raw(`<p class="muted">No generations yet.</p>`)
			return h.flush(w)
		}
		head := []string{"t", "epsilon", "simulations", "particles", "ESS"}
		for _, m := range d.Analysis.Models {
			head = append(head, "p("+m+")")
		}
		head = append(head, "export")
		h.raw("<table><thead>").cells("th", head...).raw("</thead><tbody>")
		for _, p := range d.Populations {
			h.raw("<tr><td>").link(populationURL(d.Analysis.ID, p.T), strconv.Itoa(p.T)).raw("</td>")
			for _, v := range []string{formatFloat(p.Epsilon), strconv.Itoa(p.NrSimulations), strconv.Itoa(p.NrParticles), formatFloat(p.EffectiveSampleSize)} {
				h.raw("<td>").text(v).raw("</td>")
			}
			for _, prob := range p.ModelProbabilities {
				h.raw("<td>").text(formatFloat(prob)).
					raw(fmt.Sprintf(` <span class="bar" style="width:%dpx"></span>`, int(prob*60))).raw("</td>")
			}
			h.raw("<td>")
			for i, f := range []string{"csv", "json"} {
				if i > 0 {
					h.raw(" ")
				}
				h.link(exportURL(d.Analysis.ID, p.T, f), f)
			}
			h.raw("</td></tr>")
		}
		h.raw("</tbody></table>")
		return h.flush(w)
	}))
}

// Population shows the weighted parameter posterior per model of one
// generation.
func Population(d PopulationDetail) templ.Component {
	title := fmt.Sprintf("Analysis %d, generation %d", d.AnalysisID, d.T)
	return Layout(title, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var h html
		h.raw("<h2>").text(title).raw("</h2><p>Epsilon ").text(formatFloat(d.Epsilon)).raw(" &middot; ").
			link(runURL(d.AnalysisID), "all generations").raw("</p>")
		for _, m := range d.Models {
			h.raw("<h3>").text(fmt.Sprintf("%s (m=%d)", m.Name, m.M)).raw("</h3><p>Probability ").
				text(formatFloat(m.Probability)).raw(", ").text(strconv.Itoa(m.NrParticles)).raw(" particles</p>")
			if len(m.Parameters) == 0 {
				continue
			}
			h.raw("<table><thead>").cells("th", "parameter", "mean", "std", "min", "max").raw("</thead><tbody>")
			for _, p := range m.Parameters {
				h.cells("td", p.Name, formatFloat(p.Mean), formatFloat(p.Std), formatFloat(p.Min), formatFloat(p.Max))
			}
			h.raw("</tbody></table>")
		}
		return h.flush(w)
	}))
}

// Table renders an exported table inside the layout.
func Table(title string, t *export.Table) templ.Component {
	return Layout(title, export.HTMLTable(t))
}
