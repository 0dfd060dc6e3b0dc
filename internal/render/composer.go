// Package render turns extracted records and history entries into printable
// HTML documents and renders them to PDF.
package render

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/anveshgarg/courtscout/internal/extract"
	"github.com/anveshgarg/courtscout/pkg/models"
)

var docTemplate = template.Must(template.New("doc").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, Helvetica, sans-serif; margin: 24px; color: #222; }
h1 { font-size: 20px; border-bottom: 2px solid #444; padding-bottom: 6px; }
h2 { font-size: 16px; margin-top: 24px; }
table { border-collapse: collapse; width: 100%; margin-top: 8px; }
th, td { border: 1px solid #999; padding: 6px 8px; font-size: 13px; text-align: left; }
th { background: #eee; }
dl dt { font-weight: bold; margin-top: 6px; }
ul { margin: 4px 0 0 18px; }
.meta { color: #555; font-size: 13px; }
.fragment { margin-top: 16px; border-top: 1px dashed #aaa; padding-top: 8px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .Meta}}<p class="meta">{{range .Meta}}{{.}}<br>{{end}}</p>{{end}}
{{range .Fragments}}<div class="fragment">{{.}}</div>{{end}}
{{range .Sections}}
<h2>{{.Label}}</h2>
{{if .Items}}<ul>{{range .Items}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .Records}}
<table>
<tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}
</table>
{{end}}
{{end}}
</body>
</html>`))

type docData struct {
	Title     string
	Meta      []string
	Fragments []template.HTML
	Sections  []sectionData
}

type sectionData struct {
	Label   string
	Columns []string
	Rows    [][]string
	Items   []string
}

// Composer assembles the three printable document kinds.
type Composer struct{}

func NewComposer() *Composer { return &Composer{} }

// ResultsDocument wraps a session's accumulated result fragments.
func (c *Composer) ResultsDocument(sessionID string, fragments []string) (string, error) {
	data := docData{
		Title: "Search Results",
		Meta:  []string{fmt.Sprintf("Session: %s", sessionID)},
	}
	for _, f := range fragments {
		data.Fragments = append(data.Fragments, template.HTML(f))
	}
	return c.execute(data)
}

// HistoryDocument wraps one history entry plus its live results, if any.
func (c *Composer) HistoryDocument(detail models.HistoryDetail) (string, error) {
	data := docData{
		Title: "Search Record",
		Meta: []string{
			fmt.Sprintf("Session: %s", detail.SessionID),
			fmt.Sprintf("Searched: %s", detail.Timestamp.Format("2006-01-02 15:04:05 MST")),
			fmt.Sprintf("Court: %s", detail.CourtName),
			fmt.Sprintf("Case type: %s", detail.CaseType),
			fmt.Sprintf("Registration: %s/%s", detail.RegNo, detail.RegYear),
			fmt.Sprintf("Results: %d", detail.ResultsCount),
		},
	}
	for _, f := range detail.Results {
		data.Fragments = append(data.Fragments, template.HTML(f))
	}
	return c.execute(data)
}

// DetailDocument lays out a case's extracted record set: tables for record
// sections, bullet lists for party sections. Column order follows the
// source table's header order.
func (c *Composer) DetailDocument(cno string, set *extract.RecordSet) (string, error) {
	data := docData{
		Title: fmt.Sprintf("Case Detail %s", cno),
	}
	for _, sec := range set.Sections {
		sd := sectionData{
			Label:   sec.Label,
			Columns: sec.Columns,
			Items:   sec.Items,
		}
		for _, rec := range sec.Records {
			sd.Rows = append(sd.Rows, recordRow(rec, sec.Columns))
		}
		data.Sections = append(data.Sections, sd)
	}
	return c.execute(data)
}

// recordRow lays a record out in column order. Rows that degraded during
// extraction carry positional keys instead of the header labels; those are
// read back by position so the row still shows in the table.
func recordRow(rec extract.Record, columns []string) []string {
	row := make([]string, len(columns))
	matched := false
	for i, col := range columns {
		if v, ok := rec[col]; ok {
			row[i] = v
			matched = true
		}
	}
	if matched {
		return row
	}
	for i := range row {
		row[i] = rec[extract.PositionalLabel(i)]
	}
	// A degraded row can be wider than the header.
	for i := len(columns); ; i++ {
		v, ok := rec[extract.PositionalLabel(i)]
		if !ok {
			break
		}
		row = append(row, v)
	}
	return row
}

func (c *Composer) execute(data docData) (string, error) {
	var buf bytes.Buffer
	if err := docTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("compose document: %w", err)
	}
	return buf.String(), nil
}
