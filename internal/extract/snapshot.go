package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors for the fixed parts of the target site's detail markup.
const (
	detailTableSelector = "table.data-table-1"
	cellWrapperSelector = "span.bt-content"
	petitionerSelector  = "div.border.box.bg-white div.Petitioner"
	respondentSelector  = "div.border.box.bg-white div.respondent"

	// PetitionerLabel and RespondentLabel name the fixed party sections.
	PetitionerLabel = "Petitioner and Advocate"
	RespondentLabel = "Respondent and Advocate"
)

// SnapshotsFromFragment parses an HTML fragment and captures every detail
// table as a snapshot. Tables without a caption get a positional one.
func SnapshotsFromFragment(html string) ([]TableSnapshot, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}

	var snapshots []TableSnapshot
	doc.Find(detailTableSelector).Each(func(i int, table *goquery.Selection) {
		caption := strings.TrimSpace(table.Find("caption").First().Text())
		if caption == "" {
			caption = fmt.Sprintf("Table %d", i+1)
		}
		snapshots = append(snapshots, TableSnapshot{
			Caption: caption,
			Rows:    collectRows(table),
		})
	})
	return snapshots, nil
}

// collectRows prefers explicit thead/tbody sectioning; without it, every tr
// of the table is one sequence.
func collectRows(table *goquery.Selection) []Row {
	sectioned := table.Find("thead tr, tbody tr")
	rows := sectioned
	if sectioned.Length() == 0 {
		rows = table.Find("tr")
	}

	var out []Row
	rows.Each(func(_ int, tr *goquery.Selection) {
		var row Row
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			kind := CellData
			if goquery.NodeName(cell) == "th" {
				kind = CellHeader
			}
			markup, _ := cell.Html()
			row.Cells = append(row.Cells, Cell{
				Kind:    kind,
				Wrapper: strings.TrimSpace(cell.Find(cellWrapperSelector).First().Text()),
				Text:    strings.TrimSpace(cell.Text()),
				Markup:  strings.TrimSpace(markup),
			})
		})
		out = append(out, row)
	})
	return out
}

// Parties extracts the petitioner and respondent lists. Missing sections
// yield empty lists, never an error.
func Parties(html string) (petitioners, respondents []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil
	}
	petitioners = listItems(doc.Find(petitionerSelector))
	respondents = listItems(doc.Find(respondentSelector))
	return petitioners, respondents
}

func listItems(sel *goquery.Selection) []string {
	items := []string{}
	sel.Find("li").Each(func(_ int, li *goquery.Selection) {
		if text := strings.TrimSpace(li.Text()); text != "" {
			items = append(items, text)
		}
	})
	return items
}

// Document runs the full extraction over a detail-page fragment: every
// detail table plus the two fixed party sections.
func Document(html string) (RecordSet, error) {
	snapshots, err := SnapshotsFromFragment(html)
	if err != nil {
		return RecordSet{}, err
	}

	var set RecordSet
	for _, snap := range snapshots {
		section, degraded := Table(snap)
		set.Sections = append(set.Sections, section)
		if degraded {
			set.Degraded = true
		}
	}

	petitioners, respondents := Parties(html)
	set.Sections = append(set.Sections,
		Section{Label: PetitionerLabel, Items: petitioners},
		Section{Label: RespondentLabel, Items: respondents},
	)
	return set, nil
}
