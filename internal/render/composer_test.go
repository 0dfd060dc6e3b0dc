package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anveshgarg/courtscout/internal/extract"
	"github.com/anveshgarg/courtscout/pkg/models"
)

func TestResultsDocumentEmbedsFragments(t *testing.T) {
	doc, err := NewComposer().ResultsDocument("sess-1", []string{
		`<div class="r">first search</div>`,
		`<div class="r">second search</div>`,
	})
	require.NoError(t, err)

	assert.Contains(t, doc, "Search Results")
	assert.Contains(t, doc, "sess-1")
	// Fragments pass through unescaped so the captured markup renders.
	assert.Contains(t, doc, `<div class="r">first search</div>`)
	assert.Contains(t, doc, `<div class="r">second search</div>`)
}

func TestHistoryDocumentCarriesEntryFields(t *testing.T) {
	doc, err := NewComposer().HistoryDocument(models.HistoryDetail{
		HistoryEntry: models.HistoryEntry{
			SessionID:    "sess-9",
			Timestamp:    time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC),
			CourtName:    "District Court A",
			CaseType:     "Civil Suit",
			RegNo:        "123",
			RegYear:      "2020",
			ResultsCount: 2,
		},
		Results: []string{"<div>live results</div>"},
	})
	require.NoError(t, err)

	assert.Contains(t, doc, "District Court A")
	assert.Contains(t, doc, "Civil Suit")
	assert.Contains(t, doc, "123/2020")
	assert.Contains(t, doc, "<div>live results</div>")
}

func TestDetailDocumentTablesAndLists(t *testing.T) {
	set := &extract.RecordSet{Sections: []extract.Section{
		{
			Label:   "Case Status",
			Columns: []string{"Case No", "Stage"},
			Records: []extract.Record{{"Case No": "123/2020", "Stage": "Hearing"}},
		},
		{
			Label: extract.PetitionerLabel,
			Items: []string{"Alice", "Adv. Bob"},
		},
	}}

	doc, err := NewComposer().DetailDocument("CNR100", set)
	require.NoError(t, err)

	assert.Contains(t, doc, "Case Detail CNR100")
	assert.Contains(t, doc, "<th>Case No</th>")
	assert.Contains(t, doc, "<td>123/2020</td>")
	assert.Contains(t, doc, "<li>Alice</li>")
	assert.Contains(t, doc, extract.PetitionerLabel)
}

func TestDetailDocumentColumnOrderIsStable(t *testing.T) {
	set := &extract.RecordSet{Sections: []extract.Section{{
		Label:   "T",
		Columns: []string{"B", "A"},
		Records: []extract.Record{{"A": "va", "B": "vb"}},
	}}}

	doc, err := NewComposer().DetailDocument("X", set)
	require.NoError(t, err)

	// Values follow the declared column order, not map order.
	assert.Contains(t, doc, "<td>vb</td><td>va</td>")
}

func TestDetailDocumentRendersDegradedRows(t *testing.T) {
	// A row that fell back to positional keys during extraction still
	// shows its cells, read back by position.
	set := &extract.RecordSet{Sections: []extract.Section{{
		Label:   "Case Status",
		Columns: []string{"Case No", "Stage"},
		Records: []extract.Record{
			{"Case No": "1/2020", "Stage": "Hearing"},
			{
				extract.PositionalLabel(0): "2/2020",
				extract.PositionalLabel(1): "Disposed",
				extract.PositionalLabel(2): "extra",
			},
		},
	}}}

	doc, err := NewComposer().DetailDocument("X", set)
	require.NoError(t, err)

	assert.Contains(t, doc, "<td>1/2020</td><td>Hearing</td>")
	assert.Contains(t, doc, "<td>2/2020</td><td>Disposed</td><td>extra</td>")
}
