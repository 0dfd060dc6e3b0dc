package models

import "time"

// ArtifactRef links a generated document to the case it was rendered from.
type ArtifactRef struct {
	CNO      string `json:"cno"`
	Filename string `json:"filename"`
}

// HistoryEntry is one completed search. Entries are append-only; the session
// id is a weak reference and stays valid after the live session is gone.
type HistoryEntry struct {
	SessionID    string        `json:"sessionId"`
	Timestamp    time.Time     `json:"timestamp"`
	URL          string        `json:"url"`
	CourtName    string        `json:"courtName"`
	CaseType     string        `json:"caseType"`
	RegNo        string        `json:"regNo"`
	RegYear      string        `json:"regYear"`
	ResultsCount int           `json:"resultsCount"`
	Artifacts    []ArtifactRef `json:"artifacts"`
}

// HistoryDetail is a ledger entry plus the live results, when the session
// that produced it is still around.
type HistoryDetail struct {
	HistoryEntry
	Results []string `json:"results"`
}
