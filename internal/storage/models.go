// Package storage persists crawl results and the discovered-URL cache.
package storage

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/petmar2017/wealth-advisor-scraper/internal/crawler"
)

// recordColumns is the column order of exported records.
var recordColumns = []string{"name", "phone", "street", "city", "state", "email", "company", "url"}

// Snapshot is one save of a run's results under a base name.
type Snapshot struct {
	Name   string
	Result *crawler.AggregateResult
}

// NewSnapshot names a snapshot "<prefix>_<timestamp>", or
// "<prefix>_partial_<timestamp>" when the run did not finish.
func NewSnapshot(prefix string, result *crawler.AggregateResult, now time.Time) Snapshot {
	name := prefix
	if result.Interrupted {
		name += "_partial"
	}
	return Snapshot{Name: name + "_" + now.Format("20060102_150405"), Result: result}
}

// Summary is the run overview saved next to the records.
type Summary struct {
	RunID              string               `json:"run_id"`
	StartedAt          time.Time            `json:"started_at"`
	FinishedAt         time.Time            `json:"finished_at"`
	Interrupted        bool                 `json:"interrupted"`
	TotalRecords       int                  `json:"total_records"`
	RecordsByTarget    map[string]int       `json:"records_by_target"`
	BlockingEncounters int                  `json:"blocking_encounters"`
	DiscoveredURLs     map[string]string    `json:"discovered_urls"`
	Pairs              []crawler.PairResult `json:"pairs"`
}

// NewSummary builds the overview of a run.
func NewSummary(r *crawler.AggregateResult) Summary {
	return Summary{
		RunID:              r.RunID,
		StartedAt:          r.StartedAt,
		FinishedAt:         r.FinishedAt,
		Interrupted:        r.Interrupted,
		TotalRecords:       len(r.Records),
		RecordsByTarget:    r.RecordsByTarget(),
		BlockingEncounters: r.BlockingEncounters,
		DiscoveredURLs:     r.DiscoveredURLs,
		Pairs:              r.Pairs,
	}
}

// EncodeCSV writes records with a header row.
func EncodeCSV(records []crawler.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(recordColumns); err != nil {
		return nil, err
	}
	for _, r := range records {
		row := []string{r.Name, r.Phone, r.Street, r.City, r.State, r.Email, r.Source, r.URL}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeRecordsJSON writes records as an indented JSON array.
func EncodeRecordsJSON(records []crawler.Record) ([]byte, error) {
	if records == nil {
		records = []crawler.Record{}
	}
	return json.MarshalIndent(records, "", "  ")
}

// EncodeSummaryJSON writes the run summary as indented JSON.
func EncodeSummaryJSON(r *crawler.AggregateResult) ([]byte, error) {
	return json.MarshalIndent(NewSummary(r), "", "  ")
}

// Formats reports which record files a save format produces.
func Formats(saveFormat string) (csvOut, jsonOut bool) {
	switch saveFormat {
	case "csv":
		return true, false
	case "json":
		return false, true
	default:
		return true, true
	}
}
