package ingest

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"

	"tweetnorm/internal/model"
	"tweetnorm/internal/store"
)

// maxListed caps the itemized skip and rejection lists; counters stay exact.
const maxListed = 1000

// Source locates a record in the input.
type Source struct {
	File   string `json:"file"`
	Member string `json:"member"`
	Line   int64  `json:"line"`
}

func (s Source) String() string {
	return fmt.Sprintf("%s:%s:%d", s.File, s.Member, s.Line)
}

// Skip is a record that was never written.
type Skip struct {
	Source
	Reason string `json:"reason"`
}

// Rejection is a record, or one of its rows, that storage refused.
type Rejection struct {
	Source
	Kind    string `json:"kind"`
	TweetID int64  `json:"tweet_id"`
	Key     string `json:"key,omitempty"`
	Reason  string `json:"reason"`
}

// Report summarizes a load run.
type Report struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Inputs     []string  `json:"inputs"`

	RecordsRead      int64 `json:"records_read"`
	RecordsCommitted int64 `json:"records_committed"`
	RecordsSkipped   int64 `json:"records_skipped"`
	RecordsRejected  int64 `json:"records_rejected"`
	Batches          int64 `json:"batches"`
	IsolatedBatches  int64 `json:"isolated_batches"`
	MergeWarnings    int64 `json:"merge_warnings"`
	MergeConflicts   int64 `json:"merge_conflicts"`

	// Rows is keyed by table name.
	Rows map[string]*store.RowCounts `json:"rows"`

	Skipped      []Skip      `json:"skipped,omitempty"`
	Rejected     []Rejection `json:"rejected,omitempty"`
	InputErrors  []Skip      `json:"input_errors,omitempty"`
	Cancelled    bool        `json:"cancelled"`
	FatalError   string      `json:"fatal_error,omitempty"`
	ListsTrimmed bool        `json:"lists_trimmed,omitempty"`
}

func newReport(runID string, inputs []string) *Report {
	r := &Report{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Inputs:    inputs,
		Rows:      make(map[string]*store.RowCounts, len(model.WriteOrder)),
	}
	for _, k := range model.WriteOrder {
		r.Rows[k.String()] = &store.RowCounts{}
	}
	return r
}

func (r *Report) skip(src Source, reason string) {
	r.RecordsSkipped++
	if len(r.Skipped) < maxListed {
		r.Skipped = append(r.Skipped, Skip{Source: src, Reason: reason})
	} else {
		r.ListsTrimmed = true
	}
}

func (r *Report) reject(rej Rejection) {
	if len(r.Rejected) < maxListed {
		r.Rejected = append(r.Rejected, rej)
	} else {
		r.ListsTrimmed = true
	}
}

func (r *Report) inputError(src Source, reason string) {
	r.InputErrors = append(r.InputErrors, Skip{Source: src, Reason: reason})
}

// WriteTable renders the report as tables.
func (r *Report) WriteTable(w io.Writer) {
	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.Style().Format.Header = text.FormatDefault
	summary.AppendHeader(table.Row{"metric", "value"})
	for _, row := range []table.Row{
		{"run", r.RunID},
		{"records read", r.RecordsRead},
		{"records committed", r.RecordsCommitted},
		{"records skipped", r.RecordsSkipped},
		{"records rejected", r.RecordsRejected},
		{"batches", r.Batches},
		{"isolated batches", r.IsolatedBatches},
		{"merge warnings", r.MergeWarnings},
		{"elapsed", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)},
	} {
		summary.AppendRow(row)
	}
	if r.Cancelled {
		summary.AppendRow(table.Row{"cancelled", true})
	}
	if r.FatalError != "" {
		summary.AppendRow(table.Row{"fatal error", r.FatalError})
	}
	summary.Render()

	rows := table.NewWriter()
	rows.SetOutputMirror(w)
	rows.Style().Format.Header = text.FormatDefault
	rows.AppendHeader(table.Row{"table", "inserted", "changed", "unchanged", "rejected"})
	for _, k := range model.WriteOrder {
		c := r.Rows[k.String()]
		rows.AppendRow(table.Row{k.String(), c.Inserted, c.Changed, c.Unchanged, c.Rejected})
	}
	rows.Render()

	if len(r.Skipped)+len(r.Rejected)+len(r.InputErrors) == 0 {
		return
	}
	problems := table.NewWriter()
	problems.SetOutputMirror(w)
	problems.Style().Format.Header = text.FormatDefault
	problems.AppendHeader(table.Row{"outcome", "source", "post", "reason"})
	for _, s := range r.InputErrors {
		problems.AppendRow(table.Row{"input error", s.Source.String(), "", s.Reason})
	}
	for _, s := range r.Skipped {
		problems.AppendRow(table.Row{"skipped", s.Source.String(), "", s.Reason})
	}
	for _, rej := range r.Rejected {
		reason := rej.Reason
		if rej.Key != "" {
			reason += " (" + rej.Key + ")"
		}
		problems.AppendRow(table.Row{"rejected " + rej.Kind, rej.Source.String(), rej.TweetID, reason})
	}
	problems.Render()
}

// WriteJSON renders the report as one indented JSON document.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// SkipReasons counts skipped records by reason.
func (r *Report) SkipReasons() map[string]int {
	out := map[string]int{}
	for _, s := range r.Skipped {
		out[s.Reason]++
	}
	return out
}

// TopRejections returns the most common rejection reasons, most frequent first.
func (r *Report) TopRejections(n int) []string {
	counts := map[string]int{}
	for _, rej := range r.Rejected {
		counts[rej.Reason]++
	}
	reasons := make([]string, 0, len(counts))
	for k := range counts {
		reasons = append(reasons, k)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if counts[reasons[i]] != counts[reasons[j]] {
			return counts[reasons[i]] > counts[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	if len(reasons) > n {
		reasons = reasons[:n]
	}
	return reasons
}
