package ingest

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() *Report {
	r := newReport("run-1", []string{"a.zip"})
	r.FinishedAt = r.StartedAt.Add(1500 * time.Millisecond)
	r.RecordsRead = 3
	r.RecordsCommitted = 2
	r.Rows["users"].Inserted = 4
	r.skip(Source{File: "a.zip", Member: "m.json", Line: 2}, "decode: malformed record")
	r.reject(Rejection{Source: Source{File: "a.zip", Member: "m.json", Line: 3}, Kind: "record", TweetID: 9, Reason: "constraint violation"})
	r.reject(Rejection{Kind: "tweet_tags", TweetID: 9, Key: "#x", Reason: "post not written"})
	r.reject(Rejection{Kind: "tweet_tags", TweetID: 8, Key: "#y", Reason: "post not written"})
	return r
}

func TestReportTable(t *testing.T) {
	var buf bytes.Buffer
	sampleReport().WriteTable(&buf)
	out := buf.String()
	for _, want := range []string{"run-1", "records committed", "users", "a.zip:m.json:2", "post not written (#x)"} {
		assert.Contains(t, out, want)
	}
}

func TestReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().WriteJSON(&buf))
	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, float64(2), got["records_committed"])
	rows := got["rows"].(map[string]any)
	assert.Equal(t, float64(4), rows["users"].(map[string]any)["inserted"])
}

func TestReportSummaries(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, map[string]int{"decode: malformed record": 1}, r.SkipReasons())
	assert.Equal(t, []string{"post not written"}, r.TopRejections(1))
}

func TestReportListsAreCapped(t *testing.T) {
	r := newReport("x", nil)
	for i := 0; i < maxListed+5; i++ {
		r.skip(Source{Line: int64(i)}, "bad")
	}
	assert.Equal(t, int64(maxListed+5), r.RecordsSkipped)
	assert.Len(t, r.Skipped, maxListed)
	assert.True(t, r.ListsTrimmed)
}
