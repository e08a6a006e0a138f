package commands

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/pricing"
	"github.com/jungwonlee1988/wedealize-sub000/internal/workflow"
)

func TestSummaryRows(t *testing.T) {
	snap := workflow.Snapshot{
		ID:          "s-1",
		StepName:    "complete",
		JobID:       "j-9",
		Source:      domain.SourceService,
		Products:    []*domain.ExtractedProduct{{ID: "a"}, {ID: "b"}},
		SelectedIDs: []string{"a"},
		Pricing:     &pricing.Summary{Matched: 1, Total: 2},
		Committed:   1,
		CommitCount: 1,
	}

	rows := summaryRows(snap, 65*time.Second)
	values := make(map[string]string, len(rows))
	for _, r := range rows {
		values[r[0]] = r[1]
	}

	assert.Equal(t, "2", values["Products"])
	assert.Equal(t, "1", values["Selected"])
	assert.Equal(t, "1m 5s", values["Duration"])
	assert.Equal(t, "j-9", values["Job"])
	assert.Equal(t, "1/2", values["Prices matched"])
	assert.Equal(t, "1", values["Committed"])
}

func TestReadDocumentAndWriteSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	doc, err := readDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "catalog.pdf", doc.FileName)
	assert.Equal(t, "pdf", doc.FileType())

	_, err = readDocument(filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)

	out := filepath.Join(dir, "snapshot.json")
	require.NoError(t, writeSnapshot(out, workflow.Snapshot{ID: "s-1", Step: domain.StepReview, StepName: "review"}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "s-1", decoded["sessionId"])
	assert.Equal(t, "review", decoded["stepName"])
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"extract", "job", "uploads", "version"} {
		assert.True(t, names[want], want)
	}

	flag := extractCmd.Flags().Lookup("file")
	require.NotNil(t, flag)
	assert.Equal(t, []string{"true"}, flag.Annotations["cobra_annotation_bash_completion_one_required_flag"])
}
