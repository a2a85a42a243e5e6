package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/strata/models"
	"github.com/use-agent/strata/pipeline"
	"github.com/use-agent/strata/worker"
)

func TestReadURLs(t *testing.T) {
	in := `
# comment
https://a.example/x
  https://b.example/y  

https://a.example/x
`
	urls, err := readURLs(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/x", "https://b.example/y"}, urls)
}

func TestSummarize(t *testing.T) {
	results := []worker.Result[string, pipeline.Outcome]{
		{Index: 0, Item: "https://a", Value: pipeline.Outcome{Success: true, Technique: models.TechniqueSSRInline}},
		{Index: 1, Item: "https://b", Value: pipeline.Outcome{Success: true, Technique: models.TechniqueSSRInline}},
		{Index: 2, Item: "https://c", Value: pipeline.Outcome{Success: true, Technique: models.TechniqueStaticTable}},
		{Index: 3, Item: "https://d", Value: pipeline.Outcome{State: pipeline.StateExhausted}},
		{Index: 4, Item: "https://e", Err: errors.New("disk full")},
	}
	s := summarize(results, 7)

	assert.Equal(t, 7, s.Total)
	assert.Equal(t, 3, s.Succeeded)
	assert.Equal(t, 1, s.NoData)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 2, s.Skipped)
	assert.Equal(t, map[string]int{"ssr-inline": 2, "static-table": 1}, s.Techniques)
	assert.Equal(t, []string{"https://d: no data", "https://e: disk full"}, s.Failures)

	var buf bytes.Buffer
	renderSummary(&buf, s)
	out := buf.String()
	assert.Contains(t, out, "ssr-inline")
	assert.Contains(t, out, "not started")
	assert.Contains(t, out, "3 / 7")
	assert.Contains(t, out, "https://e: disk full")
}
