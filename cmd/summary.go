package cmd

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/ofsted-harvester/internal/pipeline"
)

func renderSummaries(w io.Writer, summaries ...pipeline.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Stage", "Processed", "Succeeded", "Skipped", "Failed", "Retries", "Output"})
	for _, s := range summaries {
		c := s.Counters
		t.AppendRow(table.Row{s.Stage, c.Processed, c.Succeeded, c.Skipped, c.Failed, c.Retries, s.Output})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
