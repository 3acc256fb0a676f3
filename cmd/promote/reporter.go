package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/basewarphq/bwpromote/cmd/internal/pipeline"
)

func printSection(w io.Writer, heading string) {
	fmt.Fprintf(w, "=== %s ===\n", heading)
}

func printTable(w io.Writer, columns []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func printRun(w io.Writer, run *pipeline.Run) {
	printSection(w, "run "+run.ID)
	printTable(w, []string{"FIELD", "VALUE"}, [][]string{
		{"status", string(run.Status)},
		{"position", run.Position.String()},
		{"revision", orDash(run.Revision)},
		{"created", run.CreatedAt.Format(time.RFC3339)},
		{"updated", run.UpdatedAt.Format(time.RFC3339)},
	})
	if run.Error != "" {
		fmt.Fprintf(w, "error: %s\n", run.Error)
	}

	if len(run.Stages) > 0 {
		fmt.Fprintln(w)
		printSection(w, "stages")
		rows := make([][]string, 0, len(run.Stages))
		for _, s := range run.Stages {
			rows = append(rows, []string{
				s.Name, s.Account, s.Region, string(s.Status),
				orDash(strings.Join(s.Completed, ",")), orDash(s.FailedStep),
			})
		}
		printTable(w, []string{"STAGE", "ACCOUNT", "REGION", "STATUS", "COMPLETED", "FAILED AT"}, rows)
	}

	if len(run.Approvals) > 0 {
		fmt.Fprintln(w)
		printSection(w, "approvals")
		rows := make([][]string, 0, len(run.Approvals))
		for _, a := range run.Approvals {
			rows = append(rows, []string{a.Environment, a.Action, a.By, a.At.Format(time.RFC3339), orDash(a.Comment)})
		}
		printTable(w, []string{"AFTER", "ACTION", "BY", "AT", "COMMENT"}, rows)
	}

	for _, s := range run.Stages {
		if len(s.Outputs) == 0 {
			continue
		}
		fmt.Fprintln(w)
		printSection(w, "outputs "+s.Environment)
		printOutputs(w, s.Outputs)
	}
}

func printOutputs(w io.Writer, outputs map[string]string) {
	keys := slices.Sorted(maps.Keys(outputs))
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, outputs[k]})
	}
	printTable(w, []string{"OUTPUT", "VALUE"}, rows)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
