package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/basewarphq/bwpromote/cmd/internal/pipeline"
)

func TestPrintRun(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &pipeline.Run{
		ID:       "r1",
		Revision: "abc123",
		Status:   pipeline.StatusAwaitingApproval,
		Position: pipeline.Position{Phase: pipeline.PhaseManualApproval, Environment: "test"},
		Stages: []*pipeline.StageRecord{{
			Name:        "DeployStage(test)",
			Environment: "test",
			Account:     "222222222222",
			Region:      "eu-west-1",
			Status:      pipeline.StageSucceeded,
			Completed:   []string{"delegate-zone", "issue-certificate"},
			Outputs:     map[string]string{"DemoUrl": "https://www.test.example.com"},
		}},
		CreatedAt: at,
		UpdatedAt: at,
	}

	var buf bytes.Buffer
	printRun(&buf, run)
	out := buf.String()
	for _, want := range []string{
		"=== run r1 ===",
		"AwaitingApproval",
		"ManualApproval(test)",
		"DeployStage(test)",
		"delegate-zone,issue-certificate",
		"=== outputs test ===",
		"https://www.test.example.com",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "approvals") {
		t.Error("empty approvals section printed")
	}
}
