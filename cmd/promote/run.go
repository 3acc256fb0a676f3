package main

import (
	"context"
	"fmt"
	"os"

	"github.com/basewarphq/bwpromote/cmd/internal/pipeline"
	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
)

type RunCmd struct {
	Detach bool `help:"Return at the approval gate instead of waiting for approval."`
}

func (c *RunCmd) Run(ctx context.Context, cfg *promocfg.Config) error {
	return withDeps(ctx, cfg, func(ctx context.Context, d deps) error {
		run, err := d.Runner.Start(ctx, pipeline.Options{Detach: c.Detach})
		if run != nil {
			printRun(os.Stdout, run)
			if run.Status == pipeline.StatusAwaitingApproval {
				fmt.Fprintf(os.Stdout, "\napprove with: promote approve %s --by <name>\n", run.ID)
			}
		}
		return err
	})
}

type ResumeCmd struct {
	RunID  string `arg:"" name:"run-id" help:"Run to continue."`
	Detach bool   `help:"Return at the approval gate instead of waiting for approval."`
}

func (c *ResumeCmd) Run(ctx context.Context, cfg *promocfg.Config) error {
	return withDeps(ctx, cfg, func(ctx context.Context, d deps) error {
		run, err := d.Runner.Resume(ctx, c.RunID, pipeline.Options{Detach: c.Detach})
		if run != nil {
			printRun(os.Stdout, run)
		}
		return err
	})
}

type ApproveCmd struct {
	RunID   string `arg:"" name:"run-id" help:"Run waiting at the approval gate."`
	By      string `required:"" help:"Who approves the promotion."`
	Comment string `help:"Optional note recorded with the approval."`
}

func (c *ApproveCmd) Run(ctx context.Context, cfg *promocfg.Config) error {
	return withDeps(ctx, cfg, func(ctx context.Context, d deps) error {
		run, err := d.Runner.Approve(ctx, c.RunID, c.By, c.Comment)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s approved %s for run %s\n",
			c.By, cfg.ApprovalAction, run.ID)
		return nil
	})
}

type StatusCmd struct {
	RunID string `arg:"" name:"run-id" help:"Run to show."`
}

func (c *StatusCmd) Run(ctx context.Context, cfg *promocfg.Config) error {
	return withDeps(ctx, cfg, func(ctx context.Context, d deps) error {
		run, err := d.Runner.Status(ctx, c.RunID)
		if err != nil {
			return err
		}
		printRun(os.Stdout, run)
		return nil
	})
}
