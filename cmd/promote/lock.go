package main

import (
	"context"
	"fmt"
	"os"

	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
)

type LockStatusCmd struct {
	Env string `arg:"" help:"Environment to inspect."`
}

func (c *LockStatusCmd) Run(ctx context.Context, cfg *promocfg.Config) error {
	if _, err := cfg.Environment(c.Env); err != nil {
		return err
	}
	return withDeps(ctx, cfg, func(ctx context.Context, d deps) error {
		info, err := d.Locks.Get(ctx, c.Env)
		if err != nil {
			return err
		}
		if info == nil {
			fmt.Fprintf(os.Stdout, "%s is not locked\n", c.Env)
			return nil
		}
		printTable(os.Stdout, []string{"ENVIRONMENT", "HELD BY", "SINCE"}, [][]string{
			{c.Env, info.Label, info.ClaimedAt},
		})
		return nil
	})
}

type LockReleaseCmd struct {
	Env string `arg:"" help:"Environment whose lock is released."`
}

func (c *LockReleaseCmd) Run(ctx context.Context, cfg *promocfg.Config) error {
	if _, err := cfg.Environment(c.Env); err != nil {
		return err
	}
	return withDeps(ctx, cfg, func(ctx context.Context, d deps) error {
		if err := d.Locks.ForceRelease(ctx, c.Env); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "released lock on %s\n", c.Env)
		return nil
	})
}
