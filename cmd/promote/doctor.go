package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/basewarphq/bwpromote/cmd/internal/bincheck"
	"github.com/basewarphq/bwpromote/cmd/internal/cdkctx"
	"github.com/cockroachdb/errors"
)

type DoctorCmd struct{}

func (c *DoctorCmd) Run(ctx context.Context, load configLoader) error {
	if !c.diagnose(ctx, os.Stdout, load) {
		return errors.New("doctor found problems; see above")
	}
	fmt.Fprintln(os.Stdout, "All checks passed.")
	return nil
}

// diagnose writes one section per check to w and reports whether all passed.
// A missing or invalid promote.toml is reported, not returned.
func (c *DoctorCmd) diagnose(ctx context.Context, w io.Writer, load configLoader) bool {
	ok := true

	fmt.Fprintln(w, "=== binaries ===")
	checker := bincheck.NewChecker()
	for _, bin := range bincheck.Required {
		res := checker.Check(ctx, bin.Name)
		switch {
		case res.InPath && res.MiseManaged:
			fmt.Fprintf(w, "  ✓ %s (mise)\n", bin.Name)
		case res.InPath:
			fmt.Fprintf(w, "  ✓ %s\n", bin.Name)
		default:
			fmt.Fprintf(w, "  ✗ %s not found (%s)\n", bin.Name, bin.Reason)
			ok = false
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== promote.toml ===")
	cfg, err := load()
	if err != nil {
		fmt.Fprintf(w, "  ✗ %v\n", err)
		fmt.Fprintln(w)
		return false
	}
	fmt.Fprintf(w, "  ✓ loaded from %s\n", cfg.Root)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== cdk.json ===")
	cdk, err := cdkctx.Load(cfg.CdkPath())
	switch {
	case err != nil:
		fmt.Fprintf(w, "  ✗ %v\n", err)
		ok = false
	default:
		if err := cdk.Check(cfg); err != nil {
			fmt.Fprintf(w, "  ✗ %v\n", err)
			ok = false
		} else {
			fmt.Fprintf(w, "  ✓ qualifier %s matches promote.toml\n", cdk.BootstrapQualifier)
		}
		for _, env := range cfg.Ordered() {
			for _, region := range env.Regions() {
				fmt.Fprintf(w, "  • %s expects bootstrap bucket %s\n",
					env.Name, cdk.BootstrapBucket(env.Account, region))
			}
		}
	}
	fmt.Fprintln(w)

	return ok
}
