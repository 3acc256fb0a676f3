// Package bincheck finds the external programs the pipeline shells out to.
package bincheck

import (
	"context"
	"os/exec"
	"sync"
)

type Binary struct {
	Name   string
	Reason string
}

// Required are the programs a promotion run invokes.
var Required = []Binary{
	{Name: "git", Reason: "resolves the source revision"},
	{Name: "cdk", Reason: "synthesizes and deploys the stacks"},
}

type Result struct {
	InPath      bool
	MiseManaged bool
}

type Checker struct {
	lookPath func(string) bool
	mise     func(context.Context, string) bool
	cache    sync.Map
}

func NewChecker() *Checker {
	return &Checker{lookPath: lookPath, mise: isMiseManaged}
}

func (c *Checker) Check(ctx context.Context, name string) Result {
	if v, ok := c.cache.Load(name); ok {
		r, _ := v.(Result)
		return r
	}

	r := Result{
		InPath:      c.lookPath(name),
		MiseManaged: c.mise(ctx, name),
	}

	actual, _ := c.cache.LoadOrStore(name, r)
	stored, _ := actual.(Result)
	return stored
}

// Missing returns the binaries in bins that are not in PATH.
func (c *Checker) Missing(ctx context.Context, bins []Binary) []Binary {
	var missing []Binary
	for _, b := range bins {
		if !c.Check(ctx, b.Name).InPath {
			missing = append(missing, b)
		}
	}
	return missing
}

func lookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func isMiseManaged(ctx context.Context, binary string) bool {
	cmd := exec.CommandContext(ctx, "mise", "which", binary)
	return cmd.Run() == nil
}
