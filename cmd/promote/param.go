package main

import (
	"context"
	"fmt"
	"os"

	"github.com/basewarphq/bwpromote/cmd/internal/paramstore"
	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
)

type ParamGetCmd struct {
	Env    string `required:"" help:"Environment whose account holds the parameter."`
	Name   string `arg:"" optional:"" help:"Parameter name. Defaults to the environment's certificate parameter."`
	Region string `help:"Region the parameter was written in. Defaults to the certificate region."`
}

func (c *ParamGetCmd) Run(ctx context.Context, cfg *promocfg.Config) error {
	return withDeps(ctx, cfg, func(ctx context.Context, d deps) error {
		s, err := d.Environments.forEnvironment(c.Env)
		if err != nil {
			return err
		}
		name := c.Name
		if name == "" {
			name = paramstore.Name(s.env.Subdomain)
		}
		value, err := s.bridge.Read(ctx, name, withDefault(c.Region, cfg.CertificateRegion))
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, value)
		return nil
	})
}

type ParamPutCmd struct {
	Env    string `required:"" help:"Environment whose account holds the parameter."`
	Name   string `arg:"" help:"Parameter name."`
	Value  string `arg:"" help:"Parameter value."`
	Region string `help:"Region to write to. Defaults to the certificate region."`
}

func (c *ParamPutCmd) Run(ctx context.Context, cfg *promocfg.Config) error {
	return withDeps(ctx, cfg, func(ctx context.Context, d deps) error {
		s, err := d.Environments.forEnvironment(c.Env)
		if err != nil {
			return err
		}
		return s.bridge.Write(ctx, c.Name, c.Value, withDefault(c.Region, cfg.CertificateRegion))
	})
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
