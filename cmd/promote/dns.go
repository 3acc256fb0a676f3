package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/basewarphq/bwpromote/cmd/internal/certprov"
	"github.com/basewarphq/bwpromote/cmd/internal/delegation"
	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
)

type DelegateCmd struct {
	Env string `arg:"" help:"Environment whose subdomain zone is delegated (test or prod)."`
}

func (c *DelegateCmd) Run(ctx context.Context, cfg *promocfg.Config) error {
	return withDeps(ctx, cfg, func(ctx context.Context, d deps) error {
		s, err := d.Environments.forEnvironment(c.Env)
		if err != nil {
			return err
		}
		role, err := delegation.ParseRole(s.env.DNSRole)
		if err != nil {
			return err
		}
		res, err := s.engine.Delegate(ctx, delegation.Request{
			Role:              role,
			Subdomain:         s.env.Subdomain,
			ParentDomain:      s.env.ParentDomain,
			Account:           s.env.Account,
			DelegationAccount: s.env.DelegationAccount,
		})
		if err != nil {
			return err
		}

		printSection(os.Stdout, "zone "+res.Zone.Name)
		rows := [][]string{
			{"role", role.String()},
			{"zone id", res.Zone.ID},
			{"account", res.Zone.Account},
			{"parent zone", res.Parent.Name + " (" + res.Parent.ID + ")"},
			{"name servers", strings.Join(res.Record.NameServers, ", ")},
		}
		if res.Trust != nil {
			rows = append(rows, []string{"trust role", res.Trust.RoleName + " (trusts " + res.Trust.TrustedAccount + ")"})
		}
		printTable(os.Stdout, []string{"FIELD", "VALUE"}, rows)
		return nil
	})
}

type CertificateCmd struct {
	Env string `arg:"" help:"Environment whose certificate is issued (test or prod)."`
}

func (c *CertificateCmd) Run(ctx context.Context, cfg *promocfg.Config) error {
	return withDeps(ctx, cfg, func(ctx context.Context, d deps) error {
		s, err := d.Environments.forEnvironment(c.Env)
		if err != nil {
			return err
		}
		zone, err := delegation.LookupZone(ctx, s.route53, s.env.FQDN())
		if err != nil {
			if errors.Is(err, promoerr.ErrZoneNotFound) {
				return errors.WithHintf(err, "run 'promote delegate %s' first", c.Env)
			}
			return err
		}

		cert, err := s.provisioner.Provision(ctx, certprov.Request{
			Subdomain:    s.env.Subdomain,
			ParentDomain: s.env.ParentDomain,
			ZoneID:       zone.ID,
		})
		if err != nil {
			return err
		}

		printSection(os.Stdout, "certificate "+cert.Domain)
		printTable(os.Stdout, []string{"FIELD", "VALUE"}, [][]string{
			{"arn", cert.ARN},
			{"region", cert.Region},
			{"parameter", cert.Parameter},
			{"reused", fmt.Sprint(cert.Reused)},
		})
		return nil
	})
}
