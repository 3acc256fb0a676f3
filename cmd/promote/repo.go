package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkrepo"
	"github.com/basewarphq/bwpromote/cmd/internal/cfnread"
	"github.com/basewarphq/bwpromote/cmd/internal/pipeline"
	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
	"github.com/cockroachdb/errors"
)

type SetupCmd struct{}

func (c *SetupCmd) Run(ctx context.Context, cfg *promocfg.Config) error {
	return withDeps(ctx, cfg, func(ctx context.Context, d deps) error {
		if err := d.Deployer.DeployRepository(ctx); err != nil {
			return err
		}
		outputs, err := sharedOutputs(ctx, d, cfg)
		if err != nil {
			return err
		}
		printSection(os.Stdout, pipeline.RepositoryStackName(cfg))
		printOutputs(os.Stdout, outputs)
		return nil
	})
}

type RepoURLCmd struct{}

func (c *RepoURLCmd) Run(ctx context.Context, cfg *promocfg.Config) error {
	return withDeps(ctx, cfg, func(ctx context.Context, d deps) error {
		outputs, err := sharedOutputs(ctx, d, cfg)
		if err != nil {
			return err
		}
		url, ok := outputs[bwcdkrepo.OutputCloneURLHTTP]
		if !ok {
			return errors.Newf("stack %s has no %s output; run 'promote setup'",
				pipeline.RepositoryStackName(cfg), bwcdkrepo.OutputCloneURLHTTP)
		}
		fmt.Fprintln(os.Stdout, url)
		return nil
	})
}

func sharedOutputs(ctx context.Context, d deps, cfg *promocfg.Config) (map[string]string, error) {
	reader := cfnread.NewReader(func(region string) cfnread.CloudFormationAPI {
		return cloudformation.NewFromConfig(d.Factory.Orchestration(region))
	})
	return reader.StackOutputs(ctx, cfg.Region, pipeline.RepositoryStackName(cfg))
}
