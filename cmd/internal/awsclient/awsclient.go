// Package awsclient hands out AWS SDK configurations scoped to an account and region.
//
// The orchestration account's credentials are loaded once. Configurations for the
// test and prod accounts assume a well-known deploy role in that account, and
// cross-account zone delegation assumes the parent zone owner's delegation role on
// top of those. Role ARNs are always built deterministically, never discovered.
package awsclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	loadTimeout = 10 * time.Second
	sessionName = "bwpromote"
)

// Partition is the AWS partition used when building ARNs.
const Partition = "aws"

// RoleARN builds the ARN of a named IAM role. IAM is global, so the ARN carries no region.
func RoleARN(account, roleName string) string {
	return fmt.Sprintf("arn:%s:iam::%s:role/%s", Partition, account, roleName)
}

// AccountPrincipalARN is the root principal of an account, used in trust policies.
func AccountPrincipalARN(account string) string {
	return fmt.Sprintf("arn:%s:iam::%s:root", Partition, account)
}

// LoadBase loads the default credential chain and instruments it for tracing.
func LoadBase(tp trace.TracerProvider, prop propagation.TextMapPropagator) (aws.Config, error) {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return cfg, err
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions,
		otelaws.WithTracerProvider(tp),
		otelaws.WithTextMapPropagator(prop),
	)
	return cfg, nil
}

type cacheKey struct {
	account string
	role    string
}

// Factory derives per-account, per-region configurations from the base config.
type Factory struct {
	base                 aws.Config
	orchestrationAccount string
	deployRoleName       string

	mu    sync.Mutex
	creds map[cacheKey]aws.CredentialsProvider
}

func NewFactory(base aws.Config, orchestrationAccount, deployRoleName string) *Factory {
	return &Factory{
		base:                 base,
		orchestrationAccount: orchestrationAccount,
		deployRoleName:       deployRoleName,
		creds:                make(map[cacheKey]aws.CredentialsProvider),
	}
}

// Orchestration returns the base configuration pinned to region.
func (f *Factory) Orchestration(region string) aws.Config {
	return InRegion(f.base, region)
}

// ForAccount returns a configuration that acts in account through its deploy role.
func (f *Factory) ForAccount(account, region string) aws.Config {
	if account == f.orchestrationAccount {
		return f.Orchestration(region)
	}
	return f.assume(f.base, cacheKey{account: account, role: f.deployRoleName}, region)
}

// AssumeRole layers a role assumption on top of an account-scoped configuration.
// The returned configuration uses the credentials of roleName in roleAccount.
func (f *Factory) AssumeRole(from aws.Config, roleAccount, roleName, region string) aws.Config {
	return f.assume(from, cacheKey{account: roleAccount, role: roleName}, region)
}

func (f *Factory) assume(from aws.Config, key cacheKey, region string) aws.Config {
	f.mu.Lock()
	provider, ok := f.creds[key]
	if !ok {
		client := sts.NewFromConfig(from)
		provider = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(client, RoleARN(key.account, key.role),
			func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = sessionName
			}))
		f.creds[key] = provider
	}
	f.mu.Unlock()

	cfg := InRegion(from, region)
	cfg.Credentials = provider
	return cfg
}

// InRegion returns a copy of cfg targeting region.
func InRegion(cfg aws.Config, region string) aws.Config {
	out := cfg.Copy()
	if region != "" {
		out.Region = region
	}
	return out
}

// EnvVars exports the resolved credentials of cfg as AWS_* variables for child
// processes such as the cdk CLI.
func EnvVars(ctx context.Context, cfg aws.Config) ([]string, error) {
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, err
	}
	vars := []string{
		"AWS_ACCESS_KEY_ID=" + creds.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY=" + creds.SecretAccessKey,
		"AWS_REGION=" + cfg.Region,
		"AWS_DEFAULT_REGION=" + cfg.Region,
	}
	if creds.SessionToken != "" {
		vars = append(vars, "AWS_SESSION_TOKEN="+creds.SessionToken)
	}
	return vars, nil
}
