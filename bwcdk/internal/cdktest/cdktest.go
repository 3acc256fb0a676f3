// Package cdktest builds stacks with a stored config for construct tests.
package cdktest

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
)

// Config is the configuration every construct test synthesizes against.
func Config() *bwcdkutil.Config {
	return &bwcdkutil.Config{
		Prefix:               bwcdkutil.ContextPrefix,
		Qualifier:            "demo",
		PrimaryRegion:        "eu-west-1",
		SecondaryRegion:      "eu-central-1",
		OrchestrationAccount: "111111111111",
		Environment: &bwcdkutil.EnvironmentConfig{
			Name:           "test",
			Account:        "222222222222",
			ParentDomain:   "example.com",
			Subdomain:      "test",
			HostedZoneID:   "Z0TEST",
			CertificateARN: "arn:aws:acm:us-east-1:222222222222:certificate/abc",
		},
	}
}

// SharedStack returns the orchestration account's shared stack.
func SharedStack() (awscdk.App, awscdk.Stack) {
	app := awscdk.NewApp(nil)
	cfg := Config()
	bwcdkutil.StoreConfig(app, cfg)
	return app, bwcdkutil.NewStackFromConfig(app, cfg, cfg.OrchestrationAccount, cfg.PrimaryRegion)
}

// EnvironmentStack returns the test environment's stack in region.
func EnvironmentStack(region string) (awscdk.App, awscdk.Stack) {
	app := awscdk.NewApp(nil)
	cfg := Config()
	bwcdkutil.StoreConfig(app, cfg)
	return app, bwcdkutil.NewStackFromConfig(app, cfg, cfg.Environment.Account, region, cfg.Environment.Ident())
}
