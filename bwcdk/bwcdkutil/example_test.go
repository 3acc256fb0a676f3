package bwcdkutil_test

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
)

// NewEnvironment creates one region's environment resources.
func NewEnvironment(stack awscdk.Stack, env *bwcdkutil.EnvironmentConfig) {
	_ = awss3.NewBucket(stack, jsii.String("Static"), &awss3.BucketProps{})

	// Config is reachable anywhere in the construct tree.
	if bwcdkutil.IsPrimaryRegionStack(stack, stack) {
		_ = env.SiteDomain()
	}
}

// Example_setupApp demonstrates the shared stack plus one environment's stacks.
func Example_setupApp() {
	defer jsii.Close()

	ctx := map[string]any{
		"promote-qualifier":             "demo",
		"promote-primary-region":        "eu-west-1",
		"promote-orchestration-account": "111111111111",
		"promote-environment":           "test",
		"promote-account":               "222222222222",
		"promote-parent-domain":         "example.com",
		"promote-subdomain":             "test",
		"promote-hosted-zone-id":        "Z123",
		"promote-certificate-arn":       "arn:aws:acm:us-east-1:222222222222:certificate/abc",
	}

	app := awscdk.NewApp(&awscdk.AppProps{
		Context: &ctx,
	})

	bwcdkutil.SetupApp(app, bwcdkutil.AppConfig{Prefix: bwcdkutil.ContextPrefix},
		func(awscdk.Stack) {},
		NewEnvironment,
	)
	// Output:
}
