// Package bwcdkutil provides utilities for the promotion CDK app.
//
// # Quick Start
//
// Use [SetupApp] to build the shared stack and, when environment context is
// present, one environment's stacks:
//
//	func main() {
//	    defer jsii.Close()
//	    app := awscdk.NewApp(nil)
//
//	    bwcdkutil.SetupApp(app, bwcdkutil.AppConfig{Prefix: bwcdkutil.ContextPrefix},
//	        func(stack awscdk.Stack) { NewShared(stack) },
//	        func(stack awscdk.Stack, env *bwcdkutil.EnvironmentConfig) { NewEnvironment(stack, env) },
//	    )
//
//	    app.Synth(nil)
//	}
//
// # CDK Context Configuration
//
// The shared keys usually live in cdk.json:
//
//	{
//	  "promote-qualifier": "demo",
//	  "promote-primary-region": "eu-west-1",
//	  "promote-orchestration-account": "111111111111"
//	}
//
// The environment keys are passed on the command line by the pipeline after the
// hosted zone and certificate exist:
//
//	cdk deploy -c promote-environment=test -c promote-account=222222222222 \
//	    -c promote-parent-domain=example.com -c promote-subdomain=test \
//	    -c promote-hosted-zone-id=Z123 -c promote-certificate-arn=arn:aws:acm:us-east-1:...
//
// # Stack Naming
//
// Stacks are named {qualifier}{RegionIdent}{Deployment}, e.g. "demoEuw1Test",
// and "demoEuw1Shared" for the shared stack. See [DeploymentStackName].
package bwcdkutil
