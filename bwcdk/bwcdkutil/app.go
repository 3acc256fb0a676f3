package bwcdkutil

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/jsii-runtime-go"
)

// SharedConstructor creates the orchestration account's shared infrastructure,
// such as the source repository.
type SharedConstructor func(stack awscdk.Stack)

// EnvironmentConstructor creates an environment's infrastructure in one region.
type EnvironmentConstructor func(stack awscdk.Stack, env *EnvironmentConfig)

// AppConfig configures the CDK app setup.
type AppConfig struct {
	// Prefix for context keys (e.g., "promote-" for "promote-qualifier").
	Prefix string
}

// SetupApp configures a CDK app with the shared stack and, when environment
// context is present, the environment's stacks.
//
// It creates:
//  1. The shared stack in the orchestration account's primary region
//  2. The environment's secondary region stack, if configured
//  3. The environment's primary region stack (dependent on the secondary)
//
// The secondary region deploys first because the primary region's distribution
// reads the secondary load balancer as its failover origin. SetupApp validates
// all context values upfront and panics with a clear error message if any
// required values are missing or invalid.
func SetupApp(
	app awscdk.App,
	cfg AppConfig,
	newShared SharedConstructor,
	newEnvironment EnvironmentConstructor,
) {
	config, err := NewConfig(app, cfg)
	if err != nil {
		panic(err)
	}
	StoreConfig(app, config)

	sharedStack := NewStackFromConfig(app, config, config.OrchestrationAccount, config.PrimaryRegion)
	newShared(sharedStack)

	env := config.Environment
	if env == nil {
		if config.SecondaryRegion != "" {
			awscdk.Annotations_Of(sharedStack).AddWarning(jsii.Sprintf(
				"secondary region %s is configured but no environment is selected, so nothing is synthesized there",
				config.SecondaryRegion))
		}
		return
	}

	var secondaryStack awscdk.Stack
	if config.SecondaryRegion != "" {
		secondaryStack = NewStackFromConfig(app, config, env.Account, config.SecondaryRegion, env.Ident())
		newEnvironment(secondaryStack, env)
	}

	primaryStack := NewStackFromConfig(app, config, env.Account, config.PrimaryRegion, env.Ident())
	newEnvironment(primaryStack, env)
	if secondaryStack != nil {
		primaryStack.AddDependency(secondaryStack,
			jsii.String("Failover origin must exist before the distribution"))
	}
}
