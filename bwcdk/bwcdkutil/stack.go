package bwcdkutil

import (
	"fmt"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/iancoleman/strcase"
)

const deploymentIdentContextKey = "__bwcdkutil_deployment_ident"

// SharedStackName returns the CloudFormation stack name for a shared stack.
// This is the canonical function for generating shared stack names.
func SharedStackName(qualifier, regionIdent string) string {
	base := strcase.ToLowerCamel(fmt.Sprintf("%s-%s", qualifier, regionIdent))
	return base + "Shared"
}

// DeploymentStackName returns the CloudFormation stack name for a deployment stack.
// This is the canonical function for generating deployment stack names.
func DeploymentStackName(qualifier, regionIdent, deploymentIdent string) string {
	base := strcase.ToLowerCamel(fmt.Sprintf("%s-%s", qualifier, regionIdent))
	return base + deploymentIdent
}

// NewStackFromConfig creates a new CDK Stack in account and region using a
// validated Config. Without a deployment identifier the stack is the shared one.
func NewStackFromConfig(
	scope constructs.Construct, cfg *Config, account, region string, deploymentIdent ...string,
) awscdk.Stack {
	var stackName string
	var description string

	regionAcronym := cfg.RegionIdent(region)
	baseIdent := strcase.ToLowerCamel(fmt.Sprintf("%s-%s", cfg.Qualifier, regionAcronym))

	switch {
	case len(deploymentIdent) > 0 && deploymentIdent[0] != "":
		dident := deploymentIdent[0]
		if strings.ToUpper(string(dident[0])) != string(dident[0]) {
			panic("deployment identifier must start with a upper-case letter, got: " + dident)
		}

		stackName = DeploymentStackName(cfg.Qualifier, regionAcronym, dident)
		description = fmt.Sprintf("%s (region: %s, deployment: %s)", baseIdent, region, dident)
	case len(deploymentIdent) > 0:
		panic("invalid deploymentIdent: " + deploymentIdent[0])
	default:
		stackName = SharedStackName(cfg.Qualifier, regionAcronym)
		description = fmt.Sprintf("%s (region: %s)", baseIdent, region)
	}

	stack := awscdk.NewStack(scope, jsii.String(stackName), &awscdk.StackProps{
		Env: &awscdk.Environment{
			Account: jsii.String(account),
			Region:  jsii.String(region),
		},
		Description: jsii.String(description),
		Synthesizer: awscdk.NewDefaultStackSynthesizer(&awscdk.DefaultStackSynthesizerProps{
			Qualifier: jsii.String(cfg.Qualifier),
		}),
	})

	if len(deploymentIdent) > 0 && deploymentIdent[0] != "" {
		StoreDeploymentIdent(stack, deploymentIdent[0])
	}

	return stack
}

// StoreDeploymentIdent records the deployment identifier on a stack for
// retrieval via DeploymentIdent.
func StoreDeploymentIdent(stack awscdk.Stack, ident string) {
	stack.Node().SetContext(jsii.String(deploymentIdentContextKey), ident)
}

// DeploymentIdent returns the deployment identifier of the stack containing
// scope, or "" for shared stacks.
func DeploymentIdent(scope constructs.Construct) string {
	val := awscdk.Stack_Of(scope).Node().TryGetContext(jsii.String(deploymentIdentContextKey))
	ident, _ := val.(string)
	return ident
}
