package bwcdkutil

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
)

// Export creates a CfnOutput with a fixed export name so other stacks and
// operators can find the value without knowing the construct path.
func Export(scope constructs.Construct, id, exportName string, value *string) awscdk.CfnOutput {
	return awscdk.NewCfnOutput(scope, jsii.String(id), &awscdk.CfnOutputProps{
		Value:      value,
		ExportName: jsii.String(exportName),
	})
}

// Output creates a plain CfnOutput. The pipeline records every output of an
// environment stack on the run.
func Output(scope constructs.Construct, id string, value *string, description string) awscdk.CfnOutput {
	return awscdk.NewCfnOutput(scope, jsii.String(id), &awscdk.CfnOutputProps{
		Value:       value,
		Description: jsii.String(description),
	})
}
