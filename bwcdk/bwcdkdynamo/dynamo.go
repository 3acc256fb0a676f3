// Package bwcdkdynamo provides the DynamoDB table that records pipeline runs.
//
// The table lives in the orchestration account's shared stack. Each item is
// one run, keyed by its run id, and carries a version attribute the CLI uses
// for optimistic concurrency. The table name is exported as a stack output and
// stored in SSM so tooling can find it without knowing the construct path.
package bwcdkdynamo

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsdynamodb"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkparams"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
)

const paramsNamespace = "dynamo"

// PartitionKey is the attribute the runs table is keyed on.
const PartitionKey = "runId"

// OutputTableName is the stack output holding the runs table name.
const OutputTableName = "RunsTableName"

// Dynamo provides access to the runs table.
type Dynamo interface {
	// Table returns the DynamoDB table.
	Table() awsdynamodb.ITableV2

	// GrantReadData grants read-only permissions to the table.
	GrantReadData(grantee awsiam.IGrantable)

	// GrantReadWriteData grants read/write permissions to the table.
	GrantReadWriteData(grantee awsiam.IGrantable)
}

// Props configures the Dynamo construct.
type Props struct {
	// Identifier distinguishes this table from others in the same stack.
	// Example: "runs" produces table name "{qualifier}-runs-table".
	Identifier *string
}

type dynamo struct {
	table awsdynamodb.ITableV2
}

// New creates the runs table, its name output and the SSM parameter that
// records the name.
func New(scope constructs.Construct, props Props) Dynamo {
	identifier := "runs"
	if props.Identifier != nil && *props.Identifier != "" {
		identifier = *props.Identifier
	}

	constructID := "Dynamo" + bwcdkutil.ResourceName(scope, identifier, bwcdkutil.CasingCamel)
	scope = constructs.NewConstruct(scope, jsii.String(constructID))

	tableName := bwcdkutil.ResourceName(scope, identifier+"-table", bwcdkutil.CasingKebab)

	table := awsdynamodb.NewTableV2(scope, jsii.String("Table"), &awsdynamodb.TablePropsV2{
		TableName:     jsii.String(tableName),
		PartitionKey:  &awsdynamodb.Attribute{Name: jsii.String(PartitionKey), Type: awsdynamodb.AttributeType_STRING},
		Billing:       awsdynamodb.Billing_OnDemand(nil),
		RemovalPolicy: awscdk.RemovalPolicy_RETAIN,
		PointInTimeRecoverySpecification: &awsdynamodb.PointInTimeRecoverySpecification{
			PointInTimeRecoveryEnabled: jsii.Bool(true),
		},
	})

	bwcdkparams.Store(scope, "TableNameParam", paramsNamespace, identifier+"/table-name", jsii.String(tableName))

	outputID := OutputTableName
	if identifier != "runs" {
		outputID += identifier
	}
	awscdk.NewCfnOutput(awscdk.Stack_Of(scope), jsii.String(outputID), &awscdk.CfnOutputProps{
		Value:       table.TableName(),
		Description: jsii.String("DynamoDB table recording pipeline runs"),
	})

	return &dynamo{table: table}
}

func (d *dynamo) Table() awsdynamodb.ITableV2 {
	return d.table
}

func (d *dynamo) GrantReadData(grantee awsiam.IGrantable) {
	d.table.GrantReadData(grantee)
}

func (d *dynamo) GrantReadWriteData(grantee awsiam.IGrantable) {
	d.table.GrantReadWriteData(grantee)
}
