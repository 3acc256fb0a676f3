//nolint:paralleltest // jsii runtime doesn't support parallel tests
package bwcdkdatabase_test

import (
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkdatabase"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdknetwork"
	"github.com/basewarphq/bwpromote/bwcdk/internal/cdktest"
)

func TestNew(t *testing.T) {
	defer jsii.Close()

	_, stack := cdktest.EnvironmentStack("eu-west-1")
	db := bwcdkdatabase.New(stack, bwcdkdatabase.Props{Network: bwcdknetwork.New(stack, bwcdknetwork.Props{})})
	if db.Cluster() == nil {
		t.Fatal("Cluster() should not be nil")
	}

	template := assertions.Template_FromStack(stack, nil)
	template.HasResourceProperties(jsii.String("AWS::RDS::DBCluster"), map[string]any{
		"Engine":              "aurora-postgresql",
		"DatabaseName":        bwcdkdatabase.DefaultDatabaseName,
		"DBClusterIdentifier": "demo-test-db",
		"StorageEncrypted":    true,
		"ServerlessV2ScalingConfiguration": map[string]any{
			"MinCapacity": 0.5,
			"MaxCapacity": 2,
		},
	})
	template.ResourceCountIs(jsii.String("AWS::SecretsManager::Secret"), jsii.Number(1))
	template.HasOutput(jsii.String(bwcdkdatabase.OutputEndpoint), map[string]any{})
}

func TestAllowFrom(t *testing.T) {
	defer jsii.Close()

	_, stack := cdktest.EnvironmentStack("eu-west-1")
	net := bwcdknetwork.New(stack, bwcdknetwork.Props{})
	db := bwcdkdatabase.New(stack, bwcdkdatabase.Props{Network: net})
	client := awsec2.NewSecurityGroup(stack, jsii.String("Client"), &awsec2.SecurityGroupProps{Vpc: net.Vpc()})
	db.AllowFrom(client)

	template := assertions.Template_FromStack(stack, nil)
	template.HasResourceProperties(jsii.String("AWS::EC2::SecurityGroupIngress"), map[string]any{
		"IpProtocol": "tcp",
		"FromPort":   assertions.Match_AnyValue(),
	})
}
