//nolint:paralleltest // jsii runtime doesn't support parallel tests
package bwcdknetwork_test

import (
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdknetwork"
	"github.com/basewarphq/bwpromote/bwcdk/internal/cdktest"
)

func TestNew(t *testing.T) {
	defer jsii.Close()

	_, stack := cdktest.EnvironmentStack("eu-west-1")
	net := bwcdknetwork.New(stack, bwcdknetwork.Props{})
	if net.Vpc() == nil {
		t.Fatal("Vpc() should not be nil")
	}

	template := assertions.Template_FromStack(stack, nil)
	template.ResourceCountIs(jsii.String("AWS::EC2::VPC"), jsii.Number(1))
	template.HasResourceProperties(jsii.String("AWS::EC2::VPC"), map[string]any{
		"CidrBlock": "10.0.0.0/24",
	})
	template.ResourceCountIs(jsii.String("AWS::EC2::NatGateway"), jsii.Number(1))
}

func TestNew_CustomCidr(t *testing.T) {
	defer jsii.Close()

	_, stack := cdktest.EnvironmentStack("eu-west-1")
	bwcdknetwork.New(stack, bwcdknetwork.Props{Cidr: jsii.String("10.1.0.0/24")})

	template := assertions.Template_FromStack(stack, nil)
	template.HasResourceProperties(jsii.String("AWS::EC2::VPC"), map[string]any{
		"CidrBlock": "10.1.0.0/24",
	})
}
