// Package bwcdknetwork provides the VPC an environment's workloads run in.
package bwcdknetwork

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
)

// Network provides access to the environment's VPC.
type Network interface {
	// Vpc returns the VPC.
	Vpc() awsec2.IVpc

	// PublicSubnets selects the internet facing subnets.
	PublicSubnets() *awsec2.SubnetSelection

	// PrivateSubnets selects the subnets with egress through NAT.
	PrivateSubnets() *awsec2.SubnetSelection
}

// Props configures the Network construct.
type Props struct {
	// Cidr defaults to 10.0.0.0/24.
	Cidr *string

	// MaxAzs defaults to 3.
	MaxAzs *float64
}

type network struct {
	vpc awsec2.IVpc
}

// New creates a VPC with a public and a private subnet tier.
func New(scope constructs.Construct, props Props) Network {
	scope = constructs.NewConstruct(scope, jsii.String("Network"))

	cidr := props.Cidr
	if cidr == nil {
		cidr = jsii.String("10.0.0.0/24")
	}
	maxAzs := props.MaxAzs
	if maxAzs == nil {
		maxAzs = jsii.Number(3)
	}

	vpc := awsec2.NewVpc(scope, jsii.String("Vpc"), &awsec2.VpcProps{
		VpcName:     jsii.String(bwcdkutil.ResourceName(scope, "vpc", bwcdkutil.CasingKebab)),
		IpAddresses: awsec2.IpAddresses_Cidr(cidr),
		MaxAzs:      maxAzs,
		NatGateways: jsii.Number(1),
		SubnetConfiguration: &[]*awsec2.SubnetConfiguration{
			{
				Name:       jsii.String("public"),
				SubnetType: awsec2.SubnetType_PUBLIC,
				CidrMask:   jsii.Number(27),
			},
			{
				Name:       jsii.String("private"),
				SubnetType: awsec2.SubnetType_PRIVATE_WITH_EGRESS,
				CidrMask:   jsii.Number(27),
			},
		},
	})
	vpc.ApplyRemovalPolicy(awscdk.RemovalPolicy_DESTROY)

	return &network{vpc: vpc}
}

func (n *network) Vpc() awsec2.IVpc {
	return n.vpc
}

func (n *network) PublicSubnets() *awsec2.SubnetSelection {
	return &awsec2.SubnetSelection{SubnetType: awsec2.SubnetType_PUBLIC}
}

func (n *network) PrivateSubnets() *awsec2.SubnetSelection {
	return &awsec2.SubnetSelection{SubnetType: awsec2.SubnetType_PRIVATE_WITH_EGRESS}
}
