// Package bwcdkdatabase provides an environment's Aurora PostgreSQL cluster.
package bwcdkdatabase

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsrds"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdknetwork"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
)

// OutputEndpoint is the stack output holding the writer endpoint.
const OutputEndpoint = "DatabaseEndpoint"

// DefaultDatabaseName is the database created with the cluster.
const DefaultDatabaseName = "app"

// Database provides access to the cluster.
type Database interface {
	// Cluster returns the Aurora cluster.
	Cluster() awsrds.IDatabaseCluster

	// AllowFrom opens the PostgreSQL port to peer.
	AllowFrom(peer awsec2.IConnectable)
}

// Props configures the Database construct.
type Props struct {
	// Network is the VPC the cluster runs in. Required.
	Network bwcdknetwork.Network

	// MinCapacity in ACUs, defaults to 0.5.
	MinCapacity *float64

	// MaxCapacity in ACUs, defaults to 2.
	MaxCapacity *float64
}

type database struct {
	cluster awsrds.DatabaseCluster
}

// New creates a serverless v2 Aurora PostgreSQL cluster in the private
// subnets with generated credentials.
func New(scope constructs.Construct, props Props) Database {
	if props.Network == nil {
		panic("bwcdkdatabase: Network is required")
	}
	scope = constructs.NewConstruct(scope, jsii.String("Database"))

	minCap := props.MinCapacity
	if minCap == nil {
		minCap = jsii.Number(0.5)
	}
	maxCap := props.MaxCapacity
	if maxCap == nil {
		maxCap = jsii.Number(2)
	}

	cluster := awsrds.NewDatabaseCluster(scope, jsii.String("Cluster"), &awsrds.DatabaseClusterProps{
		Engine: awsrds.DatabaseClusterEngine_AuroraPostgres(&awsrds.AuroraPostgresClusterEngineProps{
			Version: awsrds.AuroraPostgresEngineVersion_VER_15_12(),
		}),
		ClusterIdentifier:       jsii.String(bwcdkutil.ResourceName(scope, "db", bwcdkutil.CasingKebab)),
		Writer:                  awsrds.ClusterInstance_ServerlessV2(jsii.String("writer"), nil),
		Vpc:                     props.Network.Vpc(),
		VpcSubnets:              props.Network.PrivateSubnets(),
		DefaultDatabaseName:     jsii.String(DefaultDatabaseName),
		Credentials:             awsrds.Credentials_FromGeneratedSecret(jsii.String("postgres"), nil),
		ServerlessV2MinCapacity: minCap,
		ServerlessV2MaxCapacity: maxCap,
		StorageEncrypted:        jsii.Bool(true),
		RemovalPolicy:           awscdk.RemovalPolicy_SNAPSHOT,
	})

	awscdk.NewCfnOutput(awscdk.Stack_Of(scope), jsii.String(OutputEndpoint), &awscdk.CfnOutputProps{
		Value:       cluster.ClusterEndpoint().SocketAddress(),
		Description: jsii.String("Aurora PostgreSQL writer endpoint"),
	})

	return &database{cluster: cluster}
}

func (d *database) Cluster() awsrds.IDatabaseCluster {
	return d.cluster
}

func (d *database) AllowFrom(peer awsec2.IConnectable) {
	d.cluster.Connections().AllowDefaultPortFrom(peer, jsii.String("Database clients"))
}
