// Package bwcdkcache provides an environment's ElastiCache cluster.
//
// The cluster references its subnet group by name, which CloudFormation does
// not see as a dependency. The construct declares the ordering explicitly on
// the construct tree so the group always exists before the cluster.
package bwcdkcache

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awselasticache"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdknetwork"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
)

// OutputEndpoint is the stack output holding the cache endpoint URL.
const OutputEndpoint = "CacheEndpoint"

const redisPort = 6379

// Cache provides access to the cache cluster.
type Cache interface {
	// Cluster returns the underlying cluster resource.
	Cluster() awselasticache.CfnCacheCluster

	// EndpointURL returns "redis://<address>:<port>".
	EndpointURL() *string

	// AllowFrom opens the cache port to peer.
	AllowFrom(peer awsec2.IConnectable)
}

// Props configures the Cache construct.
type Props struct {
	// Network is the VPC the cluster runs in. Required.
	Network bwcdknetwork.Network

	// NodeType defaults to cache.t3.micro.
	NodeType *string
}

type cache struct {
	cluster     awselasticache.CfnCacheCluster
	connections awsec2.Connections
	endpoint    *string
}

// New creates the subnet group, security group and cluster.
func New(scope constructs.Construct, props Props) Cache {
	if props.Network == nil {
		panic("bwcdkcache: Network is required")
	}
	scope = constructs.NewConstruct(scope, jsii.String("Cache"))

	nodeType := props.NodeType
	if nodeType == nil {
		nodeType = jsii.String("cache.t3.micro")
	}

	subnets := props.Network.Vpc().SelectSubnets(props.Network.PrivateSubnets())
	subnetGroup := awselasticache.NewCfnSubnetGroup(scope, jsii.String("SubnetGroup"), &awselasticache.CfnSubnetGroupProps{
		CacheSubnetGroupName: jsii.String(bwcdkutil.ResourceName(scope, "cache", bwcdkutil.CasingKebab)),
		Description:          jsii.String("Private subnets for the cache cluster"),
		SubnetIds:            subnets.SubnetIds,
	})

	sg := awsec2.NewSecurityGroup(scope, jsii.String("SecurityGroup"), &awsec2.SecurityGroupProps{
		Vpc:         props.Network.Vpc(),
		Description: jsii.String("Cache cluster"),
	})

	cluster := awselasticache.NewCfnCacheCluster(scope, jsii.String("Cluster"), &awselasticache.CfnCacheClusterProps{
		Engine:               jsii.String("redis"),
		CacheNodeType:        nodeType,
		NumCacheNodes:        jsii.Number(1),
		Port:                 jsii.Number(redisPort),
		CacheSubnetGroupName: subnetGroup.CacheSubnetGroupName(),
		VpcSecurityGroupIds:  &[]*string{sg.SecurityGroupId()},
	})
	cluster.Node().AddDependency(subnetGroup)

	endpoint := awscdk.Fn_Join(jsii.String(""), &[]*string{
		jsii.String("redis://"),
		cluster.AttrRedisEndpointAddress(),
		jsii.String(":"),
		cluster.AttrRedisEndpointPort(),
	})

	awscdk.NewCfnOutput(awscdk.Stack_Of(scope), jsii.String(OutputEndpoint), &awscdk.CfnOutputProps{
		Value:       endpoint,
		Description: jsii.String("Cache endpoint URL"),
	})

	return &cache{
		cluster: cluster,
		connections: awsec2.NewConnections(&awsec2.ConnectionsProps{
			SecurityGroups: &[]awsec2.ISecurityGroup{sg},
			DefaultPort:    awsec2.Port_Tcp(jsii.Number(redisPort)),
		}),
		endpoint: endpoint,
	}
}

func (c *cache) Cluster() awselasticache.CfnCacheCluster {
	return c.cluster
}

func (c *cache) EndpointURL() *string {
	return c.endpoint
}

func (c *cache) AllowFrom(peer awsec2.IConnectable) {
	c.connections.AllowDefaultPortFrom(peer, jsii.String("Cache clients"))
}
