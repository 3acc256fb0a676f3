// Package bwcdkdns provides the environment's Route53 hosted zone to the
// constructs of an environment stack.
//
// The zone for "<subdomain>.<parent>" is created and delegated before any stack
// deploys, so the construct only imports it from the hosted zone id carried in
// CDK context. Records are added to the imported zone.
package bwcdkdns

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkparams"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
)

// OutputZoneName is the stack output holding the environment's zone name.
const OutputZoneName = "HostedZoneName"

const paramsNamespace = "dns"

// DNS provides access to the environment's hosted zone.
type DNS interface {
	// HostedZone returns the imported subdomain zone.
	HostedZone() awsroute53.IHostedZone

	// Alias points recordName, relative to the zone, at target with an A record.
	Alias(id, recordName string, target awsroute53.RecordTarget) awsroute53.ARecord
}

// Props configures the DNS construct.
type Props struct{}

type dns struct {
	scope      constructs.Construct
	hostedZone awsroute53.IHostedZone
}

// New imports the environment's hosted zone.
func New(scope constructs.Construct, _ Props) DNS {
	scope = constructs.NewConstruct(scope, jsii.String("DNS"))
	env := bwcdkutil.EnvironmentFromScope(scope)

	zone := awsroute53.HostedZone_FromHostedZoneAttributes(scope, jsii.String("HostedZone"),
		&awsroute53.HostedZoneAttributes{
			HostedZoneId: jsii.String(env.HostedZoneID),
			ZoneName:     jsii.String(env.ZoneName()),
		})

	stack := awscdk.Stack_Of(scope)
	if bwcdkutil.IsPrimaryRegionStack(scope, stack) {
		bwcdkparams.Store(scope, "HostedZoneIDParam", paramsNamespace, "hosted-zone-id",
			jsii.String(env.HostedZoneID))
		awscdk.NewCfnOutput(stack, jsii.String(OutputZoneName), &awscdk.CfnOutputProps{
			Value:       jsii.String(env.ZoneName()),
			Description: jsii.String("Environment subdomain zone"),
		})
	}

	return &dns{scope: scope, hostedZone: zone}
}

func (d *dns) HostedZone() awsroute53.IHostedZone {
	return d.hostedZone
}

func (d *dns) Alias(id, recordName string, target awsroute53.RecordTarget) awsroute53.ARecord {
	return awsroute53.NewARecord(d.scope, jsii.String(id), &awsroute53.ARecordProps{
		Zone:       d.hostedZone,
		RecordName: jsii.String(recordName),
		Target:     target,
	})
}
