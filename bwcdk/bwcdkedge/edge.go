// Package bwcdkedge provides an environment's CloudFront distribution.
//
// The distribution answers on "www.<subdomain>.<parent>" with the certificate
// issued ahead of the deploy, sends dynamic requests to the web tier's load
// balancer and static/* to the static bucket. When a failover origin is given
// the load balancer origin becomes an origin group that falls back to it on
// server errors.
package bwcdkedge

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscertificatemanager"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudfront"
	"github.com/aws/aws-cdk-go/awscdk/v2/awscloudfrontorigins"
	elb "github.com/aws/aws-cdk-go/awscdk/v2/awselasticloadbalancingv2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53targets"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkdns"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
)

// OutputDemoURL is the stack output holding the environment's demo URL.
const OutputDemoURL = "DemoUrl"

// OutputDistributionDomain is the stack output holding the cloudfront.net name.
const OutputDistributionDomain = "DistributionDomainName"

// Edge provides access to the distribution.
type Edge interface {
	// Distribution returns the CloudFront distribution.
	Distribution() awscloudfront.IDistribution

	// DemoURL returns the public URL of the demo page.
	DemoURL() string
}

// Props configures the Edge construct.
type Props struct {
	// LoadBalancer is the primary dynamic origin. Required.
	LoadBalancer elb.IApplicationLoadBalancer

	// StaticBucket serves static/*. Required.
	StaticBucket awss3.IBucket

	// Certificate must be issued in us-east-1 for the site domain. Required.
	Certificate awscertificatemanager.ICertificate

	// DNS is the zone the www alias is created in. Required.
	DNS bwcdkdns.DNS

	// FailoverDNSName is the DNS name of a load balancer in another region.
	// Optional.
	FailoverDNSName *string

	// DemoPath is appended to the site URL in the demo URL output.
	DemoPath string
}

type edge struct {
	distribution awscloudfront.IDistribution
	demoURL      string
}

// New creates the distribution, the www alias record and the URL outputs.
func New(scope constructs.Construct, props Props) Edge {
	if props.LoadBalancer == nil || props.StaticBucket == nil || props.Certificate == nil || props.DNS == nil {
		panic("bwcdkedge: LoadBalancer, StaticBucket, Certificate and DNS are required")
	}
	scope = constructs.NewConstruct(scope, jsii.String("Edge"))
	env := bwcdkutil.EnvironmentFromScope(scope)

	httpOnly := awscloudfront.OriginProtocolPolicy_HTTP_ONLY
	var origin awscloudfront.IOrigin = awscloudfrontorigins.NewLoadBalancerV2Origin(props.LoadBalancer,
		&awscloudfrontorigins.LoadBalancerV2OriginProps{ProtocolPolicy: httpOnly})
	if props.FailoverDNSName != nil {
		origin = awscloudfrontorigins.NewOriginGroup(&awscloudfrontorigins.OriginGroupProps{
			PrimaryOrigin: origin,
			FallbackOrigin: awscloudfrontorigins.NewHttpOrigin(props.FailoverDNSName,
				&awscloudfrontorigins.HttpOriginProps{ProtocolPolicy: httpOnly}),
			FallbackStatusCodes: &[]*float64{jsii.Number(500), jsii.Number(502), jsii.Number(503), jsii.Number(504)},
		})
	}

	dist := awscloudfront.NewDistribution(scope, jsii.String("Distribution"), &awscloudfront.DistributionProps{
		Comment: jsii.String(bwcdkutil.ResourceName(scope, "site", bwcdkutil.CasingKebab)),
		DefaultBehavior: &awscloudfront.BehaviorOptions{
			Origin:               origin,
			ViewerProtocolPolicy: awscloudfront.ViewerProtocolPolicy_REDIRECT_TO_HTTPS,
			CachePolicy:          awscloudfront.CachePolicy_CACHING_DISABLED(),
		},
		AdditionalBehaviors: &map[string]*awscloudfront.BehaviorOptions{
			"static/*": {
				Origin:               awscloudfrontorigins.S3BucketOrigin_WithOriginAccessControl(props.StaticBucket, nil),
				ViewerProtocolPolicy: awscloudfront.ViewerProtocolPolicy_REDIRECT_TO_HTTPS,
			},
		},
		DomainNames:            &[]*string{jsii.String(env.SiteDomain())},
		Certificate:            props.Certificate,
		MinimumProtocolVersion: awscloudfront.SecurityPolicyProtocol_TLS_V1_2_2021,
		PriceClass:             awscloudfront.PriceClass_PRICE_CLASS_100,
	})

	props.DNS.Alias("WwwAlias", "www",
		awsroute53.RecordTarget_FromAlias(awsroute53targets.NewCloudFrontTarget(dist)))

	demoURL := "https://" + env.SiteDomain() + props.DemoPath
	stack := awscdk.Stack_Of(scope)
	awscdk.NewCfnOutput(stack, jsii.String(OutputDemoURL), &awscdk.CfnOutputProps{
		Value:       jsii.String(demoURL),
		Description: jsii.String("Demo page of the environment"),
	})
	awscdk.NewCfnOutput(stack, jsii.String(OutputDistributionDomain), &awscdk.CfnOutputProps{
		Value:       dist.DistributionDomainName(),
		Description: jsii.String("CloudFront domain of the distribution"),
	})

	return &edge{distribution: dist, demoURL: demoURL}
}

func (e *edge) Distribution() awscloudfront.IDistribution {
	return e.distribution
}

func (e *edge) DemoURL() string {
	return e.demoURL
}
