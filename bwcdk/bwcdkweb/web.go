// Package bwcdkweb provides an environment's web tier: an internet facing
// application load balancer in front of an autoscaling group of httpd
// instances, plus the bucket that serves static files.
//
// Instances are bootstrapped with cfn-init and signal CloudFormation when the
// demo page is in place, so a stack update only completes once the group is
// healthy. In the secondary region the load balancer's DNS name is stored in
// SSM for the primary region's distribution to use as its failover origin.
package bwcdkweb

import (
	_ "embed"
	"html/template"
	"strings"

	"github.com/Masterminds/sprig/v3"
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsautoscaling"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsec2"
	elb "github.com/aws/aws-cdk-go/awscdk/v2/awselasticloadbalancingv2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkloggroup"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdknetwork"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkparams"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
	"github.com/cockroachdb/errors"
)

// ParamsNamespace groups the web tier's SSM parameters.
const ParamsNamespace = "web"

// ParamAlbDNSName is the parameter holding the load balancer's DNS name.
const ParamAlbDNSName = "alb-dns-name"

// OutputAlbDNSName is the stack output holding the load balancer's DNS name.
const OutputAlbDNSName = "AlbDnsName"

// DemoPage is where the demo page is installed and the path the target group
// health checks.
const DemoPage = "/demo.html"

//go:embed demo.html
var demoHTML string

var demoTemplate = template.Must(template.New("demo").Funcs(sprig.FuncMap()).Parse(demoHTML))

// DemoPageData is rendered into the demo page each instance serves.
type DemoPageData struct {
	Environment string
	Region      string
	Domain      string
	Path        string
}

// RenderDemoPage renders the demo page for one environment and region.
func RenderDemoPage(data DemoPageData) (string, error) {
	var sb strings.Builder
	if err := demoTemplate.Execute(&sb, data); err != nil {
		return "", errors.Wrap(err, "rendering demo page")
	}
	return sb.String(), nil
}

const permsScript = `groupadd -f www
usermod -a -G www ec2-user
chown -R root:www /var/www
chmod 2775 /var/www
find /var/www -type d -exec chmod 2775 {} \;
find /var/www -type f -exec chmod 0664 {} \;
`

// Web provides access to the web tier.
type Web interface {
	// LoadBalancer returns the internet facing load balancer.
	LoadBalancer() elb.IApplicationLoadBalancer

	// AutoScalingGroup returns the group serving the demo page.
	AutoScalingGroup() awsautoscaling.AutoScalingGroup

	// StaticBucket returns the bucket serving static/* paths.
	StaticBucket() awss3.IBucket
}

// Props configures the Web construct.
type Props struct {
	// Network is the VPC the tier runs in. Required.
	Network bwcdknetwork.Network

	// MinCapacity defaults to 1.
	MinCapacity *float64

	// MaxCapacity defaults to 8.
	MaxCapacity *float64

	// TargetCPUPercent is the average utilization the group scales towards.
	// Defaults to 50.
	TargetCPUPercent *float64
}

type web struct {
	alb    elb.IApplicationLoadBalancer
	asg    awsautoscaling.AutoScalingGroup
	bucket awss3.IBucket
}

// New creates the web tier.
func New(scope constructs.Construct, props Props) Web {
	if props.Network == nil {
		panic("bwcdkweb: Network is required")
	}
	env := bwcdkutil.EnvironmentFromScope(scope)
	page, err := RenderDemoPage(DemoPageData{
		Environment: env.Name,
		Region:      *awscdk.Stack_Of(scope).Region(),
		Domain:      env.SiteDomain(),
		Path:        DemoPage,
	})
	if err != nil {
		panic(err)
	}

	scope = constructs.NewConstruct(scope, jsii.String("Web"))
	con := &web{}
	vpc := props.Network.Vpc()

	alb := elb.NewApplicationLoadBalancer(scope, jsii.String("Alb"), &elb.ApplicationLoadBalancerProps{
		Vpc:            vpc,
		InternetFacing: jsii.Bool(true),
		VpcSubnets:     props.Network.PublicSubnets(),
	})
	con.alb = alb

	tg := elb.NewApplicationTargetGroup(scope, jsii.String("TargetGroup"), &elb.ApplicationTargetGroupProps{
		Vpc:        vpc,
		Port:       jsii.Number(80),
		Protocol:   elb.ApplicationProtocol_HTTP,
		TargetType: elb.TargetType_INSTANCE,
		HealthCheck: &elb.HealthCheck{
			Path: jsii.String(DemoPage),
		},
	})

	alb.AddListener(jsii.String("Http"), &elb.BaseApplicationListenerProps{
		Port:                jsii.Number(80),
		Protocol:            elb.ApplicationProtocol_HTTP,
		DefaultTargetGroups: &[]elb.IApplicationTargetGroup{tg},
	})

	asg := awsautoscaling.NewAutoScalingGroup(scope, jsii.String("Asg"), &awsautoscaling.AutoScalingGroupProps{
		Vpc:                 vpc,
		VpcSubnets:          props.Network.PrivateSubnets(),
		InstanceType:        awsec2.InstanceType_Of(awsec2.InstanceClass_BURSTABLE3, awsec2.InstanceSize_MICRO),
		MachineImage:        awsec2.MachineImage_LatestAmazonLinux2023(nil),
		MinCapacity:         orDefault(props.MinCapacity, 1),
		MaxCapacity:         orDefault(props.MaxCapacity, 8),
		MaxInstanceLifetime: awscdk.Duration_Days(jsii.Number(10)),
		Init:                bootstrap(page),
		Signals: awsautoscaling.Signals_WaitForAll(&awsautoscaling.SignalsOptions{
			Timeout: awscdk.Duration_Minutes(jsii.Number(10)),
		}),
	})
	asg.AttachToApplicationTargetGroup(tg)
	asg.Connections().AllowFrom(alb, awsec2.Port_Tcp(jsii.Number(80)), jsii.String("HTTP from the load balancer"))
	asg.ScaleOnCpuUtilization(jsii.String("CpuScaling"), &awsautoscaling.CpuUtilizationScalingProps{
		TargetUtilizationPercent: orDefault(props.TargetCPUPercent, 50),
	})
	con.asg = asg

	logs := bwcdkloggroup.New(scope, "WebLogs", bwcdkloggroup.Props{
		Purpose: jsii.String("web server logs"),
	})
	logs.LogGroup().GrantWrite(asg.Role())

	con.bucket = awss3.NewBucket(scope, jsii.String("StaticFiles"), &awss3.BucketProps{
		BlockPublicAccess: awss3.BlockPublicAccess_BLOCK_ALL(),
		EnforceSSL:        jsii.Bool(true),
		RemovalPolicy:     awscdk.RemovalPolicy_DESTROY,
		AutoDeleteObjects: jsii.Bool(true),
	})

	stack := awscdk.Stack_Of(scope)
	awscdk.NewCfnOutput(stack, jsii.String(OutputAlbDNSName), &awscdk.CfnOutputProps{
		Value:       alb.LoadBalancerDnsName(),
		Description: jsii.String("DNS name of the web tier load balancer"),
	})
	if !bwcdkutil.IsPrimaryRegionStack(scope, stack) {
		bwcdkparams.Store(scope, "AlbDnsNameParam", ParamsNamespace, ParamAlbDNSName, alb.LoadBalancerDnsName())
	}

	return con
}

// LookupAlbDNSName reads the load balancer DNS name stored by the web tier in
// sourceRegion.
func LookupAlbDNSName(scope constructs.Construct, sourceRegion string) *string {
	return bwcdkparams.Lookup(scope, "LookupAlbDnsName", ParamsNamespace, ParamAlbDNSName,
		"alb-dns-name-lookup", sourceRegion)
}

func bootstrap(page string) awsec2.CloudFormationInit {
	return awsec2.CloudFormationInit_FromConfigSets(&awsec2.ConfigSetProps{
		ConfigSets: &map[string]*[]*string{
			"default": {jsii.String("packages"), jsii.String("site")},
		},
		Configs: &map[string]awsec2.InitConfig{
			"packages": awsec2.NewInitConfig(&[]awsec2.InitElement{
				awsec2.InitPackage_Yum(jsii.String("httpd"), nil),
			}),
			"site": awsec2.NewInitConfig(&[]awsec2.InitElement{
				awsec2.InitGroup_FromName(jsii.String("www"), nil),
				awsec2.InitFile_FromString(jsii.String("/var/www/html"+DemoPage), jsii.String(page), nil),
				awsec2.InitFile_FromString(jsii.String("/tmp/perms.sh"), jsii.String(permsScript),
					&awsec2.InitFileOptions{Mode: jsii.String("000755")}),
				awsec2.InitService_Enable(jsii.String("httpd"), nil),
				awsec2.InitCommand_ShellCommand(jsii.String("sh /tmp/perms.sh"), nil),
			}),
		},
	})
}

func orDefault(v *float64, def float64) *float64 {
	if v == nil {
		return jsii.Number(def)
	}
	return v
}

func (w *web) LoadBalancer() elb.IApplicationLoadBalancer {
	return w.alb
}

func (w *web) AutoScalingGroup() awsautoscaling.AutoScalingGroup {
	return w.asg
}

func (w *web) StaticBucket() awss3.IBucket {
	return w.bucket
}
