//nolint:paralleltest // jsii runtime doesn't support parallel tests
package bwcdkdns_test

import (
	"testing"

	"github.com/aws/aws-cdk-go/awscdk/v2/assertions"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsroute53"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkdns"
	"github.com/basewarphq/bwpromote/bwcdk/internal/cdktest"
)

func TestNew_ImportsZone(t *testing.T) {
	defer jsii.Close()

	_, stack := cdktest.EnvironmentStack("eu-west-1")
	dns := bwcdkdns.New(stack, bwcdkdns.Props{})

	if got := *dns.HostedZone().ZoneName(); got != "test.example.com" {
		t.Errorf("ZoneName = %q", got)
	}
	if got := *dns.HostedZone().HostedZoneId(); got != "Z0TEST" {
		t.Errorf("HostedZoneId = %q", got)
	}

	template := assertions.Template_FromStack(stack, nil)
	template.ResourceCountIs(jsii.String("AWS::Route53::HostedZone"), jsii.Number(0))
	template.HasOutput(jsii.String(bwcdkdns.OutputZoneName), map[string]any{
		"Value": "test.example.com",
	})
}

func TestNew_SecondaryRegionHasNoOutput(t *testing.T) {
	defer jsii.Close()

	_, stack := cdktest.EnvironmentStack("eu-central-1")
	bwcdkdns.New(stack, bwcdkdns.Props{})

	template := assertions.Template_FromStack(stack, nil)
	outputs := template.FindOutputs(jsii.String(bwcdkdns.OutputZoneName), nil)
	if len(*outputs) != 0 {
		t.Errorf("unexpected outputs %v", *outputs)
	}
}

func TestAlias(t *testing.T) {
	defer jsii.Close()

	_, stack := cdktest.EnvironmentStack("eu-west-1")
	dns := bwcdkdns.New(stack, bwcdkdns.Props{})
	dns.Alias("Www", "www", awsroute53.RecordTarget_FromIpAddresses(jsii.String("192.0.2.1")))

	template := assertions.Template_FromStack(stack, nil)
	template.HasResourceProperties(jsii.String("AWS::Route53::RecordSet"), map[string]any{
		"Name":         "www.test.example.com.",
		"Type":         "A",
		"HostedZoneId": "Z0TEST",
	})
}
