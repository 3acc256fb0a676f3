// Package bwcdkcerts provides the environment's site certificate to the
// constructs of an environment stack.
//
// The certificate for "www.<subdomain>.<parent>" is issued in us-east-1 outside
// of CloudFormation and validated before the stacks deploy. Its ARN reaches the
// app through CDK context; this construct only imports it and never waits on
// issuance.
package bwcdkcerts

import (
	"github.com/aws/aws-cdk-go/awscdk/v2/awscertificatemanager"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
)

// Certificates provides access to the site certificate.
type Certificates interface {
	// SiteCertificate returns the imported certificate. It lives in us-east-1
	// and is only usable by CloudFront.
	SiteCertificate() awscertificatemanager.ICertificate
}

// Props configures the Certificates construct.
type Props struct {
	// CertificateARN overrides the ARN from CDK context.
	CertificateARN *string
}

type certificates struct {
	certificate awscertificatemanager.ICertificate
}

// New imports the site certificate.
func New(scope constructs.Construct, props Props) Certificates {
	scope = constructs.NewConstruct(scope, jsii.String("Certificates"))

	arn := props.CertificateARN
	if arn == nil {
		arn = jsii.String(bwcdkutil.EnvironmentFromScope(scope).CertificateARN)
	}

	return &certificates{
		certificate: awscertificatemanager.Certificate_FromCertificateArn(scope,
			jsii.String("SiteCertificate"), arn),
	}
}

func (c *certificates) SiteCertificate() awscertificatemanager.ICertificate {
	return c.certificate
}
