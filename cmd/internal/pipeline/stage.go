package pipeline

import (
	"context"
	"maps"

	"github.com/basewarphq/bwpromote/cmd/internal/certprov"
	"github.com/basewarphq/bwpromote/cmd/internal/delegation"
	"github.com/basewarphq/bwpromote/cmd/internal/paramstore"
	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
	"github.com/basewarphq/bwpromote/cmd/internal/stagegraph"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Deploy stage step ids, in dependency order.
const (
	StepDelegateZone       = "delegate-zone"
	StepIssueCertificate   = "issue-certificate"
	StepResolveCertificate = "resolve-certificate"
	StepDeployStack        = "deploy-stack"
	StepReadOutputs        = "read-outputs"

	// StepBuildGraph is recorded when the step graph itself is invalid.
	StepBuildGraph = "build-graph"
)

type ZoneDelegator interface {
	Delegate(ctx context.Context, req delegation.Request) (*delegation.Result, error)
}

type CertificateIssuer interface {
	Provision(ctx context.Context, req certprov.Request) (*certprov.Certificate, error)
}

type ParameterReader interface {
	Read(ctx context.Context, name, sourceRegion string) (string, error)
}

// StackDeployment is everything the environment stack needs from earlier steps.
type StackDeployment struct {
	Environment    promocfg.Environment
	HostedZoneID   string
	HostedZoneName string
	CertificateARN string
}

type StackDeployer interface {
	Deploy(ctx context.Context, d StackDeployment) error
	StackNames(env promocfg.Environment) map[string]string
}

type OutputReader interface {
	StackOutputs(ctx context.Context, region, stackName string) (map[string]string, error)
}

// Services are the account-scoped collaborators of one environment's stage.
type Services struct {
	Zones        ZoneDelegator
	Certificates CertificateIssuer
	Parameters   ParameterReader
	Stacks       StackDeployer
	Outputs      OutputReader
}

// ServicesFunc builds Services acting in env's account.
type ServicesFunc func(env promocfg.Environment) (*Services, error)

// stage carries values between the steps of one deploy stage.
type stage struct {
	env               promocfg.Environment
	certificateRegion string
	svc               *Services
	logger            *zap.Logger

	zone    *delegation.Result
	cert    *certprov.Certificate
	certARN string
	outputs map[string]string
}

// graph wires the stage steps. The stack deployment depends on the resolved
// parameter rather than on the issued certificate directly, so the composer
// only ever sees an ARN that made it through the bridge.
func (s *stage) graph() (*stagegraph.Graph, error) {
	return stagegraph.Build([]stagegraph.Step{
		{ID: StepDelegateZone, Run: s.delegateZone},
		{ID: StepIssueCertificate, DependsOn: []string{StepDelegateZone}, Run: s.issueCertificate},
		{ID: StepResolveCertificate, DependsOn: []string{StepIssueCertificate}, Run: s.resolveCertificate},
		{ID: StepDeployStack, DependsOn: []string{StepResolveCertificate, StepDelegateZone}, Run: s.deployStack},
		{ID: StepReadOutputs, DependsOn: []string{StepDeployStack}, Run: s.readOutputs},
	})
}

func (s *stage) delegateZone(ctx context.Context) error {
	role, err := delegation.ParseRole(s.env.DNSRole)
	if err != nil {
		return err
	}
	res, err := s.svc.Zones.Delegate(ctx, delegation.Request{
		Role:              role,
		Subdomain:         s.env.Subdomain,
		ParentDomain:      s.env.ParentDomain,
		Account:           s.env.Account,
		DelegationAccount: s.env.DelegationAccount,
	})
	if err != nil {
		return err
	}
	s.zone = res
	return nil
}

func (s *stage) issueCertificate(ctx context.Context) error {
	cert, err := s.svc.Certificates.Provision(ctx, certprov.Request{
		Subdomain:    s.env.Subdomain,
		ParentDomain: s.env.ParentDomain,
		ZoneID:       s.zone.Zone.ID,
	})
	if err != nil {
		return err
	}
	s.cert = cert
	return nil
}

func (s *stage) resolveCertificate(ctx context.Context) error {
	arn, err := s.svc.Parameters.Read(ctx, paramstore.Name(s.env.Subdomain), s.certificateRegion)
	if err != nil {
		return err
	}
	if arn != s.cert.ARN {
		s.logger.Warn("bridged certificate differs from the one just issued",
			zap.String("issued", s.cert.ARN),
			zap.String("bridged", arn))
	}
	s.certARN = arn
	return nil
}

func (s *stage) deployStack(ctx context.Context) error {
	if s.certARN == "" {
		return errors.New("certificate ARN was not resolved")
	}
	return s.svc.Stacks.Deploy(ctx, StackDeployment{
		Environment:    s.env,
		HostedZoneID:   s.zone.Zone.ID,
		HostedZoneName: s.zone.Zone.Name,
		CertificateARN: s.certARN,
	})
}

func (s *stage) readOutputs(ctx context.Context) error {
	s.outputs = make(map[string]string)
	for region, stackName := range s.svc.Stacks.StackNames(s.env) {
		outputs, err := s.svc.Outputs.StackOutputs(ctx, region, stackName)
		if err != nil {
			return err
		}
		if region == s.env.Region {
			maps.Copy(s.outputs, outputs)
			continue
		}
		for k, v := range outputs {
			s.outputs[region+"/"+k] = v
		}
	}
	return nil
}
