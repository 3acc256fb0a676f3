package pipeline

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkdynamo"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkrepo"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkstate"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
	"github.com/basewarphq/bwpromote/cmd/internal/cfnvalidate"
	"github.com/basewarphq/bwpromote/cmd/internal/cmdexec"
	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// CDKWorkspace resolves revisions with git and synthesizes with the cdk CLI.
type CDKWorkspace struct {
	cfg    *promocfg.Config
	exec   cmdexec.Runner
	logger *zap.Logger
}

func NewCDKWorkspace(cfg *promocfg.Config, exec cmdexec.Runner, logger *zap.Logger) *CDKWorkspace {
	return &CDKWorkspace{cfg: cfg, exec: exec, logger: logger}
}

func (w *CDKWorkspace) Revision(ctx context.Context) (string, error) {
	out, err := w.exec.Output(ctx, cmdexec.Command{
		Dir:  w.cfg.Root,
		Name: "git",
		Args: []string{"rev-parse", "HEAD"},
	})
	if err != nil {
		return "", err
	}
	rev := strings.TrimSpace(out)
	if rev == "" {
		return "", errors.New("git rev-parse returned no revision")
	}
	return rev, nil
}

// Synthesize runs cdk synth without environment context, which only builds the
// repository stack. It catches compile and wiring errors before any account is
// touched, and then checks that the shared template declares the outputs the
// CLI reads back after deploying it.
func (w *CDKWorkspace) Synthesize(ctx context.Context, revision string) error {
	w.logger.Info("synthesizing", zap.String("revision", revision))
	args := []string{"synth", "--quiet"}
	args = append(args, contextArgs(baseContext(w.cfg))...)
	if err := w.exec.Run(ctx, cmdexec.Command{
		Dir:  w.cfg.CdkPath(),
		Name: "cdk",
		Args: args,
	}); err != nil {
		return err
	}

	template := cfnvalidate.TemplatePath(w.cfg.CdkPath(), RepositoryStackName(w.cfg))
	if err := cfnvalidate.SynthesizedTemplate(template, sharedOutputs...); err != nil {
		return errors.Wrapf(err, "validating %s", RepositoryStackName(w.cfg))
	}
	return nil
}

// sharedOutputs are the outputs of the shared stack that later steps read.
var sharedOutputs = []string{
	bwcdkrepo.OutputCloneURLHTTP,
	bwcdkdynamo.OutputTableName,
	bwcdkstate.OutputLockBucket,
	bwcdkstate.OutputApprovalQueueURL,
}

// CredentialsFunc returns the process environment that lets the cdk CLI act
// in an account, e.g. AWS_ACCESS_KEY_ID for an assumed deploy role.
type CredentialsFunc func(ctx context.Context, account, region string) ([]string, error)

// CDKDeployer deploys an environment's stacks with the cdk CLI, passing the
// values resolved by earlier steps as context.
type CDKDeployer struct {
	cfg         *promocfg.Config
	exec        cmdexec.Runner
	credentials CredentialsFunc
	logger      *zap.Logger
}

func NewCDKDeployer(
	cfg *promocfg.Config, exec cmdexec.Runner, credentials CredentialsFunc, logger *zap.Logger,
) *CDKDeployer {
	return &CDKDeployer{cfg: cfg, exec: exec, credentials: credentials, logger: logger}
}

var _ StackDeployer = (*CDKDeployer)(nil)

// StackNames maps each of env's regions to its stack name.
func (d *CDKDeployer) StackNames(env promocfg.Environment) map[string]string {
	return EnvironmentStackNames(d.cfg.Qualifier, env)
}

func (d *CDKDeployer) Deploy(ctx context.Context, sd StackDeployment) error {
	env := sd.Environment
	creds, err := d.credentials(ctx, env.Account, env.Region)
	if err != nil {
		return errors.Wrapf(err, "credentials for %s", env.Account)
	}

	args := []string{"deploy", "--require-approval", "never"}
	args = append(args, contextArgs(DeploymentContext(d.cfg, sd))...)
	args = append(args, d.cfg.Qualifier+"*"+bwcdkutil.EnvironmentIdent(env.Name))

	d.logger.Info("deploying environment stacks",
		zap.String("environment", env.Name),
		zap.Any("stacks", d.StackNames(env)))
	return d.exec.Run(ctx, cmdexec.Command{
		Dir:  d.cfg.CdkPath(),
		Name: "cdk",
		Args: args,
		Env:  creds,
	})
}

// DeployRepository deploys the source repository stack into the orchestration account.
func (d *CDKDeployer) DeployRepository(ctx context.Context) error {
	creds, err := d.credentials(ctx, d.cfg.OrchestrationAccount, d.cfg.Region)
	if err != nil {
		return errors.Wrapf(err, "credentials for %s", d.cfg.OrchestrationAccount)
	}
	args := []string{"deploy", "--require-approval", "never"}
	args = append(args, contextArgs(baseContext(d.cfg))...)
	args = append(args, RepositoryStackName(d.cfg))
	return d.exec.Run(ctx, cmdexec.Command{
		Dir:  d.cfg.CdkPath(),
		Name: "cdk",
		Args: args,
		Env:  creds,
	})
}

// EnvironmentStackNames returns the stack name per region for env.
func EnvironmentStackNames(qualifier string, env promocfg.Environment) map[string]string {
	names := make(map[string]string, 2)
	for _, region := range env.Regions() {
		names[region] = bwcdkutil.DeploymentStackName(
			qualifier, bwcdkutil.RegionIdentFor(region), bwcdkutil.EnvironmentIdent(env.Name))
	}
	return names
}

func RepositoryStackName(cfg *promocfg.Config) string {
	return bwcdkutil.SharedStackName(cfg.Qualifier, bwcdkutil.RegionIdentFor(cfg.Region))
}

func baseContext(cfg *promocfg.Config) [][2]string {
	return [][2]string{
		{bwcdkutil.KeyQualifier, cfg.Qualifier},
		{bwcdkutil.KeyPrimaryRegion, cfg.Region},
		{bwcdkutil.KeyOrchestrationAccount, cfg.OrchestrationAccount},
	}
}

// DeploymentContext is the CDK context an environment stack is synthesized with.
func DeploymentContext(cfg *promocfg.Config, sd StackDeployment) [][2]string {
	env := sd.Environment
	kv := [][2]string{
		{bwcdkutil.KeyQualifier, cfg.Qualifier},
		{bwcdkutil.KeyPrimaryRegion, env.Region},
		{bwcdkutil.KeyOrchestrationAccount, cfg.OrchestrationAccount},
		{bwcdkutil.KeyEnvironment, env.Name},
		{bwcdkutil.KeyAccount, env.Account},
		{bwcdkutil.KeyParentDomain, env.ParentDomain},
		{bwcdkutil.KeySubdomain, env.Subdomain},
		{bwcdkutil.KeyHostedZoneID, sd.HostedZoneID},
		{bwcdkutil.KeyCertificateARN, sd.CertificateARN},
	}
	if env.SecondaryRegion != "" {
		kv = append(kv, [2]string{bwcdkutil.KeySecondaryRegion, env.SecondaryRegion})
	}
	return kv
}

func contextArgs(kv [][2]string) []string {
	args := make([]string, 0, 2*len(kv))
	for _, p := range kv {
		args = append(args, "-c", bwcdkutil.ContextPrefix+p[0]+"="+p[1])
	}
	return args
}

// CredentialsProvider adapts an account-scoped AWS config source to CredentialsFunc.
func CredentialsProvider(
	forAccount func(account, region string) aws.Config,
	envVars func(ctx context.Context, cfg aws.Config) ([]string, error),
) CredentialsFunc {
	return func(ctx context.Context, account, region string) ([]string, error) {
		return envVars(ctx, forAccount(account, region))
	}
}
