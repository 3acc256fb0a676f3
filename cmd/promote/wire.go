package main

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/basewarphq/bwpromote/cmd/internal/awsclient"
	"github.com/basewarphq/bwpromote/cmd/internal/certprov"
	"github.com/basewarphq/bwpromote/cmd/internal/cfnread"
	"github.com/basewarphq/bwpromote/cmd/internal/cmdexec"
	"github.com/basewarphq/bwpromote/cmd/internal/delegation"
	"github.com/basewarphq/bwpromote/cmd/internal/envlock"
	"github.com/basewarphq/bwpromote/cmd/internal/logging"
	"github.com/basewarphq/bwpromote/cmd/internal/notify"
	"github.com/basewarphq/bwpromote/cmd/internal/paramstore"
	"github.com/basewarphq/bwpromote/cmd/internal/pipeline"
	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
	"github.com/basewarphq/bwpromote/cmd/internal/runstore"
	"github.com/basewarphq/bwpromote/cmd/internal/tracing"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const stopTimeout = 10 * time.Second

// deps is what the commands pull out of the graph.
type deps struct {
	fx.In

	Config       *promocfg.Config
	Logger       *zap.Logger
	Tracer       trace.Tracer
	Factory      *awsclient.Factory
	Runner       *pipeline.Runner
	Deployer     *pipeline.CDKDeployer
	Environments *environments
	Locks        *envlock.Store
}

func module(cfg *promocfg.Config) fx.Option {
	return fx.Options(
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideTracerProvider,
			func(tp *sdktrace.TracerProvider) trace.TracerProvider { return tp },
			tracing.Propagator,
			func(tp trace.TracerProvider) trace.Tracer { return tracing.Tracer(tp) },
			provideAWSConfig,
			provideFactory,
			provideEnvironments,
			provideLocks,
			fx.Annotate(provideStore, fx.As(new(pipeline.Store))),
			provideNotifier,
			fx.Annotate(provideWorkspace, fx.As(new(pipeline.Workspace))),
			provideDeployer,
			provideRunner,
		),
	)
}

// withDeps builds the dependency graph, runs fn and stops the graph again.
func withDeps(ctx context.Context, cfg *promocfg.Config, fn func(ctx context.Context, d deps) error) error {
	var d deps
	app := fx.New(module(cfg), fx.Populate(&d))
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}

	runErr := fn(ctx, d)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return errors.CombineErrors(runErr, err)
	}
	return runErr
}

func provideLogger(lc fx.Lifecycle, cfg *promocfg.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() {
		_ = logger.Sync()
	}))
	return logger, nil
}

func provideTracerProvider(lc fx.Lifecycle, cfg *promocfg.Config) (*sdktrace.TracerProvider, error) {
	tp, err := tracing.New(context.Background(), cfg.OtelExporter)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func(ctx context.Context) error {
		return tracing.Shutdown(ctx, tp)
	}))
	return tp, nil
}

func provideAWSConfig(tp trace.TracerProvider, prop propagation.TextMapPropagator) (aws.Config, error) {
	cfg, err := awsclient.LoadBase(tp, prop)
	if err != nil {
		return cfg, errors.Wrap(err, "loading AWS configuration")
	}
	return cfg, nil
}

func provideFactory(base aws.Config, cfg *promocfg.Config) *awsclient.Factory {
	return awsclient.NewFactory(base, cfg.OrchestrationAccount, cfg.DeployRoleName)
}

func provideLocks(f *awsclient.Factory, cfg *promocfg.Config) *envlock.Store {
	return envlock.NewStore(s3.NewFromConfig(f.Orchestration(cfg.Region)), cfg.LockBucket)
}

func provideStore(f *awsclient.Factory, cfg *promocfg.Config) *runstore.Dynamo {
	return runstore.NewDynamo(dynamodb.NewFromConfig(f.Orchestration(cfg.Region)), cfg.StateTable)
}

func provideNotifier(f *awsclient.Factory, cfg *promocfg.Config, logger *zap.Logger) pipeline.Notifier {
	if cfg.ApprovalQueueURL == "" {
		return notify.Nop{Logger: logger}
	}
	return notify.NewQueue(sqs.NewFromConfig(f.Orchestration(cfg.Region)), cfg.ApprovalQueueURL, logger)
}

func provideWorkspace(cfg *promocfg.Config, logger *zap.Logger) *pipeline.CDKWorkspace {
	return pipeline.NewCDKWorkspace(cfg, cmdexec.Exec{}, logger)
}

func provideDeployer(f *awsclient.Factory, cfg *promocfg.Config, logger *zap.Logger) *pipeline.CDKDeployer {
	creds := pipeline.CredentialsProvider(f.ForAccount, awsclient.EnvVars)
	return pipeline.NewCDKDeployer(cfg, cmdexec.Exec{}, creds, logger)
}

func provideRunner(
	cfg *promocfg.Config,
	store pipeline.Store,
	locks *envlock.Store,
	notifier pipeline.Notifier,
	workspace pipeline.Workspace,
	envs *environments,
	logger *zap.Logger,
	tracer trace.Tracer,
) *pipeline.Runner {
	return pipeline.NewRunner(pipeline.Deps{
		Config:    cfg,
		Store:     store,
		Locker:    locks,
		Notifier:  notifier,
		Workspace: workspace,
		Services:  envs.Services,
		Logger:    logger,
		Tracer:    tracer,
	})
}

// environments builds the account-scoped collaborators of each environment.
type environments struct {
	cfg      *promocfg.Config
	factory  *awsclient.Factory
	deployer *pipeline.CDKDeployer
	logger   *zap.Logger
}

func provideEnvironments(
	cfg *promocfg.Config, f *awsclient.Factory, deployer *pipeline.CDKDeployer, logger *zap.Logger,
) *environments {
	return &environments{cfg: cfg, factory: f, deployer: deployer, logger: logger}
}

// envServices are the concrete collaborators for one environment.
type envServices struct {
	env         promocfg.Environment
	route53     *route53.Client
	engine      *delegation.Engine
	bridge      *paramstore.Bridge
	provisioner *certprov.Provisioner
	outputs     *cfnread.Reader
}

func (e *environments) forEnvironment(name string) (*envServices, error) {
	env, err := e.cfg.Environment(name)
	if err != nil {
		return nil, err
	}
	cfg := e.cfg
	log := e.logger.With(zap.String("environment", env.Name))
	acct := e.factory.ForAccount(env.Account, env.Region)

	r53 := route53.NewFromConfig(acct)
	engine := delegation.New(delegation.Clients{
		Route53: r53,
		IAM:     iam.NewFromConfig(acct),
		AssumeOwner: func(ownerAccount, roleName string) delegation.Route53API {
			return route53.NewFromConfig(e.factory.AssumeRole(acct, ownerAccount, roleName, env.Region))
		},
	}, cfg.DelegationRoleName, log)

	bridge := paramstore.New(func(region string) paramstore.SSMAPI {
		return ssm.NewFromConfig(e.factory.ForAccount(env.Account, region))
	}, paramstore.Backoff{
		Base:     cfg.Retry.Base.Duration,
		Cap:      cfg.Retry.Cap.Duration,
		Attempts: cfg.Retry.Attempts,
	}, log)

	provisioner := certprov.New(
		acm.NewFromConfig(e.factory.ForAccount(env.Account, cfg.CertificateRegion)),
		r53,
		bridge,
		certprov.Options{
			Region:            cfg.CertificateRegion,
			ValidationTimeout: cfg.ValidationTimeout.Duration,
		},
		log)

	outputs := cfnread.NewReader(func(region string) cfnread.CloudFormationAPI {
		return cloudformation.NewFromConfig(e.factory.ForAccount(env.Account, region))
	})

	return &envServices{
		env:         env,
		route53:     r53,
		engine:      engine,
		bridge:      bridge,
		provisioner: provisioner,
		outputs:     outputs,
	}, nil
}

// Services is the pipeline.ServicesFunc backed by the real AWS clients.
func (e *environments) Services(env promocfg.Environment) (*pipeline.Services, error) {
	s, err := e.forEnvironment(env.Name)
	if err != nil {
		return nil, err
	}
	return &pipeline.Services{
		Zones:        s.engine,
		Certificates: s.provisioner,
		Parameters:   s.bridge,
		Stacks:       e.deployer,
		Outputs:      s.outputs,
	}, nil
}
