package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
)

var version = "dev"

type App struct {
	Version kong.VersionFlag `help:"Show version."`

	Doctor  DoctorCmd  `cmd:"" help:"Check required tools and that cdk.json matches promote.toml."`
	Setup   SetupCmd   `cmd:"" help:"Deploy the shared stack (repository, run table, lock bucket, approval queue)."`
	RepoURL RepoURLCmd `cmd:"" name:"repo-url" help:"Print the HTTPS clone URL of the source repository."`

	Run     RunCmd     `cmd:"" help:"Start a promotion run from the current revision."`
	Resume  ResumeCmd  `cmd:"" help:"Continue a run waiting at the approval gate."`
	Approve ApproveCmd `cmd:"" help:"Approve promotion of a waiting run to the next environment."`
	Status  StatusCmd  `cmd:"" help:"Show the state of a run."`

	Delegate    DelegateCmd    `cmd:"" help:"Create and delegate an environment's subdomain zone."`
	Certificate CertificateCmd `cmd:"" help:"Issue an environment's certificate and publish its ARN."`
	Param       struct {
		Get ParamGetCmd `cmd:"" help:"Read a bridged parameter, retrying until it is visible."`
		Put ParamPutCmd `cmd:"" help:"Write a bridged parameter."`
	} `cmd:"" help:"Parameter bridge commands."`
	Lock struct {
		Status  LockStatusCmd  `cmd:"" help:"Show who holds an environment's deploy lock."`
		Release LockReleaseCmd `cmd:"" help:"Force-release an environment's deploy lock."`
	} `cmd:"" help:"Environment lock commands."`
}

// configLoader reads promote.toml. Commands that need the config get it
// through kong's provider binding, so parsing and help work anywhere.
type configLoader func() (*promocfg.Config, error)

func newParser(
	app *App, ctx context.Context, load configLoader, options ...kong.Option,
) (*kong.Kong, error) {
	return kong.New(app, append([]kong.Option{
		kong.Name("promote"),
		kong.Description("Promote a revision through test and prod."),
		kong.Vars{"version": version},
		kong.Bind(load),
		kong.BindToProvider(func() (*promocfg.Config, error) { return load() }),
		kong.BindTo(ctx, (*context.Context)(nil)),
	}, options...)...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var app App
	parser, err := newParser(&app, ctx, promocfg.Load)
	if err != nil {
		panic(err)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := kctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
