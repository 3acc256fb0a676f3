package pipeline_test

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/basewarphq/bwpromote/cmd/internal/cmdexec"
	"github.com/basewarphq/bwpromote/cmd/internal/pipeline"
	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
	"github.com/basewarphq/bwpromote/cmd/internal/testutil"
	"go.uber.org/zap"
)

type recordingRunner struct {
	commands []cmdexec.Command
	output   string
}

func (r *recordingRunner) Output(_ context.Context, c cmdexec.Command) (string, error) {
	r.commands = append(r.commands, c)
	return r.output, nil
}

func (r *recordingRunner) Run(_ context.Context, c cmdexec.Command) error {
	r.commands = append(r.commands, c)
	return nil
}

func loadConfig(t *testing.T, toml string) *promocfg.Config {
	t.Helper()
	root := testutil.Setup(t, map[string]string{"promote.toml": toml})
	cfg, err := promocfg.LoadFile(filepath.Join(root, "promote.toml"))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestWorkspaceRevision(t *testing.T) {
	t.Parallel()
	cfg := loadConfig(t, testutil.ValidConfig)
	exec := &recordingRunner{output: "0123abcd\n"}

	rev, err := pipeline.NewCDKWorkspace(cfg, exec, zap.NewNop()).Revision(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rev != "0123abcd" {
		t.Errorf("Revision = %q", rev)
	}
	c := exec.commands[0]
	if c.Name != "git" || c.Dir != cfg.Root || !slices.Equal(c.Args, []string{"rev-parse", "HEAD"}) {
		t.Errorf("command = %+v", c)
	}
}

func TestWorkspaceRevisionEmpty(t *testing.T) {
	t.Parallel()
	cfg := loadConfig(t, testutil.ValidConfig)
	_, err := pipeline.NewCDKWorkspace(cfg, &recordingRunner{output: "\n"}, zap.NewNop()).
		Revision(context.Background())
	if err == nil {
		t.Error("expected an error for an empty revision")
	}
}

const sharedTemplate = `{
  "Resources": {"Repo": {"Type": "AWS::CodeCommit::Repository"}},
  "Outputs": {
    "RepositoryHttp": {"Value": "https://git"},
    "RunsTableName": {"Value": "demo-runs-table"},
    "LockBucketName": {"Value": "demo-locks"},
    "ApprovalQueueUrl": {"Value": "https://sqs"}
  }
}`

func loadConfigWithFiles(t *testing.T, files map[string]string) *promocfg.Config {
	t.Helper()
	files["promote.toml"] = testutil.ValidConfig
	root := testutil.Setup(t, files)
	cfg, err := promocfg.LoadFile(filepath.Join(root, "promote.toml"))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestWorkspaceSynthesize(t *testing.T) {
	t.Parallel()
	cfg := loadConfigWithFiles(t, map[string]string{
		"infra/cdk/cdk.out/demoEuw1Shared.template.json": sharedTemplate,
	})
	exec := &recordingRunner{}

	if err := pipeline.NewCDKWorkspace(cfg, exec, zap.NewNop()).Synthesize(context.Background(), "abc"); err != nil {
		t.Fatal(err)
	}
	c := exec.commands[0]
	if c.Name != "cdk" || c.Dir != filepath.Join(cfg.Root, "infra/cdk") {
		t.Errorf("command = %+v", c)
	}
	args := strings.Join(c.Args, " ")
	for _, want := range []string{
		"synth --quiet",
		"-c promote-qualifier=demo",
		"-c promote-primary-region=eu-west-1",
		"-c promote-orchestration-account=111111111111",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
	if strings.Contains(args, "promote-environment") {
		t.Error("synth must not select an environment")
	}
}

func TestWorkspaceSynthesizeRejectsIncompleteTemplate(t *testing.T) {
	t.Parallel()
	cfg := loadConfigWithFiles(t, map[string]string{
		"infra/cdk/cdk.out/demoEuw1Shared.template.json": `{"Resources": {"Repo": {"Type": "AWS::CodeCommit::Repository"}}}`,
	})

	err := pipeline.NewCDKWorkspace(cfg, &recordingRunner{}, zap.NewNop()).Synthesize(context.Background(), "abc")
	if err == nil || !strings.Contains(err.Error(), "RepositoryHttp") {
		t.Errorf("got %v, want an error naming the missing output", err)
	}
}

func TestDeployerPassesResolvedValues(t *testing.T) {
	t.Parallel()
	cfg := loadConfig(t, testutil.ConfigWith(t, `region = "eu-west-1"`, "region = \"eu-west-1\"\nsecondary_region = \"eu-central-1\""))
	exec := &recordingRunner{}

	var credsFor []string
	creds := func(_ context.Context, account, region string) ([]string, error) {
		credsFor = append(credsFor, account+"/"+region)
		return []string{"AWS_ACCESS_KEY_ID=AKIA"}, nil
	}
	deployer := pipeline.NewCDKDeployer(cfg, exec, creds, zap.NewNop())

	env, err := cfg.Environment("prod")
	if err != nil {
		t.Fatal(err)
	}
	err = deployer.Deploy(context.Background(), pipeline.StackDeployment{
		Environment:    env,
		HostedZoneID:   "Z0PROD",
		HostedZoneName: "prod.example.com",
		CertificateARN: "arn:aws:acm:us-east-1:333333333333:certificate/abc",
	})
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(credsFor, []string{"333333333333/eu-west-1"}) {
		t.Errorf("credentials requested for %v", credsFor)
	}
	c := exec.commands[0]
	if !slices.Equal(c.Env, []string{"AWS_ACCESS_KEY_ID=AKIA"}) {
		t.Errorf("Env = %v", c.Env)
	}
	args := strings.Join(c.Args, " ")
	for _, want := range []string{
		"deploy --require-approval never",
		"-c promote-environment=prod",
		"-c promote-account=333333333333",
		"-c promote-parent-domain=example.com",
		"-c promote-subdomain=prod",
		"-c promote-hosted-zone-id=Z0PROD",
		"-c promote-certificate-arn=arn:aws:acm:us-east-1:333333333333:certificate/abc",
		"-c promote-secondary-region=eu-central-1",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
	if last := c.Args[len(c.Args)-1]; last != "demo*Prod" {
		t.Errorf("stack selector = %q", last)
	}

	names := deployer.StackNames(env)
	if names["eu-west-1"] != "demoEuw1Prod" || names["eu-central-1"] != "demoEuc1Prod" {
		t.Errorf("StackNames = %v", names)
	}
}

func TestDeployRepository(t *testing.T) {
	t.Parallel()
	cfg := loadConfig(t, testutil.ValidConfig)
	exec := &recordingRunner{}

	var account string
	creds := func(_ context.Context, acct, _ string) ([]string, error) {
		account = acct
		return nil, nil
	}
	if err := pipeline.NewCDKDeployer(cfg, exec, creds, zap.NewNop()).DeployRepository(context.Background()); err != nil {
		t.Fatal(err)
	}
	if account != "111111111111" {
		t.Errorf("deployed with credentials for %s", account)
	}
	c := exec.commands[0]
	if last := c.Args[len(c.Args)-1]; last != "demoEuw1Shared" {
		t.Errorf("stack = %q", last)
	}
	if got := pipeline.RepositoryStackName(cfg); got != "demoEuw1Shared" {
		t.Errorf("RepositoryStackName = %q", got)
	}
}
