package promocfg_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/basewarphq/bwpromote/cmd/internal/testutil"
	"github.com/cockroachdb/errors"
)

func load(t *testing.T, content string) (*promocfg.Config, error) {
	t.Helper()
	root := testutil.Setup(t, map[string]string{"promote.toml": content})
	return promocfg.LoadFile(filepath.Join(root, "promote.toml"))
}

func TestLoadFileValid(t *testing.T) {
	t.Parallel()
	cfg, err := load(t, testutil.ValidConfig)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.CertificateRegion != promocfg.DefaultCertificateRegion {
		t.Errorf("CertificateRegion = %q, want default", cfg.CertificateRegion)
	}
	if cfg.DelegationRoleName != promocfg.DefaultDelegationRoleName {
		t.Errorf("DelegationRoleName = %q, want default", cfg.DelegationRoleName)
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.Base.Duration != time.Millisecond {
		t.Errorf("Retry = %+v, want attempts 3 base 1ms", cfg.Retry)
	}
	if cfg.ValidationTimeout.Duration != 45*time.Minute {
		t.Errorf("ValidationTimeout = %v, want 45m", cfg.ValidationTimeout.Duration)
	}
	if !strings.HasSuffix(cfg.CdkPath(), filepath.Join("infra", "cdk")) {
		t.Errorf("CdkPath = %q", cfg.CdkPath())
	}
}

func TestEnvironmentResolution(t *testing.T) {
	t.Parallel()
	cfg, err := load(t, testutil.ValidConfig)
	if err != nil {
		t.Fatal(err)
	}

	env, err := cfg.Environment("test")
	if err != nil {
		t.Fatal(err)
	}
	if env.Region != "eu-west-1" {
		t.Errorf("Region = %q, want inherited eu-west-1", env.Region)
	}
	if env.FQDN() != "test.example.com" {
		t.Errorf("FQDN = %q", env.FQDN())
	}
	if got := env.Regions(); len(got) != 1 {
		t.Errorf("Regions = %v, want only the operating region", got)
	}

	ordered := cfg.Ordered()
	if len(ordered) != 2 || ordered[0].Name != "test" || ordered[1].Name != "prod" {
		t.Errorf("Ordered = %+v", ordered)
	}

	_, err = cfg.Environment("staging")
	if !errors.Is(err, promoerr.ErrConfiguration) {
		t.Errorf("unknown environment: got %v, want configuration error", err)
	}
}

func TestLoadFileRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content func(t *testing.T) string
		wantMsg string
	}{
		{
			name: "missing parent domain",
			content: func(t *testing.T) string {
				return testutil.ConfigWith(t, `parent_domain = "example.com"`, ``)
			},
			wantMsg: "ParentDomain is required",
		},
		{
			name: "short account",
			content: func(t *testing.T) string {
				return testutil.ConfigWith(t, `account = "222222222222"`, `account = "2222"`)
			},
			wantMsg: "must have length 12",
		},
		{
			name: "unknown dns role",
			content: func(t *testing.T) string {
				return testutil.ConfigWith(t, `dns_role = "delegate"`, `dns_role = "secondary"`)
			},
			wantMsg: "must be one of [owner delegate]",
		},
		{
			name: "two owners",
			content: func(t *testing.T) string {
				return testutil.ConfigWith(t, `dns_role = "delegate"`, `dns_role = "owner"`)
			},
			wantMsg: "at most one environment may own the parent zone",
		},
		{
			name: "owner trusts wrong account",
			content: func(t *testing.T) string {
				return testutil.ConfigWith(t, `delegation_account = "333333333333"`, `delegation_account = "444444444444"`)
			},
			wantMsg: "owns the parent zone but trusts 444444444444",
		},
		{
			name: "reversed order",
			content: func(t *testing.T) string {
				return testutil.ConfigWith(t,
					`name = "test"`, `name = "tmp"`,
					`name = "prod"`, `name = "test"`,
					`name = "tmp"`, `name = "prod"`)
			},
			wantMsg: "promotion order",
		},
		{
			name: "owner promoted after delegate",
			content: func(t *testing.T) string {
				return testutil.ConfigWith(t,
					`dns_role = "owner"`, `dns_role = "swap"`,
					`dns_role = "delegate"`, `dns_role = "owner"`,
					`dns_role = "swap"`, `dns_role = "delegate"`)
			},
			wantMsg: "environment prod owns the parent zone but is promoted after delegate test",
		},
		{
			name: "shared subdomain",
			content: func(t *testing.T) string {
				return testutil.ConfigWith(t, `subdomain = "prod"`, `subdomain = "test"`)
			},
			wantMsg: "environments test and prod share subdomain test",
		},
		{
			name: "operating in certificate region",
			content: func(t *testing.T) string {
				return testutil.ConfigWith(t, `region = "eu-west-1"`, `region = "us-east-1"`)
			},
			wantMsg: "operates in the certificate region",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := load(t, tt.content(t))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, promoerr.ErrConfiguration) {
				t.Errorf("error not marked as configuration error: %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	t.Parallel()
	content := testutil.ConfigWith(t,
		`qualifier = "demo"`, `qualifier = "much-too-long-qualifier"`,
		`orchestration_account = "111111111111"`, `orchestration_account = "abc"`,
	)
	_, err := load(t, content)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"Qualifier exceeds maximum length", "OrchestrationAccount must be numeric"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err.Error(), want)
		}
	}
}

func TestLoadFileMalformed(t *testing.T) {
	t.Parallel()
	_, err := load(t, "qualifier = [")
	if !errors.Is(err, promoerr.ErrConfiguration) {
		t.Errorf("got %v, want configuration error", err)
	}
}
