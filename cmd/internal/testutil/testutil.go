package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ValidConfig is a promote.toml accepted by promocfg.LoadFile: test owns the
// parent zone and trusts prod, prod delegates through test.
const ValidConfig = `
qualifier = "demo"
orchestration_account = "111111111111"
parent_domain = "example.com"
region = "eu-west-1"
cdk_dir = "infra/cdk"
state_table = "promote-runs"
lock_bucket = "promote-locks"

[retry]
base = "1ms"
cap = "5ms"
attempts = 3

[[environment]]
name = "test"
account = "222222222222"
subdomain = "test"
dns_role = "owner"
delegation_account = "333333333333"

[[environment]]
name = "prod"
account = "333333333333"
subdomain = "prod"
dns_role = "delegate"
delegation_account = "222222222222"
`

// Setup writes files into a fresh temp dir and returns its path.
func Setup(tb testing.TB, files map[string]string) string {
	tb.Helper()

	root := tb.TempDir()

	for relPath, content := range files {
		fullPath := filepath.Join(root, relPath)

		dir := filepath.Dir(fullPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			tb.Fatalf("creating directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0o600); err != nil {
			tb.Fatalf("writing file %s: %v", fullPath, err)
		}
	}

	return root
}

// ConfigWith returns ValidConfig with each old string replaced by its new value.
func ConfigWith(tb testing.TB, oldnew ...string) string {
	tb.Helper()

	if len(oldnew)%2 != 0 {
		tb.Fatalf("ConfigWith needs old/new pairs, got %d args", len(oldnew))
	}
	out := ValidConfig
	for i := 0; i < len(oldnew); i += 2 {
		if !strings.Contains(out, oldnew[i]) {
			tb.Fatalf("ConfigWith: %q not found in ValidConfig", oldnew[i])
		}
		out = strings.Replace(out, oldnew[i], oldnew[i+1], 1)
	}
	return out
}
