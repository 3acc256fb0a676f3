// Package cdkctx reads the CDK app's cdk.json and checks it against promote.toml.
package cdkctx

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
	"github.com/basewarphq/bwpromote/cmd/internal/promocfg"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
)

const bootstrapQualifierKey = "@aws-cdk/core:bootstrapQualifier"

type CDKContext struct {
	BootstrapQualifier   string
	Qualifier            string
	PrimaryRegion        string
	OrchestrationAccount string
}

// Load reads the promote-* keys from cdkDir/cdk.json. Keys that are absent are
// left empty; the pipeline passes them on the command line instead.
func Load(cdkDir string) (*CDKContext, error) {
	cdkJSON := filepath.Join(cdkDir, "cdk.json")
	data, err := os.ReadFile(cdkJSON)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", cdkJSON)
	}

	var cfg struct {
		Context map[string]json.RawMessage `json:"context"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", cdkJSON)
	}

	var c CDKContext
	for key, dst := range map[string]*string{
		bootstrapQualifierKey:                                       &c.BootstrapQualifier,
		bwcdkutil.ContextPrefix + bwcdkutil.KeyQualifier:            &c.Qualifier,
		bwcdkutil.ContextPrefix + bwcdkutil.KeyPrimaryRegion:        &c.PrimaryRegion,
		bwcdkutil.ContextPrefix + bwcdkutil.KeyOrchestrationAccount: &c.OrchestrationAccount,
	} {
		if *dst, err = getOptionalString(cfg.Context, key); err != nil {
			return nil, errors.Wrapf(err, "in %s", cdkJSON)
		}
	}
	if c.BootstrapQualifier == "" {
		return nil, errors.Newf("missing %s in %s", bootstrapQualifierKey, cdkJSON)
	}
	return &c, nil
}

// Check reports every value in cdk.json that disagrees with cfg.
func (c *CDKContext) Check(cfg *promocfg.Config) error {
	var msgs []string
	if c.BootstrapQualifier != cfg.Qualifier {
		msgs = append(msgs, fmt.Sprintf("%s is %q, promote.toml qualifier is %q",
			bootstrapQualifierKey, c.BootstrapQualifier, cfg.Qualifier))
	}
	for _, kv := range []struct{ key, got, want string }{
		{bwcdkutil.KeyQualifier, c.Qualifier, cfg.Qualifier},
		{bwcdkutil.KeyPrimaryRegion, c.PrimaryRegion, cfg.Region},
		{bwcdkutil.KeyOrchestrationAccount, c.OrchestrationAccount, cfg.OrchestrationAccount},
	} {
		if kv.got != "" && kv.got != kv.want {
			msgs = append(msgs, fmt.Sprintf("%s%s is %q, promote.toml has %q",
				bwcdkutil.ContextPrefix, kv.key, kv.got, kv.want))
		}
	}
	if len(msgs) > 0 {
		return promoerr.Configurationf("cdk.json disagrees with promote.toml:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}

// BootstrapBucket is the CDK asset bucket of a bootstrapped account and region.
func (c *CDKContext) BootstrapBucket(account, region string) string {
	return "cdk-" + c.BootstrapQualifier + "-assets-" + account + "-" + region
}

func getOptionalString(m map[string]json.RawMessage, key string) (string, error) {
	raw, ok := m[key]
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.Newf("context key %q must be a string", key)
	}
	return s, nil
}
