package delegation_test

import (
	"encoding/json"
	"testing"

	"github.com/basewarphq/bwpromote/cmd/internal/delegation"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
	"pgregory.net/rapid"
)

func TestNewTrustIsLeastPrivilege(t *testing.T) {
	t.Parallel()
	parent := delegation.HostedZone{Name: "example.com", ID: "Z123"}
	trust := delegation.NewTrust("ZoneDelegationRole", "222222222222", parent)

	if err := delegation.ValidateTrust(trust, parent.ID); err != nil {
		t.Fatal(err)
	}

	want := map[string]string{
		"route53:ChangeResourceRecordSets": "arn:aws:route53:::hostedzone/Z123",
		"route53:ListHostedZonesByName":    "*",
	}
	got := make(map[string]string)
	for _, st := range trust.Statements {
		for _, a := range st.Actions {
			got[a] = st.Resources[0]
		}
	}
	for action, resource := range want {
		if got[action] != resource {
			t.Errorf("%s on %q, want %q", action, got[action], resource)
		}
	}
	if len(got) != len(want) {
		t.Errorf("trust grants %v, want exactly %v", got, want)
	}
}

func TestValidateTrustRejects(t *testing.T) {
	t.Parallel()
	parent := delegation.HostedZone{Name: "example.com", ID: "Z123"}
	base := func() delegation.Trust { return delegation.NewTrust("ZoneDelegationRole", "222222222222", parent) }

	tests := []struct {
		name   string
		mutate func(*delegation.Trust)
	}{
		{"wildcard principal", func(tr *delegation.Trust) { tr.TrustedAccount = "*" }},
		{"extra action", func(tr *delegation.Trust) {
			tr.Statements = append(tr.Statements, delegation.Statement{
				Actions: []string{"route53:DeleteHostedZone"}, Resources: []string{"*"},
			})
		}},
		{"record changes on any zone", func(tr *delegation.Trust) {
			tr.Statements[0].Resources = []string{"*"}
		}},
		{"record changes on another zone", func(tr *delegation.Trust) {
			tr.Statements[0].Resources = []string{delegation.ZoneARN("ZOTHER")}
		}},
		{"missing list permission", func(tr *delegation.Trust) {
			tr.Statements = tr.Statements[:1]
		}},
		{"empty role name", func(tr *delegation.Trust) { tr.RoleName = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			trust := base()
			tt.mutate(&trust)
			err := delegation.ValidateTrust(trust, parent.ID)
			if !errors.Is(err, promoerr.ErrTrustViolation) {
				t.Errorf("got %v, want ErrTrustViolation", err)
			}
		})
	}
}

func TestAssumeRolePolicyNamesOnlyTrustedAccount(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(rt *rapid.T) {
		account := rapid.StringMatching(`[0-9]{12}`).Draw(rt, "account")
		zoneID := rapid.StringMatching(`Z[A-Z0-9]{6,20}`).Draw(rt, "zoneID")
		trust := delegation.NewTrust("ZoneDelegationRole", account, delegation.HostedZone{Name: "example.com", ID: zoneID})

		if err := delegation.ValidateTrust(trust, zoneID); err != nil {
			rt.Fatal(err)
		}
		doc, err := trust.AssumeRolePolicy()
		if err != nil {
			rt.Fatal(err)
		}
		var parsed struct {
			Statement []struct {
				Principal map[string]string
			}
		}
		if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
			rt.Fatal(err)
		}
		if len(parsed.Statement) != 1 || len(parsed.Statement[0].Principal) != 1 {
			rt.Fatalf("assume-role policy has extra principals: %s", doc)
		}
		if got := parsed.Statement[0].Principal["AWS"]; got != "arn:aws:iam::"+account+":root" {
			rt.Fatalf("principal = %q", got)
		}
	})
}
