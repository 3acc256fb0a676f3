package delegation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"

	"github.com/basewarphq/bwpromote/cmd/internal/awsclient"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
)

const (
	ActionChangeRecordSets = "route53:ChangeResourceRecordSets"
	ActionListZonesByName  = "route53:ListHostedZonesByName"
)

const (
	inlinePolicyName = "delegation"
	policyVersion    = "2012-10-17"
	assumeRoleAction = "sts:AssumeRole"
	anyResource      = "*"
)

var accountPattern = regexp.MustCompile(`^[0-9]{12}$`)

// Statement is one allow statement of the delegation role's permissions.
type Statement struct {
	Actions   []string
	Resources []string
}

// Trust is the cross-account role in the parent zone owner's account.
type Trust struct {
	RoleName         string
	TrustedAccount   string
	ParentZoneDomain string
	Statements       []Statement
}

// ZoneARN is the ARN of a Route53 hosted zone. Route53 is global, so region
// and account are empty.
func ZoneARN(zoneID string) string {
	return fmt.Sprintf("arn:%s:route53:::hostedzone/%s", awsclient.Partition, zoneID)
}

// NewTrust returns the least-privilege trust for trustedAccount: record changes
// on the parent zone and zone lookup by name, nothing else.
func NewTrust(roleName, trustedAccount string, parent HostedZone) Trust {
	return Trust{
		RoleName:         roleName,
		TrustedAccount:   trustedAccount,
		ParentZoneDomain: parent.Name,
		Statements: []Statement{
			{Actions: []string{ActionChangeRecordSets}, Resources: []string{ZoneARN(parent.ID)}},
			{Actions: []string{ActionListZonesByName}, Resources: []string{anyResource}},
		},
	}
}

// AllowedActions maps every action the trust may grant to the only resource it
// may be granted on.
func AllowedActions(parentZoneID string) map[string]string {
	return map[string]string{
		ActionChangeRecordSets: ZoneARN(parentZoneID),
		ActionListZonesByName:  anyResource,
	}
}

// ValidateTrust rejects a trust that names anything but a single account
// principal or grants more than AllowedActions.
func ValidateTrust(t Trust, parentZoneID string) error {
	if !accountPattern.MatchString(t.TrustedAccount) {
		return errors.Mark(
			errors.Newf("trusted principal %q is not a single account id", t.TrustedAccount),
			promoerr.ErrTrustViolation)
	}
	if t.RoleName == "" {
		return errors.Mark(errors.New("delegation role has no name"), promoerr.ErrTrustViolation)
	}

	allowed := AllowedActions(parentZoneID)
	granted := make(map[string]bool, len(allowed))
	for _, st := range t.Statements {
		if len(st.Actions) == 0 || len(st.Resources) == 0 {
			return errors.Mark(errors.New("delegation statement without actions or resources"),
				promoerr.ErrTrustViolation)
		}
		for _, action := range st.Actions {
			resource, ok := allowed[action]
			if !ok {
				return errors.Mark(
					errors.Newf("action %s is outside the delegation allowlist", action),
					promoerr.ErrTrustViolation)
			}
			for _, r := range st.Resources {
				if r != resource {
					return errors.Mark(
						errors.Newf("action %s may only target %s, got %s", action, resource, r),
						promoerr.ErrTrustViolation)
				}
			}
			granted[action] = true
		}
	}
	if len(granted) != len(allowed) {
		missing := make([]string, 0, len(allowed))
		for action := range allowed {
			if !granted[action] {
				missing = append(missing, action)
			}
		}
		slices.Sort(missing)
		return errors.Mark(
			errors.Newf("delegation trust does not grant %v", missing),
			promoerr.ErrTrustViolation)
	}
	return nil
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect    string            `json:"Effect"`
	Principal map[string]string `json:"Principal,omitempty"`
	Action    []string          `json:"Action"`
	Resource  []string          `json:"Resource,omitempty"`
}

// AssumeRolePolicy renders the trust relationship naming only the trusted account.
func (t Trust) AssumeRolePolicy() (string, error) {
	return render(policyDocument{
		Version: policyVersion,
		Statement: []policyStatement{{
			Effect:    "Allow",
			Principal: map[string]string{"AWS": awsclient.AccountPrincipalARN(t.TrustedAccount)},
			Action:    []string{assumeRoleAction},
		}},
	})
}

// PermissionsPolicy renders the inline policy attached to the role.
func (t Trust) PermissionsPolicy() (string, error) {
	doc := policyDocument{Version: policyVersion}
	for _, st := range t.Statements {
		doc.Statement = append(doc.Statement, policyStatement{
			Effect:   "Allow",
			Action:   st.Actions,
			Resource: st.Resources,
		})
	}
	return render(doc)
}

func (t Trust) description() string {
	return fmt.Sprintf("Lets account %s write the delegation record for its subdomain of %s",
		t.TrustedAccount, t.ParentZoneDomain)
}

func render(doc policyDocument) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, "rendering policy document")
	}
	return string(b), nil
}
