package bwcdkutil

import (
	"fmt"
	"strings"

	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// ContextPrefix prefixes every context key the app reads, e.g. "promote-qualifier".
const ContextPrefix = "promote-"

// Context keys, without the prefix.
const (
	KeyQualifier            = "qualifier"
	KeyPrimaryRegion        = "primary-region"
	KeySecondaryRegion      = "secondary-region"
	KeyOrchestrationAccount = "orchestration-account"
	KeyEnvironment          = "environment"
	KeyAccount              = "account"
	KeyParentDomain         = "parent-domain"
	KeySubdomain            = "subdomain"
	KeyHostedZoneID         = "hosted-zone-id"
	KeyCertificateARN       = "certificate-arn"
)

// CertificateRegion is where certificates used by CloudFront must be issued.
const CertificateRegion = "us-east-1"

// Scope-based convenience functions that retrieve Config from the construct tree.

// IsPrimaryRegion checks if the given region is the primary region.
func IsPrimaryRegion(scope constructs.Construct, region string) bool {
	return ConfigFromScope(scope).IsPrimaryRegion(region)
}

// IsPrimaryRegionStack checks if the given stack is in the primary region.
func IsPrimaryRegionStack(scope constructs.Construct, stack awscdk.Stack) bool {
	return ConfigFromScope(scope).IsPrimaryRegionStack(stack)
}

// AllRegions returns the primary region plus the secondary region, if any.
func AllRegions(scope constructs.Construct) []string {
	return ConfigFromScope(scope).AllRegions()
}

// Qualifier returns the CDK qualifier.
func Qualifier(scope constructs.Construct) string {
	return ConfigFromScope(scope).Qualifier
}

// PrimaryRegion returns the primary region.
func PrimaryRegion(scope constructs.Construct) string {
	return ConfigFromScope(scope).PrimaryRegion
}

// EnvironmentFromScope returns the environment being composed. It panics when
// the app was synthesized without environment context.
func EnvironmentFromScope(scope constructs.Construct) *EnvironmentConfig {
	env := ConfigFromScope(scope).Environment
	if env == nil {
		panic("bwcdkutil: no environment in context - set " + ContextPrefix + KeyEnvironment)
	}
	return env
}

// Config holds all CDK context values validated upfront.
// It centralizes context reading and validation to provide clear error messages.
type Config struct {
	Prefix               string `validate:"required"`
	Qualifier            string `validate:"required,max=10"`
	PrimaryRegion        string `validate:"required"`
	SecondaryRegion      string `validate:"omitempty,nefield=PrimaryRegion"`
	OrchestrationAccount string `validate:"required,numeric,len=12"`

	// Environment is nil when only the repository stack is synthesized.
	Environment *EnvironmentConfig
}

// EnvironmentConfig is one environment's deploy-time input. The hosted zone and
// certificate are created before the stacks are deployed and arrive here as
// plain identifiers, so nothing in the app waits on them.
type EnvironmentConfig struct {
	Name           string `validate:"required,oneof=test prod"`
	Account        string `validate:"required,numeric,len=12"`
	ParentDomain   string `validate:"required,fqdn"`
	Subdomain      string `validate:"required,hostname_rfc1123"`
	HostedZoneID   string `validate:"required"`
	CertificateARN string `validate:"required,startswith=arn:"`
}

// ZoneName is the environment's subdomain zone, e.g. "test.example.com".
func (e *EnvironmentConfig) ZoneName() string {
	return e.Subdomain + "." + e.ParentDomain
}

// SiteDomain is the name the content distribution answers on.
func (e *EnvironmentConfig) SiteDomain() string {
	return "www." + e.ZoneName()
}

// Ident is the deployment identifier of the environment's stacks.
func (e *EnvironmentConfig) Ident() string {
	return EnvironmentIdent(e.Name)
}

// NewConfig reads and validates all CDK context values.
// Returns an error if any required value is missing or invalid.
func NewConfig(scope constructs.Construct, acfg AppConfig) (*Config, error) {
	var readErrs []string
	p := acfg.Prefix

	cfg := &Config{Prefix: p}
	cfg.Qualifier, readErrs = readContextString(scope, p+KeyQualifier, readErrs)
	cfg.PrimaryRegion, readErrs = readContextString(scope, p+KeyPrimaryRegion, readErrs)
	cfg.OrchestrationAccount, readErrs = readContextString(scope, p+KeyOrchestrationAccount, readErrs)
	cfg.SecondaryRegion = readOptionalContextString(scope, p+KeySecondaryRegion)

	if cfg.PrimaryRegion != "" && !IsKnownRegion(cfg.PrimaryRegion) {
		readErrs = append(readErrs, fmt.Sprintf(
			"unknown primary region %q - add it to bwcdkutil.RegionIdents", cfg.PrimaryRegion))
	}
	if cfg.SecondaryRegion != "" && !IsKnownRegion(cfg.SecondaryRegion) {
		readErrs = append(readErrs, fmt.Sprintf(
			"unknown secondary region %q - add it to bwcdkutil.RegionIdents", cfg.SecondaryRegion))
	}

	if name := readOptionalContextString(scope, p+KeyEnvironment); name != "" {
		env := &EnvironmentConfig{Name: name}
		env.Account, readErrs = readContextString(scope, p+KeyAccount, readErrs)
		env.ParentDomain, readErrs = readContextString(scope, p+KeyParentDomain, readErrs)
		env.Subdomain, readErrs = readContextString(scope, p+KeySubdomain, readErrs)
		env.HostedZoneID, readErrs = readContextString(scope, p+KeyHostedZoneID, readErrs)
		env.CertificateARN, readErrs = readContextString(scope, p+KeyCertificateARN, readErrs)
		if region := arnRegion(env.CertificateARN); env.CertificateARN != "" && region != CertificateRegion {
			readErrs = append(readErrs, fmt.Sprintf(
				"certificate %s is in %q, CloudFront requires %s", env.CertificateARN, region, CertificateRegion))
		}
		cfg.Environment = env
	}

	if len(readErrs) > 0 {
		return nil, errors.Errorf("CDK context read errors:\n  - %s", strings.Join(readErrs, "\n  - "))
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := validate.Struct(cfg); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			msgs := make([]string, 0, len(validationErrs))
			for _, e := range validationErrs {
				msgs = append(msgs, formatValidationError(e))
			}
			return nil, errors.Errorf("CDK context validation errors:\n  - %s", strings.Join(msgs, "\n  - "))
		}
		return nil, errors.Errorf("CDK context validation failed: %w", err)
	}

	return cfg, nil
}

// AllRegions returns the primary region plus the secondary region, if any.
func (c *Config) AllRegions() []string {
	if c.SecondaryRegion == "" {
		return []string{c.PrimaryRegion}
	}
	return []string{c.PrimaryRegion, c.SecondaryRegion}
}

// RegionIdent returns the acronym identifier for a region.
func (c *Config) RegionIdent(region string) string {
	return RegionIdentFor(region)
}

// IsPrimaryRegion checks if the given region is the primary region.
func (c *Config) IsPrimaryRegion(region string) bool {
	return region == c.PrimaryRegion
}

// IsPrimaryRegionStack checks if the given stack is in the primary region.
func (c *Config) IsPrimaryRegionStack(stack awscdk.Stack) bool {
	return *stack.Region() == c.PrimaryRegion
}

// configContextKey is the well-known key used to store validated Config in the construct tree.
const configContextKey = "__bwcdkutil_config"

// StoreConfig stores a validated Config in the app's context so it can be retrieved
// anywhere in the construct tree via ConfigFromScope.
func StoreConfig(app awscdk.App, cfg *Config) {
	app.Node().SetContext(jsii.String(configContextKey), cfg)
}

// ConfigFromScope retrieves the validated Config from the construct tree.
// It panics if Config was not stored (i.e., SetupApp was not called).
func ConfigFromScope(scope constructs.Construct) *Config {
	val := scope.Node().TryGetContext(jsii.String(configContextKey))
	if val == nil {
		panic("bwcdkutil.Config not found in construct tree - was SetupApp or StoreConfig called?")
	}
	cfg, ok := val.(*Config)
	if !ok {
		panic(fmt.Sprintf("bwcdkutil.Config has unexpected type %T", val))
	}
	return cfg
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "max":
		return fmt.Sprintf("%s exceeds maximum length of %s (got %q)", e.Field(), e.Param(), e.Value())
	case "fqdn":
		return fmt.Sprintf("%s must be a valid domain name (got %q)", e.Field(), e.Value())
	case "numeric", "len":
		return fmt.Sprintf("%s must be a 12 digit account id (got %q)", e.Field(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got %q)", e.Field(), e.Param(), e.Value())
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s failed validation %q", e.Field(), e.Tag())
	}
}

// arnRegion returns the region field of an ARN, or "" when arn is malformed.
func arnRegion(arn string) string {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) < 6 {
		return ""
	}
	return parts[3]
}
