package promocfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap/zapcore"
)

const configFile = "promote.toml"

const (
	DefaultCertificateRegion  = "us-east-1"
	DefaultDeployRoleName     = "PromotionDeployRole"
	DefaultDelegationRoleName = "ZoneDelegationRole"
	DefaultApprovalAction     = "approveToProduction"
)

// Environment names accepted by the pipeline, in promotion order.
const (
	EnvTest = "test"
	EnvProd = "prod"
)

type Config struct {
	Root string `toml:"-"`

	Qualifier            string `toml:"qualifier" validate:"required,max=10"`
	OrchestrationAccount string `toml:"orchestration_account" validate:"required,numeric,len=12"`
	ParentDomain         string `toml:"parent_domain" validate:"required,fqdn"`
	Region               string `toml:"region" validate:"required"`
	SecondaryRegion      string `toml:"secondary_region" validate:"omitempty,nefield=Region"`
	CertificateRegion    string `toml:"certificate_region" validate:"required"`

	DeployRoleName     string `toml:"deploy_role_name" validate:"required"`
	DelegationRoleName string `toml:"delegation_role_name" validate:"required"`
	ApprovalAction     string `toml:"approval_action" validate:"required"`

	CdkDir           string `toml:"cdk_dir" validate:"required"`
	StateTable       string `toml:"state_table" validate:"required"`
	LockBucket       string `toml:"lock_bucket" validate:"required"`
	ApprovalQueueURL string `toml:"approval_queue_url" validate:"omitempty,url"`

	LogLevel     zapcore.Level `toml:"-"`
	OtelExporter string        `toml:"otel_exporter" validate:"omitempty,oneof=xrayudp stdout none"`

	Retry             RetryConfig `toml:"retry"`
	ValidationTimeout Duration    `toml:"validation_timeout"`
	ApprovalPoll      Duration    `toml:"approval_poll"`

	Environments []EnvironmentConfig `toml:"environment" validate:"required,len=2,dive"`
}

// RetryConfig bounds the cross-region parameter read.
type RetryConfig struct {
	Base     Duration `toml:"base"`
	Cap      Duration `toml:"cap"`
	Attempts uint64   `toml:"attempts" validate:"min=1"`
}

type EnvironmentConfig struct {
	Name              string `toml:"name" validate:"required,oneof=test prod"`
	Account           string `toml:"account" validate:"required,numeric,len=12"`
	Region            string `toml:"region"`
	SecondaryRegion   string `toml:"secondary_region"`
	Subdomain         string `toml:"subdomain" validate:"omitempty,hostname_rfc1123"`
	DNSRole           string `toml:"dns_role" validate:"required,oneof=owner delegate"`
	DelegationAccount string `toml:"delegation_account" validate:"required,numeric,len=12,nefield=Account"`
}

// Duration decodes TOML strings like "5m" into a time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// overrides are the PROMOTE_* environment variables that win over the file.
type overrides struct {
	LogLevel          zapcore.Level `env:"LOG_LEVEL" envDefault:"info"`
	OtelExporter      string        `env:"OTEL_EXPORTER"`
	Region            string        `env:"REGION"`
	StateTable        string        `env:"STATE_TABLE"`
	LockBucket        string        `env:"LOCK_BUCKET"`
	ApprovalQueueURL  string        `env:"APPROVAL_QUEUE_URL"`
	ValidationTimeout time.Duration `env:"VALIDATION_TIMEOUT"`
}

func (c *Config) CdkPath() string {
	return filepath.Join(c.Root, c.CdkDir)
}

// Environment returns the resolved environment with the given name.
func (c *Config) Environment(name string) (Environment, error) {
	e, ok := lo.Find(c.Environments, func(e EnvironmentConfig) bool { return e.Name == name })
	if !ok {
		return Environment{}, promoerr.Configurationf("unknown environment %q", name)
	}
	return c.resolve(e), nil
}

// Ordered returns the resolved environments in promotion order.
func (c *Config) Ordered() []Environment {
	return lo.Map(c.Environments, func(e EnvironmentConfig, _ int) Environment {
		return c.resolve(e)
	})
}

func (c *Config) resolve(e EnvironmentConfig) Environment {
	region := e.Region
	if region == "" {
		region = c.Region
	}
	secondary := e.SecondaryRegion
	if secondary == "" {
		secondary = c.SecondaryRegion
	}
	sub := e.Subdomain
	if sub == "" {
		sub = e.Name
	}
	return Environment{
		Name:              e.Name,
		Account:           e.Account,
		Region:            region,
		SecondaryRegion:   secondary,
		Subdomain:         sub,
		DNSRole:           e.DNSRole,
		DelegationAccount: e.DelegationAccount,
		ParentDomain:      c.ParentDomain,
	}
}

// Environment is one deploy target, immutable once resolved from configuration.
type Environment struct {
	Name              string
	Account           string
	Region            string
	SecondaryRegion   string
	Subdomain         string
	DNSRole           string
	DelegationAccount string
	ParentDomain      string
}

// FQDN returns the subdomain zone name, e.g. "test.example.com".
func (e Environment) FQDN() string {
	return e.Subdomain + "." + e.ParentDomain
}

// Regions returns the operating region followed by the optional secondary region.
func (e Environment) Regions() []string {
	if e.SecondaryRegion == "" {
		return []string{e.Region}
	}
	return []string{e.Region, e.SecondaryRegion}
}

func Load() (*Config, error) {
	root, err := findRoot()
	if err != nil {
		return nil, err
	}
	return LoadFile(filepath.Join(root, configFile))
}

// LoadFile decodes, overrides, defaults and validates the config at path.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parsing %s", path), promoerr.ErrConfiguration)
	}
	cfg.Root = filepath.Dir(path)

	if err := cfg.applyOverrides(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid %s", filepath.Base(path))
	}
	return &cfg, nil
}

func (c *Config) applyOverrides() error {
	var o overrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: "PROMOTE_"}); err != nil {
		return errors.Mark(errors.Wrap(err, "parsing PROMOTE_* environment"), promoerr.ErrConfiguration)
	}
	c.LogLevel = o.LogLevel
	override(&c.OtelExporter, o.OtelExporter)
	override(&c.Region, o.Region)
	override(&c.StateTable, o.StateTable)
	override(&c.LockBucket, o.LockBucket)
	override(&c.ApprovalQueueURL, o.ApprovalQueueURL)
	if o.ValidationTimeout > 0 {
		c.ValidationTimeout.Duration = o.ValidationTimeout
	}
	return nil
}

func (c *Config) applyDefaults() {
	withDefault(&c.CertificateRegion, DefaultCertificateRegion)
	withDefault(&c.DeployRoleName, DefaultDeployRoleName)
	withDefault(&c.DelegationRoleName, DefaultDelegationRoleName)
	withDefault(&c.ApprovalAction, DefaultApprovalAction)
	if c.Retry.Base.Duration == 0 {
		c.Retry.Base.Duration = 2 * time.Second
	}
	if c.Retry.Cap.Duration == 0 {
		c.Retry.Cap.Duration = 30 * time.Second
	}
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 8
	}
	if c.ValidationTimeout.Duration == 0 {
		c.ValidationTimeout.Duration = 45 * time.Minute
	}
	if c.ApprovalPoll.Duration == 0 {
		c.ApprovalPoll.Duration = 15 * time.Second
	}
}

// Validate checks struct tags and the cross-environment rules. Every problem is
// reported at once as a single configuration error.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	var msgs []string
	if err := validate.Struct(c); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			return errors.Mark(errors.Wrap(err, "config validation failed"), promoerr.ErrConfiguration)
		}
		for _, e := range validationErrs {
			msgs = append(msgs, formatValidationError(e))
		}
	}
	msgs = append(msgs, c.validateEnvironments()...)

	if len(msgs) > 0 {
		return promoerr.Configurationf("config validation errors:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}

func (c *Config) validateEnvironments() []string {
	if len(c.Environments) != 2 {
		return nil
	}
	var msgs []string
	test, prod := c.Environments[0], c.Environments[1]
	if test.Name != EnvTest || prod.Name != EnvProd {
		msgs = append(msgs, fmt.Sprintf(
			"environments must be declared in promotion order [%s %s], got [%s %s]",
			EnvTest, EnvProd, test.Name, prod.Name))
	}

	for _, e := range c.Ordered() {
		if e.Region == c.CertificateRegion {
			msgs = append(msgs, fmt.Sprintf(
				"environment %s operates in the certificate region %s; use a distinct operating region",
				e.Name, c.CertificateRegion))
		}
	}

	owners := lo.CountBy(c.Environments, func(e EnvironmentConfig) bool { return e.DNSRole == "owner" })
	if owners > 1 {
		msgs = append(msgs, "at most one environment may own the parent zone")
	}

	// A delegate writes through the owner's trust role, which exists only
	// once the owner's stage has run.
	_, i, found := lo.FindIndexOf(c.Environments, func(e EnvironmentConfig) bool { return e.DNSRole == "owner" })
	if found {
		for _, e := range c.Environments[:i] {
			if e.DNSRole == "delegate" {
				msgs = append(msgs, fmt.Sprintf(
					"environment %s owns the parent zone but is promoted after delegate %s",
					c.Environments[i].Name, e.Name))
			}
		}
	}

	seen := make(map[string]string, len(c.Environments))
	for _, e := range c.Environments {
		sub := strings.ToLower(lo.Ternary(e.Subdomain != "", e.Subdomain, e.Name))
		if first, ok := seen[sub]; ok {
			msgs = append(msgs, fmt.Sprintf(
				"environments %s and %s share subdomain %s", first, e.Name, sub))
			continue
		}
		seen[sub] = e.Name
	}

	for _, e := range c.Environments {
		for _, other := range c.Environments {
			if other.Name == e.Name {
				continue
			}
			if e.DNSRole == "owner" && e.DelegationAccount != other.Account {
				msgs = append(msgs, fmt.Sprintf(
					"environment %s owns the parent zone but trusts %s instead of the %s account %s",
					e.Name, e.DelegationAccount, other.Name, other.Account))
			}
			if e.DNSRole == "delegate" && other.DNSRole == "owner" && e.DelegationAccount != other.Account {
				msgs = append(msgs, fmt.Sprintf(
					"environment %s delegates through %s but the parent zone owner is %s (%s)",
					e.Name, e.DelegationAccount, other.Name, other.Account))
			}
		}
	}
	return msgs
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Namespace())
	case "max":
		return fmt.Sprintf("%s exceeds maximum length of %s (got %q)", e.Namespace(), e.Param(), e.Value())
	case "len":
		return fmt.Sprintf("%s must have length %s (got %v)", e.Namespace(), e.Param(), e.Value())
	case "numeric":
		return fmt.Sprintf("%s must be numeric (got %q)", e.Namespace(), e.Value())
	case "fqdn":
		return fmt.Sprintf("%s must be a valid domain name (got %q)", e.Namespace(), e.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s] (got %q)", e.Namespace(), e.Param(), e.Value())
	case "nefield":
		return fmt.Sprintf("%s must differ from %s", e.Namespace(), e.Param())
	default:
		return fmt.Sprintf("%s failed validation %q", e.Namespace(), e.Tag())
	}
}

func override(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func withDefault(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func findRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, configFile)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", promoerr.Configurationf("could not find %s in any parent directory", configFile)
		}
		dir = parent
	}
}
