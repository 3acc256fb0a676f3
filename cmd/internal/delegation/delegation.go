// Package delegation creates a subdomain's hosted zone and links it to the parent zone.
//
// Exactly one environment account owns the parent zone. The owner creates its
// subdomain zone, writes the NS delegation directly and provisions a narrowly
// scoped role that the other account may assume. A delegate creates its own
// subdomain zone and writes its NS delegation into the parent zone through that
// role. Which strategy applies is an explicit Role from configuration.
package delegation

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// DelegationTTL is the TTL of the NS record written into the parent zone.
const DelegationTTL int64 = 172800

const callerRefPrefix = "bwpromote-"

type Role int

const (
	RoleOwner Role = iota + 1
	RoleDelegate
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleDelegate:
		return "delegate"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

func ParseRole(s string) (Role, error) {
	switch s {
	case "owner":
		return RoleOwner, nil
	case "delegate":
		return RoleDelegate, nil
	default:
		return 0, promoerr.Configurationf("unknown dns role %q, want owner or delegate", s)
	}
}

type Route53API interface {
	ListHostedZonesByName(ctx context.Context, in *route53.ListHostedZonesByNameInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesByNameOutput, error)
	GetHostedZone(ctx context.Context, in *route53.GetHostedZoneInput, optFns ...func(*route53.Options)) (*route53.GetHostedZoneOutput, error)
	CreateHostedZone(ctx context.Context, in *route53.CreateHostedZoneInput, optFns ...func(*route53.Options)) (*route53.CreateHostedZoneOutput, error)
	ChangeResourceRecordSets(ctx context.Context, in *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

type IAMAPI interface {
	GetRole(ctx context.Context, in *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, in *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	UpdateAssumeRolePolicy(ctx context.Context, in *iam.UpdateAssumeRolePolicyInput, optFns ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error)
	PutRolePolicy(ctx context.Context, in *iam.PutRolePolicyInput, optFns ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error)
}

// Clients are the environment account's APIs plus a way to act as the parent
// zone owner through its delegation role.
type Clients struct {
	Route53 Route53API
	IAM     IAMAPI
	// AssumeOwner returns Route53 acting as roleName in ownerAccount.
	AssumeOwner func(ownerAccount, roleName string) Route53API
}

type HostedZone struct {
	Name        string
	ID          string
	Account     string
	NameServers []string
}

type DelegationRecord struct {
	ParentZoneID string
	RecordName   string
	NameServers  []string
	TTL          int64
}

// Request describes one subdomain to delegate.
type Request struct {
	Role              Role
	Subdomain         string
	ParentDomain      string
	Account           string
	DelegationAccount string
}

func (r Request) FQDN() string {
	return r.Subdomain + "." + r.ParentDomain
}

type Result struct {
	Zone   HostedZone
	Parent HostedZone
	Record DelegationRecord
	// Trust is set for the owner only.
	Trust *Trust
}

type Engine struct {
	clients  Clients
	roleName string
	logger   *zap.Logger
}

func New(clients Clients, roleName string, logger *zap.Logger) *Engine {
	return &Engine{clients: clients, roleName: roleName, logger: logger.Named("delegation")}
}

// Delegate ensures the subdomain zone exists and is delegated from the parent.
// Repeated calls converge on the same zone, record and role.
func (e *Engine) Delegate(ctx context.Context, req Request) (*Result, error) {
	if req.Subdomain == "" || req.ParentDomain == "" {
		return nil, promoerr.Configurationf("delegation needs a subdomain and a parent domain")
	}
	if req.DelegationAccount == req.Account {
		return nil, errors.Mark(
			errors.Newf("account %s cannot delegate to itself", req.Account),
			promoerr.ErrTrustViolation)
	}

	log := e.logger.With(
		zap.String("zone", req.FQDN()),
		zap.Stringer("role", req.Role))

	switch req.Role {
	case RoleOwner:
		return e.asOwner(ctx, req, log)
	case RoleDelegate:
		return e.asDelegate(ctx, req, log)
	default:
		return nil, promoerr.Configurationf("unknown dns role %v", req.Role)
	}
}

func (e *Engine) asOwner(ctx context.Context, req Request, log *zap.Logger) (*Result, error) {
	parent, err := lookupZone(ctx, e.clients.Route53, req.ParentDomain)
	if err != nil {
		return nil, err
	}
	parent.Account = req.Account

	trust := NewTrust(e.roleName, req.DelegationAccount, parent)
	if err := ValidateTrust(trust, parent.ID); err != nil {
		return nil, err
	}
	if err := e.ensureRole(ctx, trust); err != nil {
		return nil, err
	}
	log.Info("delegation role ready",
		zap.String("roleName", trust.RoleName),
		zap.String("trustedAccount", trust.TrustedAccount))

	zone, err := ensureZone(ctx, e.clients.Route53, req.FQDN(), log)
	if err != nil {
		return nil, err
	}
	zone.Account = req.Account

	record, err := upsertDelegation(ctx, e.clients.Route53, parent, zone)
	if err != nil {
		return nil, err
	}
	log.Info("delegation record written", zap.String("parentZoneId", parent.ID))

	return &Result{Zone: zone, Parent: parent, Record: record, Trust: &trust}, nil
}

func (e *Engine) asDelegate(ctx context.Context, req Request, log *zap.Logger) (*Result, error) {
	zone, err := ensureZone(ctx, e.clients.Route53, req.FQDN(), log)
	if err != nil {
		return nil, err
	}
	zone.Account = req.Account

	// The owner role may only list zones by name and change records, so the
	// parent is resolved from the listing alone.
	owner := e.clients.AssumeOwner(req.DelegationAccount, e.roleName)
	parent, err := lookupZoneID(ctx, owner, req.ParentDomain)
	if err != nil {
		return nil, err
	}
	parent.Account = req.DelegationAccount

	record, err := upsertDelegation(ctx, owner, parent, zone)
	if err != nil {
		return nil, err
	}
	log.Info("delegation record written through owner role",
		zap.String("ownerAccount", req.DelegationAccount),
		zap.String("parentZoneId", parent.ID))

	return &Result{Zone: zone, Parent: parent, Record: record}, nil
}

func (e *Engine) ensureRole(ctx context.Context, trust Trust) error {
	assume, err := trust.AssumeRolePolicy()
	if err != nil {
		return err
	}
	perms, err := trust.PermissionsPolicy()
	if err != nil {
		return err
	}

	_, err = e.clients.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(trust.RoleName)})
	var noSuchEntity *iamtypes.NoSuchEntityException
	switch {
	case errors.As(err, &noSuchEntity):
		_, err = e.clients.IAM.CreateRole(ctx, &iam.CreateRoleInput{
			RoleName:                 aws.String(trust.RoleName),
			AssumeRolePolicyDocument: aws.String(assume),
			Description:              aws.String(trust.description()),
		})
		if err != nil {
			return promoerr.ClassifyAWS(err, "creating role "+trust.RoleName)
		}
	case err != nil:
		return promoerr.ClassifyAWS(err, "reading role "+trust.RoleName)
	default:
		_, err = e.clients.IAM.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
			RoleName:       aws.String(trust.RoleName),
			PolicyDocument: aws.String(assume),
		})
		if err != nil {
			return promoerr.ClassifyAWS(err, "updating trust of role "+trust.RoleName)
		}
	}

	_, err = e.clients.IAM.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       aws.String(trust.RoleName),
		PolicyName:     aws.String(inlinePolicyName),
		PolicyDocument: aws.String(perms),
	})
	return promoerr.ClassifyAWS(err, "attaching delegation policy to "+trust.RoleName)
}

// LookupZone finds the public hosted zone named domain.
func LookupZone(ctx context.Context, client Route53API, domain string) (HostedZone, error) {
	return lookupZone(ctx, client, domain)
}

func lookupZone(ctx context.Context, client Route53API, domain string) (HostedZone, error) {
	zone, found, err := findZone(ctx, client, domain)
	if err != nil {
		return HostedZone{}, err
	}
	if !found {
		return HostedZone{}, errors.Mark(
			errors.Newf("no public hosted zone named %s", domain),
			promoerr.ErrZoneNotFound)
	}
	return zone, nil
}

// lookupZoneID is lookupZone without the name servers. It only needs
// route53:ListHostedZonesByName.
func lookupZoneID(ctx context.Context, client Route53API, domain string) (HostedZone, error) {
	id, found, err := findZoneID(ctx, client, domain)
	if err != nil {
		return HostedZone{}, err
	}
	if !found {
		return HostedZone{}, errors.Mark(
			errors.Newf("no public hosted zone named %s", domain),
			promoerr.ErrZoneNotFound)
	}
	return HostedZone{Name: normalize(domain), ID: id}, nil
}

func findZone(ctx context.Context, client Route53API, domain string) (HostedZone, bool, error) {
	id, found, err := findZoneID(ctx, client, domain)
	if err != nil || !found {
		return HostedZone{}, found, err
	}

	got, err := client.GetHostedZone(ctx, &route53.GetHostedZoneInput{Id: aws.String(id)})
	if err != nil {
		return HostedZone{}, false, promoerr.ClassifyAWS(err, "reading hosted zone "+id)
	}
	zone := HostedZone{Name: normalize(domain), ID: id}
	if got.DelegationSet != nil {
		zone.NameServers = got.DelegationSet.NameServers
	}
	return zone, true, nil
}

func findZoneID(ctx context.Context, client Route53API, domain string) (string, bool, error) {
	out, err := client.ListHostedZonesByName(ctx, &route53.ListHostedZonesByNameInput{
		DNSName: aws.String(domain),
	})
	if err != nil {
		return "", false, promoerr.ClassifyAWS(err, "listing hosted zones named "+domain)
	}

	var matches []types.HostedZone
	for _, hz := range out.HostedZones {
		if normalize(aws.ToString(hz.Name)) != normalize(domain) {
			continue
		}
		if hz.Config != nil && hz.Config.PrivateZone {
			continue
		}
		matches = append(matches, hz)
	}
	switch len(matches) {
	case 0:
		return "", false, nil
	case 1:
		return zoneID(aws.ToString(matches[0].Id)), true, nil
	default:
		return "", false, errors.Newf("%d public hosted zones named %s, expected one", len(matches), domain)
	}
}

func ensureZone(ctx context.Context, client Route53API, fqdn string, log *zap.Logger) (HostedZone, error) {
	zone, found, err := findZone(ctx, client, fqdn)
	if err != nil {
		return HostedZone{}, err
	}
	if found {
		log.Debug("reusing hosted zone", zap.String("zoneId", zone.ID))
		return zone, nil
	}

	out, err := client.CreateHostedZone(ctx, &route53.CreateHostedZoneInput{
		Name:            aws.String(fqdn),
		CallerReference: aws.String(callerRefPrefix + fqdn),
		HostedZoneConfig: &types.HostedZoneConfig{
			Comment: aws.String("Subdomain zone managed by bwpromote"),
		},
	})
	var exists *types.HostedZoneAlreadyExists
	if errors.As(err, &exists) {
		return lookupZone(ctx, client, fqdn)
	}
	if err != nil {
		return HostedZone{}, promoerr.ClassifyAWS(err, "creating hosted zone "+fqdn)
	}

	zone = HostedZone{Name: normalize(fqdn), ID: zoneID(aws.ToString(out.HostedZone.Id))}
	if out.DelegationSet != nil {
		zone.NameServers = out.DelegationSet.NameServers
	}
	log.Info("hosted zone created", zap.String("zoneId", zone.ID))
	return zone, nil
}

func upsertDelegation(ctx context.Context, client Route53API, parent, zone HostedZone) (DelegationRecord, error) {
	if len(zone.NameServers) == 0 {
		return DelegationRecord{}, errors.Newf("hosted zone %s has no name servers", zone.Name)
	}
	record := DelegationRecord{
		ParentZoneID: parent.ID,
		RecordName:   zone.Name,
		NameServers:  zone.NameServers,
		TTL:          DelegationTTL,
	}

	values := make([]types.ResourceRecord, 0, len(record.NameServers))
	for _, ns := range record.NameServers {
		values = append(values, types.ResourceRecord{Value: aws.String(ns)})
	}
	_, err := client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(parent.ID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("Delegate " + zone.Name),
			Changes: []types.Change{{
				Action: types.ChangeActionUpsert,
				ResourceRecordSet: &types.ResourceRecordSet{
					Name:            aws.String(zone.Name),
					Type:            types.RRTypeNs,
					TTL:             aws.Int64(record.TTL),
					ResourceRecords: values,
				},
			}},
		},
	})
	if err != nil {
		return DelegationRecord{}, promoerr.ClassifyAWS(err, "writing delegation record for "+zone.Name)
	}
	return record, nil
}

func zoneID(id string) string {
	return strings.TrimPrefix(id, "/hostedzone/")
}

func normalize(domain string) string {
	return strings.TrimSuffix(strings.ToLower(domain), ".")
}
