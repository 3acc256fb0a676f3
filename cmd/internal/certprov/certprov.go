// Package certprov issues the DNS-validated certificate for an environment's
// www host and publishes its ARN through the parameter bridge.
//
// Certificates for the content-distribution layer must live in a fixed region,
// so the ACM client is always pinned to that region regardless of where the
// environment operates. The ARN is published only after ACM reports ISSUED.
package certprov

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	acmtypes "github.com/aws/aws-sdk-go-v2/service/acm/types"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/basewarphq/bwpromote/cmd/internal/paramstore"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const validationRecordTTL int64 = 300

// Domain is the certificate's only name.
func Domain(subdomain, parentDomain string) string {
	return "www." + subdomain + "." + parentDomain
}

type ACMAPI interface {
	ListCertificates(ctx context.Context, in *acm.ListCertificatesInput, optFns ...func(*acm.Options)) (*acm.ListCertificatesOutput, error)
	RequestCertificate(ctx context.Context, in *acm.RequestCertificateInput, optFns ...func(*acm.Options)) (*acm.RequestCertificateOutput, error)
	DescribeCertificate(ctx context.Context, in *acm.DescribeCertificateInput, optFns ...func(*acm.Options)) (*acm.DescribeCertificateOutput, error)
}

// RecordAPI writes validation records into the subdomain zone.
type RecordAPI interface {
	ChangeResourceRecordSets(ctx context.Context, in *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

// Publisher is the write half of the parameter bridge.
type Publisher interface {
	Write(ctx context.Context, name, value, region string) error
}

type Options struct {
	// Region is where certificates are issued and their ARN is published.
	Region string
	// ValidationTimeout bounds the wait for ISSUED.
	ValidationTimeout time.Duration
	// RecordPoll bounds the wait for ACM to expose validation records.
	RecordPoll paramstore.Backoff
	// WaitMinDelay and WaitMaxDelay tune the ISSUED waiter.
	WaitMinDelay time.Duration
	WaitMaxDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.WaitMinDelay == 0 {
		o.WaitMinDelay = 15 * time.Second
	}
	if o.WaitMaxDelay == 0 {
		o.WaitMaxDelay = 60 * time.Second
	}
	if o.ValidationTimeout == 0 {
		o.ValidationTimeout = 45 * time.Minute
	}
	if o.RecordPoll.Attempts == 0 {
		o.RecordPoll = paramstore.Backoff{Base: 2 * time.Second, Cap: 15 * time.Second, Attempts: 10}
	}
	return o
}

type Request struct {
	Subdomain    string
	ParentDomain string
	// ZoneID is the subdomain's hosted zone, produced by delegation.
	ZoneID string
}

type Certificate struct {
	ARN       string
	Domain    string
	Region    string
	Parameter string
	Reused    bool
}

type Provisioner struct {
	acm       ACMAPI
	records   RecordAPI
	publisher Publisher
	opts      Options
	logger    *zap.Logger
}

func New(acmClient ACMAPI, records RecordAPI, publisher Publisher, opts Options, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		acm:       acmClient,
		records:   records,
		publisher: publisher,
		opts:      opts.withDefaults(),
		logger:    logger.Named("certprov"),
	}
}

// Provision returns an ISSUED certificate for www.<subdomain>.<parent> and
// publishes its ARN. An existing certificate for the domain is reused.
func (p *Provisioner) Provision(ctx context.Context, req Request) (*Certificate, error) {
	if req.ZoneID == "" {
		return nil, errors.Mark(
			errors.Newf("no hosted zone for %s.%s; delegate the zone first", req.Subdomain, req.ParentDomain),
			promoerr.ErrZoneNotFound)
	}
	domain := Domain(req.Subdomain, req.ParentDomain)
	log := p.logger.With(zap.String("domain", domain), zap.String("region", p.opts.Region))

	arn, reused, err := p.findOrRequest(ctx, domain)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("certificateArn", arn))
	if reused {
		log.Info("reusing certificate")
	} else {
		log.Info("certificate requested")
	}

	detail, err := p.describe(ctx, arn)
	if err != nil {
		return nil, err
	}
	if detail.Status != acmtypes.CertificateStatusIssued {
		if err := p.writeValidationRecords(ctx, arn, req.ZoneID); err != nil {
			return nil, err
		}
		if err := p.awaitIssued(ctx, arn, domain); err != nil {
			return nil, err
		}
		log.Info("certificate issued")
	}

	name := paramstore.Name(req.Subdomain)
	if err := p.publisher.Write(ctx, name, arn, p.opts.Region); err != nil {
		return nil, errors.Wrapf(err, "publishing certificate for %s", domain)
	}

	return &Certificate{
		ARN:       arn,
		Domain:    domain,
		Region:    p.opts.Region,
		Parameter: name,
		Reused:    reused,
	}, nil
}

func (p *Provisioner) findOrRequest(ctx context.Context, domain string) (string, bool, error) {
	pager := acm.NewListCertificatesPaginator(p.acm, &acm.ListCertificatesInput{
		CertificateStatuses: []acmtypes.CertificateStatus{
			acmtypes.CertificateStatusIssued,
			acmtypes.CertificateStatusPendingValidation,
		},
	})
	var pending string
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return "", false, promoerr.ClassifyAWS(err, "listing certificates")
		}
		for _, summary := range page.CertificateSummaryList {
			if aws.ToString(summary.DomainName) != domain {
				continue
			}
			if summary.Status == acmtypes.CertificateStatusIssued {
				return aws.ToString(summary.CertificateArn), true, nil
			}
			if pending == "" {
				pending = aws.ToString(summary.CertificateArn)
			}
		}
	}
	if pending != "" {
		return pending, true, nil
	}

	out, err := p.acm.RequestCertificate(ctx, &acm.RequestCertificateInput{
		DomainName:       aws.String(domain),
		ValidationMethod: acmtypes.ValidationMethodDns,
		IdempotencyToken: aws.String(IdempotencyToken(domain)),
	})
	if err != nil {
		return "", false, promoerr.ClassifyAWS(err, "requesting certificate for "+domain)
	}
	return aws.ToString(out.CertificateArn), false, nil
}

// IdempotencyToken is derived from the domain so that a retried request within
// ACM's idempotency window returns the same certificate.
func IdempotencyToken(domain string) string {
	sum := sha256.Sum256([]byte(domain))
	return hex.EncodeToString(sum[:])[:32]
}

func (p *Provisioner) describe(ctx context.Context, arn string) (*acmtypes.CertificateDetail, error) {
	out, err := p.acm.DescribeCertificate(ctx, &acm.DescribeCertificateInput{CertificateArn: aws.String(arn)})
	if err != nil {
		return nil, promoerr.ClassifyAWS(err, "describing certificate "+arn)
	}
	if out.Certificate == nil {
		return nil, errors.Newf("certificate %s has no detail", arn)
	}
	return out.Certificate, nil
}

// writeValidationRecords waits until ACM exposes a CNAME for every validation
// option and upserts them into the subdomain zone.
func (p *Provisioner) writeValidationRecords(ctx context.Context, arn, zoneID string) error {
	var records []acmtypes.ResourceRecord
	poll := p.opts.RecordPoll
	backoff := retry.WithMaxRetries(poll.Attempts-1,
		retry.WithCappedDuration(poll.Cap, retry.NewExponential(poll.Base)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		detail, err := p.describe(ctx, arn)
		if err != nil {
			return err
		}
		if detail.Status == acmtypes.CertificateStatusFailed {
			return issuanceFailed(arn, detail)
		}
		records = records[:0]
		for _, opt := range detail.DomainValidationOptions {
			if opt.ResourceRecord == nil {
				return retry.RetryableError(errors.Newf("certificate %s has no validation record yet", arn))
			}
			records = append(records, *opt.ResourceRecord)
		}
		if len(records) == 0 {
			return retry.RetryableError(errors.Newf("certificate %s has no validation options yet", arn))
		}
		return nil
	})
	if err != nil {
		return err
	}

	changes := make([]types.Change, 0, len(records))
	for _, rr := range records {
		changes = append(changes, types.Change{
			Action: types.ChangeActionUpsert,
			ResourceRecordSet: &types.ResourceRecordSet{
				Name:            rr.Name,
				Type:            types.RRType(rr.Type),
				TTL:             aws.Int64(validationRecordTTL),
				ResourceRecords: []types.ResourceRecord{{Value: rr.Value}},
			},
		})
	}
	_, err = p.records.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("Certificate validation for " + arn),
			Changes: changes,
		},
	})
	return promoerr.ClassifyAWS(err, "writing validation records")
}

func (p *Provisioner) awaitIssued(ctx context.Context, arn, domain string) error {
	waiter := acm.NewCertificateValidatedWaiter(p.acm, func(o *acm.CertificateValidatedWaiterOptions) {
		o.MinDelay = p.opts.WaitMinDelay
		o.MaxDelay = p.opts.WaitMaxDelay
	})
	waitErr := waiter.Wait(ctx, &acm.DescribeCertificateInput{CertificateArn: aws.String(arn)}, p.opts.ValidationTimeout)
	if waitErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), "waiting for %s", domain)
	}

	detail, err := p.describe(ctx, arn)
	if err != nil {
		return errors.CombineErrors(errors.Wrap(waitErr, "waiting for validation"), err)
	}
	switch detail.Status {
	case acmtypes.CertificateStatusIssued:
		return nil
	case acmtypes.CertificateStatusFailed:
		return issuanceFailed(arn, detail)
	case acmtypes.CertificateStatusPendingValidation:
		return errors.Mark(
			errors.Newf("certificate for %s still pending validation after %s", domain, p.opts.ValidationTimeout),
			promoerr.ErrValidationTimeout)
	default:
		return errors.Mark(
			errors.Newf("certificate for %s ended in status %s", domain, detail.Status),
			promoerr.ErrIssuanceFailed)
	}
}

func issuanceFailed(arn string, detail *acmtypes.CertificateDetail) error {
	return errors.Mark(
		errors.Newf("certificate %s failed: %s", arn, describeFailure(detail)),
		promoerr.ErrIssuanceFailed)
}

func describeFailure(detail *acmtypes.CertificateDetail) string {
	if detail.FailureReason != "" {
		return string(detail.FailureReason)
	}
	return fmt.Sprintf("status %s", detail.Status)
}
