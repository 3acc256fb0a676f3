// Package paramstore bridges a value written in one region to readers in another.
//
// Certificates for the content-distribution layer are issued in a fixed region
// while the rest of an environment lives elsewhere. The certificate ARN is
// published as an SSM parameter in the issuing region and read back from the
// operating region with bounded exponential backoff.
package paramstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const nameSuffix = "Certificate"

// Name is the parameter name for a subdomain's certificate ARN. It depends on
// the subdomain only, so readers never discover it at runtime.
func Name(subdomain string) string {
	return subdomain + nameSuffix
}

type SSMAPI interface {
	PutParameter(ctx context.Context, in *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ClientFunc returns an SSM client for region.
type ClientFunc func(region string) SSMAPI

// Backoff bounds the cross-region read.
type Backoff struct {
	Base     time.Duration
	Cap      time.Duration
	Attempts uint64
}

func (b Backoff) policy() retry.Backoff {
	policy := retry.NewExponential(b.Base)
	policy = retry.WithCappedDuration(b.Cap, policy)
	if b.Attempts > 1 {
		return retry.WithMaxRetries(b.Attempts-1, policy)
	}
	return retry.WithMaxRetries(0, policy)
}

type key struct {
	name   string
	region string
}

type Bridge struct {
	clients ClientFunc
	backoff Backoff
	logger  *zap.Logger

	mu      sync.Mutex
	written map[key]string
}

func New(clients ClientFunc, backoff Backoff, logger *zap.Logger) *Bridge {
	return &Bridge{
		clients: clients,
		backoff: backoff,
		logger:  logger.Named("paramstore"),
		written: make(map[key]string),
	}
}

// Write publishes value under name in region, overwriting any previous value.
func (b *Bridge) Write(ctx context.Context, name, value, region string) error {
	_, err := b.clients(region).PutParameter(ctx, &ssm.PutParameterInput{
		Name:        aws.String(name),
		Value:       aws.String(value),
		Type:        types.ParameterTypeString,
		Overwrite:   aws.Bool(true),
		Description: aws.String(description(name)),
	})
	if err != nil {
		return promoerr.ClassifyAWS(err, fmt.Sprintf("writing parameter %s in %s", name, region))
	}

	b.MarkWritten(name, value, region)
	b.logger.Info("parameter written",
		zap.String("name", name),
		zap.String("region", region))
	return nil
}

// MarkWritten records that name was published in region by an earlier step,
// for example one completed before a resumed run.
func (b *Bridge) MarkWritten(name, value, region string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.written[key{name, region}] = value
}

// Read fetches name from sourceRegion. A missing parameter is retried with
// backoff. Once retries are exhausted the error is ErrParameterNotReady if the
// parameter is known to have been written, ErrParameterNotFound otherwise.
func (b *Bridge) Read(ctx context.Context, name, sourceRegion string) (string, error) {
	client := b.clients(sourceRegion)

	var value string
	attempt := 0
	missing := false
	err := retry.Do(ctx, b.backoff.policy(), func(ctx context.Context) error {
		attempt++
		out, err := client.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(name)})
		if err != nil {
			var notFound *types.ParameterNotFound
			if !errors.As(err, &notFound) {
				missing = false
				return promoerr.ClassifyAWS(err, fmt.Sprintf("reading parameter %s from %s", name, sourceRegion))
			}
		} else if out.Parameter != nil && aws.ToString(out.Parameter.Value) != "" {
			value = aws.ToString(out.Parameter.Value)
			return nil
		}
		missing = true
		b.logger.Debug("parameter not visible yet",
			zap.String("name", name),
			zap.String("region", sourceRegion),
			zap.Int("attempt", attempt))
		return retry.RetryableError(errors.Newf("parameter %s not found", name))
	})
	switch {
	case err == nil:
		return value, nil
	case ctx.Err() != nil:
		return "", errors.Wrapf(ctx.Err(), "reading parameter %s", name)
	case !missing:
		return "", err
	case b.wasWritten(name, sourceRegion):
		return "", errors.Mark(
			errors.Newf("parameter %s not visible in %s after %d attempts", name, sourceRegion, attempt),
			promoerr.ErrParameterNotReady)
	default:
		return "", errors.Mark(
			errors.Newf("parameter %s was never written in %s", name, sourceRegion),
			promoerr.ErrParameterNotFound)
	}
}

func (b *Bridge) wasWritten(name, region string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.written[key{name, region}]
	return ok
}

func description(name string) string {
	sub, ok := strings.CutSuffix(name, nameSuffix)
	if !ok || sub == "" {
		return "Certificate ARN published by the promotion pipeline"
	}
	return "The certificate ARN for subdomain " + sub
}
