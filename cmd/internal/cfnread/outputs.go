// Package cfnread reads deployed stack outputs.
package cfnread

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/smithy-go"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
)

type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, in *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
}

// ErrStackNotFound is returned when the stack does not exist in the region.
var ErrStackNotFound = errors.New("stack not found")

// Reader reads outputs with a client per region.
type Reader struct {
	client func(region string) CloudFormationAPI
}

func NewReader(client func(region string) CloudFormationAPI) *Reader {
	return &Reader{client: client}
}

func (r *Reader) StackOutputs(ctx context.Context, region, stackName string) (map[string]string, error) {
	resp, err := r.client(region).DescribeStacks(ctx, &cloudformation.DescribeStacksInput{
		StackName: aws.String(stackName),
	})
	if err != nil {
		if isMissingStack(err) {
			return nil, errors.Mark(
				errors.Newf("stack %s not found in %s", stackName, region), ErrStackNotFound)
		}
		return nil, promoerr.ClassifyAWS(err, "describing stack "+stackName+" in "+region)
	}
	if len(resp.Stacks) == 0 {
		return nil, errors.Mark(
			errors.Newf("stack %s not found in %s", stackName, region), ErrStackNotFound)
	}

	outputs := make(map[string]string, len(resp.Stacks[0].Outputs))
	for _, o := range resp.Stacks[0].Outputs {
		outputs[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
	}
	return outputs, nil
}

// CloudFormation reports a missing stack as a ValidationError.
func isMissingStack(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" &&
		strings.Contains(apiErr.ErrorMessage(), "does not exist")
}
