package notify_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/smithy-go"
	"github.com/basewarphq/bwpromote/cmd/internal/notify"
	"github.com/basewarphq/bwpromote/cmd/internal/pipeline"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type fakeSQS struct {
	sent []*sqs.SendMessageInput
	err  error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestQueueSendsRequest(t *testing.T) {
	t.Parallel()
	fake := &fakeSQS{}
	q := notify.NewQueue(fake, "https://sqs.eu-west-1.amazonaws.com/111111111111/approvals", zap.NewNop())

	req := pipeline.ApprovalRequest{
		RunID:           "r1",
		Action:          "approveToProduction",
		Environment:     "test",
		NextEnvironment: "prod",
		Revision:        "abc123",
		Outputs:         map[string]string{"DemoUrl": "https://www.test.example.com"},
	}
	if err := q.ApprovalRequested(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fake.sent))
	}
	msg := fake.sent[0]
	if got := aws.ToString(msg.QueueUrl); got != "https://sqs.eu-west-1.amazonaws.com/111111111111/approvals" {
		t.Errorf("QueueUrl = %q", got)
	}
	if got := aws.ToString(msg.MessageAttributes["action"].StringValue); got != "approveToProduction" {
		t.Errorf("action attribute = %q", got)
	}

	var decoded pipeline.ApprovalRequest
	if err := json.Unmarshal([]byte(aws.ToString(msg.MessageBody)), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.RunID != "r1" || decoded.NextEnvironment != "prod" || decoded.Outputs["DemoUrl"] == "" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestQueueAccessDenied(t *testing.T) {
	t.Parallel()
	fake := &fakeSQS{err: &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}}
	err := notify.NewQueue(fake, "url", zap.NewNop()).
		ApprovalRequested(context.Background(), pipeline.ApprovalRequest{RunID: "r1"})
	if !errors.Is(err, promoerr.ErrInsufficientPermissions) {
		t.Errorf("got %v, want ErrInsufficientPermissions", err)
	}
}

func TestNop(t *testing.T) {
	t.Parallel()
	if err := (notify.Nop{}).ApprovalRequested(context.Background(), pipeline.ApprovalRequest{}); err != nil {
		t.Error(err)
	}
}
