// Package notify announces runs that wait at the approval gate.
package notify

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/basewarphq/bwpromote/cmd/internal/pipeline"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Queue publishes approval requests as JSON messages.
type Queue struct {
	client   SQSAPI
	queueURL string
	logger   *zap.Logger
}

var _ pipeline.Notifier = (*Queue)(nil)

func NewQueue(client SQSAPI, queueURL string, logger *zap.Logger) *Queue {
	return &Queue{client: client, queueURL: queueURL, logger: logger}
}

func (q *Queue) ApprovalRequested(ctx context.Context, req pipeline.ApprovalRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "encoding approval request")
	}

	out, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"action": {
				DataType:    aws.String("String"),
				StringValue: aws.String(req.Action),
			},
			"runId": {
				DataType:    aws.String("String"),
				StringValue: aws.String(req.RunID),
			},
		},
	})
	if err != nil {
		return promoerr.ClassifyAWS(err, "sending approval request for run "+req.RunID)
	}

	q.logger.Info("approval requested",
		zap.String("run_id", req.RunID),
		zap.String("next_environment", req.NextEnvironment),
		zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}

// Nop only logs. It is used when no approval queue is configured.
type Nop struct {
	Logger *zap.Logger
}

var _ pipeline.Notifier = Nop{}

func (n Nop) ApprovalRequested(_ context.Context, req pipeline.ApprovalRequest) error {
	if n.Logger != nil {
		n.Logger.Info("approval required",
			zap.String("run_id", req.RunID),
			zap.String("action", req.Action),
			zap.String("next_environment", req.NextEnvironment))
	}
	return nil
}
