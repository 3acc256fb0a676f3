// Package bwcdkstate provides the orchestration account's pipeline state: the
// runs table, the bucket holding environment locks and the queue approval
// requests are announced on.
package bwcdkstate

import (
	"github.com/aws/aws-cdk-go/awscdk/v2"
	"github.com/aws/aws-cdk-go/awscdk/v2/awsiam"
	"github.com/aws/aws-cdk-go/awscdk/v2/awss3"
	"github.com/aws/aws-cdk-go/awscdk/v2/awssqs"
	"github.com/aws/constructs-go/constructs/v10"
	"github.com/aws/jsii-runtime-go"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkdynamo"
	"github.com/basewarphq/bwpromote/bwcdk/bwcdkutil"
)

// Stack outputs, matching the promote.toml keys they fill in.
const (
	OutputLockBucket       = "LockBucketName"
	OutputApprovalQueueURL = "ApprovalQueueUrl"
)

// State provides access to the pipeline state resources.
type State interface {
	Runs() bwcdkdynamo.Dynamo
	LockBucket() awss3.IBucket
	ApprovalQueue() awssqs.IQueue

	// GrantOperator gives grantee everything the promote CLI needs.
	GrantOperator(grantee awsiam.IGrantable)
}

// Props configures the State construct.
type Props struct{}

type state struct {
	runs  bwcdkdynamo.Dynamo
	locks awss3.IBucket
	queue awssqs.IQueue
}

// New creates the runs table, lock bucket and approval queue.
func New(scope constructs.Construct, _ Props) State {
	scope = constructs.NewConstruct(scope, jsii.String("State"))
	con := &state{}

	con.runs = bwcdkdynamo.New(scope, bwcdkdynamo.Props{})

	con.locks = awss3.NewBucket(scope, jsii.String("Locks"), &awss3.BucketProps{
		BucketName:        jsii.String(lockBucketName(scope)),
		BlockPublicAccess: awss3.BlockPublicAccess_BLOCK_ALL(),
		EnforceSSL:        jsii.Bool(true),
		Encryption:        awss3.BucketEncryption_S3_MANAGED,
		RemovalPolicy:     awscdk.RemovalPolicy_DESTROY,
		AutoDeleteObjects: jsii.Bool(true),
	})

	dlq := awssqs.NewQueue(scope, jsii.String("ApprovalDeadLetters"), &awssqs.QueueProps{
		RetentionPeriod: awscdk.Duration_Days(jsii.Number(14)),
		EnforceSSL:      jsii.Bool(true),
	})
	con.queue = awssqs.NewQueue(scope, jsii.String("Approvals"), &awssqs.QueueProps{
		QueueName:       jsii.String(bwcdkutil.ResourceName(scope, "approvals", bwcdkutil.CasingKebab)),
		RetentionPeriod: awscdk.Duration_Days(jsii.Number(4)),
		EnforceSSL:      jsii.Bool(true),
		DeadLetterQueue: &awssqs.DeadLetterQueue{
			Queue:           dlq,
			MaxReceiveCount: jsii.Number(5),
		},
	})

	stack := awscdk.Stack_Of(scope)
	awscdk.NewCfnOutput(stack, jsii.String(OutputLockBucket), &awscdk.CfnOutputProps{
		Value:       con.locks.BucketName(),
		Description: jsii.String("Bucket holding environment locks (lock_bucket)"),
	})
	awscdk.NewCfnOutput(stack, jsii.String(OutputApprovalQueueURL), &awscdk.CfnOutputProps{
		Value:       con.queue.QueueUrl(),
		Description: jsii.String("Queue approval requests are sent to (approval_queue_url)"),
	})

	return con
}

// lockBucketName is globally unique through the account and region.
func lockBucketName(scope constructs.Construct) string {
	stack := awscdk.Stack_Of(scope)
	return bwcdkutil.ResourceName(scope, "locks", bwcdkutil.CasingKebab) +
		"-" + *stack.Account() + "-" + *stack.Region()
}

func (s *state) Runs() bwcdkdynamo.Dynamo {
	return s.runs
}

func (s *state) LockBucket() awss3.IBucket {
	return s.locks
}

func (s *state) ApprovalQueue() awssqs.IQueue {
	return s.queue
}

func (s *state) GrantOperator(grantee awsiam.IGrantable) {
	s.runs.GrantReadWriteData(grantee)
	s.locks.GrantReadWrite(grantee, jsii.String("env-locks/*"))
	s.locks.GrantDelete(grantee, jsii.String("env-locks/*"))
	s.queue.GrantSendMessages(grantee)
}
