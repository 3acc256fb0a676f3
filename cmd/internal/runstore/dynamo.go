package runstore

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/basewarphq/bwpromote/cmd/internal/pipeline"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
)

// Item attributes. The run itself is stored as one JSON document; status and
// position are duplicated so the table is readable in the console.
const (
	attrRunID     = "runId"
	attrVersion   = "version"
	attrBody      = "body"
	attrStatus    = "status"
	attrPosition  = "position"
	attrUpdatedAt = "updatedAt"
)

type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Dynamo stores runs in a DynamoDB table keyed by runId.
type Dynamo struct {
	client DynamoAPI
	table  string
}

var _ pipeline.Store = (*Dynamo)(nil)

func NewDynamo(client DynamoAPI, table string) *Dynamo {
	return &Dynamo{client: client, table: table}
}

func (d *Dynamo) Create(ctx context.Context, run *pipeline.Run) error {
	run.Version = 1
	item, err := toItem(run)
	if err != nil {
		return err
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": attrRunID,
		},
	})
	if err != nil {
		return d.classify(err, run.ID, "creating")
	}
	return nil
}

func (d *Dynamo) Get(ctx context.Context, id string) (*pipeline.Run, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            map[string]types.AttributeValue{attrRunID: &types.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, promoerr.ClassifyAWS(err, "reading run "+id)
	}
	if len(out.Item) == 0 {
		return nil, notFound(id)
	}
	return fromItem(out.Item)
}

// Update writes run if the stored version still equals run.Version, then
// bumps run.Version.
func (d *Dynamo) Update(ctx context.Context, run *pipeline.Run) error {
	prev := run.Version
	run.Version = prev + 1
	item, err := toItem(run)
	if err != nil {
		run.Version = prev
		return err
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                item,
		ConditionExpression: aws.String("#v = :prev"),
		ExpressionAttributeNames: map[string]string{
			"#v": attrVersion,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberN{Value: strconv.FormatInt(prev, 10)},
		},
	})
	if err != nil {
		run.Version = prev
		return d.classify(err, run.ID, "updating")
	}
	return nil
}

func (d *Dynamo) classify(err error, id, op string) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return conflict(id, "%s: stored version changed", op)
	}
	return promoerr.ClassifyAWS(err, op+" run "+id)
}

func toItem(run *pipeline.Run) (map[string]types.AttributeValue, error) {
	body, err := json.Marshal(run)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding run %s", run.ID)
	}
	return map[string]types.AttributeValue{
		attrRunID:     &types.AttributeValueMemberS{Value: run.ID},
		attrVersion:   &types.AttributeValueMemberN{Value: strconv.FormatInt(run.Version, 10)},
		attrBody:      &types.AttributeValueMemberS{Value: string(body)},
		attrStatus:    &types.AttributeValueMemberS{Value: string(run.Status)},
		attrPosition:  &types.AttributeValueMemberS{Value: run.Position.String()},
		attrUpdatedAt: &types.AttributeValueMemberS{Value: run.UpdatedAt.Format(time.RFC3339)},
	}, nil
}

func fromItem(item map[string]types.AttributeValue) (*pipeline.Run, error) {
	body, ok := item[attrBody].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.Newf("run item has no %s attribute", attrBody)
	}
	run, err := decode([]byte(body.Value))
	if err != nil {
		return nil, err
	}
	// The version attribute is authoritative for the conditional write.
	if v, ok := item[attrVersion].(*types.AttributeValueMemberN); ok {
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", attrVersion)
		}
		run.Version = n
	}
	return run, nil
}
