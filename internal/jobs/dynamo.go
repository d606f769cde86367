package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoTracker persists job state to DynamoDB. Used by deployments that
// run the worker serverless and have no Postgres nearby; records expire
// via the table TTL attribute.
type DynamoTracker struct {
	client    dynamoAPI
	tableName string
}

var _ Tracker = (*DynamoTracker)(nil)

// NewDynamoTracker builds a DynamoDB-backed tracker.
func NewDynamoTracker(client dynamoAPI, tableName string) *DynamoTracker {
	if client == nil {
		panic("jobs: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("jobs: table name cannot be empty")
	}
	return &DynamoTracker{client: client, tableName: tableName}
}

// MarkWaiting inserts the job in the waiting state.
func (t *DynamoTracker) MarkWaiting(ctx context.Context, job *Record) error {
	if job == nil {
		return errors.New("jobs: job cannot be nil")
	}
	now := time.Now().UTC()
	job.State = StateWaiting
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(recordTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("jobs: failed to marshal job: %w", err)
	}
	if _, err := t.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("jobs: failed to persist job: %w", err)
	}
	return nil
}

// MarkActive records that a worker picked the job up for the given attempt.
func (t *DynamoTracker) MarkActive(ctx context.Context, jobID string, attempt int) error {
	return t.update(ctx, jobID,
		"SET #state = :state, #attempts = :attempts, #updated = :updated",
		map[string]string{
			"#state":    "state",
			"#attempts": "attempts",
			"#updated":  "updatedAt",
		},
		map[string]types.AttributeValue{
			":state":    &types.AttributeValueMemberS{Value: string(StateActive)},
			":attempts": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", attempt)},
			":updated":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		})
}

// MarkCompleted records successful delivery.
func (t *DynamoTracker) MarkCompleted(ctx context.Context, jobID string) error {
	return t.update(ctx, jobID,
		"SET #state = :state, #error = :error, #updated = :updated",
		map[string]string{
			"#state":   "state",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		map[string]types.AttributeValue{
			":state":   &types.AttributeValueMemberS{Value: string(StateCompleted)},
			":error":   &types.AttributeValueMemberS{Value: ""},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		})
}

// MarkFailed records permanent failure after retries are exhausted.
func (t *DynamoTracker) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	return t.update(ctx, jobID,
		"SET #state = :state, #error = :error, #updated = :updated",
		map[string]string{
			"#state":   "state",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		map[string]types.AttributeValue{
			":state":   &types.AttributeValueMemberS{Value: string(StateFailed)},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		})
}

// Stats counts jobs per state using COUNT scans.
func (t *DynamoTracker) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	for state, target := range map[State]*int{
		StateWaiting:   &stats.Waiting,
		StateActive:    &stats.Active,
		StateCompleted: &stats.Completed,
		StateFailed:    &stats.Failed,
	} {
		count, err := t.countState(ctx, state)
		if err != nil {
			return Stats{}, err
		}
		*target = count
	}
	return stats, nil
}

func (t *DynamoTracker) countState(ctx context.Context, state State) (int, error) {
	total := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := t.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                aws.String(t.tableName),
			Select:                   types.SelectCount,
			FilterExpression:         aws.String("#state = :state"),
			ExpressionAttributeNames: map[string]string{"#state": "state"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":state": &types.AttributeValueMemberS{Value: string(state)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return 0, fmt.Errorf("jobs: failed to count %s jobs: %w", state, err)
		}
		total += int(out.Count)
		if out.LastEvaluatedKey == nil {
			return total, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (t *DynamoTracker) update(ctx context.Context, jobID, expression string, names map[string]string, values map[string]types.AttributeValue) error {
	if jobID == "" {
		return errors.New("jobs: jobID required")
	}
	_, err := t.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(t.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrJobNotFound
		}
		return fmt.Errorf("jobs: failed to update job %s: %w", jobID, err)
	}
	return nil
}
