package jobs

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamoAPI struct {
	putInputs    []*dynamodb.PutItemInput
	updateInputs []*dynamodb.UpdateItemInput
	updateErr    error
	scanCounts   map[string]int32
}

func (f *fakeDynamoAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInputs = append(f.putInputs, in)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updateInputs = append(f.updateInputs, in)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamoAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	state := in.ExpressionAttributeValues[":state"].(*types.AttributeValueMemberS).Value
	return &dynamodb.ScanOutput{Count: f.scanCounts[state]}, nil
}

func TestDynamoTrackerMarkWaiting(t *testing.T) {
	api := &fakeDynamoAPI{}
	tracker := NewDynamoTracker(api, "reminder-jobs")

	err := tracker.MarkWaiting(context.Background(), &Record{
		JobID:         "job-1",
		AppointmentID: "appt-1",
		PatientPhone:  "5511999998888",
	})
	require.NoError(t, err)
	require.Len(t, api.putInputs, 1)

	var stored Record
	require.NoError(t, attributevalue.UnmarshalMap(api.putInputs[0].Item, &stored))
	assert.Equal(t, StateWaiting, stored.State)
	assert.Equal(t, "appt-1", stored.AppointmentID)
	assert.NotZero(t, stored.ExpiresAt)
}

func TestDynamoTrackerMarkCompleted(t *testing.T) {
	api := &fakeDynamoAPI{}
	tracker := NewDynamoTracker(api, "reminder-jobs")

	require.NoError(t, tracker.MarkCompleted(context.Background(), "job-1"))
	require.Len(t, api.updateInputs, 1)

	in := api.updateInputs[0]
	key := in.Key["jobId"].(*types.AttributeValueMemberS)
	assert.Equal(t, "job-1", key.Value)
	state := in.ExpressionAttributeValues[":state"].(*types.AttributeValueMemberS)
	assert.Equal(t, string(StateCompleted), state.Value)
}

func TestDynamoTrackerMarkFailedUnknownJob(t *testing.T) {
	api := &fakeDynamoAPI{updateErr: &types.ConditionalCheckFailedException{}}
	tracker := NewDynamoTracker(api, "reminder-jobs")

	err := tracker.MarkFailed(context.Background(), "nope", "send timeout")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestDynamoTrackerStats(t *testing.T) {
	api := &fakeDynamoAPI{scanCounts: map[string]int32{
		"waiting":   2,
		"active":    1,
		"completed": 7,
		"failed":    0,
	}}
	tracker := NewDynamoTracker(api, "reminder-jobs")

	stats, err := tracker.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Waiting: 2, Active: 1, Completed: 7, Failed: 0}, stats)
}
