package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"query-assistant/internal/domain"
)

type fakeDynamo struct {
	putErr        error
	queryOut      *dynamodb.QueryOutput
	queryErr      error
	describeErr   error
	lastPutInput  *dynamodb.PutItemInput
	lastQueryIn   *dynamodb.QueryInput
	lastDescribed *dynamodb.DescribeTableInput
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.lastDescribed = in
	return &dynamodb.DescribeTableOutput{}, f.describeErr
}

func makeTurnItem(id, user, ai string, ts time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: historyPK()},
		"SK":        &types.AttributeValueMemberS{Value: turnSK(ts, id)},
		"id":        &types.AttributeValueMemberS{Value: id},
		"user":      &types.AttributeValueMemberS{Value: user},
		"ai":        &types.AttributeValueMemberS{Value: ai},
		"timestamp": &types.AttributeValueMemberS{Value: ts.UTC().Format(time.RFC3339Nano)},
	}
}

func mustNewDynamoStore(t *testing.T, db *fakeDynamo) *DynamoStore {
	t.Helper()
	s, err := NewDynamoStore(db, "test-table")
	require.NoError(t, err)
	return s
}

func TestDynamoRecent_HappyPath(t *testing.T) {
	ts := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	db := &fakeDynamo{
		queryOut: &dynamodb.QueryOutput{
			Items: []map[string]types.AttributeValue{
				makeTurnItem("t-2", "newer", "b", ts),
				makeTurnItem("t-1", "older", "a", ts.Add(-time.Hour)),
			},
		},
	}
	s := mustNewDynamoStore(t, db)
	turns, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "newer", turns[0].Input)
	require.Equal(t, "older", turns[1].Input)
	require.True(t, ts.Equal(turns[0].Timestamp))
}

func TestDynamoRecent_QueryShape(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	s := mustNewDynamoStore(t, db)
	_, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, "PK = :pk AND begins_with(SK, :prefix)", *db.lastQueryIn.KeyConditionExpression)
	require.False(t, *db.lastQueryIn.ScanIndexForward)
	require.Equal(t, int32(5), *db.lastQueryIn.Limit)
	require.Equal(t, "HISTORY#history", db.lastQueryIn.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value)
}

func TestDynamoRecent_TruncatesOversizedPage(t *testing.T) {
	items := make([]map[string]types.AttributeValue, 0, 8)
	for i := 0; i < 8; i++ {
		items = append(items, makeTurnItem(fmt.Sprintf("t-%d", i), "q", "a", time.Now()))
	}
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: items}}
	s := mustNewDynamoStore(t, db)
	turns, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, turns, 5)
}

func TestDynamoRecent_NonPositiveLimit(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewDynamoStore(t, db)
	turns, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, turns)
	require.Nil(t, db.lastQueryIn)
}

func TestDynamoRecent_EmptyResult(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{}}
	s := mustNewDynamoStore(t, db)
	turns, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestDynamoRecent_QueryError(t *testing.T) {
	db := &fakeDynamo{queryErr: errors.New("ResourceNotFoundException")}
	s := mustNewDynamoStore(t, db)
	_, err := s.Recent(context.Background(), 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Recent query")
}

func TestDynamoRecent_MalformedItem(t *testing.T) {
	item := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: historyPK()},
		"SK": &types.AttributeValueMemberS{Value: "TURN#ts"},
		"id": &types.AttributeValueMemberS{Value: "t-1"},
	}
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}}
	s := mustNewDynamoStore(t, db)
	_, err := s.Recent(context.Background(), 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "user")
}

func TestDynamoRecent_BadTimestamp(t *testing.T) {
	item := makeTurnItem("t-1", "q", "a", time.Now())
	item["timestamp"] = &types.AttributeValueMemberS{Value: "yesterday"}
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item}}}
	s := mustNewDynamoStore(t, db)
	_, err := s.Recent(context.Background(), 5)
	require.Error(t, err)
	require.Contains(t, err.Error(), "timestamp")
}

func TestDynamoAppend_HappyPath(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewDynamoStore(t, db)
	ts := time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)
	err := s.Append(context.Background(), domain.Turn{ID: "t-1", Input: "list all SKUs", Output: "db.skus.find({})", Timestamp: ts})
	require.NoError(t, err)

	item := db.lastPutInput.Item
	require.Equal(t, "list all SKUs", item["user"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "db.skus.find({})", item["ai"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "TURN#2026-02-25T10:00:00.000000000Z#t-1", item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", *db.lastPutInput.ConditionExpression)
	require.Equal(t, "test-table", *db.lastPutInput.TableName)
}

func TestDynamoAppend_DynamoError(t *testing.T) {
	db := &fakeDynamo{putErr: errors.New("ProvisionedThroughputExceededException")}
	s := mustNewDynamoStore(t, db)
	err := s.Append(context.Background(), domain.Turn{ID: "t-1", Input: "q", Timestamp: time.Now()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Append")
}

func TestDynamoAppend_RequiresIDAndTimestamp(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewDynamoStore(t, db)
	err := s.Append(context.Background(), domain.Turn{Input: "q", Timestamp: time.Now()})
	require.ErrorContains(t, err, "id is required")

	err = s.Append(context.Background(), domain.Turn{ID: "t-1", Input: "q"})
	require.ErrorContains(t, err, "timestamp is required")
	require.Nil(t, db.lastPutInput)
}

func TestDynamoPing(t *testing.T) {
	db := &fakeDynamo{}
	s := mustNewDynamoStore(t, db)
	require.NoError(t, s.Ping(context.Background()))
	require.Equal(t, "test-table", *db.lastDescribed.TableName)

	db.describeErr = errors.New("AccessDenied")
	require.ErrorContains(t, s.Ping(context.Background()), "AccessDenied")
}

func TestTurnSK_SortsChronologically(t *testing.T) {
	early := time.Date(2026, 2, 25, 10, 0, 0, 5, time.UTC)
	late := time.Date(2026, 2, 25, 10, 0, 0, 40, time.UTC)
	require.Less(t, turnSK(early, "z"), turnSK(late, "a"))
}

func TestNewDynamoStore_Validation(t *testing.T) {
	_, err := NewDynamoStore(nil, "test-table")
	require.ErrorContains(t, err, "must not be nil")

	_, err = NewDynamoStore(&fakeDynamo{}, " ")
	require.ErrorContains(t, err, "must not be empty")
}
