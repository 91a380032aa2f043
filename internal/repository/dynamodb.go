package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"query-assistant/internal/domain"
)

const (
	skPrefixTurn = "TURN#"
	ttlDuration  = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoStore keeps the turn log in a single DynamoDB partition. Sort keys are
// timestamp-prefixed so a descending query yields the newest turns first.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
}

// NewDynamoStore creates a DynamoDB-backed history store.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName}, nil
}

// historyPK is the partition holding every turn of the history collection.
func historyPK() string {
	return "HISTORY#" + CollectionName
}

// turnSK orders turns by time; the id suffix keeps same-instant writes distinct.
func turnSK(ts time.Time, id string) string {
	return skPrefixTurn + ts.UTC().Format(sortableTime) + "#" + id
}

// sortableTime is RFC3339 with a fixed-width fraction so keys sort lexically.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

func ttlValue(ts time.Time) int64 {
	return ts.Add(ttlDuration).Unix()
}

// Ping verifies the table is reachable.
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)})
	if err != nil {
		return fmt.Errorf("repository: Ping describe table: %w", err)
	}
	return nil
}

// Close is a no-op for DynamoDB.
func (s *DynamoStore) Close(context.Context) error { return nil }

// Append writes one turn. Existing turns are never overwritten.
func (s *DynamoStore) Append(ctx context.Context, turn domain.Turn) error {
	if strings.TrimSpace(turn.ID) == "" {
		return errors.New("repository: Append: turn id is required")
	}
	if turn.Timestamp.IsZero() {
		return errors.New("repository: Append: turn timestamp is required")
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                turnItem(turn),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

// Recent returns up to limit turns, newest first.
func (s *DynamoStore) Recent(ctx context.Context, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: historyPK()},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	out, err := s.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: Recent query: %w", err)
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: Recent unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	if len(turns) > limit {
		turns = turns[:limit]
	}
	return turns, nil
}

func turnItem(turn domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: historyPK()},
		"SK":        &types.AttributeValueMemberS{Value: turnSK(turn.Timestamp, turn.ID)},
		"id":        &types.AttributeValueMemberS{Value: turn.ID},
		"user":      &types.AttributeValueMemberS{Value: turn.Input},
		"ai":        &types.AttributeValueMemberS{Value: turn.Output},
		"timestamp": &types.AttributeValueMemberS{Value: turn.Timestamp.UTC().Format(time.RFC3339Nano)},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(turn.Timestamp), 10)},
	}
}

// itemToTurn converts a DynamoDB attribute map to a Turn.
func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Turn{}, err
	}
	input, err := strAttr(item, "user")
	if err != nil {
		return domain.Turn{}, err
	}
	output, _ := strAttr(item, "ai") // allow empty
	rawTS, err := strAttr(item, "timestamp")
	if err != nil {
		return domain.Turn{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTS)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("repository: parse attribute %q: %w", "timestamp", err)
	}
	return domain.Turn{ID: id, Input: input, Output: output, Timestamp: ts}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
