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

	"chat-relay/internal/domain"
)

const (
	pkPrefixDay = "RELAY#"
	defaultTTL  = 30 * 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client writes relay audit records to a DynamoDB table. Records are
// partitioned by UTC day and sorted by time, then correlation ID.
type Client struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// New creates a new repository Client. A non-positive ttl falls back to 30 days.
func New(api dynamodbAPI, tableName string, ttl time.Duration) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Client{api: api, tableName: tableName, ttl: ttl, now: time.Now}, nil
}

// dayPK returns the partition key for all records created on ts's UTC day.
func dayPK(ts time.Time) string {
	return pkPrefixDay + ts.UTC().Format("2006-01-02")
}

func relaySK(ts time.Time, correlationID string) string {
	return ts.UTC().Format(time.RFC3339Nano) + "#" + correlationID
}

// WriteRelay stores rec, filling keys, timestamp and TTL when they are unset.
func (c *Client) WriteRelay(ctx context.Context, rec domain.RelayRecord) error {
	if strings.TrimSpace(rec.CorrelationID) == "" {
		return errors.New("repository: WriteRelay: correlation ID is required")
	}
	now := c.now().UTC()
	if rec.PK == "" {
		rec.PK = dayPK(now)
	}
	if rec.SK == "" {
		rec.SK = relaySK(now, rec.CorrelationID)
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = now.Format(time.RFC3339)
	}
	if rec.TTL == 0 {
		rec.TTL = now.Add(c.ttl).Unix()
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                relayItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: WriteRelay: %w", err)
	}
	return nil
}

func relayItem(rec domain.RelayRecord) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":            &types.AttributeValueMemberS{Value: rec.PK},
		"SK":            &types.AttributeValueMemberS{Value: rec.SK},
		"correlationId": &types.AttributeValueMemberS{Value: rec.CorrelationID},
		"outcome":       &types.AttributeValueMemberS{Value: rec.Outcome},
		"inputModified": &types.AttributeValueMemberBOOL{Value: rec.InputModified},
		"inputChars":    numAttr(int64(rec.InputChars)),
		"replyChars":    numAttr(int64(rec.ReplyChars)),
		"usedFallback":  &types.AttributeValueMemberBOOL{Value: rec.UsedFallback},
		"latencyMs":     numAttr(rec.LatencyMillis),
		"createdAt":     &types.AttributeValueMemberS{Value: rec.CreatedAt},
		"ttl":           numAttr(rec.TTL),
	}
	if rec.Reason != "" {
		item["reason"] = &types.AttributeValueMemberS{Value: rec.Reason}
	}
	return item
}

func numAttr(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}
