package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"flickrheat/pkg/activity"
	apperrors "flickrheat/pkg/errors"
	"flickrheat/pkg/logger"
)

const (
	dynamoPKPrefix = "SNAPSHOT#"
	dynamoSK       = "LATEST"
)

// DynamoAPI is the subset of the DynamoDB client the store uses
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// dynamoSnapshot is the item layout; one item per username
type dynamoSnapshot struct {
	PK           string         `dynamodbav:"PK"`
	SK           string         `dynamodbav:"SK"`
	Username     string         `dynamodbav:"Username"`
	Data         []activity.Day `dynamodbav:"Data"`
	Year         int            `dynamodbav:"Year"`
	ActivityType string         `dynamodbav:"ActivityType"`
	Timestamp    int64          `dynamodbav:"Timestamp"`
	Updated      int64          `dynamodbav:"Updated"`
}

// DynamoKey returns the partition key for username
func DynamoKey(username string) string {
	return dynamoPKPrefix + Key(username)
}

func snapshotToDynamo(s Snapshot) dynamoSnapshot {
	return dynamoSnapshot{
		PK:           DynamoKey(s.Username),
		SK:           dynamoSK,
		Username:     Key(s.Username),
		Data:         s.Data,
		Year:         s.Year,
		ActivityType: s.ActivityType,
		Timestamp:    s.Timestamp,
		Updated:      time.Now().Unix(),
	}
}

func snapshotFromDynamo(d dynamoSnapshot) Snapshot {
	data := d.Data
	if data == nil {
		data = []activity.Day{}
	}
	return Snapshot{
		Username:     d.Username,
		Data:         data,
		Year:         d.Year,
		ActivityType: d.ActivityType,
		Timestamp:    d.Timestamp,
	}
}

// DynamoStore keeps snapshots in a single-table DynamoDB layout
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	logger    logger.Logger
}

// NewDynamoStore builds a client and checks that tableName exists. A
// non-empty endpoint selects a local DynamoDB with static dummy
// credentials.
func NewDynamoStore(ctx context.Context, region, endpoint, tableName string, log logger.Logger) (*DynamoStore, error) {
	if tableName == "" {
		return nil, apperrors.Configuration("dynamo table is required")
	}
	client, err := newDynamoDBClient(ctx, region, endpoint)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeConfiguration, "failed to load AWS config", err)
	}

	out, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err != nil {
		return nil, fmt.Errorf("table %q not available: %w", tableName, err)
	}
	if out.Table == nil {
		return nil, fmt.Errorf("given table name '%s' not found in dynamodb", tableName)
	}

	return NewDynamoStoreFromClient(client, tableName, log), nil
}

// NewDynamoStoreFromClient wraps an existing client
func NewDynamoStoreFromClient(client DynamoAPI, tableName string, log logger.Logger) *DynamoStore {
	if log == nil {
		log = logger.GetLogger()
	}
	return &DynamoStore{client: client, tableName: tableName, logger: log}
}

func newDynamoDBClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	if region == "" {
		region = "us-east-1"
	}

	if endpoint != "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("dummy", "dummy", ""),
			),
		)
		if err != nil {
			return nil, err
		}
		return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		}), nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func (d *DynamoStore) Put(ctx context.Context, snap Snapshot) (err error) {
	defer func() { observe("dynamodb", "put", err) }()

	if err := snap.Validate(); err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(snapshotToDynamo(snap))
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem failed: %w", err)
	}
	d.logger.DebugWithFields("Snapshot saved", map[string]interface{}{
		"backend":  "dynamodb",
		"username": Key(snap.Username),
		"year":     snap.Year,
	})
	return nil
}

func (d *DynamoStore) Get(ctx context.Context, username string) (snap Snapshot, err error) {
	defer func() { observe("dynamodb", "get", err) }()

	if Key(username) == "" {
		return Snapshot{}, apperrors.Validation("snapshot username is required")
	}

	resp, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: DynamoKey(username)},
			"SK": &types.AttributeValueMemberS{Value: dynamoSK},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("GetItem failed: %w", err)
	}
	if resp.Item == nil {
		return Snapshot{}, ErrNotFound
	}

	var item dynamoSnapshot
	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return Snapshot{}, apperrors.Parsing("failed to unmarshal snapshot item", err)
	}
	return snapshotFromDynamo(item), nil
}

func (d *DynamoStore) Close() error { return nil }
