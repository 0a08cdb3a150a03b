// Package dynamodb provides a channel store backed by Amazon DynamoDB.
// The table uses session_id as its partition key and expires_at as its TTL attribute.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/bissquit/toplane-coaching/internal/channels"
	"github.com/bissquit/toplane-coaching/internal/domain"
)

const claimPrefix = "claim#"

// API is the subset of the DynamoDB client used by the store.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Config holds DynamoDB settings.
type Config struct {
	Table    string
	Region   string
	Endpoint string
}

// Store implements channels.Store on DynamoDB.
type Store struct {
	client API
	table  string
	now    func() time.Time
}

// NewClient loads AWS config and returns a DynamoDB client.
func NewClient(ctx context.Context, cfg Config) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// NewStore creates a store on top of client.
func NewStore(client API, table string) *Store {
	return &Store{client: client, table: table, now: time.Now}
}

type item struct {
	SessionID     string `dynamodbav:"session_id"`
	ChannelID     string `dynamodbav:"channel_id,omitempty"`
	ChannelURL    string `dynamodbav:"channel_url,omitempty"`
	PlanType      string `dynamodbav:"plan_type,omitempty"`
	CustomerEmail string `dynamodbav:"customer_email,omitempty"`
	CustomerName  string `dynamodbav:"customer_name,omitempty"`
	CreatedAt     string `dynamodbav:"created_at,omitempty"`
	// ExpiresAt is epoch seconds, the format DynamoDB TTL expects.
	ExpiresAt int64 `dynamodbav:"expires_at,omitempty"`
}

func toItem(r domain.ChannelRecord) item {
	it := item{
		SessionID:     r.SessionID,
		ChannelID:     r.ChannelID,
		ChannelURL:    r.ChannelURL,
		PlanType:      string(r.PlanType),
		CustomerEmail: r.CustomerEmail,
		CustomerName:  r.CustomerName,
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.ExpiresAt != nil {
		it.ExpiresAt = r.ExpiresAt.Unix()
	}
	return it
}

func (it item) record() domain.ChannelRecord {
	r := domain.ChannelRecord{
		SessionID:     it.SessionID,
		ChannelID:     it.ChannelID,
		ChannelURL:    it.ChannelURL,
		PlanType:      domain.PlanID(it.PlanType),
		CustomerEmail: it.CustomerEmail,
		CustomerName:  it.CustomerName,
	}
	if t, err := time.Parse(time.RFC3339Nano, it.CreatedAt); err == nil {
		r.CreatedAt = t
	}
	if it.ExpiresAt > 0 {
		t := time.Unix(it.ExpiresAt, 0).UTC()
		r.ExpiresAt = &t
	}
	return r
}

func (s *Store) key(id string) (map[string]types.AttributeValue, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"session_id": id})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return key, nil
}

// Save puts the record. DynamoDB removes it after expires_at.
func (s *Store) Save(ctx context.Context, record domain.ChannelRecord) error {
	av, err := attributevalue.MarshalMap(toItem(record))
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &s.table, Item: av}); err != nil {
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

// Get reads a record. TTL deletion is lazy, so expiry is re-checked here.
func (s *Store) Get(ctx context.Context, sessionID string) (domain.ChannelRecord, error) {
	key, err := s.key(sessionID)
	if err != nil {
		return domain.ChannelRecord{}, err
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{TableName: &s.table, Key: key, ConsistentRead: aws.Bool(true)})
	if err != nil {
		return domain.ChannelRecord{}, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return domain.ChannelRecord{}, channels.ErrNotFound
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return domain.ChannelRecord{}, fmt.Errorf("unmarshal item: %w", err)
	}

	record := it.record()
	if record.Expired(s.now()) {
		return domain.ChannelRecord{}, channels.ErrNotFound
	}
	return record, nil
}

// List scans the table, skipping claims and expired records.
func (s *Store) List(ctx context.Context) ([]domain.ChannelRecord, error) {
	out := make([]domain.ChannelRecord, 0)
	now := s.now()

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{TableName: &s.table})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb Scan failed: %w", err)
		}

		var items []item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
		for _, it := range items {
			if strings.HasPrefix(it.SessionID, claimPrefix) {
				continue
			}
			record := it.record()
			if record.Expired(now) {
				continue
			}
			out = append(out, record)
		}
	}

	channels.SortByCreatedAt(out)
	return out, nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	key, err := s.key(sessionID)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{TableName: &s.table, Key: key}); err != nil {
		return fmt.Errorf("dynamodb DeleteItem failed: %w", err)
	}
	return nil
}

// Claim writes a claim item conditionally: absent or already expired.
func (s *Store) Claim(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	now := s.now()
	av, err := attributevalue.MarshalMap(item{
		SessionID: claimPrefix + sessionID,
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return false, fmt.Errorf("marshal claim: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.table,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(session_id) OR expires_at <= :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return false, fmt.Errorf("dynamodb claim failed: %w", err)
	}
	return true, nil
}

// Release deletes the claim item.
func (s *Store) Release(ctx context.Context, sessionID string) error {
	return s.Delete(ctx, claimPrefix+sessionID)
}

// Ping describes the table.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &s.table}); err != nil {
		return fmt.Errorf("dynamodb DescribeTable failed: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

var _ channels.Store = (*Store)(nil)
