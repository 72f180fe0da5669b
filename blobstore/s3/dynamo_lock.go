package s3

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/acton/lock"
)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// LoadDynamoClient builds a DynamoDB client from the default AWS credential chain.
func LoadDynamoClient(ctx context.Context, cfg ClientConfig) (*dynamodb.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// ErrLeaseLost is returned by Unlock when the lease expired and was taken
// over by another owner.
var ErrLeaseLost = errors.New("lock lease lost")

// DefaultLeaseDuration is how long a lease stays valid without renewal.
const DefaultLeaseDuration = time.Hour

// DynamoLock is a lock.Locker backed by a DynamoDB conditional write.
//
// Table schema:
//   - Partition key: lock_key (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name acton-locks \
//	  --attribute-definitions AttributeName=lock_key,AttributeType=S \
//	  --key-schema AttributeName=lock_key,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
//
// A lease whose expires_at lies in the past can be taken over.
type DynamoLock struct {
	client DDBClient
	table  string
	key    string
	owner  string
	lease  time.Duration
	now    func() time.Time

	mu   sync.Mutex
	held bool
}

// DynamoLockOption configures a DynamoLock.
type DynamoLockOption func(*DynamoLock)

// WithLeaseDuration sets the lease duration.
func WithLeaseDuration(d time.Duration) DynamoLockOption {
	return func(l *DynamoLock) {
		if d > 0 {
			l.lease = d
		}
	}
}

// WithOwner sets the owner identity written to the lock item.
func WithOwner(owner string) DynamoLockOption {
	return func(l *DynamoLock) {
		l.owner = owner
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) DynamoLockOption {
	return func(l *DynamoLock) {
		l.now = now
	}
}

// NewDynamoLock creates a lease lock on key in table.
func NewDynamoLock(client DDBClient, table, key string, opts ...DynamoLockOption) *DynamoLock {
	l := &DynamoLock{
		client: client,
		table:  table,
		key:    key,
		owner:  defaultOwner(),
		lease:  DefaultLeaseDuration,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock acquires the lease.
func (l *DynamoLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return fmt.Errorf("%w: %s already held by this handle", lock.ErrLocked, l.key)
	}

	now := l.now()
	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(l.table),
		Item: map[string]types.AttributeValue{
			"lock_key":   &types.AttributeValueMemberS{Value: l.key},
			"owner":      &types.AttributeValueMemberS{Value: l.owner},
			"expires_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(l.lease).UnixMilli(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(lock_key) OR expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", lock.ErrLocked, l.key)
		}
		return fmt.Errorf("failed to acquire lease: %w", err)
	}
	l.held = true
	return nil
}

// Unlock releases the lease if this owner still holds it.
func (l *DynamoLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	l.held = false

	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.table),
		Key: map[string]types.AttributeValue{
			"lock_key": &types.AttributeValueMemberS{Value: l.key},
		},
		ConditionExpression: aws.String("#o = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#o": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: l.owner},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("%w: %s", ErrLeaseLost, l.key)
		}
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

func defaultOwner() string {
	host, _ := os.Hostname()
	var b [8]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%s/%d/%s", host, os.Getpid(), hex.EncodeToString(b[:]))
}

var _ lock.Locker = (*DynamoLock)(nil)
