package cache

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/jun/drivemirror/internal/model"
)

// DynamoAPI is the subset of *dynamodb.Client methods used by DynamoIndex.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoIndex stores cache records in a DynamoDB table with partition key
// "pk" (zone#section#owner) and sort key "sk" (k#key, so the empty root key
// is a valid DynamoDB key). Records carry a "ttl" attribute so the table's
// TTL setting can reap expired entries.
//
// Blobs live on the local disk of the host that wrote them, so every record
// belongs to one owner. An index never reads, overwrites or deletes records
// of another owner, even when several hosts share the table and the zone.
type DynamoIndex struct {
	client    DynamoAPI
	tableName string
	owner     string
}

// NewDynamoIndex creates a DynamoIndex on tableName for owner. An empty
// owner gets a random one, which suits hosts whose cache disk does not
// outlive the process.
func NewDynamoIndex(client DynamoAPI, tableName, owner string) *DynamoIndex {
	if owner == "" {
		owner = uuid.NewString()
	}
	return &DynamoIndex{client: client, tableName: tableName, owner: owner}
}

// Owner returns the owner id stamped on every record.
func (x *DynamoIndex) Owner() string {
	return x.owner
}

type dynamoItem struct {
	PK    string `dynamodbav:"pk"`
	SK    string `dynamodbav:"sk"`
	Owner string `dynamodbav:"owner"`
	model.CacheRecord
}

func (x *DynamoIndex) partitionKey(zone, section string) string {
	return zone + "#" + section + "#" + x.owner
}

func sortKey(key string) string {
	return "k#" + key
}

func (x *DynamoIndex) itemKey(zone, section, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: x.partitionKey(zone, section)},
		"sk": &types.AttributeValueMemberS{Value: sortKey(key)},
	}
}

// Get retrieves the record for key.
func (x *DynamoIndex) Get(ctx context.Context, zone, section, key string) (*model.CacheRecord, error) {
	out, err := x.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(x.tableName),
		Key:            x.itemKey(zone, section, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get cache record: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache record: %w", err)
	}
	return &item.CacheRecord, nil
}

// Put writes rec, replacing any previous record for its key.
func (x *DynamoIndex) Put(ctx context.Context, rec model.CacheRecord) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		PK:          x.partitionKey(rec.Zone, rec.Section),
		SK:          sortKey(rec.Key),
		Owner:       x.owner,
		CacheRecord: rec,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache record: %w", err)
	}

	_, err = x.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(x.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put cache record: %w", err)
	}
	return nil
}

// Delete removes the record for key.
func (x *DynamoIndex) Delete(ctx context.Context, zone, section, key string) error {
	_, err := x.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(x.tableName),
		Key:       x.itemKey(zone, section, key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete cache record: %w", err)
	}
	return nil
}

// DeleteZone scans for the owner's records of zone and deletes them one by one.
func (x *DynamoIndex) DeleteZone(ctx context.Context, zone string) error {
	input := &dynamodb.ScanInput{
		TableName:            aws.String(x.tableName),
		FilterExpression:     aws.String("#zone = :zone AND #owner = :owner"),
		ProjectionExpression: aws.String("pk, sk"),
		ExpressionAttributeNames: map[string]string{
			"#zone":  "zone",
			"#owner": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zone":  &types.AttributeValueMemberS{Value: zone},
			":owner": &types.AttributeValueMemberS{Value: x.owner},
		},
	}

	for {
		out, err := x.client.Scan(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to scan cache zone: %w", err)
		}
		for _, item := range out.Items {
			_, err := x.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(x.tableName),
				Key: map[string]types.AttributeValue{
					"pk": item["pk"],
					"sk": item["sk"],
				},
			})
			if err != nil {
				return fmt.Errorf("failed to delete cache record: %w", err)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
