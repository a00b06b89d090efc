package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nyaruka/null/v3"
	"github.com/nyaruka/petpost"
)

// absentValue is what the table holds for an optional attribute the submitter didn't
// provide. It only exists at this boundary, in memory absence is a null string.
const absentValue = "N/A"

// item record as stored in DynamoDB
type dynamoItem struct {
	ItemID      string `dynamodbav:"ItemID"`
	SubmitterID string `dynamodbav:"SubmitterID"`
	Posted      bool   `dynamodbav:"Posted"`
	Label       string `dynamodbav:"Label"`
	Note        string `dynamodbav:"Note"`
}

func newDynamoItem(item *petpost.Item) *dynamoItem {
	return &dynamoItem{
		ItemID:      item.ItemID,
		SubmitterID: item.SubmitterID,
		Posted:      item.Posted,
		Label:       toSentinel(item.Label),
		Note:        toSentinel(item.Note),
	}
}

func (d *dynamoItem) unpack() *petpost.Item {
	return &petpost.Item{
		ItemID:      d.ItemID,
		SubmitterID: d.SubmitterID,
		Posted:      d.Posted,
		Label:       fromSentinel(d.Label),
		Note:        fromSentinel(d.Note),
	}
}

func toSentinel(s null.String) string {
	if s == "" {
		return absentValue
	}
	return string(s)
}

func fromSentinel(s string) null.String {
	if s == absentValue {
		return null.String("")
	}
	return null.String(s)
}

func itemKey(ref petpost.ItemRef) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"ItemID":      &types.AttributeValueMemberS{Value: ref.ItemID},
		"SubmitterID": &types.AttributeValueMemberS{Value: ref.SubmitterID},
	}
}

// GetItem returns the item with the given key, or nil if it doesn't exist
func (b *backend) GetItem(ctx context.Context, ref petpost.ItemRef) (*petpost.Item, error) {
	resp, err := b.dynamo.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.config.DynamoTable),
		Key:            itemKey(ref),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("error getting item from dynamo: %w", err)
	}
	if resp.Item == nil {
		return nil, nil // item not found
	}

	d := &dynamoItem{}
	if err := attributevalue.UnmarshalMap(resp.Item, d); err != nil {
		return nil, fmt.Errorf("error unmarshalling dynamo item: %w", err)
	}
	return d.unpack(), nil
}

// PutItem writes a new full item record
func (b *backend) PutItem(ctx context.Context, item *petpost.Item) error {
	m, err := attributevalue.MarshalMap(newDynamoItem(item))
	if err != nil {
		return fmt.Errorf("error marshalling item for dynamo: %w", err)
	}

	_, err = b.dynamo.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.config.DynamoTable),
		Item:      m,
	})
	if err != nil {
		return fmt.Errorf("error putting item to dynamo: %w", err)
	}
	return nil
}

// SetPosted flips the posted flag of the given record. The update is conditional on the
// flag currently holding the opposite value so concurrent toggles can't double apply -
// a failed condition means the record is already in the requested state and is a no-op.
func (b *backend) SetPosted(ctx context.Context, ref petpost.ItemRef, posted bool) error {
	_, err := b.dynamo.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(b.config.DynamoTable),
		Key:                 itemKey(ref),
		UpdateExpression:    aws.String("SET Posted = :new"),
		ConditionExpression: aws.String("Posted = :cur"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new": &types.AttributeValueMemberBOOL{Value: posted},
			":cur": &types.AttributeValueMemberBOOL{Value: !posted},
		},
	})

	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error updating posted flag in dynamo: %w", err)
	}
	return nil
}

// ListUnposted returns the keys of all records not yet shown in the current cycle
func (b *backend) ListUnposted(ctx context.Context) ([]petpost.ItemRef, error) {
	return b.listByPosted(ctx, false)
}

// ListPosted returns the keys of all records already shown in the current cycle
func (b *backend) ListPosted(ctx context.Context) ([]petpost.ItemRef, error) {
	return b.listByPosted(ctx, true)
}

func (b *backend) listByPosted(ctx context.Context, posted bool) ([]petpost.ItemRef, error) {
	refs := make([]petpost.ItemRef, 0, 10)

	var lastKey map[string]types.AttributeValue
	for {
		resp, err := b.dynamo.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(b.config.DynamoTable),
			FilterExpression:     aws.String("Posted = :posted"),
			ProjectionExpression: aws.String("ItemID, SubmitterID"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":posted": &types.AttributeValueMemberBOOL{Value: posted},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, fmt.Errorf("error scanning items in dynamo: %w", err)
		}

		rows := make([]*dynamoItem, 0, len(resp.Items))
		if err := attributevalue.UnmarshalListOfMaps(resp.Items, &rows); err != nil {
			return nil, fmt.Errorf("error unmarshalling dynamo items: %w", err)
		}
		for _, row := range rows {
			refs = append(refs, petpost.ItemRef{ItemID: row.ItemID, SubmitterID: row.SubmitterID})
		}

		lastKey = resp.LastEvaluatedKey
		if len(lastKey) == 0 {
			break
		}
	}

	return refs, nil
}
