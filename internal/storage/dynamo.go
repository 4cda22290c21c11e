package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

const (
	metadataSK        = "METADATA"
	conversationsGSI1 = "CONVERSATIONS"
	gsi1Name          = "GSI1"

	// Fixed width so GSI1SK sorts chronologically.
	sortTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// item is the single-table record. Every kind stores its JSON record in Body;
// GSI1 groups conversations for listing and children under their parent.
type item struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	GSI1PK    string `dynamodbav:"GSI1PK"`
	GSI1SK    string `dynamodbav:"GSI1SK"`
	Kind      string `dynamodbav:"kind"`
	Status    string `dynamodbav:"status,omitempty"`
	Topic     string `dynamodbav:"topic,omitempty"`
	Body      string `dynamodbav:"body"`
	CreatedAt string `dynamodbav:"createdAt"`
}

func conversationPK(id string) string { return "CONV#" + id }
func summaryPK(id string) string      { return "SUM#" + id }
func videoScriptPK(id string) string  { return "VID#" + id }

func sortKey(t time.Time, id string) string {
	return t.UTC().Format(sortTimeLayout) + "#" + id
}

func itemKey(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

// DynamoStore keeps all records in one DynamoDB table keyed by PK/SK with a GSI1
// (GSI1PK, GSI1SK) index for newest-first listing.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

func (s *DynamoStore) put(ctx context.Context, it item, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", it.Kind, err)
	}
	it.SK = metadataSK
	it.Body = string(body)

	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return fmt.Errorf("marshal %s item: %w", it.Kind, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      av,
	}); err != nil {
		return fmt.Errorf("put %s item: %w", it.Kind, err)
	}
	return nil
}

func (s *DynamoStore) get(ctx context.Context, pk, id string, v any) error {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       itemKey(pk),
	})
	if err != nil {
		return fmt.Errorf("get %s: %w", id, err)
	}
	if result.Item == nil {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	var it item
	if err := attributevalue.UnmarshalMap(result.Item, &it); err != nil {
		return fmt.Errorf("unmarshal %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(it.Body), v); err != nil {
		return fmt.Errorf("decode %s: %w", id, err)
	}
	return nil
}

// query pages through GSI1 newest first until limit items pass keep (limit <= 0: all).
func (s *DynamoStore) query(ctx context.Context, gsi1pk string, limit int, keep func(item) bool) ([]item, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String(gsi1Name),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: gsi1pk},
		},
		ScanIndexForward: aws.Bool(false),
	}

	var out []item
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", gsi1pk, err)
		}
		var page []item
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal %s page: %w", gsi1pk, err)
		}
		for _, it := range page {
			if keep != nil && !keep(it) {
				continue
			}
			out = append(out, it)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
		if len(result.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

func decodeItems[T any](items []item) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, it := range items {
		var v T
		if err := json.Unmarshal([]byte(it.Body), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", it.PK, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *DynamoStore) SaveConversation(ctx context.Context, c *Conversation) error {
	return s.put(ctx, item{
		PK:        conversationPK(c.ID),
		GSI1PK:    conversationsGSI1,
		GSI1SK:    sortKey(c.CreatedAt, c.ID),
		Kind:      "conversation",
		Status:    string(c.Status),
		Topic:     c.Topic,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}, c)
}

func (s *DynamoStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	if err := s.get(ctx, conversationPK(id), id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *DynamoStore) ListConversations(ctx context.Context, opts ListOptions) ([]Conversation, error) {
	items, err := s.query(ctx, conversationsGSI1, opts.Limit, func(it item) bool {
		return opts.Status == "" || it.Status == string(opts.Status)
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return decodeItems[Conversation](items)
}

func (s *DynamoStore) DeleteConversation(ctx context.Context, id string) error {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    &s.tableName,
		Key:          itemKey(conversationPK(id)),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	if len(out.Attributes) == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *DynamoStore) SaveSummary(ctx context.Context, sum *Summary) error {
	return s.put(ctx, item{
		PK:        summaryPK(sum.ID),
		GSI1PK:    conversationPK(sum.ConversationID),
		GSI1SK:    "SUM#" + sortKey(sum.CreatedAt, sum.ID),
		Kind:      "summary",
		Topic:     sum.Summary.CondensedTopic,
		CreatedAt: sum.CreatedAt.UTC().Format(time.RFC3339),
	}, sum)
}

func (s *DynamoStore) GetSummary(ctx context.Context, id string) (*Summary, error) {
	var sum Summary
	if err := s.get(ctx, summaryPK(id), id, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

func (s *DynamoStore) ListSummaries(ctx context.Context, conversationID string) ([]Summary, error) {
	items, err := s.query(ctx, conversationPK(conversationID), 0, func(it item) bool {
		return it.Kind == "summary"
	})
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return decodeItems[Summary](items)
}

func (s *DynamoStore) SaveVideoScript(ctx context.Context, v *VideoScript) error {
	return s.put(ctx, item{
		PK:        videoScriptPK(v.ID),
		GSI1PK:    summaryPK(v.SummaryID),
		GSI1SK:    "VID#" + sortKey(v.CreatedAt, v.ID),
		Kind:      "video_script",
		Topic:     v.Script.Title,
		CreatedAt: v.CreatedAt.UTC().Format(time.RFC3339),
	}, v)
}

func (s *DynamoStore) GetVideoScript(ctx context.Context, id string) (*VideoScript, error) {
	var v VideoScript
	if err := s.get(ctx, videoScriptPK(id), id, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *DynamoStore) ListVideoScripts(ctx context.Context, summaryID string) ([]VideoScript, error) {
	items, err := s.query(ctx, summaryPK(summaryID), 0, func(it item) bool {
		return it.Kind == "video_script"
	})
	if err != nil {
		return nil, fmt.Errorf("list video scripts: %w", err)
	}
	return decodeItems[VideoScript](items)
}

func (s *DynamoStore) Close() error { return nil }
