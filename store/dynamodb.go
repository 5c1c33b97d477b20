package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nicolaor/chatflow"
)

// DynamoDBStore implements chatflow.ExecutionStore using AWS DynamoDB.
// Unlike the in-memory registry it supports time-boxed retention: when a
// TTL is configured, every record carries an expiry attribute for
// DynamoDB's native TTL sweeper.
type DynamoDBStore struct {
	client    DynamoDBClient
	tableName string
	ttl       time.Duration
}

// DynamoDBOption configures the store
type DynamoDBOption func(*DynamoDBStore)

// WithTTL sets the retention period stamped on every record. Zero keeps
// records forever.
func WithTTL(ttl time.Duration) DynamoDBOption {
	return func(s *DynamoDBStore) {
		s.ttl = ttl
	}
}

// NewDynamoDBStore creates a new DynamoDB-backed execution registry
func NewDynamoDBStore(client DynamoDBClient, tableName string, opts ...DynamoDBOption) *DynamoDBStore {
	s := &DynamoDBStore{
		client:    client,
		tableName: tableName,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDefaultClient creates a DynamoDB client from the ambient AWS
// configuration (environment, shared config files, instance role)
func NewDefaultClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

func (s *DynamoDBStore) CreateExecution(ctx context.Context, exec *chatflow.WorkflowExecution) error {
	item, err := s.marshalItem(exec)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("execution %s already exists", exec.ID)
		}
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) GetExecution(ctx context.Context, id string) (*chatflow.WorkflowExecution, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       executionKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("execution %s not found", id)
	}

	var rec executionRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return fromRecord(&rec)
}

func (s *DynamoDBStore) UpdateExecution(ctx context.Context, exec *chatflow.WorkflowExecution) error {
	item, err := s.marshalItem(exec)
	if err != nil {
		return err
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}

	// Cancellation is sticky: an in-flight run's progress updates must not
	// overwrite an externally requested cancel
	if exec.Status == chatflow.ExecutionStatusRunning {
		input.ConditionExpression = aws.String("#st <> :cancelled")
		input.ExpressionAttributeNames = map[string]string{"#st": AttrStatus}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":cancelled": &types.AttributeValueMemberS{Value: string(chatflow.ExecutionStatusCancelled)},
		}
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// Record was cancelled concurrently; keep the cancel
			return nil
		}
		return fmt.Errorf("failed to update execution: %w", err)
	}
	return nil
}

func (s *DynamoDBStore) GetStatus(ctx context.Context, id string) (chatflow.ExecutionStatus, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      executionKey(id),
		ProjectionExpression:     aws.String("#st"),
		ExpressionAttributeNames: map[string]string{"#st": AttrStatus},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get execution status: %w", err)
	}
	if result.Item == nil {
		return "", fmt.Errorf("execution %s not found", id)
	}

	attr, ok := result.Item[AttrStatus].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("execution %s has no status attribute", id)
	}
	return chatflow.ExecutionStatus(attr.Value), nil
}

func (s *DynamoDBStore) Cancel(ctx context.Context, id string) (bool, error) {
	// The workflow ID is needed to move the item into the cancelled GSI
	// partition, so read the key attributes first.
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      executionKey(id),
		ProjectionExpression:     aws.String("workflow_id, #st"),
		ExpressionAttributeNames: map[string]string{"#st": AttrStatus},
	})
	if err != nil {
		return false, fmt.Errorf("failed to cancel execution: %w", err)
	}
	if result.Item == nil {
		return false, nil
	}

	if attr, ok := result.Item[AttrStatus].(*types.AttributeValueMemberS); ok {
		if chatflow.ExecutionStatus(attr.Value).IsTerminal() {
			return false, nil
		}
	}
	wf, ok := result.Item["workflow_id"].(*types.AttributeValueMemberS)
	if !ok {
		return false, fmt.Errorf("execution %s has no workflow_id attribute", id)
	}

	now := time.Now()
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              executionKey(id),
		UpdateExpression: aws.String("SET #st = :cancelled, completed_at = :now, GSI1PK = :gsi1pk"),
		// Guard against a concurrently finished run reaching a terminal
		// status between the read and the write
		ConditionExpression: aws.String("attribute_exists(PK) AND #st IN (:notStarted, :running)"),
		ExpressionAttributeNames: map[string]string{
			"#st": AttrStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cancelled":  &types.AttributeValueMemberS{Value: string(chatflow.ExecutionStatusCancelled)},
			":now":        &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":gsi1pk":     &types.AttributeValueMemberS{Value: executionGSI1PK(wf.Value, string(chatflow.ExecutionStatusCancelled))},
			":notStarted": &types.AttributeValueMemberS{Value: string(chatflow.ExecutionStatusNotStarted)},
			":running":    &types.AttributeValueMemberS{Value: string(chatflow.ExecutionStatusRunning)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("failed to cancel execution: %w", err)
	}
	return true, nil
}

func (s *DynamoDBStore) ListExecutions(ctx context.Context, filter chatflow.ExecutionFilter) ([]*chatflow.WorkflowExecution, error) {
	if filter.WorkflowID != "" && filter.Status != nil {
		return s.queryByWorkflowStatus(ctx, filter)
	}
	return s.scan(ctx, filter)
}

// queryByWorkflowStatus uses the workflow+status GSI
func (s *DynamoDBStore) queryByWorkflowStatus(ctx context.Context, filter chatflow.ExecutionFilter) ([]*chatflow.WorkflowExecution, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(IndexWorkflowStatus),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{
				Value: executionGSI1PK(filter.WorkflowID, string(*filter.Status)),
			},
		},
	}
	if filter.Limit > 0 {
		input.Limit = aws.Int32(int32(filter.Limit))
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	return s.unmarshalList(result.Items, filter)
}

func (s *DynamoDBStore) scan(ctx context.Context, filter chatflow.ExecutionFilter) ([]*chatflow.WorkflowExecution, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("entity_type = :et"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":et": &types.AttributeValueMemberS{Value: EntityTypeExecution},
		},
	}

	result, err := s.client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan executions: %w", err)
	}
	return s.unmarshalList(result.Items, filter)
}

func (s *DynamoDBStore) unmarshalList(items []map[string]types.AttributeValue, filter chatflow.ExecutionFilter) ([]*chatflow.WorkflowExecution, error) {
	var out []*chatflow.WorkflowExecution
	for _, item := range items {
		var rec executionRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
		}
		exec, err := fromRecord(&rec)
		if err != nil {
			return nil, err
		}

		if filter.WorkflowID != "" && exec.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != nil && exec.Status != *filter.Status {
			continue
		}
		if filter.UserID != "" && exec.UserID != filter.UserID {
			continue
		}

		out = append(out, exec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *DynamoDBStore) marshalItem(exec *chatflow.WorkflowExecution) (map[string]types.AttributeValue, error) {
	rec, err := toRecord(exec)
	if err != nil {
		return nil, err
	}
	if s.ttl > 0 {
		rec.TTL = time.Now().Add(s.ttl).Unix()
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution: %w", err)
	}

	item[AttrPK] = &types.AttributeValueMemberS{Value: executionPK(exec.ID)}
	item[AttrSK] = &types.AttributeValueMemberS{Value: executionSK()}
	item[AttrEntityType] = &types.AttributeValueMemberS{Value: EntityTypeExecution}
	item[AttrGSI1PK] = &types.AttributeValueMemberS{
		Value: executionGSI1PK(exec.WorkflowID, string(exec.Status)),
	}
	item[AttrGSI1SK] = &types.AttributeValueMemberS{
		Value: executionGSI1SK(exec.StartedAt),
	}
	return item, nil
}

func executionKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: executionPK(id)},
		AttrSK: &types.AttributeValueMemberS{Value: executionSK()},
	}
}
