package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/nikworkspace/anyshare/internal/domain"
)

// roomCodeIndex is a GSI keyed on room_code; the table's own key is
// session_id. The ttl attribute is registered as the table's TTL field so
// DynamoDB reclaims expired records on its own.
const roomCodeIndex = "room_code-index"

// DynamoStore persists session records to a DynamoDB table.
type DynamoStore struct {
	svc   *dynamodb.Client
	table string
}

func NewDynamoStore(ctx context.Context, table string) (*DynamoStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &DynamoStore{svc: dynamodb.NewFromConfig(cfg), table: table}, nil
}

func (d *DynamoStore) Save(ctx context.Context, s *domain.Session) error {
	av, err := attributevalue.MarshalMap(toRecord(s))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = d.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	log.Debug().Str("module", "storage.dynamo").Str("session_id", string(s.ID)).Str("status", string(s.Status)).Msg("session saved")
	return nil
}

func (d *DynamoStore) FindByID(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	out, err := d.svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: string(id)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var rec sessionRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return fromRecord(rec), nil
}

func (d *DynamoStore) FindByRoomCode(ctx context.Context, code domain.RoomCode) (*domain.Session, error) {
	out, err := d.svc.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		IndexName:              aws.String(roomCodeIndex),
		KeyConditionExpression: aws.String("room_code = :code"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":code": &types.AttributeValueMemberS{Value: string(code)},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query room code: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}
	var rec sessionRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return fromRecord(rec), nil
}
