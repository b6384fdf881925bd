package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/evsrc/runtime/persistence/driver/aws/internal/awsx"
	"github.com/evsrc/runtime/persistence/internal/pathkey"
	"github.com/evsrc/runtime/persistence/journal"
)

// JournalStore is an implementation of [journal.Store] that persists journals
// in a DynamoDB table.
type JournalStore struct {
	// Client is the DynamoDB client to use.
	Client *dynamodb.Client

	// Table is the table name used for storage of journal records.
	Table string

	// DecorateGetItem is an optional function that is called before each
	// DynamoDB "GetItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateGetItem func(*dynamodb.GetItemInput) []func(*dynamodb.Options)

	// DecorateQuery is an optional function that is called before each DynamoDB
	// "Query" request.
	DecorateQuery func(*dynamodb.QueryInput) []func(*dynamodb.Options)

	// DecoratePutItem is an optional function that is called before each
	// DynamoDB "PutItem" request.
	DecoratePutItem func(*dynamodb.PutItemInput) []func(*dynamodb.Options)
}

const (
	journalPathAttr     = "Path"
	journalPositionAttr = "Position"
	journalRecordAttr   = "Record"
)

// Open returns the journal at the given path.
func (s *JournalStore) Open(ctx context.Context, path ...string) (journal.Journal, error) {
	return &journ{
		store: s,
		path:  &types.AttributeValueMemberS{Value: pathkey.New(path...)},
	}, ctx.Err()
}

// journ is an implementation of [journal.Journal] that stores records in a
// DynamoDB table.
type journ struct {
	store *JournalStore
	path  *types.AttributeValueMemberS
}

func (j *journ) Bounds(ctx context.Context) (begin, end journal.Position, err error) {
	first, ok, err := j.edge(ctx, true)
	if err != nil || !ok {
		return 0, 0, err
	}

	last, _, err := j.edge(ctx, false)
	if err != nil {
		return 0, 0, err
	}

	return first, last + 1, nil
}

// edge returns the first or last position in the journal.
func (j *journ) edge(ctx context.Context, forward bool) (journal.Position, bool, error) {
	out, err := awsx.Do(
		ctx,
		j.store.Client.Query,
		j.store.DecorateQuery,
		&dynamodb.QueryInput{
			TableName:              aws.String(j.store.Table),
			KeyConditionExpression: aws.String(`#P = :P`),
			ProjectionExpression:   aws.String(`#V`),
			ConsistentRead:         aws.Bool(true),
			ScanIndexForward:       aws.Bool(forward),
			Limit:                  aws.Int32(1),
			ExpressionAttributeNames: map[string]string{
				"#P": journalPathAttr,
				"#V": journalPositionAttr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":P": j.path,
			},
		},
	)
	if err != nil || len(out.Items) == 0 {
		return 0, false, err
	}

	pos, err := getUint64Attr(out.Items[0], journalPositionAttr)
	return journal.Position(pos), true, err
}

func (j *journ) Get(ctx context.Context, pos journal.Position) ([]byte, bool, error) {
	out, err := awsx.Do(
		ctx,
		j.store.Client.GetItem,
		j.store.DecorateGetItem,
		&dynamodb.GetItemInput{
			TableName: aws.String(j.store.Table),
			Key: map[string]types.AttributeValue{
				journalPathAttr:     j.path,
				journalPositionAttr: uint64Attr(uint64(pos)),
			},
			ConsistentRead:       aws.Bool(true),
			ProjectionExpression: aws.String(`#R`),
			ExpressionAttributeNames: map[string]string{
				"#R": journalRecordAttr,
			},
		},
	)
	if err != nil || out.Item == nil {
		return nil, false, err
	}

	rec, err := getAttr[*types.AttributeValueMemberB](out.Item, journalRecordAttr)
	if err != nil {
		return nil, false, err
	}

	return rec.Value, true, nil
}

func (j *journ) Range(
	ctx context.Context,
	begin journal.Position,
	fn journal.RangeFunc,
) error {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(j.store.Table),
		KeyConditionExpression: aws.String(`#P = :P AND #V >= :V`),
		ProjectionExpression:   aws.String(`#V, #R`),
		ConsistentRead:         aws.Bool(true),
		ExpressionAttributeNames: map[string]string{
			"#P": journalPathAttr,
			"#V": journalPositionAttr,
			"#R": journalRecordAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":P": j.path,
			":V": uint64Attr(uint64(begin)),
		},
	}

	expect := begin

	for {
		out, err := awsx.Do(
			ctx,
			j.store.Client.Query,
			j.store.DecorateQuery,
			in,
		)
		if err != nil {
			return err
		}

		for _, item := range out.Items {
			n, err := getUint64Attr(item, journalPositionAttr)
			if err != nil {
				return err
			}

			pos := journal.Position(n)
			if pos != expect {
				return fmt.Errorf("journal is corrupt: expected position %d, got %d", expect, pos)
			}
			expect++

			rec, err := getAttr[*types.AttributeValueMemberB](item, journalRecordAttr)
			if err != nil {
				return err
			}

			ok, err := fn(ctx, pos, rec.Value)
			if !ok || err != nil {
				return err
			}
		}

		if out.LastEvaluatedKey == nil {
			return nil
		}

		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (j *journ) Append(ctx context.Context, end journal.Position, rec []byte) error {
	_, err := awsx.Do(
		ctx,
		j.store.Client.PutItem,
		j.store.DecoratePutItem,
		&dynamodb.PutItemInput{
			TableName:           aws.String(j.store.Table),
			ConditionExpression: aws.String(`attribute_not_exists(#P)`),
			ExpressionAttributeNames: map[string]string{
				"#P": journalPathAttr,
			},
			Item: map[string]types.AttributeValue{
				journalPathAttr:     j.path,
				journalPositionAttr: uint64Attr(uint64(end)),
				journalRecordAttr:   &types.AttributeValueMemberB{Value: rec},
			},
		},
	)

	if errors.As(err, new(*types.ConditionalCheckFailedException)) {
		return journal.ErrConflict
	}

	return err
}

func (j *journ) Close() error {
	return nil
}

// CreateJournalTable creates a DynamoDB table for use with [JournalStore].
func CreateJournalTable(
	ctx context.Context,
	client *dynamodb.Client,
	table string,
	decorators ...func(*dynamodb.CreateTableInput) []func(*dynamodb.Options),
) error {
	return createTable(
		ctx,
		client,
		&dynamodb.CreateTableInput{
			TableName: aws.String(table),
			AttributeDefinitions: []types.AttributeDefinition{
				{
					AttributeName: aws.String(journalPathAttr),
					AttributeType: types.ScalarAttributeTypeS,
				},
				{
					AttributeName: aws.String(journalPositionAttr),
					AttributeType: types.ScalarAttributeTypeN,
				},
			},
			KeySchema: []types.KeySchemaElement{
				{
					AttributeName: aws.String(journalPathAttr),
					KeyType:       types.KeyTypeHash,
				},
				{
					AttributeName: aws.String(journalPositionAttr),
					KeyType:       types.KeyTypeRange,
				},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
		decorators,
	)
}
