package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dogmatiq/linger"
	"github.com/evsrc/runtime/persistence/driver/aws/internal/awsx"
)

func getAttr[T types.AttributeValue](
	item map[string]types.AttributeValue,
	name string,
) (v T, err error) {
	a, ok := item[name]
	if !ok {
		return v, fmt.Errorf("item is corrupt: missing %q attribute", name)
	}

	v, ok = a.(T)
	if !ok {
		return v, fmt.Errorf(
			"item is corrupt: %q attribute should be %s not %s",
			name,
			reflect.TypeOf(v).Elem().Name(),
			reflect.TypeOf(a).Elem().Name(),
		)
	}

	return v, nil
}

func getUint64Attr(
	item map[string]types.AttributeValue,
	name string,
) (uint64, error) {
	a, err := getAttr[*types.AttributeValueMemberN](item, name)
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseUint(a.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("item is corrupt: %q attribute is not a valid unsigned integer: %w", name, err)
	}

	return n, nil
}

func uint64Attr(n uint64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{
		Value: strconv.FormatUint(n, 10),
	}
}

// createTable creates a table and waits for it to become active. It is not an
// error if the table already exists.
func createTable(
	ctx context.Context,
	client *dynamodb.Client,
	in *dynamodb.CreateTableInput,
	decorators []func(*dynamodb.CreateTableInput) []func(*dynamodb.Options),
) error {
	_, err := awsx.Do(
		ctx,
		client.CreateTable,
		func(in *dynamodb.CreateTableInput) []func(*dynamodb.Options) {
			var options []func(*dynamodb.Options)
			for _, dec := range decorators {
				options = append(options, dec(in)...)
			}
			return options
		},
		in,
	)

	if err != nil && !errors.As(err, new(*types.ResourceInUseException)) {
		return err
	}

	return waitForTable(ctx, client, aws.ToString(in.TableName))
}

// waitForTable blocks until the given table is active.
func waitForTable(
	ctx context.Context,
	client *dynamodb.Client,
	table string,
) error {
	for {
		out, err := client.DescribeTable(
			ctx,
			&dynamodb.DescribeTableInput{
				TableName: aws.String(table),
			},
		)
		if err != nil {
			return err
		}

		if out.Table.TableStatus == types.TableStatusActive {
			return nil
		}

		if err := linger.Sleep(ctx, 250*time.Millisecond); err != nil {
			return err
		}
	}
}
