package dynamodb_test

import (
	"context"
	"testing"
	"time"

	. "github.com/evsrc/runtime/persistence/driver/aws/dynamodb"
	"github.com/evsrc/runtime/persistence/kv"
)

func TestKeyValueStore(t *testing.T) {
	client := newClient(t)
	table := "kv"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := CreateKeyValueStoreTable(ctx, client, table); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := deleteTable(context.Background(), client, table); err != nil {
			t.Fatal(err)
		}
	})

	kv.RunTests(
		t,
		func(t *testing.T) kv.Store {
			return &KeyValueStore{
				Client: client,
				Table:  table,
			}
		},
	)
}
