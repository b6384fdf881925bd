package engineconfig

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/dogmatiq/ferrite"
	"github.com/evsrc/runtime/internal/telemetry/instrumentedpersistence"
	awsdynamodb "github.com/evsrc/runtime/persistence/driver/aws/dynamodb"
	"github.com/evsrc/runtime/persistence/driver/memory"
	"github.com/evsrc/runtime/persistence/driver/postgres"
	"github.com/evsrc/runtime/persistence/driver/sqlite"
	_ "github.com/jackc/pgx/v4/stdlib" // register "pgx" driver
)

// persistenceDSN is the DSN describing which persistence driver to use.
var persistenceDSN = ferrite.
	URL("RUNTIME_PERSISTENCE_DSN", "the DSN of the journal and key/value stores").
	Optional()

const (
	defaultJournalTable  = "runtime_journal"
	defaultKeyValueTable = "runtime_kv"
)

func (c *Config) finalizePersistence() error {
	if c.UseEnv && c.Persistence.Journals == nil && c.Persistence.Keyspaces == nil {
		if dsn, ok := persistenceDSN.Value(); ok {
			if err := c.persistenceFromDSN(context.Background(), dsn); err != nil {
				return err
			}
		}
	}

	if c.Persistence.Journals == nil {
		return errors.New("no journal store is configured, set RUNTIME_PERSISTENCE_DSN or provide the WithJournalStore() option")
	}

	if c.Persistence.Keyspaces == nil {
		return errors.New("no key/value store is configured, set RUNTIME_PERSISTENCE_DSN or provide the WithKeyValueStore() option")
	}

	c.Persistence.Journals = &instrumentedpersistence.JournalStore{
		Next:      c.Persistence.Journals,
		Telemetry: c.Telemetry,
	}

	c.Persistence.Keyspaces = &instrumentedpersistence.KeyValueStore{
		Next:      c.Persistence.Keyspaces,
		Telemetry: c.Telemetry,
	}

	return nil
}

// persistenceFromDSN configures the journal and key/value stores described by
// the given DSN.
//
// The supported schemes are:
//
//	memory:
//	sqlite:<path>
//	postgres://<user>:<password>@<host>/<database>
//	dynamodb:?journal_table=<table>&kv_table=<table>&region=<region>&endpoint=<url>
func (c *Config) persistenceFromDSN(ctx context.Context, dsn *url.URL) error {
	switch dsn.Scheme {
	case "memory":
		c.Persistence.Journals = &memory.JournalStore{}
		c.Persistence.Keyspaces = &memory.KeyValueStore{}
		return nil

	case "sqlite":
		path := dsn.Opaque
		if path == "" {
			path = dsn.Path
		}

		db, err := sqlite.Open(path)
		if err != nil {
			return fmt.Errorf("unable to open SQLite database: %w", err)
		}

		return c.useSQL(ctx, db, sqlite.CreateSchema, func() {
			c.Persistence.Journals = &sqlite.JournalStore{DB: db}
			c.Persistence.Keyspaces = &sqlite.KeyValueStore{DB: db}
		})

	case "postgres", "postgresql":
		db, err := sql.Open("pgx", dsn.String())
		if err != nil {
			return fmt.Errorf("unable to open PostgreSQL database: %w", err)
		}

		return c.useSQL(ctx, db, postgres.CreateSchema, func() {
			c.Persistence.Journals = &postgres.JournalStore{DB: db}
			c.Persistence.Keyspaces = &postgres.KeyValueStore{DB: db}
		})

	case "dynamodb":
		return c.useDynamoDB(ctx, dsn.Query())

	default:
		return fmt.Errorf("unsupported persistence DSN scheme: %q", dsn.Scheme)
	}
}

func (c *Config) useSQL(
	ctx context.Context,
	db *sql.DB,
	createSchema func(context.Context, *sql.DB) error,
	use func(),
) error {
	if err := createSchema(ctx, db); err != nil {
		return errors.Join(
			fmt.Errorf("unable to create schema: %w", err),
			db.Close(),
		)
	}

	c.Closers = append(c.Closers, db.Close)
	use()

	return nil
}

func (c *Config) useDynamoDB(ctx context.Context, q url.Values) error {
	var options []func(*awsconfig.LoadOptions) error

	if region := q.Get("region"); region != "" {
		options = append(options, awsconfig.WithRegion(region))
	}

	if endpoint := q.Get("endpoint"); endpoint != "" {
		options = append(
			options,
			awsconfig.WithEndpointResolverWithOptions(
				aws.EndpointResolverWithOptionsFunc(
					func(service, region string, options ...any) (aws.Endpoint, error) {
						return aws.Endpoint{URL: endpoint}, nil
					},
				),
			),
		)
	}

	if id := q.Get("access_key_id"); id != "" {
		options = append(
			options,
			awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(
					id,
					q.Get("secret_access_key"),
					"",
				),
			),
		)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return fmt.Errorf("unable to load AWS configuration: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg)

	journalTable := q.Get("journal_table")
	if journalTable == "" {
		journalTable = defaultJournalTable
	}

	kvTable := q.Get("kv_table")
	if kvTable == "" {
		kvTable = defaultKeyValueTable
	}

	if err := awsdynamodb.CreateJournalTable(ctx, client, journalTable); err != nil {
		return fmt.Errorf("unable to create DynamoDB journal table: %w", err)
	}

	if err := awsdynamodb.CreateKeyValueStoreTable(ctx, client, kvTable); err != nil {
		return fmt.Errorf("unable to create DynamoDB key/value table: %w", err)
	}

	c.Persistence.Journals = &awsdynamodb.JournalStore{Client: client, Table: journalTable}
	c.Persistence.Keyspaces = &awsdynamodb.KeyValueStore{Client: client, Table: kvTable}

	return nil
}
