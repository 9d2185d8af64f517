package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	PostgresImage = "postgres:16-alpine"
	MongoImage    = "mongo:7"
)

// postgresFixture is loaded into the shared PostgreSQL container.
// accounts and orders are related; audit_log is an island.
var postgresFixture = []string{
	`CREATE TABLE accounts (
		id SERIAL PRIMARY KEY,
		email TEXT NOT NULL,
		plan TEXT
	)`,
	`COMMENT ON TABLE accounts IS 'Customer accounts'`,
	`CREATE TABLE orders (
		id SERIAL PRIMARY KEY,
		account_id INTEGER NOT NULL REFERENCES accounts(id),
		total NUMERIC(10,2)
	)`,
	`CREATE TABLE audit_log (id BIGSERIAL PRIMARY KEY, message TEXT)`,
	`INSERT INTO accounts (email, plan) VALUES
		('a@example.com', 'free'), ('b@example.com', 'pro'), ('c@example.com', NULL)`,
	`INSERT INTO orders (account_id, total) VALUES (1, 10.00), (1, 12.50), (2, 99.99)`,
	`ANALYZE`,
}

// PostgresSource is a running PostgreSQL container seeded with the fixture.
type PostgresSource struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	// Config is the source connection map for the postgres adapter.
	Config map[string]any
}

var (
	sharedPostgres     *PostgresSource
	sharedPostgresOnce sync.Once
	sharedPostgresErr  error
)

// GetPostgresSource returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetPostgresSource(t *testing.T) *PostgresSource {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedPostgresOnce.Do(func() {
		sharedPostgres, sharedPostgresErr = setupPostgres()
	})

	if sharedPostgresErr != nil {
		t.Fatalf("Failed to setup postgres source: %v", sharedPostgresErr)
	}

	return sharedPostgres
}

func setupPostgres() (*PostgresSource, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "shop",
			"POSTGRES_USER":     "crawler",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The entrypoint restarts the server once after init.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://crawler:test_password@%s:%s/shop?sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres never answered: %w", err)
	}

	for _, stmt := range postgresFixture {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to load fixture: %w", err)
		}
	}

	return &PostgresSource{
		Container: container,
		Pool:      pool,
		Config: map[string]any{
			"host":     host,
			"port":     port.Int(),
			"user":     "crawler",
			"password": "test_password",
			"database": "shop",
			"ssl_mode": "disable",
		},
	}, nil
}

// MongoSource is a running MongoDB container seeded with the fixture.
type MongoSource struct {
	Container testcontainers.Container
	Client    *mongo.Client
	Database  string
	// Config is the source connection map for the mongodb adapter.
	Config map[string]any
}

var (
	sharedMongo     *MongoSource
	sharedMongoOnce sync.Once
	sharedMongoErr  error
)

// GetMongoSource returns a shared MongoDB container for integration tests.
func GetMongoSource(t *testing.T) *MongoSource {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedMongoOnce.Do(func() {
		sharedMongo, sharedMongoErr = setupMongo()
	})

	if sharedMongoErr != nil {
		t.Fatalf("Failed to setup mongo source: %v", sharedMongoErr)
	}

	return sharedMongo
}

func setupMongo() (*MongoSource, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        MongoImage,
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor: wait.ForLog("Waiting for connections").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start mongo container: %w", err)
	}

	endpoint, err := container.PortEndpoint(ctx, "27017/tcp", "mongodb")
	if err != nil {
		return nil, fmt.Errorf("failed to get container endpoint: %w", err)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	const database = "shop"
	if err := seedMongo(ctx, client.Database(database)); err != nil {
		return nil, err
	}

	return &MongoSource{
		Container: container,
		Client:    client,
		Database:  database,
		Config: map[string]any{
			"uri":      endpoint,
			"database": database,
		},
	}, nil
}

// seedMongo loads customers and orders; orders.customer_id refers to customers.
func seedMongo(ctx context.Context, db *mongo.Database) error {
	alice, bob := primitive.NewObjectID(), primitive.NewObjectID()
	customers := []any{
		bson.M{"_id": alice, "name": "Alice", "address": bson.M{"city": "Oslo"}},
		bson.M{"_id": bob, "name": "Bob", "tags": bson.A{"vip"}},
	}
	orders := []any{
		bson.M{"customer_id": alice, "items": bson.A{bson.M{"sku": "A1", "qty": 2}}},
		bson.M{"customer_id": bob, "items": bson.A{bson.M{"sku": "B7", "qty": 1}}},
		bson.M{"customer_id": alice, "created_at": time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}

	if _, err := db.Collection("customers").InsertMany(ctx, customers); err != nil {
		return fmt.Errorf("failed to seed customers: %w", err)
	}
	if _, err := db.Collection("orders").InsertMany(ctx, orders); err != nil {
		return fmt.Errorf("failed to seed orders: %w", err)
	}
	return nil
}
