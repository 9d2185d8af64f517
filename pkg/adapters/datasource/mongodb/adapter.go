package mongodb

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/logging"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/retry"
)

// writeStages are aggregation stages that persist results.
var writeStages = map[string]bool{
	"$out":   true,
	"$merge": true,
}

// Adapter provides read-only MongoDB access. The client is connected on
// first use and owned until Close.
type Adapter struct {
	config *Config
	logger *zap.Logger

	mu     sync.Mutex
	client *mongo.Client
	closed bool
}

// NewAdapter creates a MongoDB adapter. It does not connect.
func NewAdapter(cfg *Config, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		config: cfg,
		logger: logger.Named("mongodb"),
	}
}

func (a *Adapter) Kind() models.SourceKind { return models.SourceKindDocument }

func (a *Adapter) Database() string { return a.config.Database }

func (a *Adapter) getClient(ctx context.Context) (*mongo.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, fmt.Errorf("mongodb adapter is closed")
	}
	if a.client != nil {
		return a.client, nil
	}

	opts := options.Client().
		ApplyURI(a.config.ConnectionURI()).
		SetAppName("ekaya-metagraph").
		SetServerSelectionTimeout(a.config.ServerSelectionTimeout).
		SetMaxPoolSize(2)

	client, err := retry.DoWithResult(ctx, nil, func() (*mongo.Client, error) {
		return mongo.Connect(ctx, opts)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %s", logging.SanitizeError(err))
	}

	a.client = client
	a.logger.Debug("Created client",
		zap.String("uri", logging.SanitizeConnectionString(a.config.ConnectionURI())),
		zap.String("database", a.config.Database))
	return client, nil
}

// HealthCheck pings the deployment.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	client, err := a.getClient(ctx)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping failed: %s", logging.SanitizeError(err))
	}
	return nil
}

// ListCollections returns the names of real collections, excluding views
// and system collections, sorted.
func (a *Adapter) ListCollections(ctx context.Context) ([]string, error) {
	client, err := a.getClient(ctx)
	if err != nil {
		return nil, err
	}

	filter := bson.D{
		{Key: "type", Value: "collection"},
		{Key: "name", Value: bson.D{{Key: "$not", Value: primitive.Regex{Pattern: "^system\\."}}}},
	}
	names, err := client.Database(a.config.Database).ListCollectionNames(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Aggregate runs a read-only pipeline and returns normalized documents.
// Pipelines containing $out or $merge are rejected before any network call.
func (a *Adapter) Aggregate(ctx context.Context, collection string, pipeline []map[string]any) ([]map[string]any, error) {
	stages := make(bson.A, 0, len(pipeline))
	for i, stage := range pipeline {
		for op := range stage {
			if writeStages[op] {
				return nil, fmt.Errorf("%w: pipeline stage %d uses %s", apperrors.ErrUnsafeQuery, i, op)
			}
		}
		stages = append(stages, bson.M(stage))
	}

	client, err := a.getClient(ctx)
	if err != nil {
		return nil, err
	}

	cursor, err := client.Database(a.config.Database).Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("read %s cursor: %w", collection, err)
	}

	out := make([]map[string]any, len(docs))
	for i, doc := range docs {
		out[i] = normalizeDocument(doc)
	}
	return out, nil
}

// Close disconnects the client. Safe to call more than once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	if a.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.client.Disconnect(ctx)
	a.client = nil
	return err
}

func normalizeDocument(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

// normalizeValue maps BSON types onto the driver-neutral values the
// document crawler understands.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case bson.M:
		return normalizeDocument(val)
	case map[string]any:
		return normalizeDocument(val)
	case bson.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case bson.A:
		arr := make([]any, len(val))
		for i, item := range val {
			arr[i] = normalizeValue(item)
		}
		return arr
	case []any:
		arr := make([]any, len(val))
		for i, item := range val {
			arr[i] = normalizeValue(item)
		}
		return arr
	case primitive.ObjectID:
		return datasource.ObjectID(val.Hex())
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	case primitive.Binary:
		return datasource.Binary(val.Data)
	case primitive.Decimal128:
		if f, err := strconv.ParseFloat(val.String(), 64); err == nil {
			return f
		}
		return val.String()
	case int32:
		return int64(val)
	case primitive.Null, primitive.Undefined:
		return nil
	}
	return v
}

var _ datasource.DocumentAdapter = (*Adapter)(nil)
