package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

type spanNames struct {
	noop.Tracer
	names []string
}

func (s *spanNames) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	s.names = append(s.names, name)
	return s.Tracer.Start(ctx, name, opts...)
}

// unreachableRepo points at a closed port; Connect is lazy so only the
// operations themselves fail.
func unreachableRepo(t *testing.T, tracer trace.Tracer) *MongoDBRepository {
	t.Helper()
	client, err := mongo.Connect(context.Background(), options.Client().
		ApplyURI("mongodb://127.0.0.1:1").
		SetServerSelectionTimeout(50*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	return &MongoDBRepository{
		client: client,
		db:     client.Database("farmledger_test"),
		tracer: tracer,
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

func TestReadsAreTraced(t *testing.T) {
	tracer := &spanNames{}
	r := unreachableRepo(t, tracer)
	key := models.LedgerKey{FarmID: "farm-1", Category: models.CategoryLayers}

	_, err := r.MetricByDate(context.Background(), key, "2025-06-01")
	assert.Error(t, err)
	_, err = r.Metrics(context.Background(), key)
	assert.Error(t, err)

	assert.Equal(t, []string{"mongodb.metric_by_date", "mongodb.metrics"}, tracer.names)
}
