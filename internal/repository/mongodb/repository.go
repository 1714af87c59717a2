package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/errs"
	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/instrumentation"
	"github.com/mamadbah2/farmledger/internal/repository"
)

const (
	ledgersCollection = "ledgers"
	salesCollection   = "sales"
	metricsCollection = "metric_snapshots"
)

// MongoDBRepository implements repository.Store on MongoDB. Units of work
// use multi-document transactions and therefore need a replica set.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	tracer trace.Tracer
	logger *zap.Logger
	now    func() time.Time
}

var _ repository.Store = (*MongoDBRepository)(nil)

// ledgerDocument stores one aggregate under its typed key.
type ledgerDocument struct {
	ID                models.LedgerKey `bson:"_id"`
	models.FarmLedger `bson:",inline"`
}

// NewMongoDBRepository connects, pings and ensures indexes.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	r := &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
		tracer: otel.Tracer("farmledger/mongodb"),
		logger: logger,
		now:    time.Now,
	}
	if err := r.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MongoDBRepository) ensureIndexes(ctx context.Context) error {
	_, err := r.db.Collection(metricsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key.farm_id", Value: 1}, {Key: "key.category", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_metric_per_day"),
		},
	})
	if err != nil {
		return fmt.Errorf("create metric indexes: %w", err)
	}

	_, err = r.db.Collection(salesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "key.farm_id", Value: 1}, {Key: "key.category", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("sales_by_ledger"),
		},
		{
			Keys: bson.D{{Key: "key.farm_id", Value: 1}, {Key: "key.category", Value: 1}, {Key: "transaction_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_sale_transaction").
				SetPartialFilterExpression(bson.M{"transaction_id": bson.M{"$exists": true}}),
		},
	})
	if err != nil {
		return fmt.Errorf("create sale indexes: %w", err)
	}
	return nil
}

// Atomically runs fn inside one MongoDB transaction. The callback is invoked
// exactly once: the driver's WithTransaction helper is not used because it
// re-runs the callback on transient transaction errors.
func (r *MongoDBRepository) Atomically(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	ctx, span := r.start(ctx, "mongodb.atomically")
	defer func(start time.Time) { r.finish(span, "atomically", start, err) }(time.Now())

	sess, err := r.client.StartSession()
	if err != nil {
		return classify("start session", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := sess.StartTransaction(txOpts); err != nil {
		return classify("start transaction", err)
	}

	sessCtx := mongo.NewSessionContext(ctx, sess)
	if err := fn(sessCtx, &mongoTx{repo: r}); err != nil {
		if abortErr := sess.AbortTransaction(context.WithoutCancel(ctx)); abortErr != nil {
			r.logger.Warn("abort transaction failed", zap.Error(abortErr))
		}
		return err
	}

	if err := sess.CommitTransaction(sessCtx); err != nil {
		return classify("commit transaction", err)
	}
	return nil
}

// Provision inserts an empty ledger unless one exists.
func (r *MongoDBRepository) Provision(ctx context.Context, key models.LedgerKey) (l models.FarmLedger, created bool, err error) {
	ctx, span := r.start(ctx, "mongodb.provision", attribute.String("ledger", key.String()))
	defer func(start time.Time) { r.finish(span, "provision", start, err) }(time.Now())

	fresh := models.NewFarmLedger(key, r.now().UTC())
	fresh.Version = 1
	res, err := r.db.Collection(ledgersCollection).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$setOnInsert": ledgerDocument{ID: key, FarmLedger: fresh}},
		options.Update().SetUpsert(true),
	)
	switch {
	case mongo.IsDuplicateKeyError(err):
		// a concurrent provision won the upsert
	case err != nil:
		return models.FarmLedger{}, false, classify("provision ledger", err)
	default:
		created = res.UpsertedCount > 0
	}
	l, err = r.loadLedger(ctx, key)
	if err != nil {
		return models.FarmLedger{}, false, err
	}
	return l, created, nil
}

// Ledger reads one aggregate.
func (r *MongoDBRepository) Ledger(ctx context.Context, key models.LedgerKey) (l models.FarmLedger, err error) {
	ctx, span := r.start(ctx, "mongodb.ledger", attribute.String("ledger", key.String()))
	defer func(start time.Time) { r.finish(span, "ledger", start, err) }(time.Now())
	return r.loadLedger(ctx, key)
}

func (r *MongoDBRepository) loadLedger(ctx context.Context, key models.LedgerKey) (models.FarmLedger, error) {
	var doc ledgerDocument
	err := r.db.Collection(ledgersCollection).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.FarmLedger{}, fmt.Errorf("ledger %s: %w", key, errs.ErrLedgerNotFound)
	}
	if err != nil {
		return models.FarmLedger{}, classify("load ledger", err)
	}
	if doc.Events == nil {
		doc.Events = []models.StockEvent{}
	}
	doc.FarmLedger.Key = key
	return doc.FarmLedger, nil
}

// Reset removes the ledger and every collection entry of key in one transaction.
func (r *MongoDBRepository) Reset(ctx context.Context, key models.LedgerKey) error {
	return r.Atomically(ctx, func(ctx context.Context, _ repository.Tx) error {
		if _, err := r.db.Collection(ledgersCollection).DeleteOne(ctx, bson.M{"_id": key}); err != nil {
			return classify("delete ledger", err)
		}
		if _, err := r.db.Collection(salesCollection).DeleteMany(ctx, keyFilter(key)); err != nil {
			return classify("delete sales", err)
		}
		if _, err := r.db.Collection(metricsCollection).DeleteMany(ctx, keyFilter(key)); err != nil {
			return classify("delete metrics", err)
		}
		return nil
	})
}

// Sales lists the sales of key in insertion order.
func (r *MongoDBRepository) Sales(ctx context.Context, key models.LedgerKey) (out []models.Sale, err error) {
	ctx, span := r.start(ctx, "mongodb.sales", attribute.String("ledger", key.String()))
	defer func(start time.Time) { r.finish(span, "sales", start, err) }(time.Now())

	cursor, err := r.db.Collection(salesCollection).Find(ctx, keyFilter(key),
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, classify("find sales", err)
	}
	out = []models.Sale{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, classify("decode sales", err)
	}
	return out, nil
}

// InsertMetric relies on the unique (key, date) index.
func (r *MongoDBRepository) InsertMetric(ctx context.Context, snapshot models.PerformanceMetricSnapshot) (err error) {
	ctx, span := r.start(ctx, "mongodb.insert_metric",
		attribute.String("ledger", snapshot.Key.String()),
		attribute.String("date", snapshot.Date))
	defer func(start time.Time) { r.finish(span, "insert_metric", start, err) }(time.Now())

	_, err = r.db.Collection(metricsCollection).InsertOne(ctx, snapshot)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("metric %s on %s: %w", snapshot.Key, snapshot.Date, errs.ErrDuplicateSnapshot)
	}
	if err != nil {
		return classify("insert metric", err)
	}
	return nil
}

// MetricByDate returns nil when the date has no snapshot.
func (r *MongoDBRepository) MetricByDate(ctx context.Context, key models.LedgerKey, date string) (out *models.PerformanceMetricSnapshot, err error) {
	ctx, span := r.start(ctx, "mongodb.metric_by_date", attribute.String("ledger", key.String()), attribute.String("date", date))
	defer func(start time.Time) { r.finish(span, "metric_by_date", start, err) }(time.Now())

	filter := keyFilter(key)
	filter["date"] = date

	var snap models.PerformanceMetricSnapshot
	err = r.db.Collection(metricsCollection).FindOne(ctx, filter).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find metric", err)
	}
	return &snap, nil
}

// Metrics lists the snapshots of key in insertion order.
func (r *MongoDBRepository) Metrics(ctx context.Context, key models.LedgerKey) (out []models.PerformanceMetricSnapshot, err error) {
	ctx, span := r.start(ctx, "mongodb.metrics", attribute.String("ledger", key.String()))
	defer func(start time.Time) { r.finish(span, "metrics", start, err) }(time.Now())

	cursor, err := r.db.Collection(metricsCollection).Find(ctx, keyFilter(key),
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, classify("find metrics", err)
	}
	out = []models.PerformanceMetricSnapshot{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, classify("decode metrics", err)
	}
	return out, nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoDBRepository) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (r *MongoDBRepository) finish(span trace.Span, op string, start time.Time, err error) {
	instrumentation.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.code", string(errs.CodeOf(err))))
	}
	span.End()
}

func keyFilter(key models.LedgerKey) bson.M {
	return bson.M{"key.farm_id": key.FarmID, "key.category": key.Category}
}

type mongoTx struct {
	repo *MongoDBRepository
}

func (t *mongoTx) Ledger(ctx context.Context, key models.LedgerKey) (models.FarmLedger, error) {
	return t.repo.loadLedger(ctx, key)
}

func (t *mongoTx) SaveLedger(ctx context.Context, l models.FarmLedger) (models.FarmLedger, error) {
	saved := l.Clone()
	saved.Version = l.Version + 1
	saved.UpdatedAt = t.repo.now().UTC()

	res, err := t.repo.db.Collection(ledgersCollection).ReplaceOne(ctx,
		bson.M{"_id": l.Key, "version": l.Version},
		ledgerDocument{ID: l.Key, FarmLedger: saved},
	)
	if err != nil {
		return models.FarmLedger{}, classify("save ledger", err)
	}
	if res.MatchedCount == 0 {
		return models.FarmLedger{}, fmt.Errorf("ledger %s at version %d: %w", l.Key, l.Version, errs.ErrConcurrentUpdate)
	}
	return saved, nil
}

func (t *mongoTx) InsertSale(ctx context.Context, sale models.Sale) error {
	_, err := t.repo.db.Collection(salesCollection).InsertOne(ctx, sale)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("sale %s: %w", sale.TransactionID, errs.ErrDuplicateTransaction)
	}
	if err != nil {
		return classify("insert sale", err)
	}
	return nil
}

func (t *mongoTx) SaleByTransactionID(ctx context.Context, key models.LedgerKey, transactionID string) (*models.Sale, error) {
	if transactionID == "" {
		return nil, nil
	}
	filter := keyFilter(key)
	filter["transaction_id"] = transactionID

	var sale models.Sale
	err := t.repo.db.Collection(salesCollection).FindOne(ctx, filter).Decode(&sale)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find sale", err)
	}
	return &sale, nil
}
