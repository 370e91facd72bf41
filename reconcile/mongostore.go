package reconcile

import (
	"context"
	"fmt"
	"time"

	"chowdash/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStores implements Store on the Mongo collections used by the portals.
// The claim path runs as a multi-document transaction so that one bank
// transfer can never pay for two orders.
type MongoStores struct {
	client   *mongo.Client
	orders   *mongo.Collection
	alerts   *mongo.Collection
	archived *mongo.Collection
	logger   *zap.Logger
}

// NewMongoStores wires the reconciliation stores onto the given client.
func NewMongoStores(client *mongo.Client, dbName string, logger *zap.Logger) *MongoStores {
	db := client.Database(dbName)
	return &MongoStores{
		client:   client,
		orders:   db.Collection("orders"),
		alerts:   db.Collection("payment_alerts"),
		archived: db.Collection("archived_orders"),
		logger:   logger,
	}
}

// Unprocessed returns every alert still open for claiming.
func (s *MongoStores) Unprocessed(ctx context.Context) ([]models.PaymentAlert, error) {
	return s.findAlerts(ctx, bson.M{"processed": models.AlertUnprocessed})
}

// UnprocessedByAmount returns open alerts with exactly this amount.
func (s *MongoStores) UnprocessedByAmount(ctx context.Context, amount int64) ([]models.PaymentAlert, error) {
	return s.findAlerts(ctx, bson.M{"processed": models.AlertUnprocessed, "amount": amount})
}

func (s *MongoStores) findAlerts(ctx context.Context, filter bson.M) ([]models.PaymentAlert, error) {
	cursor, err := s.alerts.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying payment alerts: %w", err)
	}
	defer cursor.Close(ctx)

	var alerts []models.PaymentAlert
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("decoding payment alerts: %w", err)
	}
	return alerts, nil
}

// Claim re-reads the alert inside a transaction, aborts if it is no longer
// unprocessed, then marks it claimed and moves the order out of
// pending_confirmation in the same commit.
func (s *MongoStores) Claim(ctx context.Context, alert models.PaymentAlert, order models.Order, verdict Verdict) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("starting claim session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var current models.PaymentAlert
		if err := s.alerts.FindOne(sc, bson.M{"_id": alert.ID}).Decode(&current); err != nil {
			return nil, fmt.Errorf("re-reading alert: %w", err)
		}
		if current.Processed != models.AlertUnprocessed {
			return nil, ErrAlreadyClaimed
		}

		now := time.Now()
		_, err := s.alerts.UpdateOne(sc, bson.M{"_id": alert.ID}, bson.M{"$set": bson.M{
			"processed":        models.AlertClaimed,
			"claimedByOrderId": order.ID,
			"claimedAt":        now,
		}})
		if err != nil {
			return nil, fmt.Errorf("claiming alert: %w", err)
		}

		set := bson.M{
			"paymentMatchedAt": now,
		}
		switch verdict {
		case VerdictSuccess:
			set["paymentStatus"] = models.PaymentSuccessful
			set["matchedByAlertId"] = alert.ID
		case VerdictRefund:
			set["paymentStatus"] = models.PaymentRefundRequired
			set["refundCandidateAlertId"] = alert.ID
		default:
			return nil, fmt.Errorf("verdict %v is not claimable", verdict)
		}

		res, err := s.orders.UpdateOne(sc,
			bson.M{"_id": order.ID, "paymentStatus": models.PaymentPendingConfirmation},
			bson.M{"$set": set})
		if err != nil {
			return nil, fmt.Errorf("finalizing order: %w", err)
		}
		if res.MatchedCount == 0 {
			// Aborting the transaction rolls the alert update back.
			return nil, ErrOrderNotPending
		}
		return nil, nil
	})
	return err
}

// MarkNotApplicable retires a temporally implausible alert.
func (s *MongoStores) MarkNotApplicable(ctx context.Context, alertID primitive.ObjectID) error {
	_, err := s.alerts.UpdateOne(ctx,
		bson.M{"_id": alertID, "processed": models.AlertUnprocessed},
		bson.M{"$set": bson.M{"processed": models.AlertNotApplicable}})
	if err != nil {
		return fmt.Errorf("marking alert not applicable: %w", err)
	}
	return nil
}

// MarkDuplicate claims an alert as a duplicate notification of a transfer
// already claimed by the order.
func (s *MongoStores) MarkDuplicate(ctx context.Context, alertID, claimedAlertID, orderID primitive.ObjectID) error {
	_, err := s.alerts.UpdateOne(ctx,
		bson.M{"_id": alertID, "processed": models.AlertUnprocessed},
		bson.M{"$set": bson.M{
			"processed":          models.AlertClaimed,
			"claimedByOrderId":   orderID,
			"duplicateOfAlertId": claimedAlertID,
			"claimedAt":          time.Now(),
		}})
	if err != nil {
		return fmt.Errorf("marking duplicate alert: %w", err)
	}
	return nil
}

// GetOrder reads one order.
func (s *MongoStores) GetOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	var order models.Order
	if err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&order); err != nil {
		return models.Order{}, fmt.Errorf("reading order: %w", err)
	}
	return order, nil
}

// TransitionPayment conditionally moves an order out of pending_confirmation.
func (s *MongoStores) TransitionPayment(ctx context.Context, id primitive.ObjectID, to models.PaymentStatus) error {
	res, err := s.orders.UpdateOne(ctx,
		bson.M{"_id": id, "paymentStatus": models.PaymentPendingConfirmation},
		bson.M{"$set": bson.M{"paymentStatus": to}})
	if err != nil {
		return fmt.Errorf("updating payment status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrOrderNotPending
	}
	return nil
}

// Archive moves a still-pending order into the archive collection and deletes
// the live document, all in one transaction. A claim that commits first wins
// and the archive is a no-op failure.
func (s *MongoStores) Archive(ctx context.Context, id primitive.ObjectID, reason models.PaymentStatus) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("starting archive session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var order models.Order
		if err := s.orders.FindOne(sc, bson.M{"_id": id}).Decode(&order); err != nil {
			return nil, fmt.Errorf("reading order: %w", err)
		}
		if order.PaymentStatus != models.PaymentPendingConfirmation {
			return nil, ErrOrderNotPending
		}
		order.PaymentStatus = reason

		_, err := s.archived.InsertOne(sc, models.ArchivedOrder{
			Order:      order,
			Reason:     reason,
			ArchivedAt: time.Now(),
		})
		if err != nil {
			return nil, fmt.Errorf("inserting archived order: %w", err)
		}
		if _, err := s.orders.DeleteOne(sc, bson.M{"_id": id}); err != nil {
			return nil, fmt.Errorf("deleting live order: %w", err)
		}
		return nil, nil
	})
	return err
}

// WatchAlerts opens a change stream over unprocessed alerts. The current
// snapshot is replayed before deltas so subscribers see alerts that landed
// between their scan and the stream opening, matching the hosted-listener
// semantics the portals were built against.
func (s *MongoStores) WatchAlerts(ctx context.Context) (AlertStream, error) {
	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.M{
		"operationType":          bson.M{"$in": bson.A{"insert", "update", "replace"}},
		"fullDocument.processed": models.AlertUnprocessed,
	}}}}
	cs, err := s.alerts.Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("opening alert stream: %w", err)
	}

	stream := newMongoAlertStream(ctx)
	go stream.run(cs, func(emitCtx context.Context) ([]models.PaymentAlert, error) {
		return s.Unprocessed(emitCtx)
	})
	return stream, nil
}

// WatchOrder opens a change stream over a single order document, replaying
// its current state first.
func (s *MongoStores) WatchOrder(ctx context.Context, id primitive.ObjectID) (OrderStream, error) {
	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: bson.M{
		"documentKey._id": id,
	}}}}
	cs, err := s.orders.Watch(ctx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("opening order stream: %w", err)
	}

	stream := newMongoOrderStream(ctx)
	go stream.run(cs, func(emitCtx context.Context) (models.Order, error) {
		return s.GetOrder(emitCtx, id)
	})
	return stream, nil
}
