package reconcile

import (
	"context"
	"sync"

	"chowdash/models"

	"go.mongodb.org/mongo-driver/mongo"
)

const streamBuffer = 64

// mongoAlertStream adapts a change stream to the AlertStream contract:
// snapshot first, then deltas, one Close to tear everything down.
type mongoAlertStream struct {
	ch     chan models.PaymentAlert
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func newMongoAlertStream(parent context.Context) *mongoAlertStream {
	ctx, cancel := context.WithCancel(parent)
	return &mongoAlertStream{
		ch:     make(chan models.PaymentAlert, streamBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *mongoAlertStream) Alerts() <-chan models.PaymentAlert { return s.ch }

func (s *mongoAlertStream) Close() { s.cancel() }

func (s *mongoAlertStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *mongoAlertStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *mongoAlertStream) emit(alert models.PaymentAlert) bool {
	select {
	case s.ch <- alert:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *mongoAlertStream) run(cs *mongo.ChangeStream, snapshot func(context.Context) ([]models.PaymentAlert, error)) {
	defer close(s.ch)
	defer cs.Close(context.Background())

	initial, err := snapshot(s.ctx)
	if err != nil {
		s.setErr(err)
		return
	}
	for _, alert := range initial {
		if !s.emit(alert) {
			return
		}
	}

	for cs.Next(s.ctx) {
		var event struct {
			FullDocument models.PaymentAlert `bson:"fullDocument"`
		}
		if err := cs.Decode(&event); err != nil {
			s.setErr(err)
			return
		}
		if !s.emit(event.FullDocument) {
			return
		}
	}
	if err := cs.Err(); err != nil && s.ctx.Err() == nil {
		s.setErr(err)
	}
}

// mongoOrderStream is the single-document counterpart for order watches.
type mongoOrderStream struct {
	ch     chan models.Order
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func newMongoOrderStream(parent context.Context) *mongoOrderStream {
	ctx, cancel := context.WithCancel(parent)
	return &mongoOrderStream{
		ch:     make(chan models.Order, streamBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *mongoOrderStream) Orders() <-chan models.Order { return s.ch }

func (s *mongoOrderStream) Close() { s.cancel() }

func (s *mongoOrderStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *mongoOrderStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *mongoOrderStream) emit(order models.Order) bool {
	select {
	case s.ch <- order:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *mongoOrderStream) run(cs *mongo.ChangeStream, snapshot func(context.Context) (models.Order, error)) {
	defer close(s.ch)
	defer cs.Close(context.Background())

	current, err := snapshot(s.ctx)
	if err != nil {
		s.setErr(err)
		return
	}
	if !s.emit(current) {
		return
	}

	for cs.Next(s.ctx) {
		var event struct {
			FullDocument models.Order `bson:"fullDocument"`
		}
		if err := cs.Decode(&event); err != nil {
			s.setErr(err)
			return
		}
		// Deletes (archive path) surface with no full document; the
		// session only cares about state it can read, so skip them.
		if event.FullDocument.ID.IsZero() {
			continue
		}
		if !s.emit(event.FullDocument) {
			return
		}
	}
	if err := cs.Err(); err != nil && s.ctx.Err() == nil {
		s.setErr(err)
	}
}
