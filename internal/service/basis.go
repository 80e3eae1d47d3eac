package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hydra/internal/dag"
	"hydra/internal/database"
	"hydra/internal/metrics"
	"hydra/pkg/wire"

	"github.com/sirupsen/logrus"
)

// BasisService owns the node's DAG frontier: it folds in remote bases,
// advances the frontier on local activity, and keeps the store in sync.
type BasisService struct {
	mu     sync.Mutex
	db     *database.Database
	basis  *dag.Basis
	logger *logrus.Logger
}

// NewBasisService restores the persisted frontier and wraps it.
func NewBasisService(ctx context.Context, db *database.Database, logger *logrus.Logger) (*BasisService, error) {
	events, err := db.LoadBasis(ctx)
	if err != nil {
		return nil, err
	}

	basis := dag.NewBasis()
	basis.Receive(events)

	logger.WithField("frontier_size", basis.Len()).Info("Restored node basis")

	return &BasisService{db: db, basis: basis, logger: logger}, nil
}

// RecordLocalEvent appends a new event whose precursors are the current
// frontier, advancing the basis to a single head.
func (s *BasisService) RecordLocalEvent(ctx context.Context) (dag.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	precursors := make([]dag.EventID, 0, s.basis.Len())
	for _, e := range s.basis.Events() {
		precursors = append(precursors, e.ID)
	}

	event := s.basis.NewEvent(time.Now().Unix(), precursors)
	if err := s.db.ReplaceBasis(ctx, s.basis.Events()); err != nil {
		return dag.Event{}, err
	}

	metrics.IncrementCounter("basis_local_events_total", nil, "Locally recorded basis events")
	return event, nil
}

// Exchange folds a remote frontier into the local one, persists the
// result, and returns the merged local frontier.
func (s *BasisService) Exchange(ctx context.Context, remote []wire.BasisEvent) ([]wire.BasisEvent, error) {
	incoming, err := basisEventsFromWire(remote)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.basis.Receive(incoming)
	if err := s.db.ReplaceBasis(ctx, s.basis.Events()); err != nil {
		return nil, err
	}

	metrics.IncrementCounter("basis_exchanges_total", nil, "Basis exchange operations")

	s.logger.WithFields(logrus.Fields{
		"received":      len(incoming),
		"frontier_size": s.basis.Len(),
	}).Debug("Merged remote basis")

	return basisEventsToWire(s.basis.Events()), nil
}

// Frontier returns the current frontier in wire form.
func (s *BasisService) Frontier() []wire.BasisEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return basisEventsToWire(s.basis.Events())
}

func basisEventsToWire(events []dag.Event) []wire.BasisEvent {
	out := make([]wire.BasisEvent, 0, len(events))
	for _, e := range events {
		precursors := make([]string, 0, len(e.Precursors))
		for _, p := range e.Precursors {
			precursors = append(precursors, p.Ref())
		}
		out = append(out, wire.BasisEvent{
			Timestamp:  e.ID.Timestamp,
			Hash:       e.ID.HexHash(),
			Precursors: precursors,
		})
	}
	return out
}

func basisEventsFromWire(events []wire.BasisEvent) ([]dag.Event, error) {
	out := make([]dag.Event, 0, len(events))
	for _, e := range events {
		id, err := dag.ParseRef(fmt.Sprintf("%d:%s", e.Timestamp, e.Hash))
		if err != nil {
			return nil, err
		}

		precursors := make([]dag.EventID, 0, len(e.Precursors))
		for _, ref := range e.Precursors {
			p, err := dag.ParseRef(ref)
			if err != nil {
				return nil, err
			}
			precursors = append(precursors, p)
		}

		out = append(out, dag.Event{ID: id, Precursors: precursors})
	}
	return out, nil
}
