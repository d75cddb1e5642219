package storage

import (
	"context"
	"errors"
	"fmt"
)

// Sink persists a snapshot somewhere.
type Sink interface {
	Save(ctx context.Context, snap Snapshot) error
	Name() string
}

// MultiSink saves to every sink, continuing past failures.
type MultiSink []Sink

// Save saves to each sink in order and joins their errors.
func (m MultiSink) Save(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Name() string { return "multi" }
