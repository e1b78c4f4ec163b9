package database

import (
	"context"
	"errors"

	"tcc-gateway/internal/models"
)

// Recorder persists parameter samples
type Recorder interface {
	// Start begins processing and writing samples
	Start()

	// Write queues a sample for writing
	Write(sample models.ParameterSample)

	// Close flushes pending samples and releases resources the recorder
	// opened itself; a connection handed in by the caller stays open
	Close() error
}

// History is implemented by recorders that can read samples back
type History interface {
	QuerySamples(ctx context.Context, q models.SampleQuery) ([]models.ParameterSample, error)
}

// Fanout forwards every sample to all of its recorders
type Fanout []Recorder

func (f Fanout) Start() {
	for _, r := range f {
		r.Start()
	}
}

func (f Fanout) Write(sample models.ParameterSample) {
	for _, r := range f {
		r.Write(sample)
	}
}

func (f Fanout) Close() error {
	var errs []error
	for _, r := range f {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// History returns the first recorder able to answer queries, or nil
func (f Fanout) History() History {
	for _, r := range f {
		if h, ok := r.(History); ok {
			return h
		}
	}
	return nil
}
