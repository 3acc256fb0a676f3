// Package runstore persists pipeline runs with optimistic concurrency.
//
// Every update carries the version it was read at. A writer that lost a race
// gets promoerr.ErrRunConflict and must re-read, so an approval recorded by one
// process is never overwritten by a runner in another.
package runstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/basewarphq/bwpromote/cmd/internal/pipeline"
	"github.com/basewarphq/bwpromote/cmd/internal/promoerr"
	"github.com/cockroachdb/errors"
)

// Memory keeps runs in process. It serializes like the DynamoDB store so
// callers never share a *Run with the store.
type Memory struct {
	mu   sync.Mutex
	runs map[string][]byte
}

var _ pipeline.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{runs: make(map[string][]byte)}
}

func (m *Memory) Create(_ context.Context, run *pipeline.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return conflict(run.ID, "already exists")
	}
	run.Version = 1
	return m.put(run)
}

func (m *Memory) Get(_ context.Context, id string) (*pipeline.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.runs[id]
	if !ok {
		return nil, notFound(id)
	}
	return decode(body)
}

func (m *Memory) Update(_ context.Context, run *pipeline.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.runs[run.ID]
	if !ok {
		return notFound(run.ID)
	}
	stored, err := decode(body)
	if err != nil {
		return err
	}
	if stored.Version != run.Version {
		return conflict(run.ID, "version %d is stale, stored version is %d", run.Version, stored.Version)
	}
	run.Version++
	if err := m.put(run); err != nil {
		run.Version--
		return err
	}
	return nil
}

func (m *Memory) put(run *pipeline.Run) error {
	body, err := json.Marshal(run)
	if err != nil {
		return errors.Wrapf(err, "encoding run %s", run.ID)
	}
	m.runs[run.ID] = body
	return nil
}

func decode(body []byte) (*pipeline.Run, error) {
	var run pipeline.Run
	if err := json.Unmarshal(body, &run); err != nil {
		return nil, errors.Wrap(err, "decoding run")
	}
	return &run, nil
}

func notFound(id string) error {
	return errors.Mark(errors.Newf("run %s not found", id), promoerr.ErrRunNotFound)
}

func conflict(id, format string, args ...any) error {
	return errors.Mark(
		errors.Wrapf(errors.Newf(format, args...), "run %s", id),
		promoerr.ErrRunConflict)
}
