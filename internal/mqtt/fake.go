package mqtt

import (
	"sync"

	"github.com/thatsimonsguy/psu-controller/internal/model"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	events   []model.EventRecord
	statuses [][]byte

	// PublishError, if set, is returned by PublishEvent and PublishStatus.
	PublishError error

	Closed bool
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) PublishEvent(e model.EventRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.events = append(f.events, e)
	return nil
}

func (f *FakePublisher) PublishStatus(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.statuses = append(f.statuses, append([]byte(nil), payload...))
	return nil
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Events returns a copy of the recorded events.
func (f *FakePublisher) Events() []model.EventRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.EventRecord(nil), f.events...)
}

func (f *FakePublisher) Statuses() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.statuses...)
}
