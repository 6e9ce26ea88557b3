package gpio

import "sync"

// FakeLine is an in-memory output line.
type FakeLine struct {
	mu       sync.Mutex
	value    int
	SetErr   error
	ReadErr  error
	Stuck    bool
	Closed   bool
	SetCalls int
}

func (l *FakeLine) SetValue(v int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.SetCalls++
	if l.SetErr != nil {
		return l.SetErr
	}
	if !l.Stuck {
		l.value = v
	}
	return nil
}

func (l *FakeLine) Value() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.ReadErr
}

func (l *FakeLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Closed = true
	return nil
}

// NewFakeRail returns a rail over a FakeLine, for tests and hardware-less runs.
func NewFakeRail(activeHigh bool) (*Rail, *FakeLine) {
	line := &FakeLine{}
	if !activeHigh {
		line.value = 1
	}
	return newRail("fake", line, activeHigh), line
}
