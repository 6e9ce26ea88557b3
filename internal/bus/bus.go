// Package bus marshals state-changing requests from foreign goroutines onto the
// goroutine that owns the power state.
package bus

import "fmt"

type Kind int

const (
	KindChangePowerState Kind = iota
	KindReset
)

func (k Kind) String() string {
	switch k {
	case KindChangePowerState:
		return "change_power_state"
	case KindReset:
		return "reset"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Command struct {
	Kind Kind
	Up   bool // only meaningful for KindChangePowerState
}

func ChangePowerState(up bool) Command {
	return Command{Kind: KindChangePowerState, Up: up}
}

func Reset() Command {
	return Command{Kind: KindReset}
}

// Bus is a single-consumer FIFO of commands.
type Bus struct {
	ch chan Command
}

func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 10
	}
	return &Bus{ch: make(chan Command, capacity)}
}

// Submit enqueues cmd, blocking for as long as the queue is full. There is no
// acknowledgement: the command has not taken effect when Submit returns.
func (b *Bus) Submit(cmd Command) {
	b.ch <- cmd
}

// Commands is the receive side; only the owning loop reads from it.
func (b *Bus) Commands() <-chan Command {
	return b.ch
}

func (b *Bus) Len() int {
	return len(b.ch)
}
