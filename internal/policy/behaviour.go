package policy

import (
	"context"
	"fmt"
)

// Frequency controls how often a behaviour fires within a transaction.
type Frequency int

const (
	// EveryEvent fires the behaviour on every matching event.
	EveryEvent Frequency = iota
	// FirstEvent fires once per distinct event arguments per transaction.
	FirstEvent
	// TransactionCommit queues the behaviour to fire before commit, once per
	// distinct event arguments.
	TransactionCommit
)

var frequencyNames = map[Frequency]string{
	EveryEvent:        "every_event",
	FirstEvent:        "first_event",
	TransactionCommit: "transaction_commit",
}

func (f Frequency) String() string {
	if s, ok := frequencyNames[f]; ok {
		return s
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

// ParseFrequency parses every_event, first_event or transaction_commit. The
// empty string is EveryEvent.
func ParseFrequency(s string) (Frequency, error) {
	if s == "" {
		return EveryEvent, nil
	}
	for f, name := range frequencyNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown frequency %q", s)
}

// HandlerFunc handles one event.
type HandlerFunc func(ctx context.Context, ev Event) error

// Behaviour is a bound callback. Behaviours are compared by identity: the
// same *Behaviour bound to several classes fires once per event.
type Behaviour struct {
	// ID names the behaviour in logs, spans, metrics and traces.
	ID string

	Frequency Frequency
	Handle    HandlerFunc
}

// NewBehaviour creates a behaviour.
func NewBehaviour(id string, freq Frequency, h HandlerFunc) *Behaviour {
	return &Behaviour{ID: id, Frequency: freq, Handle: h}
}

func (b *Behaviour) String() string {
	return fmt.Sprintf("%s[%s]", b.ID, b.Frequency)
}
