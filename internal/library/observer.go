package library

import (
	"time"

	"github.com/mrlokans/schoollibrary/internal/entities"
)

// Event describes one completed engine operation, successful or not.
type Event struct {
	Action    Action
	Principal entities.Principal
	Username  string // set for authentication attempts
	ItemID    string
	Err       error
	At        time.Time
	Duration  time.Duration
}

// Observer receives an Event after every engine operation. Observe is called
// synchronously on the caller's goroutine and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}
