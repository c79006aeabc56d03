package assignment

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// BatchEvent is a lifecycle event applied to a batch assignment.
type BatchEvent string

const (
	EventPause    BatchEvent = "pause"
	EventResume   BatchEvent = "resume"
	EventComplete BatchEvent = "complete"
	EventCancel   BatchEvent = "cancel"
	EventExpire   BatchEvent = "expire"
)

type lifecycleContext struct {
	BatchID BatchID
}

// NextBatchState returns the state reached by applying event to a batch in
// state from. Terminal states accept no event.
//
//	active  --pause-->    paused
//	active  --complete--> completed
//	active  --cancel-->   cancelled
//	active  --expire-->   expired
//	paused  --resume-->   active
//	paused  --complete--> completed
//	paused  --cancel-->   cancelled
func NextBatchState(id BatchID, from BatchState, event BatchEvent) (BatchState, error) {
	if !from.Valid() || from.IsTerminal() {
		return from, &InvalidTransitionError{BatchID: id, From: from, Event: event}
	}

	builder := statekit.NewMachine[lifecycleContext]("batch-lifecycle").
		WithInitial(statekit.StateID(from)).
		WithContext(lifecycleContext{BatchID: id})

	builder.State(statekit.StateID(BatchActive)).
		On(statekit.EventType(EventPause)).Target(statekit.StateID(BatchPaused)).
		On(statekit.EventType(EventComplete)).Target(statekit.StateID(BatchCompleted)).
		On(statekit.EventType(EventCancel)).Target(statekit.StateID(BatchCancelled)).
		On(statekit.EventType(EventExpire)).Target(statekit.StateID(BatchExpired)).
		Done()

	builder.State(statekit.StateID(BatchPaused)).
		On(statekit.EventType(EventResume)).Target(statekit.StateID(BatchActive)).
		On(statekit.EventType(EventComplete)).Target(statekit.StateID(BatchCompleted)).
		On(statekit.EventType(EventCancel)).Target(statekit.StateID(BatchCancelled)).
		Done()

	// Terminal
	builder.State(statekit.StateID(BatchCompleted)).Done()
	builder.State(statekit.StateID(BatchCancelled)).Done()
	builder.State(statekit.StateID(BatchExpired)).Done()

	machine, err := builder.Build()
	if err != nil {
		return from, fmt.Errorf("failed to build batch lifecycle: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()
	interpreter.Send(statekit.Event{Type: statekit.EventType(event)})

	next := BatchState(interpreter.State().Value)
	if next == from {
		return from, &InvalidTransitionError{BatchID: id, From: from, Event: event}
	}
	return next, nil
}
