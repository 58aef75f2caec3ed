package thing

import "errors"

// Domain errors for the thing package.
//
// Every member-level not-found error also matches ErrNotFound, so callers
// that only care about the category can test for that:
//
//	if errors.Is(err, thing.ErrNotFound) {
//	    // property, action or event is not declared
//	}
var (
	// ErrNotFound is the category matched by every not-found error below.
	ErrNotFound = errors.New("thing: not found")

	// ErrPropertyNotFound is returned when a property name is not declared.
	ErrPropertyNotFound error = &notFoundError{member: "property"}

	// ErrActionNotFound is returned when an action name is not declared.
	ErrActionNotFound error = &notFoundError{member: "action"}

	// ErrEventNotFound is returned when an event name is not declared.
	ErrEventNotFound error = &notFoundError{member: "event"}

	// ErrThingNotFound is returned by the Registry for unknown Thing names.
	ErrThingNotFound error = &notFoundError{member: "thing"}

	// ErrUnbound is returned when an action is declared but has no handler.
	ErrUnbound = errors.New("thing: action has no handler")

	// ErrThingExists is returned when registering a Thing name twice.
	ErrThingExists = errors.New("thing: already registered")

	// ErrInvalidName is returned when a Thing or member name is empty.
	ErrInvalidName = errors.New("thing: invalid name")

	// ErrNoDescriber is returned by Description when no Describer is set.
	ErrNoDescriber = errors.New("thing: no describer configured")

	// ErrHandlerPanic is returned when an action handler panics.
	ErrHandlerPanic = errors.New("thing: action handler panicked")
)

// notFoundError is a member-specific not-found sentinel that also matches ErrNotFound.
type notFoundError struct {
	member string
}

func (e *notFoundError) Error() string {
	return "thing: " + e.member + " not found"
}

func (e *notFoundError) Is(target error) bool {
	return target == ErrNotFound
}
