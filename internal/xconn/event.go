package xconn

import "fmt"

// Event is one of the event types below. The set is closed: consumers
// type-switch over it and treat anything unexpected as UnknownEvent.
type Event interface {
	event()
}

// SelectionRequestEvent is sent to a selection owner when another client
// calls ConvertSelection.
type SelectionRequestEvent struct {
	Time      Timestamp
	Owner     Window
	Requestor Window
	Selection Atom
	Target    Atom
	Property  Atom
}

// SelectionNotifyEvent answers a ConvertSelection. Property None means the
// conversion was refused.
type SelectionNotifyEvent struct {
	Time      Timestamp
	Requestor Window
	Selection Atom
	Target    Atom
	Property  Atom
}

// PropertyNotifyEvent reports a property change on a window whose event
// mask includes EventMaskPropertyChange.
type PropertyNotifyEvent struct {
	Window Window
	Atom   Atom
	Time   Timestamp
	State  byte
}

// SelectionClearEvent tells the previous owner it lost a selection.
type SelectionClearEvent struct {
	Time      Timestamp
	Owner     Window
	Selection Atom
}

// OwnerChangeEvent is the XFIXES selection notification.
type OwnerChangeEvent struct {
	Subtype            byte
	Window             Window
	Owner              Window
	Selection          Atom
	Timestamp          Timestamp
	SelectionTimestamp Timestamp
}

// ErrorEvent carries an asynchronous protocol error. It never means the
// connection is gone. Window is set for BadWindow errors.
type ErrorEvent struct {
	Err    error
	Window Window
}

// UnknownEvent is any event the engine has no use for.
type UnknownEvent struct {
	Name string
}

func (SelectionRequestEvent) event() {}
func (SelectionNotifyEvent) event()  {}
func (PropertyNotifyEvent) event()   {}
func (SelectionClearEvent) event()   {}
func (OwnerChangeEvent) event()      {}
func (ErrorEvent) event()            {}
func (UnknownEvent) event()          {}

func (e ErrorEvent) Error() string { return fmt.Sprintf("x11 protocol error: %v", e.Err) }
