package notify

// Notifier receives API completions and asynchronous events from the core.
// Calls are synchronous; data is only valid for the duration of the call
// unless documented otherwise by the event payload type.
type Notifier interface {
	APIComplete(api API, result Result, data any)
	Event(event Event, data any)
}

// Discard is a Notifier that drops everything.
var Discard Notifier = discard{}

type discard struct{}

func (discard) APIComplete(API, Result, any) {}
func (discard) Event(Event, any)             {}

// Funcs adapts plain functions to the Notifier interface. Nil fields are
// ignored.
type Funcs struct {
	OnComplete func(api API, result Result, data any)
	OnEvent    func(event Event, data any)
}

// APIComplete implements Notifier
func (f Funcs) APIComplete(api API, result Result, data any) {
	if f.OnComplete != nil {
		f.OnComplete(api, result, data)
	}
}

// Event implements Notifier
func (f Funcs) Event(event Event, data any) {
	if f.OnEvent != nil {
		f.OnEvent(event, data)
	}
}
