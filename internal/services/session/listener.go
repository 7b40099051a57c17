package session

import "github.com/LeonardoBeccarini/sensorlink/internal/model"

// Listener receives everything the session observes. Readings and alerts
// arrive on the reader goroutine. Status changes arrive in transition order,
// never under a session lock, so a callback may call Disconnect, Connect or
// SendCommand. Callbacks must not block for long and must not call Close.
type Listener interface {
	OnStatusChanged(model.Status)
	OnReadingReceived(model.Reading)
	OnAlert(model.Alert)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Status  func(model.Status)
	Reading func(model.Reading)
	Alert   func(model.Alert)
}

func (f ListenerFuncs) OnStatusChanged(s model.Status) {
	if f.Status != nil {
		f.Status(s)
	}
}

func (f ListenerFuncs) OnReadingReceived(r model.Reading) {
	if f.Reading != nil {
		f.Reading(r)
	}
}

func (f ListenerFuncs) OnAlert(a model.Alert) {
	if f.Alert != nil {
		f.Alert(a)
	}
}
