package client

import (
	"time"
)

// Event describes one notification point of a call.
type Event struct {
	ID           string
	Method       string
	Notification bool
	// Elapsed is the time since the call was admitted (zero for BeforeRequest).
	Elapsed time.Duration
	// Err is the rejection reason, nil on success.
	Err error
}

// Observer is told about every call the client makes. Methods are invoked
// synchronously from the dispatch path and must not block.
type Observer interface {
	// BeforeRequest fires right before the request is posted.
	BeforeRequest(Event)
	// OnResponse fires when a reply settled the call, with a result or a peer error.
	OnResponse(Event)
	// OnTimeout fires when the call timed out waiting for its reply.
	OnTimeout(Event)
	// OnError fires when the request could not be delivered.
	OnError(Event)
}

// Observers fans every event out to each member in order.
type Observers []Observer

func (os Observers) BeforeRequest(e Event) {
	for _, o := range os {
		o.BeforeRequest(e)
	}
}

func (os Observers) OnResponse(e Event) {
	for _, o := range os {
		o.OnResponse(e)
	}
}

func (os Observers) OnTimeout(e Event) {
	for _, o := range os {
		o.OnTimeout(e)
	}
}

func (os Observers) OnError(e Event) {
	for _, o := range os {
		o.OnError(e)
	}
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Before   func(Event)
	Response func(Event)
	Timeout  func(Event)
	Error    func(Event)
}

func (f ObserverFuncs) BeforeRequest(e Event) {
	if f.Before != nil {
		f.Before(e)
	}
}

func (f ObserverFuncs) OnResponse(e Event) {
	if f.Response != nil {
		f.Response(e)
	}
}

func (f ObserverFuncs) OnTimeout(e Event) {
	if f.Timeout != nil {
		f.Timeout(e)
	}
}

func (f ObserverFuncs) OnError(e Event) {
	if f.Error != nil {
		f.Error(e)
	}
}
