// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

/*
Package event publishes security-relevant occurrences off the request path.

Emission is strictly fire-and-forget: the request path hands the event to a
buffered channel and moves on. A single drain goroutine writes to the sink.
When the buffer is full the event is dropped and counted rather than ever
blocking an authentication request.
*/
package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Type classifies a security event.
type Type string

const (
	TypeLoginFailure   Type = "login_failure"
	TypeLockoutEngaged Type = "lockout_engaged"
	TypeSessionRevoked Type = "session_revoked"
	TypeMassRevocation Type = "mass_revocation"
	TypePasswordReset  Type = "password_reset"
)

// Event is one security occurrence tied to a tenant and, usually, an account.
type Event struct {
	Type      Type
	TenantID  string
	AccountID string
	At        time.Time
	Metadata  map[string]string
}

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Emit(event Event)
}

// # Log Emitter

// LogEmitter drains events to a structured logger.
type LogEmitter struct {
	logger  *slog.Logger
	queue   chan Event
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewLogEmitter creates an emitter with the given buffer capacity and starts
// its drain goroutine.
func NewLogEmitter(logger *slog.Logger, buffer int) *LogEmitter {
	emitter := &LogEmitter{
		logger: logger,
		queue:  make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go emitter.drain()
	return emitter
}

// Emit enqueues an event. When the buffer is full the event is dropped and
// the drop counter incremented; Emit never blocks.
func (emitter *LogEmitter) Emit(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	select {
	case emitter.queue <- event:
	default:
		emitter.dropped.Add(1)
	}
}

// Dropped reports how many events were discarded due to a full buffer.
func (emitter *LogEmitter) Dropped() int64 {
	return emitter.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain.
func (emitter *LogEmitter) Close() {
	emitter.closeOnce.Do(func() {
		close(emitter.queue)
		<-emitter.done
	})
}

// drain is the single consumer of the queue.
func (emitter *LogEmitter) drain() {
	defer close(emitter.done)
	for event := range emitter.queue {
		attributes := []any{
			"event_type", string(event.Type),
			"tenant_id", event.TenantID,
			"account_id", event.AccountID,
			"at", event.At,
		}
		for key, value := range event.Metadata {
			attributes = append(attributes, key, value)
		}
		emitter.logger.Info("security event", attributes...)
	}
}
