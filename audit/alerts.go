package audit

import (
	"fmt"

	"github.com/opsgate/opsgate/telemetry"
)

type alertKind int

const (
	alertOperational alertKind = iota
	alertSecurity
)

type alert struct {
	kind      alertKind
	operation string
	errMsg    string
	eventType string
	severity  string
	details   map[string]any
}

// dispatcher is the audit log's background alert worker: a bounded
// queue drained by a single goroutine. Dispatch never blocks the
// logging call; when the queue is full the alert is dropped and the
// drop itself is logged. Delivery failures are captured and logged at
// warn rather than lost.
type dispatcher struct {
	ch     chan alert
	done   chan struct{}
	logger *telemetry.Logger
}

func newDispatcher(buffer int, logger *telemetry.Logger) *dispatcher {
	d := &dispatcher{
		ch:     make(chan alert, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for a := range d.ch {
		d.deliver(a)
	}
}

func (d *dispatcher) deliver(a alert) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Warn().
				Str("panic", fmt.Sprint(r)).
				Msg("alert delivery failed")
		}
	}()

	// Delivery target is the structured log stream; hooking in Slack,
	// PagerDuty or a SIEM forwarder happens downstream of it.
	switch a.kind {
	case alertOperational:
		d.logger.Error().
			Str("alert", "operational").
			Str("operation", a.operation).
			Str("error", a.errMsg).
			Msg("critical operation failed")
	case alertSecurity:
		d.logger.Error().
			Str("alert", "security").
			Str("security_event", a.eventType).
			Str("severity", a.severity).
			Fields(a.details).
			Msg("security event")
	}
}

// dispatch enqueues an alert without blocking.
func (d *dispatcher) dispatch(a alert) {
	select {
	case d.ch <- a:
	default:
		d.logger.Warn().
			Str("operation", a.operation).
			Str("security_event", a.eventType).
			Msg("alert queue full, dropping alert")
	}
}

// close drains and stops the worker.
func (d *dispatcher) close() {
	close(d.ch)
	<-d.done
}
