// Package notify delivers reconciliation events to logs, Valkey and
// websocket clients.
package notify

import (
	"github.com/AzielCF/az-compare/domains/reconcile"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// EventsChannel is the pub/sub channel events are published on.
const EventsChannel = "events"

// Envelope is the wire form of an event shared between processes.
type Envelope struct {
	SenderID string          `json:"sender_id"`
	Event    reconcile.Event `json:"event"`
}

// Fanout publishes every event to all sinks in order.
type Fanout []reconcile.NotificationSink

func (f Fanout) Publish(e reconcile.Event) {
	for _, s := range f {
		if s != nil {
			s.Publish(e)
		}
	}
}

// LogSink writes events to the log.
type LogSink struct{}

func (LogSink) Publish(e reconcile.Event) {
	entry := logrus.WithFields(logrus.Fields{"epoch": e.EpochID, "type": e.Type})
	switch e.Type {
	case reconcile.EventWarning:
		entry.Warnf("[RECONCILE] %s", e.Message)
	case reconcile.EventEpochReset:
		if e.Epoch != nil {
			entry.Infof("[RECONCILE] Epoch ended after %s: %d decorated, %d passes",
				humanize.RelTime(e.Epoch.StartedAt, e.At, "", ""), e.Epoch.Decorated, e.Epoch.Passes)
		}
	case reconcile.EventComparison:
		if e.Comparison != nil {
			entry.Infof("[RECONCILE] Comparison ready for %s: %d items, %d cheaper, saves %s",
				e.Message, e.Comparison.Total, e.Comparison.Cheaper, humanize.Comma(e.Comparison.TotalSavings))
		}
	case reconcile.EventPassCompleted:
		if e.Pass != nil {
			entry.Debugf("[RECONCILE] Pass %d: %d/%d decorated", e.Pass.Pass, e.Pass.Decorated, e.Pass.Candidates)
		}
	default:
		entry.Debugf("[RECONCILE] %s %s", e.Type, e.Message)
	}
}
