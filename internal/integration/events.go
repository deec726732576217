// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package integration

import (
	"context"

	"github.com/ManuGH/clubsync/internal/connectivity"
	"github.com/ManuGH/clubsync/internal/health"
	"github.com/ManuGH/clubsync/internal/log"
)

// Bus topics the orchestrator publishes on.
const (
	TopicHealthChanged = "health.changed"
	TopicStatusChanged = "status.changed"
	TopicSyncChanged   = "sync.changed"
	TopicQueueChanged  = "queue.changed"
	TopicModeChanged   = "mode.changed"
	TopicErrorRaised   = "error.raised"
)

// StatusChanged is published on TopicStatusChanged.
type StatusChanged struct {
	Previous IntegrationStatus
	Current  IntegrationStatus
}

// SyncChanged is published on TopicSyncChanged.
type SyncChanged struct {
	Previous SyncStatus
	Current  SyncStatus
}

// HealthChanged carries the new mapping and the services whose state moved.
type HealthChanged struct {
	Snapshot health.Snapshot
	Changes  []health.Change
}

// QueueChanged is published after enqueues and drains.
type QueueChanged struct {
	Pending int
}

// ModeChanged is published on TopicModeChanged.
type ModeChanged struct {
	Transition connectivity.Transition
}

// ErrorsCleared is published on TopicErrorRaised when ClearErrors ran.
// Every other message on that topic is an ErrorRecord.
type ErrorsCleared struct{}

// publish never blocks on slow subscribers; a failed publish is only logged.
func (o *Orchestrator) publish(topic string, payload any) {
	if err := o.bus.Publish(context.Background(), topic, payload); err != nil {
		o.logger.Warn().Err(err).Str(log.FieldEvent, "bus.publish_failed").Str("topic", topic).Msg("state change not published")
	}
}

func (o *Orchestrator) publishQueue() {
	o.publish(TopicQueueChanged, QueueChanged{Pending: o.queue.Len()})
}
