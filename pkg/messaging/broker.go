package messaging

import (
	"context"
)

// Broker defines the interface for message brokers. The audit pipeline
// publishes every committed audit entry so downstream compliance tooling
// can follow the stream without polling the store.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channel names used by the federation core.
const (
	ChannelAuditEvents     = "audit.events"
	ChannelEmergencyAlerts = "audit.emergency"
)
