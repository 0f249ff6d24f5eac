/*
Package events provides an in-memory event broker for the control plane's
pub/sub messaging.

The events package implements a lightweight event bus for broadcasting
instance and registry state changes to interested subscribers. It supports
topic-agnostic subscriptions with asynchronous event delivery, enabling loose
coupling between control plane components for state changes, notifications,
and monitoring.

# Architecture

The event system provides non-blocking pub/sub messaging with buffered
channels:

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Event Broker                   │          │
	│  │  - In-memory message bus                    │          │
	│  │  - Topic-agnostic (all events broadcast)    │          │
	│  │  - Non-blocking publish                     │          │
	│  │  - Monotonic per-event sequence numbers     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Event Distribution                 │          │
	│  │                                              │          │
	│  │  Publisher → Event Channel (buffer: 100)    │          │
	│  │       ↓                                      │          │
	│  │  Broadcast Loop (assigns Seq atomically)    │          │
	│  │       ↓                                      │          │
	│  │  Subscription Channels (buffer: 50 each)    │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Event Types                       │          │
	│  │                                              │          │
	│  │  Instance Events:                           │          │
	│  │    - instance.created, instance.started     │          │
	│  │    - instance.stopped, instance.restarted   │          │
	│  │    - instance.crashed, instance.drifted     │          │
	│  │    - instance.deleted                       │          │
	│  │                                              │          │
	│  │  Registry Events:                           │          │
	│  │    - registry.upserted, registry.deleted    │          │
	│  │                                              │          │
	│  │  Circuit Breaker Events:                    │          │
	│  │    - circuit.opened, circuit.closed         │          │
	│  │    - circuit.half_open                      │          │
	│  │                                              │          │
	│  │  Sandbox Events:                            │          │
	│  │    - sandbox.pruned                         │          │
	│  └────────────────────────────────────────────┘           │
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Subscribers                      │          │
	│  │                                              │          │
	│  │  No package in this repository subscribes;  │          │
	│  │  Subscribe() is open to any caller          │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Event Broker:
  - Central message bus for event distribution
  - Manages subscription lifecycle behind opaque handles
  - Non-blocking publish (buffered channel)
  - Graceful shutdown via stop channel, idempotent Stop()

Event:
  - Seq: monotonic sequence number assigned at broadcast time
  - ID: unique event identifier (generated if not set by the publisher)
  - Type: event type (instance.started, registry.upserted, etc.)
  - Timestamp: when the event occurred
  - Message: human-readable description
  - Metadata: key-value pairs for additional context

Subscription:
  - Opaque handle returned by broker.Subscribe()
  - Wraps a channel buffered to 50 events to absorb bursts
  - Events read via Subscription.Events()
  - Released via broker.Unsubscribe(sub)

A subscriber that falls behind sees gaps in Seq rather than blocking the
broadcast loop or stalling other subscribers; a full subscriber buffer simply
drops the event instead of back-pressuring the publisher.

# Event Flow

Publish Flow:
 1. Publisher calls broker.Publish(event)
 2. Event added to main event channel (non-blocking)
 3. Broadcast loop receives event, assigns the next Seq
 4. Event sent to all subscription channels
 5. Subscribers receive event asynchronously
 6. Full subscriber buffers skip (no blocking)

Subscribe Flow:
 1. Caller calls broker.Subscribe()
 2. New buffered channel created and wrapped in a Subscription
 3. Subscription registered in the subscriber map under a fresh ID
 4. Subscription handle returned
 5. Caller reads events via Subscription.Events()

Unsubscribe Flow:
 1. Caller calls broker.Unsubscribe(sub)
 2. Channel removed from the subscriber map
 3. Channel closed
 4. Subscriber's range loop over Events() exits

# Usage

Creating and Starting a Broker:

	import "github.com/cuemby/aria/pkg/events"

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

Subscribing to Events:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub.Events() {
			fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
		}
	}()

Publishing Events:

	broker.Publish(&events.Event{
		Type:    events.EventInstanceStarted,
		Message: "instance 'alpha' started",
		Metadata: map[string]string{
			"instance_id": "inst-xyz",
			"pid":         "4821",
		},
	})

Filtering Events by Type:

	go func() {
		for event := range sub.Events() {
			switch event.Type {
			case events.EventInstanceCrashed:
				handleCrash(event)
			case events.EventCircuitOpened:
				handleCircuitOpen(event)
			default:
				// ignore other events
			}
		}
	}()

# Integration Points

This package integrates with:

  - cmd/ariad: creates the broker and passes it to the reconciler
  - pkg/reconciler: publishes crash/drift detection and sandbox pruning events

No other package publishes or subscribes: the instance.created/started/
stopped/restarted/deleted, registry.* and circuit.* types are defined here
but not emitted anywhere in this repository.
*/
package events
