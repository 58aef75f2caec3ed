package mqttbinding

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-things/internal/codec"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// EventMessage is the payload published for one event emission.
type EventMessage struct {
	Thing     string    `json:"thing"`
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// enqueue runs on the goroutine that changed the Thing and never blocks.
func (b *Binding) enqueue(c thing.Change) {
	select {
	case b.queue <- c:
	default:
		b.dropped.Add(1)
		b.logger.Warn("mqtt publish queue full, dropping change", "thing", c.Thing, "kind", c.Kind, "name", c.Name)
	}
}

// publishLoop mirrors queued changes onto the bus until Stop.
func (b *Binding) publishLoop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case c := <-b.queue:
			if err := b.publishChange(c); err != nil {
				b.logger.Warn("failed to publish change", "thing", c.Thing, "kind", c.Kind, "name", c.Name, "error", err)
			}
		}
	}
}

func (b *Binding) publishChange(c thing.Change) error {
	switch c.Kind {
	case thing.ChangeProperty:
		return b.publishState(c.Thing, c.Name, c.Value)
	case thing.ChangeEvent:
		return b.publishEvent(c)
	case thing.ChangeShape:
		return b.syncThing(c.Thing, c.Name)
	case thing.ChangeThingAdded:
		return b.syncThing(c.Thing, "")
	case thing.ChangeThingRemoved:
		return b.clearThing(c.Thing, nil)
	default:
		return nil
	}
}

// publishState publishes the retained value of one property.
func (b *Binding) publishState(thingName, property string, value any) error {
	data, err := codec.Marshal(b.stateType, value)
	if err != nil {
		return fmt.Errorf("encoding %s/%s: %w", thingName, property, err)
	}
	if err := b.mqtt.Publish(b.mqtt.Topics().PropertyState(thingName, property), data, b.mqtt.QoS(), true); err != nil {
		return err
	}
	b.published.Add(1)

	props, ok := b.retained[thingName]
	if !ok {
		props = make(map[string]struct{})
		b.retained[thingName] = props
	}
	props[property] = struct{}{}
	return nil
}

// publishEvent publishes one event emission. Events are never retained.
func (b *Binding) publishEvent(c thing.Change) error {
	data, err := codec.Marshal(b.stateType, EventMessage{
		Thing:     c.Thing,
		Event:     c.Name,
		Data:      c.Value,
		Timestamp: c.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("encoding event %s/%s: %w", c.Thing, c.Name, err)
	}
	if err := b.mqtt.Publish(b.mqtt.Topics().Event(c.Thing, c.Name), data, b.mqtt.QoS(), false); err != nil {
		return err
	}
	b.published.Add(1)
	return nil
}

// syncThing publishes state for properties that have none on the bus yet
// and clears state of properties that are gone. A property named changed
// is republished even if it already has state, since it may have been
// redeclared with a new initial value.
func (b *Binding) syncThing(thingName, changed string) error {
	t, err := b.registry.Get(thingName)
	if err != nil {
		return b.clearThing(thingName, nil)
	}

	shape := t.Snapshot()
	declared := make(map[string]struct{}, len(shape.Properties))
	var firstErr error
	for _, p := range shape.Properties {
		declared[p.Name] = struct{}{}
		if _, done := b.retained[thingName][p.Name]; done && p.Name != changed {
			continue
		}
		if err := b.publishState(thingName, p.Name, p.Value); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := b.clearThing(thingName, declared); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// clearThing removes retained state of every published property of a
// Thing that is not in keep.
func (b *Binding) clearThing(thingName string, keep map[string]struct{}) error {
	var firstErr error
	for property := range b.retained[thingName] {
		if _, ok := keep[property]; ok {
			continue
		}
		// An empty retained payload deletes the retained message.
		if err := b.mqtt.Publish(b.mqtt.Topics().PropertyState(thingName, property), nil, b.mqtt.QoS(), true); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		delete(b.retained[thingName], property)
	}
	if len(b.retained[thingName]) == 0 {
		delete(b.retained, thingName)
	}
	return firstErr
}
