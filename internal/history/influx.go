package history

import (
	"context"

	"github.com/nerrad567/gray-logic-things/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-things/internal/thing"
)

// InfluxSink forwards changes to InfluxDB as telemetry points. Values with
// no numeric form are skipped.
type InfluxSink struct {
	client *influxdb.Client
}

// NewInfluxSink wraps a connected InfluxDB client.
func NewInfluxSink(client *influxdb.Client) *InfluxSink {
	return &InfluxSink{client: client}
}

// Record implements Sink. Writes are batched by the client and never block.
func (s *InfluxSink) Record(_ context.Context, c thing.Change) error {
	switch c.Kind {
	case thing.ChangeProperty:
		s.client.WritePropertyValue(c.Thing, c.Name, c.Value, c.Timestamp)
	case thing.ChangeEvent:
		s.client.WriteEvent(c.Thing, c.Name, c.Timestamp)
	}
	return nil
}
