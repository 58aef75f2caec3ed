package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by this package.
const (
	// MeasurementPropertyValues holds one point per numeric or boolean property change.
	MeasurementPropertyValues = "property_values"

	// MeasurementEvents holds one point per event emission.
	MeasurementEvents = "thing_events"
)

// WritePropertyValue records a property change as a property_values point
// tagged with the Thing and property names.
//
// Only values InfluxDB can aggregate are written: numbers become the float
// field "value" and booleans become the bool field "state". Returns false
// when the value was skipped (non-numeric, or the client is closed).
//
// Example:
//
//	client.WritePropertyValue("sensor", "temperature", 21.5, time.Now())
func (c *Client) WritePropertyValue(thing, property string, value any, ts time.Time) bool {
	if !c.IsConnected() {
		return false
	}
	point, ok := PropertyPoint(thing, property, value, ts)
	if !ok {
		c.skipped.Add(1)
		return false
	}
	return c.write(point)
}

// WriteEvent records one event emission as a thing_events point with a
// count field of 1, so emissions can be summed per window.
func (c *Client) WriteEvent(thing, event string, ts time.Time) {
	c.write(write.NewPoint(
		MeasurementEvents,
		map[string]string{"thing": thing, "event": event},
		map[string]any{"count": 1},
		ts,
	))
}

// PropertyPoint builds the point WritePropertyValue would send.
// ok is false for values that have no numeric or boolean form.
func PropertyPoint(thing, property string, value any, ts time.Time) (*write.Point, bool) {
	fields := make(map[string]any, 1)
	switch v := value.(type) {
	case bool:
		fields["state"] = v
	default:
		f, ok := toFloat(value)
		if !ok {
			return nil, false
		}
		fields["value"] = f
	}

	return write.NewPoint(
		MeasurementPropertyValues,
		map[string]string{"thing": thing, "property": property},
		fields,
		ts,
	), true
}

// toFloat converts the numeric types produced by the codecs (float64 from
// JSON, the integer widths from CBOR) and by Go callers.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
