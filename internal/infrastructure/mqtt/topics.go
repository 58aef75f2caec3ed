package mqtt

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultTopicPrefix is the root of every topic when none is configured.
const DefaultTopicPrefix = "things"

// Topic categories. Every topic uses the flat scheme
// {prefix}/{category}/{first}/{second}, so a Thing name can never collide
// with a category.
const (
	CategoryState    = "state"
	CategoryEvent    = "event"
	CategoryRequest  = "request"
	CategoryResponse = "response"
	CategorySystem   = "system"
)

// Topics builds the MQTT topics used to expose and reach Things.
// Using these helpers keeps topic naming consistent between the binding
// that serves requests and the protocol client that sends them.
//
//	topics := mqtt.NewTopics("things")
//	topics.PropertyState("lamp", "on")
//	// Returns: "things/state/lamp/on"
type Topics struct {
	Prefix string
}

// NewTopics returns a builder rooted at prefix, or DefaultTopicPrefix when empty.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// =============================================================================
// Thing Topics
// =============================================================================

// PropertyState returns the retained topic carrying a property's current value.
// Names are escaped with EscapeSegment.
//
// Example: things/state/lamp/on
func (t Topics) PropertyState(thing, property string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.root(), CategoryState, EscapeSegment(thing), EscapeSegment(property))
}

// Event returns the topic an event emission is published to.
//
// Example: things/event/door/opened
func (t Topics) Event(thing, event string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.root(), CategoryEvent, EscapeSegment(thing), EscapeSegment(event))
}

// EscapeSegment percent-encodes a name for use as one topic level. Level
// separators and wildcards never appear unescaped.
func EscapeSegment(name string) string {
	return segmentEscaper.Replace(url.PathEscape(name))
}

// UnescapeSegment reverses EscapeSegment.
func UnescapeSegment(segment string) (string, error) {
	return url.PathUnescape(segment)
}

// url.PathEscape already handles "/" and "#"; "+" is left alone.
var segmentEscaper = strings.NewReplacer("+", "%2B")

// =============================================================================
// Request / Response Topics
// =============================================================================

// Request returns the topic a client publishes one request envelope to.
//
// Example: things/request/thingctl-1a2b/6f1c...
func (t Topics) Request(clientID, requestID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.root(), CategoryRequest, clientID, requestID)
}

// Response returns the topic the reply to a request is published to.
//
// Example: things/response/thingctl-1a2b/6f1c...
func (t Topics) Response(clientID, requestID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", t.root(), CategoryResponse, clientID, requestID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the retained online/offline status topic.
//
// Example: things/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/%s/status", t.root(), CategorySystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllRequests matches every request from every client.
//
// Pattern: things/request/+/+
func (t Topics) AllRequests() string {
	return fmt.Sprintf("%s/%s/+/+", t.root(), CategoryRequest)
}

// Responses matches every response addressed to one client.
//
// Pattern: things/response/thingctl-1a2b/+
func (t Topics) Responses(clientID string) string {
	return fmt.Sprintf("%s/%s/%s/+", t.root(), CategoryResponse, clientID)
}

// AllPropertyStates matches the state topic of every property of every Thing.
//
// Pattern: things/state/+/+
func (t Topics) AllPropertyStates() string {
	return fmt.Sprintf("%s/%s/+/+", t.root(), CategoryState)
}

// AllEvents matches every event of every Thing.
//
// Pattern: things/event/+/+
func (t Topics) AllEvents() string {
	return fmt.Sprintf("%s/%s/+/+", t.root(), CategoryEvent)
}

// AllTopics matches everything under the prefix.
// Use with caution - this receives ALL traffic.
//
// Pattern: things/#
func (t Topics) AllTopics() string {
	return t.root() + "/#"
}

// ParseTopic splits a topic built by this package into its category and
// the two trailing segments. ok is false for topics outside the scheme.
func (t Topics) ParseTopic(topic string) (category, first, second string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.root()+"/")
	if !found {
		return "", "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
