package protocol

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind names the member type a resource URI targets.
type Kind string

// Resource kinds. KindThing addresses the Thing itself.
const (
	KindThing    Kind = ""
	KindProperty Kind = "properties"
	KindAction   Kind = "actions"
	KindEvent    Kind = "events"
)

// Verb is one of the four resource operations.
type Verb string

// The four verbs every client and binding implements.
const (
	VerbRead   Verb = "read"
	VerbWrite  Verb = "write"
	VerbInvoke Verb = "invoke"
	VerbUnlink Verb = "unlink"
)

// Valid reports whether v is one of the four verbs.
func (v Verb) Valid() bool {
	switch v {
	case VerbRead, VerbWrite, VerbInvoke, VerbUnlink:
		return true
	default:
		return false
	}
}

// thingsSegment is the first path segment of every resource.
const thingsSegment = "things"

// Resource is a parsed resource URI.
//
// Every binding shares one path convention:
//
//	{scheme}://{host}/things/{thing}
//	{scheme}://{host}/things/{thing}/{properties|actions|events}/{name}
//
// Path segments are percent-encoded, so Thing and member names may contain
// any character.
type Resource struct {
	Scheme string
	Host   string
	Thing  string
	Kind   Kind
	Name   string
}

// ParseResource parses a URI following the resource path convention.
func ParseResource(uri string) (Resource, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Resource{}, fmt.Errorf("%w: %w", ErrInvalidResource, err)
	}
	if u.Scheme == "" {
		return Resource{}, fmt.Errorf("%w: %q has no scheme", ErrInvalidResource, uri)
	}

	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	if len(segments) != 2 && len(segments) != 4 {
		return Resource{}, fmt.Errorf("%w: %q does not name a thing or member", ErrInvalidResource, uri)
	}
	if segments[0] != thingsSegment {
		return Resource{}, fmt.Errorf("%w: %q is not under /%s", ErrInvalidResource, uri, thingsSegment)
	}

	for i, s := range segments {
		decoded, err := url.PathUnescape(s)
		if err != nil || decoded == "" {
			return Resource{}, fmt.Errorf("%w: bad path segment %q", ErrInvalidResource, s)
		}
		segments[i] = decoded
	}

	r := Resource{
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Host,
		Thing:  segments[1],
	}
	if len(segments) == 4 {
		switch k := Kind(segments[2]); k {
		case KindProperty, KindAction, KindEvent:
			r.Kind = k
		default:
			return Resource{}, fmt.Errorf("%w: unknown member kind %q", ErrInvalidResource, segments[2])
		}
		r.Name = segments[3]
	}
	return r, nil
}

// Path returns the escaped path of the resource, starting with "/things".
func (r Resource) Path() string {
	p := "/" + thingsSegment + "/" + url.PathEscape(r.Thing)
	if r.Kind != KindThing {
		p += "/" + string(r.Kind) + "/" + url.PathEscape(r.Name)
	}
	return p
}

// String returns the full URI.
func (r Resource) String() string {
	return r.Scheme + "://" + r.Host + r.Path()
}

// ThingResource builds the Resource of a Thing.
func ThingResource(scheme, host, thing string) Resource {
	return Resource{Scheme: scheme, Host: host, Thing: thing}
}

// MemberResource builds the Resource of a property, action or event.
func MemberResource(scheme, host, thing string, kind Kind, name string) Resource {
	return Resource{Scheme: scheme, Host: host, Thing: thing, Kind: kind, Name: name}
}

// JoinBase appends a resource path to a base URL such as
// "http://gateway:8080". Any path already on the base is kept.
func JoinBase(base string, r Resource) string {
	return strings.TrimRight(base, "/") + r.Path()
}
