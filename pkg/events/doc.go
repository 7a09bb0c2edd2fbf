// Package events is the resource change feed. After a write commits, the
// service hands an Event to the Emitter, which publishes it to every
// configured sink. Sinks are connectors registered by name, the way
// database/sql drivers are: a sink package registers itself in init and is
// enabled with a blank import.
//
//	import _ "github.com/edgeflare/pgjsonapi/pkg/events/sink/nats"
//
// Publishing never fails the write that produced the event; errors are
// logged and counted per sink.
package events
