// Package sink imports every built-in event sink so their connectors are
// registered with the events package.
package sink

import (
	_ "github.com/edgeflare/pgjsonapi/pkg/events/sink/clickhouse"
	_ "github.com/edgeflare/pgjsonapi/pkg/events/sink/debug"
	_ "github.com/edgeflare/pgjsonapi/pkg/events/sink/kafka"
	_ "github.com/edgeflare/pgjsonapi/pkg/events/sink/mqtt"
	_ "github.com/edgeflare/pgjsonapi/pkg/events/sink/nats"
	_ "github.com/edgeflare/pgjsonapi/pkg/events/sink/webhook"
)
