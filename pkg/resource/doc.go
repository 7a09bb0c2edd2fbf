// Package resource defines the data model shared by the query compiler, the
// resource transformer and the service layer: entity descriptors and their
// immutable Registry, the typed Query a request is validated into, hydrated
// Records, and the JSON:API document shapes written to the wire.
//
// Entity descriptors are built once (see package schema) and never mutated
// afterwards, so a *Registry can be read from any number of goroutines
// without locking. Queries, Records and Documents live for one request.
package resource
