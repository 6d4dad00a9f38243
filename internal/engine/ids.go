package engine

import "github.com/google/uuid"

// IDGenerator names instances started without an explicit id (deferred
// actions) and, once per host, the worker id.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDv7 ids, so deferred actions
// list in creation order.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
