package descriptor

import "github.com/twinlife/conversation-engine/internal/schema"

// TransientObject is a non-persisted descriptor wrapping an arbitrary
// serialisable payload identified by its own (schemaId, schemaVersion)
// pair. It is never written to storage and never survives a
// connection close; operations built on it complete immediately without
// an ack.
type TransientObject struct {
	Base
	PayloadSchema schema.Key
	Payload any
}

func (t *TransientObject) Kind() Kind { return KindTransientObject }
func (t *TransientObject) Envelope() *Base { return &t.Base }

var _ Descriptor = (*TransientObject)(nil)
