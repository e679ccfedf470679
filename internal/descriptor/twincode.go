package descriptor

import "github.com/google/uuid"

// Twincode shares another twincode's identity with the peer: its id, the
// schema of the identity it represents, an optional public key and whether copying is allowed.
type Twincode struct {
	Base
	TwincodeID uuid.UUID
	SchemaID uuid.UUID
	PublicKey []byte
	CopyAllowed bool
}

func (t *Twincode) Kind() Kind { return KindTwincode }
func (t *Twincode) Envelope() *Base { return &t.Base }

var _ Descriptor = (*Twincode)(nil)
