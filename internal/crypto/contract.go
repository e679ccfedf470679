// Package crypto declares the signature contract the conversation engine
// depends on without implementing it: group invitations and joins carry
// key material produced and checked by the host application's key
// store. Concrete signing lives outside this module; this package only
// gives the rest of the engine a stable type to pass around.
package crypto

import "github.com/google/uuid"

// SignatureInfo proves a twincode's membership claim in a group exchange.
// Secret, Salt and Signature are independently optional: a bare invite
// carries only the identity and public key, a challenge response adds a
// signature over a salt, and so on.
type SignatureInfo struct {
	TwincodeOutboundID uuid.UUID
	PublicKey []byte
	Secret []byte
	Salt []byte
	Signature []byte
}

// Signer produces a SignatureInfo for one of the caller's own twincodes.
// It returns ok=false when the twincode has no signing key configured —
// the caller then sends the group IQ with no signature material at all,
// as in the JoinGroupIQ "no signature" scenario.
type Signer interface {
	Sign(twincodeOutboundID uuid.UUID) (info SignatureInfo, ok bool)
}

// Verifier checks a SignatureInfo presented by a peer.
type Verifier interface {
	Verify(info SignatureInfo) bool
}
