package descriptor

// Message is the well-known inner-object schema an ObjectDescriptor's
// message body must decode as. It exists as its own registered type so
// the polymorphic header the wire format embeds ahead of the body is
// checked against SchemaMessage on decode, rather than the body being
// read as a bare string.
type Message struct {
	Text string
}

// Object is a text message descriptor: message body plus copyAllowed and
// an edited flag.
type Object struct {
	Base
	Message string
	CopyAllowed bool
	Edited bool
}

func (o *Object) Kind() Kind { return KindObject }
func (o *Object) Envelope() *Base { return &o.Base }

var _ Descriptor = (*Object)(nil)
