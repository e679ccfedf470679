package descriptor

// Clear is the tombstone descriptor produced by a conversation reset.
type Clear struct {
	Base
	ClearTimestamp int64
}

func (c *Clear) Kind() Kind { return KindClear }
func (c *Clear) Envelope() *Base { return &c.Base }

var _ Descriptor = (*Clear)(nil)
