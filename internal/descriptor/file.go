package descriptor

// File is the base of the File/Image/Audio/Video/NamedFile family: path,
// extension, length, end-offset, copyAllowed and whether a thumbnail
// side-channel exists.
type File struct {
	Base
	Path string
	Extension string
	Length int64
	EndOffset int64
	CopyAllowed bool
	HasThumbnail bool
}

func (f *File) Kind() Kind { return KindFile }
func (f *File) Envelope() *Base { return &f.Base }

// Image specialises File with pixel dimensions.
type Image struct {
	File
	Width int32
	Height int32
}

func (i *Image) Kind() Kind { return KindImage }
func (i *Image) Envelope() *Base { return &i.File.Base }

// Audio specialises File with a duration.
type Audio struct {
	File
	DurationMs int64
}

func (a *Audio) Kind() Kind { return KindAudio }
func (a *Audio) Envelope() *Base { return &a.File.Base }

// Video specialises File with dimensions and a duration.
type Video struct {
	File
	Width int32
	Height int32
	DurationMs int64
}

func (v *Video) Kind() Kind { return KindVideo }
func (v *Video) Envelope() *Base { return &v.File.Base }

// NamedFile specialises File with a display name distinct from Path.
type NamedFile struct {
	File
	Name string
}

func (n *NamedFile) Kind() Kind { return KindNamedFile }
func (n *NamedFile) Envelope() *Base { return &n.File.Base }

var (
	_ Descriptor = (*File)(nil)
	_ Descriptor = (*Image)(nil)
	_ Descriptor = (*Audio)(nil)
	_ Descriptor = (*Video)(nil)
	_ Descriptor = (*NamedFile)(nil)
)
