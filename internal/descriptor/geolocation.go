package descriptor

// Geolocation carries a position update: coordinates, two map-rendering
// deltas, an updated flag and an optional path to a locally cached map
// tile image.
type Geolocation struct {
	Base
	Longitude float64
	Latitude float64
	Altitude float64
	MapLongitudeDelta float64
	MapLatitudeDelta float64
	Updated bool
	LocalMapPath *string
}

func (g *Geolocation) Kind() Kind { return KindGeolocation }
func (g *Geolocation) Envelope() *Base { return &g.Base }

var _ Descriptor = (*Geolocation)(nil)

// Update copies the mutable fields of other into g, as the peer's position
// refreshes over time. The latitude field is assigned from other's
// latitude field.
func (g *Geolocation) Update(other *Geolocation) {
	g.Longitude = other.Longitude
	g.Latitude = other.Latitude
	g.Altitude = other.Altitude
	g.MapLongitudeDelta = other.MapLongitudeDelta
	g.MapLatitudeDelta = other.MapLatitudeDelta
	g.Updated = true
}
