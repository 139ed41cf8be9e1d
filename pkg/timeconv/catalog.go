package timeconv

import (
	"fmt"
	"time"
)

// Catalog is an ordered list of candidate zones used to name a bare UTC offset.
type Catalog struct {
	names []string
	locs  []*time.Location
}

// NewCatalog loads every zone in names. Order is preserved and decides ties.
func NewCatalog(names []string) (*Catalog, error) {
	c := &Catalog{}
	for _, name := range names {
		loc, err := LoadZone(name)
		if err != nil {
			return nil, fmt.Errorf("zone catalog: %w", err)
		}
		c.names = append(c.names, name)
		c.locs = append(c.locs, loc)
	}
	return c, nil
}

// Zones returns the catalog's zone names in order.
func (c *Catalog) Zones() []string {
	return append([]string(nil), c.names...)
}

// InferZone returns the first catalog zone whose offset at instant at equals
// offsetSeconds. Many zones share an offset, so the result is only a guess.
func (c *Catalog) InferZone(offsetSeconds int, at time.Time) (string, bool) {
	for i, loc := range c.locs {
		if _, off := at.In(loc).Zone(); off == offsetSeconds {
			return c.names[i], true
		}
	}
	return "", false
}
