package geo

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"water-dispatch-backend/config"
)

// ErrNoCandidates is returned when no catalog entry lies within range.
var ErrNoCandidates = errors.New("no candidate location within range")

// CandidateLocation is a static catalog entry used to synthesize an incident site.
type CandidateLocation struct {
	Coordinates
	Address string `json:"addressLabel"`
	Area    string `json:"areaLabel"`
}

// Label renders the location as "address, area".
func (c CandidateLocation) Label() string {
	if c.Area == "" {
		return c.Address
	}
	return fmt.Sprintf("%s, %s", c.Address, c.Area)
}

// RankedLocation is a candidate annotated with its approximated road distance.
type RankedLocation struct {
	CandidateLocation
	RoadDistanceKm float64 `json:"roadDistanceKm"`
	Eligible       bool    `json:"eligible"`
}

// Catalog holds the read-only candidate list and the filter applied to it.
type Catalog struct {
	reference  CandidateLocation
	candidates []CandidateLocation
	eligible   []CandidateLocation
	maxRoadKm  float64
	roadFactor float64
}

// NewCatalog builds a catalog and precomputes the eligible subset.
func NewCatalog(reference CandidateLocation, candidates []CandidateLocation, maxRoadKm, roadFactor float64) *Catalog {
	c := &Catalog{
		reference:  reference,
		candidates: append([]CandidateLocation(nil), candidates...),
		maxRoadKm:  maxRoadKm,
		roadFactor: roadFactor,
	}
	for _, cand := range c.candidates {
		if RoadDistanceKm(reference.Coordinates, cand.Coordinates, roadFactor) <= maxRoadKm {
			c.eligible = append(c.eligible, cand)
		}
	}
	return c
}

// NewCatalogFromConfig converts the dispatch configuration into a Catalog.
func NewCatalogFromConfig(cfg config.DispatchConfig) *Catalog {
	candidates := make([]CandidateLocation, 0, len(cfg.Candidates))
	for _, lc := range cfg.Candidates {
		candidates = append(candidates, fromConfig(lc))
	}
	return NewCatalog(fromConfig(cfg.Reference), candidates, cfg.MaxRoadDistanceKm, cfg.RoadFactor)
}

func fromConfig(lc config.LocationConfig) CandidateLocation {
	return CandidateLocation{
		Coordinates: Coordinates{Lat: lc.Lat, Lng: lc.Lng},
		Address:     lc.Address,
		Area:        lc.Area,
	}
}

// Reference returns the point distances are measured from.
func (c *Catalog) Reference() CandidateLocation {
	return c.reference
}

// Eligible returns the candidates within the road-distance limit.
func (c *Catalog) Eligible() []CandidateLocation {
	return append([]CandidateLocation(nil), c.eligible...)
}

// Ranked returns every candidate with its distance and eligibility, in catalog order.
func (c *Catalog) Ranked() []RankedLocation {
	out := make([]RankedLocation, 0, len(c.candidates))
	for _, cand := range c.candidates {
		d := RoadDistanceKm(c.reference.Coordinates, cand.Coordinates, c.roadFactor)
		out = append(out, RankedLocation{
			CandidateLocation: cand,
			RoadDistanceKm:    d,
			Eligible:          d <= c.maxRoadKm,
		})
	}
	return out
}

// Pick chooses an eligible candidate uniformly at random.
func (c *Catalog) Pick(r *rand.Rand) (CandidateLocation, error) {
	if len(c.eligible) == 0 {
		return CandidateLocation{}, ErrNoCandidates
	}
	return c.eligible[r.IntN(len(c.eligible))], nil
}
