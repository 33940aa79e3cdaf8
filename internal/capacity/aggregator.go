// Package capacity computes per-country utilization figures.
//
// Active reservations count toward allocated: a reserved slot blocks
// allocation exactly like a claimed one, so the reported utilization is the
// fraction of the range a new caller cannot obtain. This choice is held
// across every stats surface and pinned by tests.
package capacity

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/maypok86/otter"

	"github.com/geogrid-ipam/geogrid/internal/countrymap"
	"github.com/geogrid-ipam/geogrid/internal/state"
)

// CountryStats is one country's capacity snapshot.
type CountryStats struct {
	Country            string  `json:"country"`
	Continent          string  `json:"continent"`
	TotalBlocks        int     `json:"total_blocks"`
	Allocated          int     `json:"allocated"`
	Remaining          int     `json:"remaining"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

// Aggregator serves capacity stats with a short TTL cache in front of the
// store. Reads are eventually consistent with concurrent writes.
type Aggregator struct {
	repo     *state.Repo
	registry *countrymap.Registry
	cache    otter.Cache[string, CountryStats]
}

func NewAggregator(repo *state.Repo, registry *countrymap.Registry, cacheTTL time.Duration) *Aggregator {
	cache, err := otter.MustBuilder[string, CountryStats](512).
		Cost(func(_ string, _ CountryStats) uint32 { return 1 }).
		WithTTL(cacheTTL).
		Build()
	if err != nil {
		panic("capacity: failed to create stats cache: " + err.Error())
	}
	return &Aggregator{repo: repo, registry: registry, cache: cache}
}

// CountryStats returns the capacity snapshot for one country.
func (a *Aggregator) CountryStats(country string) (CountryStats, error) {
	if stats, found := a.cache.Get(country); found {
		return stats, nil
	}

	mapping, err := a.registry.Lookup(country)
	if err != nil {
		return CountryStats{}, err
	}
	// Reserved ranges never allocate, so they have no stats surface either.
	if mapping.IsReserved {
		return CountryStats{}, &countrymap.UnknownCountryError{Country: country}
	}

	stats, err := a.compute(mapping.Country, mapping.Continent, mapping.XStart, mapping.XEnd)
	if err != nil {
		return CountryStats{}, err
	}
	a.cache.Set(country, stats)
	return stats, nil
}

func (a *Aggregator) compute(country, continent string, xStart, xEnd int) (CountryStats, error) {
	total := (xEnd - xStart + 1) * 256

	regions, err := a.repo.CountActiveRegionsInRange(xStart, xEnd)
	if err != nil {
		return CountryStats{}, fmt.Errorf("count regions: %w", err)
	}
	// Reservations on pairs that also hold an active region are excluded by
	// the query, so the sum never double-counts a slot.
	reserved, err := a.repo.CountBlockingRegionReservationsInRange(xStart, xEnd)
	if err != nil {
		return CountryStats{}, fmt.Errorf("count reservations: %w", err)
	}

	allocated := regions + reserved
	return CountryStats{
		Country:            country,
		Continent:          continent,
		TotalBlocks:        total,
		Allocated:          allocated,
		Remaining:          total - allocated,
		UtilizationPercent: roundPercent(allocated, total),
	}, nil
}

// TopCountries returns the n most utilized non-reserved countries, ties
// broken by country name ascending.
func (a *Aggregator) TopCountries(n int) ([]CountryStats, error) {
	if n <= 0 {
		return nil, nil
	}

	all := make([]CountryStats, 0, len(a.registry.Countries()))
	for _, country := range a.registry.Countries() {
		stats, err := a.CountryStats(country)
		if err != nil {
			return nil, err
		}
		all = append(all, stats)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].UtilizationPercent != all[j].UtilizationPercent {
			return all[i].UtilizationPercent > all[j].UtilizationPercent
		}
		return all[i].Country < all[j].Country
	})
	if n > len(all) {
		n = len(all)
	}
	return all[:n], nil
}

// roundPercent computes allocated/total as a percentage rounded to one
// decimal place.
func roundPercent(allocated, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(allocated)/float64(total)*1000) / 10
}
