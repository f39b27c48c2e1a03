package cost

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/islandways/placesync/pkg/directory"
)

// Rates holds per-call directory API pricing in USD.
type Rates struct {
	SearchPerCall  float64 `yaml:"search_per_call" mapstructure:"search_per_call"`
	DetailsPerCall float64 `yaml:"details_per_call" mapstructure:"details_per_call"`
	PhotoPerCall   float64 `yaml:"photo_per_call" mapstructure:"photo_per_call"`
}

// Calculator computes spend for directory API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Estimate computes the cost of a call mix.
func (c *Calculator) Estimate(searchCalls, detailsCalls, photoCalls int64) float64 {
	return float64(searchCalls)*c.rates.SearchPerCall +
		float64(detailsCalls)*c.rates.DetailsPerCall +
		float64(photoCalls)*c.rates.PhotoPerCall
}

// ForCounts computes the cost of the wire requests a client has sent.
func (c *Calculator) ForCounts(counts directory.Counts) float64 {
	return c.Estimate(counts.Search, counts.Details, 0)
}

// PerRecord returns the worst-case cost of fully enriching one record:
// one search plus one details call.
func (c *Calculator) PerRecord() float64 {
	return c.rates.SearchPerCall + c.rates.DetailsPerCall
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		SearchPerCall:  0.032,
		DetailsPerCall: 0.017,
		PhotoPerCall:   0.007,
	}
}

// LoadRates reads pricing from a YAML file. The file has a top-level
// "rates" key so it can live inside a larger config document.
func LoadRates(path string) (Rates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rates{}, eris.Wrapf(err, "cost: read rates %s", path)
	}

	var wrapper struct {
		Rates Rates `yaml:"rates"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Rates{}, eris.Wrap(err, "cost: parse rates")
	}

	r := wrapper.Rates
	defaults := DefaultRates()
	if r.SearchPerCall == 0 {
		r.SearchPerCall = defaults.SearchPerCall
	}
	if r.DetailsPerCall == 0 {
		r.DetailsPerCall = defaults.DetailsPerCall
	}
	if r.PhotoPerCall == 0 {
		r.PhotoPerCall = defaults.PhotoPerCall
	}

	return r, nil
}
