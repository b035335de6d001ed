package mitigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resilience/internal/types"
)

func categories(recs []types.Recommendation) []types.HazardCategory {
	out := make([]types.HazardCategory, len(recs))
	for i, r := range recs {
		out[i] = r.Category
	}
	return out
}

func TestRuleBased(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want []types.HazardCategory
	}{
		{"all hazards", Input{FloodScore: 45, EarthquakeScore: 50, WeatherScore: 46},
			[]types.HazardCategory{types.CategoryFlood, types.CategoryEarthquake, types.CategoryWeather}},
		{"thresholds are strict", Input{FloodScore: 20, EarthquakeScore: 20, WeatherScore: 15},
			[]types.HazardCategory{types.CategoryGeneral}},
		{"just above", Input{FloodScore: 21, EarthquakeScore: 0, WeatherScore: 16},
			[]types.HazardCategory{types.CategoryFlood, types.CategoryWeather}},
		{"earthquake only", Input{EarthquakeScore: 100},
			[]types.HazardCategory{types.CategoryEarthquake}},
		{"quiet", Input{}, []types.HazardCategory{types.CategoryGeneral}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := RuleBased(tt.in)
			assert.Equal(t, tt.want, categories(recs))
			for _, r := range recs {
				assert.Equal(t, types.RecommendationPending, r.Status)
			}
		})
	}
}

func TestRuleBased_Texts(t *testing.T) {
	recs := RuleBased(Input{FloodScore: 90, EarthquakeScore: 90, WeatherScore: 90})
	require.Len(t, recs, 3)
	assert.Equal(t, "Improve Drainage System", recs[0].Title)
	assert.Equal(t, "Install additional stormwater channels and flood barriers.", recs[0].Details)
	assert.Equal(t, "Reinforce Structural Design", recs[1].Title)
	assert.Equal(t, "Use earthquake-resistant materials and structural reinforcements.", recs[1].Details)
	assert.Equal(t, "Weatherproof Infrastructure", recs[2].Title)
	assert.Equal(t, "Use weather-resistant materials and protective coatings.", recs[2].Details)

	general := RuleBased(Input{})
	assert.Equal(t, "General Risk Monitoring", general[0].Title)
	assert.Equal(t, "Continue periodic monitoring and preventive maintenance.", general[0].Details)
}

func TestRuleBased_DoesNotAliasTemplates(t *testing.T) {
	first := RuleBased(Input{FloodScore: 50})
	first[0].Status = types.RecommendationDone

	second := RuleBased(Input{FloodScore: 50})
	assert.Equal(t, types.RecommendationPending, second[0].Status)
}
