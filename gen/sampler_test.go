// Copyright 2024 - 2026 The Samply Community
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package gen

import (
	"testing"
	"time"

	"github.com/samply/fhirgen/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var samplerNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func floatPtr(v float64) *float64 {
	return &v
}

func TestSampleDemographics(t *testing.T) {
	spec := data.Demographics{
		"age":    {Min: floatPtr(40), Max: floatPtr(60)},
		"gender": {Distribution: map[string]float64{"female": 1, "male": 1}},
		"smoker": {Distribution: map[string]float64{"yes": 0.3, "no": 0.7}},
	}

	t.Run("Deterministic", func(t *testing.T) {
		a, err := SampleDemographics(spec, NewRNG(42).Substream(0), samplerNow)
		require.NoError(t, err)
		b, err := SampleDemographics(spec, NewRNG(42).Substream(0), samplerNow)
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("RangesAreRespected", func(t *testing.T) {
		for k := range 100 {
			sampled, err := SampleDemographics(spec, NewRNG(7).Substream(k), samplerNow)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, sampled.Age, 40)
			assert.LessOrEqual(t, sampled.Age, 60)
			assert.Contains(t, []string{"female", "male"}, sampled.Gender)
			assert.Contains(t, []string{"yes", "no"}, sampled.Attributes["smoker"])
		}
	})

	t.Run("BirthDateMatchesAge", func(t *testing.T) {
		sampled, err := SampleDemographics(spec, NewRNG(42).Substream(0), samplerNow)
		require.NoError(t, err)

		expected := samplerNow.AddDate(-sampled.Age, 0, 0).Format("2006-01-02")
		assert.Equal(t, expected, sampled.BirthDate)
	})

	t.Run("NameMatchesGender", func(t *testing.T) {
		sampled, err := SampleDemographics(spec, NewRNG(42).Substream(0), samplerNow)
		require.NoError(t, err)

		pool := maleGivenNames
		if sampled.Gender == "female" {
			pool = femaleGivenNames
		}
		require.Len(t, sampled.Name.Given, 1)
		assert.Contains(t, pool, sampled.Name.Given[0])
		assert.Contains(t, familyNames, sampled.Name.Family)
	})
}

func TestSampleDemographicsDefaults(t *testing.T) {
	sampled, err := SampleDemographics(data.Demographics{}, NewRNG(42).Substream(0), samplerNow)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, sampled.Age, defaultAgeMin)
	assert.LessOrEqual(t, sampled.Age, defaultAgeMax)
	assert.Contains(t, []string{"female", "male"}, sampled.Gender)
}

func TestSampleDemographicsErrors(t *testing.T) {
	t.Run("EmptyRange", func(t *testing.T) {
		spec := data.Demographics{"age": {Min: floatPtr(60), Max: floatPtr(40)}}

		_, err := SampleDemographics(spec, NewRNG(1).Substream(0), samplerNow)
		assert.ErrorContains(t, err, "empty range")
	})

	t.Run("NegativeWeight", func(t *testing.T) {
		spec := data.Demographics{"smoker": {Distribution: map[string]float64{"yes": -1, "no": 2}}}

		_, err := SampleDemographics(spec, NewRNG(1).Substream(0), samplerNow)
		assert.ErrorContains(t, err, "negative weight")
	})

	t.Run("NoPositiveWeight", func(t *testing.T) {
		spec := data.Demographics{"smoker": {Distribution: map[string]float64{"yes": 0, "no": 0}}}

		_, err := SampleDemographics(spec, NewRNG(1).Substream(0), samplerNow)
		assert.ErrorContains(t, err, "no positive weight")
	})
}

func TestWeightedChoiceNormalization(t *testing.T) {
	// Weights that do not sum to one are normalized over their total mass.
	counts := map[string]int{}
	for k := range 1000 {
		value, err := weightedChoice("smoker", map[string]float64{"yes": 3, "no": 1}, NewRNG(11).Substream(k))
		require.NoError(t, err)
		counts[value]++
	}
	assert.Greater(t, counts["yes"], 600)
	assert.Greater(t, counts["no"], 100)
}

func TestFixedPointRange(t *testing.T) {
	spec := data.Demographics{"age": {Min: floatPtr(50), Max: floatPtr(50)}}

	sampled, err := SampleDemographics(spec, NewRNG(1).Substream(0), samplerNow)
	require.NoError(t, err)
	assert.Equal(t, 50, sampled.Age)
}
