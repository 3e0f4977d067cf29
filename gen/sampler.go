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
	"sort"
	"time"

	"github.com/samply/fhirgen/data"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	defaultAgeMin = 18
	defaultAgeMax = 90
)

// Sampled is one drawn demographic attribute set.
type Sampled struct {
	Attributes Attributes
	Name       data.NameDef
	Gender     string
	Age        int
	BirthDate  string
}

// SampleDemographics draws one attribute set from the declared
// distributions. Draw order is fixed (age, gender, remaining attributes in
// name order, then the name pools) so that a patient substream always
// produces the same attributes.
func SampleDemographics(spec data.Demographics, rng *RNG, now time.Time) (*Sampled, error) {
	sampled := &Sampled{Attributes: make(Attributes, len(spec)+1)}

	age, err := sampleAge(spec, rng)
	if err != nil {
		return nil, err
	}
	sampled.Age = age
	sampled.Attributes["age"] = float64(age)
	sampled.BirthDate = now.AddDate(-age, 0, 0).Format("2006-01-02")

	gender, err := sampleGender(spec, rng)
	if err != nil {
		return nil, err
	}
	sampled.Gender = gender
	sampled.Attributes["gender"] = gender

	names := make([]string, 0, len(spec))
	for name := range spec {
		if name != "age" && name != "gender" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		value, err := sampleAttribute(name, spec[name], rng)
		if err != nil {
			return nil, err
		}
		sampled.Attributes[name] = value
	}

	givenPool := maleGivenNames
	if gender == "female" {
		givenPool = femaleGivenNames
	}
	sampled.Name = data.NameDef{
		Given:  []string{givenPool[rng.IntBetween(0, len(givenPool)-1)]},
		Family: familyNames[rng.IntBetween(0, len(familyNames)-1)],
	}

	return sampled, nil
}

func sampleAge(spec data.Demographics, rng *RNG) (int, error) {
	dist, ok := spec["age"]
	if !ok {
		return rng.IntBetween(defaultAgeMin, defaultAgeMax), nil
	}
	value, err := sampleAttribute("age", dist, rng)
	if err != nil {
		return 0, err
	}
	age, isNumber := value.(float64)
	if !isNumber {
		return 0, configErrorf("", -1, "attribute `age` must use a numeric range")
	}
	return int(age), nil
}

func sampleGender(spec data.Demographics, rng *RNG) (string, error) {
	dist, ok := spec["gender"]
	if !ok || !dist.Categorical() {
		if rng.Float64() < 0.5 {
			return "female", nil
		}
		return "male", nil
	}
	value, err := sampleAttribute("gender", dist, rng)
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func sampleAttribute(name string, dist data.Distribution, rng *RNG) (any, error) {
	if dist.Categorical() {
		return weightedChoice(name, dist.Distribution, rng)
	}

	min, max := 0.0, 0.0
	if dist.Min != nil {
		min = *dist.Min
	}
	if dist.Max != nil {
		max = *dist.Max
	}
	if min > max {
		return nil, configErrorf("", -1, "attribute `%s` has an empty range [%g, %g]", name, min, max)
	}
	if min == max {
		return min, nil
	}
	uniform := distuv.Uniform{Min: min, Max: max, Src: rng.Source()}
	return uniform.Rand(), nil
}

func weightedChoice(name string, weights map[string]float64, rng *RNG) (string, error) {
	labels := make([]string, 0, len(weights))
	for label := range weights {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	mass := make([]float64, len(labels))
	for i, label := range labels {
		if weights[label] < 0 {
			return "", configErrorf("", -1, "attribute `%s` has a negative weight for `%s`", name, label)
		}
		mass[i] = weights[label]
	}

	total := floats.Sum(mass)
	if total <= 0 {
		return "", configErrorf("", -1, "attribute `%s` has no positive weight", name)
	}

	// Weights are normalized by drawing against their total mass.
	draw := rng.Float64() * total
	for i, label := range labels {
		draw -= mass[i]
		if draw < 0 {
			return label, nil
		}
	}
	return labels[len(labels)-1], nil
}
