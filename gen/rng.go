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
	"encoding/binary"
	"math/rand/v2"

	"github.com/google/uuid"
)

// runStream is the PCG stream of the run-level RNG. Patient substreams use
// their one-based patient index as stream, so run and patient draws never
// overlap.
const runStream = 0

// RNG is an explicit seeded random source. Every random draw of a generation
// run goes through an RNG handle, there is no ambient random state. A cohort
// run derives one independent substream per patient from (seed, index), so
// the attributes of patient k do not depend on how many other patients are
// generated alongside it.
type RNG struct {
	seed uint64
	rand *rand.Rand
}

// NewRNG creates the run-level RNG for the given seed.
func NewRNG(seed uint64) *RNG {
	return &RNG{seed: seed, rand: rand.New(rand.NewPCG(seed, runStream))}
}

// Substream derives the reproducible, non-overlapping substream for one
// patient index.
func (r *RNG) Substream(index int) *RNG {
	return &RNG{seed: r.seed, rand: rand.New(rand.NewPCG(r.seed, uint64(index)+1))}
}

// Source exposes the underlying source for gonum distributions.
func (r *RNG) Source() rand.Source {
	return r.rand
}

// IntBetween returns a uniform integer in [min, max].
func (r *RNG) IntBetween(min, max int) int {
	if min >= max {
		return min
	}
	return min + r.rand.IntN(max-min+1)
}

// Float64 returns a uniform float in [0, 1).
func (r *RNG) Float64() float64 {
	return r.rand.Float64()
}

// Read fills p with random bytes. It never fails; the error return only
// satisfies io.Reader.
func (r *RNG) Read(p []byte) (int, error) {
	for filled := 0; filled < len(p); {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], r.rand.Uint64())
		filled += copy(p[filled:], buf[:])
	}
	return len(p), nil
}

// UUID draws a random version 4 UUID from this stream.
func (r *RNG) UUID() string {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		// Read never fails.
		panic(err)
	}
	return id.String()
}
