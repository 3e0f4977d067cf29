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

// Package bundle assembles the resources of one generation run into
// referentially consistent FHIR bundles.
package bundle

import (
	fm "github.com/samply/golang-fhir-models/fhir-models/fhir"
)

// Item is one produced resource awaiting assembly. ID is the
// construction-time identifier; references between items are created as
// plain construction-time identifiers inside the Refs slots and rewritten to
// their final form in a single pass at assembly time.
type Item struct {
	// ID is the construction-time identifier, unique within the run.
	ID string
	// Type is the FHIR resource type, e.g. "Patient".
	Type string
	// Patient is the cohort index of the patient group the item belongs to.
	// All items of one group always end up in the same bundle.
	Patient int
	// Resource is a pointer to the golang-fhir-models resource struct.
	Resource any
	// Refs are the reference slots inside Resource that point at other
	// items of the same run by their construction-time identifier.
	Refs []*fm.Reference
}

// NewItem creates an item for a resource with its pending reference slots.
func NewItem(patient int, resourceType, id string, resource any, refs ...*fm.Reference) *Item {
	return &Item{
		ID:       id,
		Type:     resourceType,
		Patient:  patient,
		Resource: resource,
		Refs:     refs,
	}
}
