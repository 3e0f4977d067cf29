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

package bundle

import (
	"encoding/json"
	"fmt"

	fm "github.com/samply/golang-fhir-models/fhir-models/fhir"
)

// RequestMethod selects the request semantics of transaction bundle entries.
type RequestMethod string

const (
	// MethodPost creates resources with server-assigned identifiers.
	// Entries use urn:uuid full URLs and resource identifiers are stripped.
	MethodPost RequestMethod = "POST"
	// MethodPut upserts resources under their generated identifiers.
	MethodPut RequestMethod = "PUT"
	// MethodConditional creates Patient resources conditionally by their
	// first business identifier and everything else like MethodPost.
	MethodConditional RequestMethod = "CONDITIONAL"
)

// IntegrityError reports a reference that could not be resolved within its
// bundle after assembly. It indicates a defect in resource generation, not a
// profile problem.
type IntegrityError struct {
	ResourceType string
	ResourceID   string
	Target       string
	Reason       string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("dangling reference from %s %s to `%s`: %s",
		e.ResourceType, e.ResourceID, e.Target, e.Reason)
}

// Assembler packages the complete resource set of one generation run into
// one or more bundles. All identifier draws happen in item order so that
// assembly output only depends on the input ordering.
type Assembler struct {
	// Transaction selects transaction bundles with per-entry request
	// metadata; otherwise collection bundles are produced.
	Transaction bool
	// Method is used for transaction entries, defaults to MethodPost.
	Method RequestMethod
	// BundleSize is the nominal maximum number of entries per bundle. A
	// bundle may exceed it rather than split one patient's resource group.
	// Zero means unbounded.
	BundleSize int
	// Timestamp is the bundle timestamp, in FHIR instant form.
	Timestamp string
	// NewID returns the next identifier. It must be deterministic for
	// reproducible runs.
	NewID func() string
}

type identity struct {
	fullURL   string
	reference string
	bundleIdx int
}

// Assemble partitions the items into bundles, resolves every pending
// reference to its final form and returns the finished bundles. An empty
// item set yields one empty bundle.
func (a *Assembler) Assemble(items []*Item) ([]fm.Bundle, error) {
	method := a.Method
	if method == "" {
		method = MethodPost
	}

	partition := a.partition(items)

	identities := make(map[string]identity, len(items))
	for bundleIdx, group := range partition {
		for _, item := range group {
			if _, ok := identities[item.ID]; ok {
				return nil, &IntegrityError{
					ResourceType: item.Type,
					ResourceID:   item.ID,
					Target:       item.ID,
					Reason:       "duplicate resource identifier",
				}
			}
			identities[item.ID] = a.identify(item, method, bundleIdx)
		}
	}

	// Single resolution pass. Forward references work because every item of
	// the run already has its identity assigned above.
	for bundleIdx, group := range partition {
		for _, item := range group {
			for _, ref := range item.Refs {
				if ref == nil || ref.Reference == nil {
					continue
				}
				target, ok := identities[*ref.Reference]
				if !ok {
					return nil, &IntegrityError{
						ResourceType: item.Type,
						ResourceID:   item.ID,
						Target:       *ref.Reference,
						Reason:       "no resource with this identifier in the run",
					}
				}
				if target.bundleIdx != bundleIdx {
					return nil, &IntegrityError{
						ResourceType: item.Type,
						ResourceID:   item.ID,
						Target:       *ref.Reference,
						Reason:       "reference crosses a bundle boundary",
					}
				}
				reference := target.reference
				ref.Reference = &reference
			}
		}
	}

	bundles := make([]fm.Bundle, 0, len(partition))
	for _, group := range partition {
		bundle, err := a.createBundle(group, method, identities)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, bundle)
	}
	return bundles, nil
}

// partition packs whole patient groups into bundles of at most BundleSize
// entries. A group larger than the nominal size stays together and the
// bundle overflows instead.
func (a *Assembler) partition(items []*Item) [][]*Item {
	groups := make([][]*Item, 0)
	for _, item := range items {
		if n := len(groups); n > 0 && groups[n-1][0].Patient == item.Patient {
			groups[n-1] = append(groups[n-1], item)
		} else {
			groups = append(groups, []*Item{item})
		}
	}

	partition := [][]*Item{{}}
	for _, group := range groups {
		current := len(partition) - 1
		if len(partition[current]) > 0 && a.BundleSize > 0 &&
			len(partition[current])+len(group) > a.BundleSize {
			partition = append(partition, []*Item{})
			current++
		}
		partition[current] = append(partition[current], group...)
	}
	return partition
}

func (a *Assembler) identify(item *Item, method RequestMethod, bundleIdx int) identity {
	if a.Transaction && (method == MethodPost || method == MethodConditional) {
		urn := "urn:uuid:" + a.NewID()
		return identity{fullURL: urn, reference: urn, bundleIdx: bundleIdx}
	}
	return identity{
		fullURL:   "urn:uuid:" + item.ID,
		reference: item.Type + "/" + item.ID,
		bundleIdx: bundleIdx,
	}
}

func (a *Assembler) createBundle(items []*Item, method RequestMethod,
	identities map[string]identity) (fm.Bundle, error) {

	bundleType := fm.BundleTypeCollection
	if a.Transaction {
		bundleType = fm.BundleTypeTransaction
	}

	id := a.NewID()
	bundle := fm.Bundle{
		Id:    &id,
		Type:  bundleType,
		Entry: make([]fm.BundleEntry, 0, len(items)),
	}
	if a.Timestamp != "" {
		timestamp := a.Timestamp
		bundle.Timestamp = &timestamp
	}

	for _, item := range items {
		entry, err := a.createEntry(item, method, identities[item.ID])
		if err != nil {
			return fm.Bundle{}, err
		}
		bundle.Entry = append(bundle.Entry, entry)
	}
	return bundle, nil
}

func (a *Assembler) createEntry(item *Item, method RequestMethod, id identity) (fm.BundleEntry, error) {
	if a.Transaction && (method == MethodPost || method == MethodConditional) {
		// The server assigns the identifier.
		clearResourceID(item.Resource)
	}

	resource, err := json.Marshal(item.Resource)
	if err != nil {
		return fm.BundleEntry{}, fmt.Errorf("error while marshalling a %s resource: %w", item.Type, err)
	}

	fullURL := id.fullURL
	entry := fm.BundleEntry{
		FullUrl:  &fullURL,
		Resource: resource,
	}
	if a.Transaction {
		entry.Request = a.createRequest(item, method)
	}
	return entry, nil
}

func (a *Assembler) createRequest(item *Item, method RequestMethod) *fm.BundleEntryRequest {
	switch method {
	case MethodPut:
		ifNoneMatch := "*"
		return &fm.BundleEntryRequest{
			Method:      fm.HTTPVerbPUT,
			Url:         item.Type + "/" + item.ID,
			IfNoneMatch: &ifNoneMatch,
		}
	case MethodConditional:
		if system, value, ok := firstIdentifier(item.Resource); ok && item.Type == "Patient" {
			ifNoneExist := "identifier=" + system + "|" + value
			return &fm.BundleEntryRequest{
				Method:      fm.HTTPVerbPOST,
				Url:         item.Type,
				IfNoneExist: &ifNoneExist,
			}
		}
		fallthrough
	default:
		return &fm.BundleEntryRequest{
			Method: fm.HTTPVerbPOST,
			Url:    item.Type,
		}
	}
}

func clearResourceID(resource any) {
	switch r := resource.(type) {
	case *fm.Patient:
		r.Id = nil
	case *fm.RelatedPerson:
		r.Id = nil
	case *fm.Condition:
		r.Id = nil
	case *fm.Observation:
		r.Id = nil
	case *fm.MedicationRequest:
		r.Id = nil
	case *fm.Encounter:
		r.Id = nil
	case *fm.DiagnosticReport:
		r.Id = nil
	case *fm.Immunization:
		r.Id = nil
	case *fm.Coverage:
		r.Id = nil
	}
}

func firstIdentifier(resource any) (system, value string, ok bool) {
	patient, isPatient := resource.(*fm.Patient)
	if !isPatient || len(patient.Identifier) == 0 {
		return "", "", false
	}
	identifier := patient.Identifier[0]
	if identifier.System == nil || identifier.Value == nil {
		return "", "", false
	}
	return *identifier.System, *identifier.Value, true
}
