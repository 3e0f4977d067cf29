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
	"strings"
	"testing"

	fm "github.com/samply/golang-fhir-models/fhir-models/fhir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequentialIDs returns a deterministic NewID func.
func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("00000000-0000-0000-0000-%012d", n)
	}
}

func patientItem(patient int, id string) *Item {
	return NewItem(patient, "Patient", id, &fm.Patient{Id: &id})
}

func observationItem(patient int, id, subjectID string) *Item {
	subject := &fm.Reference{Reference: &subjectID}
	observation := &fm.Observation{Id: &id, Status: fm.ObservationStatusFinal, Subject: subject}
	return NewItem(patient, "Observation", id, observation, subject)
}

func patientGroup(patient int, resources int) []*Item {
	patientID := fmt.Sprintf("p-%d", patient)
	items := []*Item{patientItem(patient, patientID)}
	for i := 1; i < resources; i++ {
		items = append(items, observationItem(patient, fmt.Sprintf("o-%d-%d", patient, i), patientID))
	}
	return items
}

func TestAssemblePartitioning(t *testing.T) {
	t.Run("GroupsNeverSplit", func(t *testing.T) {
		// 25 patients with 3 resources each at size 10 leaves room for
		// three whole groups per bundle.
		var items []*Item
		for patient := range 25 {
			items = append(items, patientGroup(patient, 3)...)
		}

		assembler := Assembler{BundleSize: 10, NewID: sequentialIDs()}
		bundles, err := assembler.Assemble(items)
		require.NoError(t, err)

		require.Len(t, bundles, 9)
		for i, bundle := range bundles[:8] {
			assert.Len(t, bundle.Entry, 9, "bundle %d", i)
		}
		assert.Len(t, bundles[8].Entry, 3)
	})

	t.Run("OversizedGroupOverflows", func(t *testing.T) {
		items := patientGroup(0, 7)

		assembler := Assembler{BundleSize: 5, NewID: sequentialIDs()}
		bundles, err := assembler.Assemble(items)
		require.NoError(t, err)

		require.Len(t, bundles, 1)
		assert.Len(t, bundles[0].Entry, 7)
	})

	t.Run("EmptyInputYieldsOneEmptyBundle", func(t *testing.T) {
		assembler := Assembler{BundleSize: 10, NewID: sequentialIDs()}
		bundles, err := assembler.Assemble(nil)
		require.NoError(t, err)

		require.Len(t, bundles, 1)
		assert.Empty(t, bundles[0].Entry)
	})

	t.Run("ZeroBundleSizeIsUnbounded", func(t *testing.T) {
		var items []*Item
		for patient := range 25 {
			items = append(items, patientGroup(patient, 3)...)
		}

		assembler := Assembler{NewID: sequentialIDs()}
		bundles, err := assembler.Assemble(items)
		require.NoError(t, err)

		require.Len(t, bundles, 1)
		assert.Len(t, bundles[0].Entry, 75)
	})
}

func TestAssembleCollection(t *testing.T) {
	items := patientGroup(0, 2)

	assembler := Assembler{
		Timestamp: "2026-08-01T12:00:00+00:00",
		NewID:     sequentialIDs(),
	}
	bundles, err := assembler.Assemble(items)
	require.NoError(t, err)
	require.Len(t, bundles, 1)

	bundle := bundles[0]
	assert.Equal(t, fm.BundleTypeCollection, bundle.Type)
	require.NotNil(t, bundle.Timestamp)
	assert.Equal(t, "2026-08-01T12:00:00+00:00", *bundle.Timestamp)

	require.Len(t, bundle.Entry, 2)
	assert.Equal(t, "urn:uuid:p-0", *bundle.Entry[0].FullUrl)
	assert.Nil(t, bundle.Entry[0].Request)

	// references use the logical Type/ID form
	var observation fm.Observation
	require.NoError(t, json.Unmarshal(bundle.Entry[1].Resource, &observation))
	assert.Equal(t, "Patient/p-0", *observation.Subject.Reference)
}

func TestAssembleTransactionPost(t *testing.T) {
	items := patientGroup(0, 2)

	assembler := Assembler{Transaction: true, NewID: sequentialIDs()}
	bundles, err := assembler.Assemble(items)
	require.NoError(t, err)
	require.Len(t, bundles, 1)

	bundle := bundles[0]
	assert.Equal(t, fm.BundleTypeTransaction, bundle.Type)
	require.Len(t, bundle.Entry, 2)

	patientEntry, observationEntry := bundle.Entry[0], bundle.Entry[1]
	assert.True(t, strings.HasPrefix(*patientEntry.FullUrl, "urn:uuid:"))
	require.NotNil(t, patientEntry.Request)
	assert.Equal(t, fm.HTTPVerbPOST, patientEntry.Request.Method)
	assert.Equal(t, "Patient", patientEntry.Request.Url)

	// the server assigns the identifier, so the local one is stripped
	var patient fm.Patient
	require.NoError(t, json.Unmarshal(patientEntry.Resource, &patient))
	assert.Nil(t, patient.Id)

	// the reference resolves to the full URL of the patient entry
	var observation fm.Observation
	require.NoError(t, json.Unmarshal(observationEntry.Resource, &observation))
	assert.Equal(t, *patientEntry.FullUrl, *observation.Subject.Reference)
}

func TestAssembleTransactionPut(t *testing.T) {
	items := patientGroup(0, 2)

	assembler := Assembler{Transaction: true, Method: MethodPut, NewID: sequentialIDs()}
	bundles, err := assembler.Assemble(items)
	require.NoError(t, err)

	entry := bundles[0].Entry[0]
	require.NotNil(t, entry.Request)
	assert.Equal(t, fm.HTTPVerbPUT, entry.Request.Method)
	assert.Equal(t, "Patient/p-0", entry.Request.Url)
	require.NotNil(t, entry.Request.IfNoneMatch)
	assert.Equal(t, "*", *entry.Request.IfNoneMatch)

	// PUT keeps the generated identifier on the resource
	var patient fm.Patient
	require.NoError(t, json.Unmarshal(entry.Resource, &patient))
	require.NotNil(t, patient.Id)
	assert.Equal(t, "p-0", *patient.Id)

	var observation fm.Observation
	require.NoError(t, json.Unmarshal(bundles[0].Entry[1].Resource, &observation))
	assert.Equal(t, "Patient/p-0", *observation.Subject.Reference)
}

func TestAssembleTransactionConditional(t *testing.T) {
	system, value := "http://hospital.example/mrn", "MRN-1234"
	patientID := "p-0"
	patient := &fm.Patient{
		Id:         &patientID,
		Identifier: []fm.Identifier{{System: &system, Value: &value}},
	}
	items := []*Item{
		NewItem(0, "Patient", patientID, patient),
		observationItem(0, "o-1", patientID),
	}

	assembler := Assembler{Transaction: true, Method: MethodConditional, NewID: sequentialIDs()}
	bundles, err := assembler.Assemble(items)
	require.NoError(t, err)

	patientEntry, observationEntry := bundles[0].Entry[0], bundles[0].Entry[1]
	require.NotNil(t, patientEntry.Request)
	assert.Equal(t, fm.HTTPVerbPOST, patientEntry.Request.Method)
	require.NotNil(t, patientEntry.Request.IfNoneExist)
	assert.Equal(t, "identifier=http://hospital.example/mrn|MRN-1234", *patientEntry.Request.IfNoneExist)

	// non-patient entries fall back to a plain create
	require.NotNil(t, observationEntry.Request)
	assert.Equal(t, fm.HTTPVerbPOST, observationEntry.Request.Method)
	assert.Nil(t, observationEntry.Request.IfNoneExist)
}

func TestAssembleIntegrity(t *testing.T) {
	t.Run("DanglingReference", func(t *testing.T) {
		items := []*Item{
			patientItem(0, "p-0"),
			observationItem(0, "o-1", "no-such-id"),
		}

		assembler := Assembler{NewID: sequentialIDs()}
		_, err := assembler.Assemble(items)

		var integrityErr *IntegrityError
		require.ErrorAs(t, err, &integrityErr)
		assert.Equal(t, "no-such-id", integrityErr.Target)
		assert.Contains(t, integrityErr.Reason, "no resource")
	})

	t.Run("DuplicateIdentifier", func(t *testing.T) {
		items := []*Item{
			patientItem(0, "p-0"),
			patientItem(1, "p-0"),
		}

		assembler := Assembler{NewID: sequentialIDs()}
		_, err := assembler.Assemble(items)

		var integrityErr *IntegrityError
		require.ErrorAs(t, err, &integrityErr)
		assert.Contains(t, integrityErr.Reason, "duplicate")
	})

	t.Run("CrossBundleReference", func(t *testing.T) {
		// patient 1 references patient 0 which lands in an earlier bundle
		items := append(patientGroup(0, 3), patientGroup(1, 2)...)
		items = append(items, observationItem(1, "o-cross", "p-0"))

		assembler := Assembler{BundleSize: 3, NewID: sequentialIDs()}
		_, err := assembler.Assemble(items)

		var integrityErr *IntegrityError
		require.ErrorAs(t, err, &integrityErr)
		assert.Contains(t, integrityErr.Reason, "bundle boundary")
	})
}
