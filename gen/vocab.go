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

// Terminology systems used by generated resources.
const (
	systemMRN                  = "http://hospital.example/mrn"
	systemSNOMED               = "http://snomed.info/sct"
	systemLOINC                = "http://loinc.org"
	systemRxNorm               = "http://www.nlm.nih.gov/research/umls/rxnorm"
	systemUCUM                 = "http://unitsofmeasure.org"
	systemCVX                  = "http://hl7.org/fhir/sid/cvx"
	systemConditionClinical    = "http://terminology.hl7.org/CodeSystem/condition-clinical"
	systemConditionVerStatus   = "http://terminology.hl7.org/CodeSystem/condition-ver-status"
	systemActCode              = "http://terminology.hl7.org/CodeSystem/v3-ActCode"
	systemRoleCode             = "http://terminology.hl7.org/CodeSystem/v3-RoleCode"
	systemDiagnosticServices   = "http://terminology.hl7.org/CodeSystem/v2-0074"
	systemSubscriberRel        = "http://terminology.hl7.org/CodeSystem/subscriber-relationship"
	systemRelatedPersonPatient = "http://samply.github.io/fhirgen/related-person-patient"
)

// Name pools for sampled patients.
var (
	maleGivenNames = []string{
		"John", "David", "Michael", "Robert", "William",
		"James", "Joseph", "Charles", "Thomas", "Christopher",
	}
	femaleGivenNames = []string{
		"Mary", "Linda", "Sarah", "Emma", "Jennifer",
		"Patricia", "Elizabeth", "Susan", "Jessica", "Margaret",
	}
	familyNames = []string{
		"Smith", "Johnson", "Brown", "Jones", "Miller",
		"Davis", "Garcia", "Rodriguez", "Wilson", "Martinez",
	}
)

// Default address and contact details for sampled patients.
var (
	defaultAddressLine = []string{"123 Main Street"}
	defaultCity        = "Boston"
	defaultState       = "MA"
	defaultPostalCode  = "02134"
	defaultCountry     = "US"
)
