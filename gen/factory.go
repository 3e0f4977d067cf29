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
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/samply/fhirgen/data"
	fm "github.com/samply/golang-fhir-models/fhir-models/fhir"
)

const (
	dateTimeFormat = "2006-01-02T15:04:05+00:00"
	dateFormat     = "2006-01-02"
)

// factory builds golang-fhir-models resources from effect directives.
// References to other resources of the run are created with the target's
// construction-time identifier; the bundle assembler rewrites them.
type factory struct {
	rng *RNG
	now time.Time
}

func ptr[T any](v T) *T {
	return &v
}

func createCoding(system, code, display string) fm.Coding {
	coding := fm.Coding{System: &system, Code: &code}
	if display != "" {
		coding.Display = &display
	}
	return coding
}

func createConcept(coding fm.Coding) *fm.CodeableConcept {
	return &fm.CodeableConcept{Coding: []fm.Coding{coding}}
}

func createReference(targetID string) fm.Reference {
	return fm.Reference{Reference: &targetID}
}

func createQuantity(value float64, unit string) *fm.Quantity {
	if unit == "" {
		unit = "1"
	}
	number := json.Number(strconv.FormatFloat(math.Round(value*100)/100, 'f', -1, 64))
	return &fm.Quantity{
		Value:  &number,
		Unit:   &unit,
		System: ptr(systemUCUM),
		Code:   &unit,
	}
}

func administrativeGender(gender string) *fm.AdministrativeGender {
	switch gender {
	case "male":
		return ptr(fm.AdministrativeGenderMale)
	case "female":
		return ptr(fm.AdministrativeGenderFemale)
	case "other":
		return ptr(fm.AdministrativeGenderOther)
	default:
		return ptr(fm.AdministrativeGenderUnknown)
	}
}

func createIdentifiers(defs []data.IdentifierDef) []fm.Identifier {
	identifiers := make([]fm.Identifier, 0, len(defs))
	for _, def := range defs {
		identifier := fm.Identifier{}
		if def.System != "" {
			identifier.System = ptr(def.System)
		}
		if def.Value != "" {
			identifier.Value = ptr(def.Value)
		}
		if def.Use == "official" {
			identifier.Use = ptr(fm.IdentifierUseOfficial)
		}
		identifiers = append(identifiers, identifier)
	}
	return identifiers
}

func createTelecom(phone, email string) []fm.ContactPoint {
	telecom := make([]fm.ContactPoint, 0, 2)
	if phone != "" {
		telecom = append(telecom, fm.ContactPoint{
			System: ptr(fm.ContactPointSystemPhone),
			Value:  ptr(phone),
			Use:    ptr(fm.ContactPointUseHome),
		})
	}
	if email != "" {
		telecom = append(telecom, fm.ContactPoint{
			System: ptr(fm.ContactPointSystemEmail),
			Value:  ptr(email),
			Use:    ptr(fm.ContactPointUseHome),
		})
	}
	return telecom
}

// createPatient builds a Patient from an author-specified or sampled
// definition. A default MRN identifier is added when none is declared.
func (f *factory) createPatient(def data.PatientDef, id string) *fm.Patient {
	patient := &fm.Patient{
		Id:     &id,
		Gender: administrativeGender(def.Gender),
		Name: []fm.HumanName{{
			Family: ptr(nonEmpty(def.Name.Family, "Doe")),
			Given:  def.Name.Given,
		}},
	}
	if def.BirthDate != "" {
		patient.BirthDate = ptr(def.BirthDate)
	}

	if len(def.Identifiers) > 0 {
		patient.Identifier = createIdentifiers(def.Identifiers)
	} else {
		patient.Identifier = []fm.Identifier{{
			System: ptr(systemMRN),
			Value:  ptr("MRN-" + id[:8]),
		}}
	}

	if def.Address != nil {
		patient.Address = []fm.Address{{
			Line:       def.Address.Line,
			City:       ptr(def.Address.City),
			State:      ptr(def.Address.State),
			PostalCode: ptr(def.Address.PostalCode),
			Country:    ptr(nonEmpty(def.Address.Country, defaultCountry)),
		}}
	} else {
		patient.Address = []fm.Address{{
			Line:       defaultAddressLine,
			City:       ptr(defaultCity),
			State:      ptr(defaultState),
			PostalCode: ptr(defaultPostalCode),
			Country:    ptr(defaultCountry),
		}}
	}

	patient.Telecom = createTelecom(def.Phone, def.Email)
	return patient
}

func (f *factory) createCondition(def data.ConditionDef, patientID, id string) *fm.Condition {
	onsetYears := 1
	if def.Onset != nil {
		onsetYears = def.Onset.YearsAgo
	}
	return &fm.Condition{
		Id: &id,
		ClinicalStatus: createConcept(
			createCoding(systemConditionClinical, "active", "")),
		VerificationStatus: createConcept(
			createCoding(systemConditionVerStatus, "confirmed", "")),
		Code: createConcept(
			createCoding(nonEmpty(def.Code.System, systemSNOMED), def.Code.Resolved(), def.Code.Display)),
		Subject:       createReference(patientID),
		OnsetDateTime: ptr(f.now.AddDate(-onsetYears, 0, 0).Format(dateFormat)),
	}
}

func (f *factory) createObservation(def data.ObservationDef, patientID, id string,
	effective time.Time) *fm.Observation {

	observation := &fm.Observation{
		Id:                &id,
		Status:            fm.ObservationStatusFinal,
		Code:              *createConcept(createCoding(systemLOINC, def.Loinc, def.Display)),
		Subject:           ptr(createReference(patientID)),
		EffectiveDateTime: ptr(effective.Format(dateTimeFormat)),
	}

	switch def.ValueType {
	case "boolean", "flag":
		positive := true
		if def.Positive != nil {
			positive = *def.Positive
		}
		observation.ValueBoolean = &positive
	case "string", "text":
		observation.ValueString = ptr(nonEmpty(def.Text, def.Display))
	default:
		value := 0.0
		if def.Value != nil {
			value = *def.Value
		} else if def.Range != nil {
			value = def.Range.Min + f.rng.Float64()*(def.Range.Max-def.Range.Min)
		}
		observation.ValueQuantity = createQuantity(value, def.Unit)
	}
	return observation
}

func (f *factory) createMedicationRequest(def data.MedicationRequestDef, patientID, id string) *fm.MedicationRequest {
	frequency := def.Frequency
	if frequency < 1 {
		frequency = 1
	}

	start := f.now
	if def.StartDaysAgo != nil {
		start = f.now.AddDate(0, 0, -*def.StartDaysAgo)
	} else if def.CompletedDaysAgo != nil && def.DurationDays != nil {
		start = f.now.AddDate(0, 0, -(*def.CompletedDaysAgo + *def.DurationDays))
	}

	var end *time.Time
	if def.CompletedDaysAgo != nil {
		end = ptr(f.now.AddDate(0, 0, -*def.CompletedDaysAgo))
	} else if def.DurationDays != nil {
		end = ptr(start.AddDate(0, 0, *def.DurationDays))
	}

	bounds := &fm.Period{Start: ptr(start.Format(dateTimeFormat))}
	if end != nil {
		bounds.End = ptr(end.Format(dateTimeFormat))
	}

	status := "active"
	if def.Status == "completed" || (def.Status == "" && def.CompletedDaysAgo != nil) {
		status = "completed"
	}

	request := &fm.MedicationRequest{
		Id:     &id,
		Status: status,
		Intent: "order",
		MedicationCodeableConcept: *createConcept(
			createCoding(systemRxNorm, def.Rxnorm, def.Display)),
		Subject:    createReference(patientID),
		AuthoredOn: ptr(start.Format(dateTimeFormat)),
		DosageInstruction: []fm.Dosage{{
			Text: ptr(nonEmpty(def.Sig, "Take as directed")),
			Timing: &fm.Timing{Repeat: &fm.TimingRepeat{
				Frequency:    &frequency,
				Period:       ptr(json.Number("1")),
				PeriodUnit:   ptr("d"),
				BoundsPeriod: bounds,
			}},
		}},
	}
	if def.Instructions != "" {
		request.DosageInstruction[0].PatientInstruction = ptr(def.Instructions)
	}
	if def.Reason != nil {
		request.ReasonCode = []fm.CodeableConcept{*createConcept(
			createCoding(nonEmpty(def.Reason.System, systemSNOMED), def.Reason.Resolved(), def.Reason.Display))}
	}

	dispense := &fm.MedicationRequestDispenseRequest{ValidityPeriod: bounds}
	if def.DurationDays != nil {
		dispense.ExpectedSupplyDuration = &fm.Duration{
			Value:  ptr(json.Number(strconv.Itoa(*def.DurationDays))),
			Unit:   ptr("day"),
			System: ptr(systemUCUM),
			Code:   ptr("d"),
		}
	}
	request.DispenseRequest = dispense

	return request
}

func (f *factory) createEncounter(def data.EncounterDef, patientID, id string, daysAgo int) *fm.Encounter {
	class := createCoding(systemActCode, "AMB", "ambulatory")
	if def.Class != nil {
		class = createCoding(nonEmpty(def.Class.System, systemActCode), def.Class.Resolved(), def.Class.Display)
	}

	encounterType := createCoding(systemSNOMED, "162673000", "General examination")
	if def.Type != nil {
		encounterType = createCoding(nonEmpty(def.Type.System, systemSNOMED), def.Type.Resolved(), def.Type.Display)
	}

	durationHours := 1
	if def.DurationHours != nil {
		durationHours = *def.DurationHours
	}
	start := f.now.AddDate(0, 0, -daysAgo)
	end := start.Add(time.Duration(durationHours) * time.Hour)

	encounter := &fm.Encounter{
		Id:      &id,
		Status:  fm.EncounterStatusFinished,
		Class:   class,
		Type:    []fm.CodeableConcept{*createConcept(encounterType)},
		Subject: ptr(createReference(patientID)),
		Period: &fm.Period{
			Start: ptr(start.Format(dateTimeFormat)),
			End:   ptr(end.Format(dateTimeFormat)),
		},
	}
	if def.Reason != nil {
		encounter.ReasonCode = []fm.CodeableConcept{*createConcept(
			createCoding(nonEmpty(def.Reason.System, systemSNOMED), def.Reason.Resolved(), def.Reason.Display))}
	}
	if def.ServiceProvider != "" {
		encounter.ServiceProvider = ptr(fm.Reference{Display: ptr(def.ServiceProvider)})
	}
	return encounter
}

// createRelatedPerson links a person to the patient identified by patientID.
// linkedPatientID is recorded as a business identifier so that consumers can
// find the Patient resource representing the person itself.
func (f *factory) createRelatedPerson(name data.NameDef, coding fm.Coding, gender, birthDate string,
	telecom []fm.ContactPoint, linkedPatientID, patientID, id string) *fm.RelatedPerson {

	person := &fm.RelatedPerson{
		Id:           &id,
		Active:       ptr(true),
		Patient:      createReference(patientID),
		Relationship: []fm.CodeableConcept{*createConcept(coding)},
		Name: []fm.HumanName{{
			Family: ptr(nonEmpty(name.Family, "Doe")),
			Given:  name.Given,
		}},
		Identifier: []fm.Identifier{{
			Use:    ptr(fm.IdentifierUseOfficial),
			System: ptr(systemRelatedPersonPatient),
			Value:  ptr(linkedPatientID),
		}},
		Gender:  administrativeGender(gender),
		Telecom: telecom,
	}
	if birthDate != "" {
		person.BirthDate = ptr(birthDate)
	}
	return person
}

func (f *factory) createDiagnosticReport(def data.DiagnosticReportDef, patientID, id string,
	resultIDs []string) *fm.DiagnosticReport {

	category := createCoding(systemDiagnosticServices, "LAB", "Laboratory")
	if def.Category != nil {
		category = createCoding(nonEmpty(def.Category.System, systemDiagnosticServices),
			def.Category.Resolved(), def.Category.Display)
	}

	daysAgo := f.rng.IntBetween(1, 30)
	if def.DaysAgo != nil {
		daysAgo = *def.DaysAgo
	}
	issued := f.now.AddDate(0, 0, -daysAgo).Format(dateTimeFormat)

	report := &fm.DiagnosticReport{
		Id:       &id,
		Status:   fm.DiagnosticReportStatusFinal,
		Category: []fm.CodeableConcept{*createConcept(category)},
		Code: *createConcept(
			createCoding(nonEmpty(def.Code.System, systemLOINC), def.Code.Resolved(), def.Code.Display)),
		Subject:           ptr(createReference(patientID)),
		EffectiveDateTime: ptr(issued),
		Issued:            ptr(issued),
	}
	for _, resultID := range resultIDs {
		report.Result = append(report.Result, createReference(resultID))
	}
	if def.Conclusion != "" {
		report.Conclusion = ptr(def.Conclusion)
	}
	return report
}

func (f *factory) createImmunization(def data.ImmunizationDef, patientID, id string, daysAgo int) *fm.Immunization {
	immunization := &fm.Immunization{
		Id:     &id,
		Status: fm.ImmunizationStatusCodesCompleted,
		VaccineCode: *createConcept(
			createCoding(nonEmpty(def.Vaccine.System, systemCVX), def.Vaccine.Resolved(), def.Vaccine.Display)),
		Patient:            createReference(patientID),
		OccurrenceDateTime: f.now.AddDate(0, 0, -daysAgo).Format(dateTimeFormat),
		PrimarySource:      ptr(true),
	}
	if def.LotNumber != "" {
		immunization.LotNumber = ptr(def.LotNumber)
	}
	return immunization
}

func (f *factory) createCoverage(def data.CoverageDef, patientID, id string) *fm.Coverage {
	coverageType := createCoding(systemActCode, "EHCPOL", "extended healthcare")
	if def.Type != nil {
		coverageType = createCoding(nonEmpty(def.Type.System, systemActCode),
			def.Type.Resolved(), def.Type.Display)
	}

	coverage := &fm.Coverage{
		Id:          &id,
		Status:      fm.FinancialResourceStatusCodesActive,
		Type:        createConcept(coverageType),
		Subscriber:  ptr(createReference(patientID)),
		Beneficiary: createReference(patientID),
		Payor:       []fm.Reference{{Display: ptr(nonEmpty(def.Payor, "default insurance"))}},
	}
	if def.Relationship != "" {
		coverage.Relationship = createConcept(
			createCoding(systemSubscriberRel, def.Relationship, ""))
	}
	if def.Identifier != nil {
		coverage.Identifier = createIdentifiers([]data.IdentifierDef{*def.Identifier})
	}
	if def.Period != nil {
		period := &fm.Period{}
		if def.Period.StartDaysAgo != nil {
			period.Start = ptr(f.now.AddDate(0, 0, -*def.Period.StartDaysAgo).Format(dateFormat))
		}
		if def.Period.EndDaysAgo != nil {
			period.End = ptr(f.now.AddDate(0, 0, -*def.Period.EndDaysAgo).Format(dateFormat))
		}
		coverage.Period = period
	}
	return coverage
}

func nonEmpty(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
