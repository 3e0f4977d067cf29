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

// Package data contains the declarative generation profile as it is parsed
// from YAML or JSON files. A Profile is immutable once loaded and shared
// read-only across all patients generated from it.
package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Generation modes.
const (
	ModeSingle = "single"
	ModeCohort = "cohort"
)

// Bundle output modes.
const (
	OutputTransaction = "transaction"
	OutputCollection  = "collection"
)

// Profile declares how a patient population is generated: demographics
// distributions, conditional resource-generation rules and output options.
type Profile struct {
	Version       string       `yaml:"version" json:"version"`
	Mode          string       `yaml:"mode" json:"mode"`
	Demographics  Demographics `yaml:"demographics" json:"demographics"`
	SinglePatient PatientDef   `yaml:"single_patient" json:"single_patient"`
	Resources     ResourceSpec `yaml:"resources" json:"resources"`
	Output        OutputSpec   `yaml:"output" json:"output"`
}

// Demographics maps an attribute name to its declared distribution.
type Demographics map[string]Distribution

// Distribution declares either a numeric range (Min/Max) or a weighted
// categorical choice. Weights need not sum to one, the sampler normalizes.
type Distribution struct {
	Min          *float64           `yaml:"min" json:"min"`
	Max          *float64           `yaml:"max" json:"max"`
	Distribution map[string]float64 `yaml:"distribution" json:"distribution"`
}

// Categorical reports whether the distribution is a weighted choice.
func (d Distribution) Categorical() bool {
	return len(d.Distribution) > 0
}

// ResourceSpec lists the resource types to include in the output and the
// ordered rules that attach clinical resources to generated patients.
type ResourceSpec struct {
	Include []string `yaml:"include" json:"include"`
	Rules   []Rule   `yaml:"rules" json:"rules"`
}

// Rule pairs a condition with a set of resource-addition effects. Rules are
// evaluated in declaration order and their effects are cumulative.
type Rule struct {
	Name string      `yaml:"name" json:"name"`
	When RuleWhen    `yaml:"when" json:"when"`
	Then RuleEffects `yaml:"then" json:"then"`
}

// RuleWhen holds the condition expression, e.g. "age > 45" or "true".
type RuleWhen struct {
	Condition string `yaml:"condition" json:"condition"`
}

// RuleEffects is the closed set of effect kinds a rule can apply. Within one
// rule, effects are applied in the field order below, each list in
// declaration order.
type RuleEffects struct {
	SetAttributes         map[string]any         `yaml:"set_attributes" json:"set_attributes"`
	AddConditions         []ConditionDef         `yaml:"add_conditions" json:"add_conditions"`
	AddObservations       []ObservationDef       `yaml:"add_observations" json:"add_observations"`
	AddEncounters         []EncounterDef         `yaml:"add_encounters" json:"add_encounters"`
	AddMedicationRequests []MedicationRequestDef `yaml:"add_medication_requests" json:"add_medication_requests"`
	RelatedPersons        []RelatedPersonDef     `yaml:"related_persons" json:"related_persons"`
	DiagnosticReports     []DiagnosticReportDef  `yaml:"diagnostic_reports" json:"diagnostic_reports"`
	Immunizations         []ImmunizationDef      `yaml:"immunizations" json:"immunizations"`
	Coverage              []CoverageDef          `yaml:"coverage" json:"coverage"`
}

// OutputSpec configures bundle assembly.
type OutputSpec struct {
	Mode       string `yaml:"mode" json:"mode"`
	BundleSize int    `yaml:"bundle_size" json:"bundle_size"`
}

// CodeDef is a coded value with an optional system and display.
type CodeDef struct {
	System  string `yaml:"system" json:"system"`
	Code    string `yaml:"code" json:"code"`
	Value   string `yaml:"value" json:"value"`
	Display string `yaml:"display" json:"display"`
}

// Resolved returns the code, accepting both the "code" and the legacy
// "value" key.
func (c CodeDef) Resolved() string {
	if c.Code != "" {
		return c.Code
	}
	return c.Value
}

// NameDef is a human name.
type NameDef struct {
	Family string   `yaml:"family" json:"family"`
	Given  []string `yaml:"given" json:"given"`
}

// IdentifierDef is a business identifier attached to a resource.
type IdentifierDef struct {
	System string `yaml:"system" json:"system"`
	Value  string `yaml:"value" json:"value"`
	Use    string `yaml:"use" json:"use"`
}

// AddressDef is a postal address.
type AddressDef struct {
	Line       []string `yaml:"line" json:"line"`
	City       string   `yaml:"city" json:"city"`
	State      string   `yaml:"state" json:"state"`
	PostalCode string   `yaml:"postalCode" json:"postalCode"`
	Country    string   `yaml:"country" json:"country"`
}

// PatientDef describes an author-specified patient, used for single mode and
// for the secondary patients of related-person directives.
type PatientDef struct {
	Name        NameDef         `yaml:"name" json:"name"`
	Gender      string          `yaml:"gender" json:"gender"`
	BirthDate   string          `yaml:"birthDate" json:"birthDate"`
	Identifiers []IdentifierDef `yaml:"identifiers" json:"identifiers"`
	Address     *AddressDef     `yaml:"address" json:"address"`
	Phone       string          `yaml:"phone" json:"phone"`
	Email       string          `yaml:"email" json:"email"`
}

// OnsetDef declares a relative onset for a clinical condition.
type OnsetDef struct {
	YearsAgo int `yaml:"years_ago" json:"years_ago"`
}

// ConditionDef declares a Condition resource to attach.
type ConditionDef struct {
	Code  CodeDef   `yaml:"code" json:"code"`
	Onset *OnsetDef `yaml:"onset" json:"onset"`
}

// RangeDef is a closed numeric interval.
type RangeDef struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// TimesDef schedules repeated occurrences of a resource relative to the run
// reference time.
type TimesDef struct {
	Qty            int  `yaml:"qty" json:"qty"`
	DaysAgo        *int `yaml:"days_ago" json:"days_ago"`
	SpacingDays    *int `yaml:"spacing_days" json:"spacing_days"`
	LookbackMonths *int `yaml:"lookback_months" json:"lookback_months"`
	LookbackDays   *int `yaml:"lookback_days" json:"lookback_days"`
}

// ObservationDef declares an Observation resource to attach. When no fixed
// value is given, one is sampled from Range.
type ObservationDef struct {
	Loinc     string    `yaml:"loinc" json:"loinc"`
	Display   string    `yaml:"display" json:"display"`
	ValueType string    `yaml:"value_type" json:"value_type"`
	Value     *float64  `yaml:"value" json:"value"`
	Text      string    `yaml:"text" json:"text"`
	Positive  *bool     `yaml:"positive" json:"positive"`
	Range     *RangeDef `yaml:"range" json:"range"`
	Unit      string    `yaml:"unit" json:"unit"`
	Times     *TimesDef `yaml:"times" json:"times"`
}

// MedicationRequestDef declares a MedicationRequest resource to attach.
type MedicationRequestDef struct {
	Rxnorm           string   `yaml:"rxnorm" json:"rxnorm"`
	Display          string   `yaml:"display" json:"display"`
	Sig              string   `yaml:"sig" json:"sig"`
	Frequency        int      `yaml:"frequency" json:"frequency"`
	Status           string   `yaml:"status" json:"status"`
	DurationDays     *int     `yaml:"duration_days" json:"duration_days"`
	StartDaysAgo     *int     `yaml:"start_days_ago" json:"start_days_ago"`
	CompletedDaysAgo *int     `yaml:"completed_days_ago" json:"completed_days_ago"`
	Reason           *CodeDef `yaml:"reason" json:"reason"`
	Instructions     string   `yaml:"instructions" json:"instructions"`
}

// EncounterDef declares one or more Encounter resources to attach. Qty above
// one spreads the encounters evenly over SpreadMonths.
type EncounterDef struct {
	Class           *CodeDef `yaml:"class" json:"class"`
	Type            *CodeDef `yaml:"type" json:"type"`
	Status          string   `yaml:"status" json:"status"`
	DaysAgo         *int     `yaml:"days_ago" json:"days_ago"`
	DurationHours   *int     `yaml:"duration_hours" json:"duration_hours"`
	Qty             int      `yaml:"qty" json:"qty"`
	SpreadMonths    int      `yaml:"spread_months" json:"spread_months"`
	Reason          *CodeDef `yaml:"reason" json:"reason"`
	ServiceProvider string   `yaml:"serviceProvider" json:"serviceProvider"`
}

// RelatedPersonDef declares a symmetric related-person pair. ApplyRules opts
// the generated secondary patient into its own rule pass.
type RelatedPersonDef struct {
	Name         NameDef         `yaml:"name" json:"name"`
	Relationship string          `yaml:"relationship" json:"relationship"`
	Gender       string          `yaml:"gender" json:"gender"`
	BirthDate    string          `yaml:"birthDate" json:"birthDate"`
	Identifiers  []IdentifierDef `yaml:"identifiers" json:"identifiers"`
	Phone        string          `yaml:"phone" json:"phone"`
	Email        string          `yaml:"email" json:"email"`
	ApplyRules   bool            `yaml:"apply_rules" json:"apply_rules"`
}

// DiagnosticReportDef declares a DiagnosticReport with nested observations
// that become its results.
type DiagnosticReportDef struct {
	Code         CodeDef          `yaml:"code" json:"code"`
	Status       string           `yaml:"status" json:"status"`
	Category     *CodeDef         `yaml:"category" json:"category"`
	Observations []ObservationDef `yaml:"observations" json:"observations"`
	Conclusion   string           `yaml:"conclusion" json:"conclusion"`
	DaysAgo      *int             `yaml:"days_ago" json:"days_ago"`
}

// ImmunizationDef declares one or more Immunization resources. Qty above one
// models repeated annual doses.
type ImmunizationDef struct {
	Vaccine   CodeDef `yaml:"vaccine" json:"vaccine"`
	Status    string  `yaml:"status" json:"status"`
	DaysAgo   *int    `yaml:"days_ago" json:"days_ago"`
	Qty       int     `yaml:"qty" json:"qty"`
	LotNumber string  `yaml:"lotNumber" json:"lotNumber"`
}

// PeriodDef declares a coverage period relative to the run reference time.
type PeriodDef struct {
	StartDaysAgo *int `yaml:"start_days_ago" json:"start_days_ago"`
	EndDaysAgo   *int `yaml:"end_days_ago" json:"end_days_ago"`
}

// CoverageDef declares a Coverage resource to attach.
type CoverageDef struct {
	Type         *CodeDef       `yaml:"type" json:"type"`
	Status       string         `yaml:"status" json:"status"`
	Kind         string         `yaml:"kind" json:"kind"`
	Payor        string         `yaml:"payor" json:"payor"`
	Period       *PeriodDef     `yaml:"period" json:"period"`
	Identifier   *IdentifierDef `yaml:"identifier" json:"identifier"`
	Relationship string         `yaml:"relationship" json:"relationship"`
}

// LoadProfile reads and parses a profile from a YAML or JSON file.
func LoadProfile(path string) (*Profile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read profile %s: %w", path, err)
	}

	profile := Profile{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &profile); err != nil {
			return nil, fmt.Errorf("invalid profile %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(content, &profile); err != nil {
			return nil, fmt.Errorf("invalid profile %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported profile format `%s`", ext)
	}

	if err := profile.normalize(); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (p *Profile) normalize() error {
	if p.Mode == "" {
		p.Mode = ModeCohort
	}
	if p.Mode != ModeSingle && p.Mode != ModeCohort {
		return fmt.Errorf("unknown profile mode `%s`", p.Mode)
	}
	if p.Output.Mode == "" {
		p.Output.Mode = OutputTransaction
	}
	if p.Output.Mode != OutputTransaction && p.Output.Mode != OutputCollection {
		return fmt.Errorf("unknown output mode `%s`", p.Output.Mode)
	}
	if p.Output.BundleSize == 0 {
		p.Output.BundleSize = 100
	}
	if p.Output.BundleSize < 0 {
		return fmt.Errorf("negative bundle size %d", p.Output.BundleSize)
	}
	return nil
}
