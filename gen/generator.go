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
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samply/fhirgen/bundle"
	"github.com/samply/fhirgen/data"
	fm "github.com/samply/golang-fhir-models/fhir-models/fhir"
)

// Options configures a Generator beyond what the profile declares.
type Options struct {
	// Seed selects the deterministic random stream of the run.
	Seed uint64
	// Now is the run reference time. All relative dates are computed
	// against it. The zero value means time.Now at construction.
	Now time.Time
	// Resources restricts output to the named resource types. Patient is
	// always kept. Empty means the profile's resources.include, or
	// everything when that is empty too.
	Resources []string
	// Workers bounds the number of concurrently generated patients.
	// Values below one mean sequential generation.
	Workers int
	// OnPatient, when non-nil, is called once per finished patient.
	OnPatient func()
}

// Generator produces bundle items from a compiled profile. A Generator is
// safe for use by a single Generate call at a time.
type Generator struct {
	profile   *data.Profile
	rules     []compiledRule
	seed      uint64
	now       time.Time
	filter    map[string]bool
	workers   int
	onPatient func()
}

type compiledRule struct {
	name      string
	condition *Condition
	effects   []effect
}

// New compiles the profile's rules. Malformed condition expressions and
// unknown relationship keywords are reported here, before any generation.
func New(profile *data.Profile, opts Options) (*Generator, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	generator := &Generator{
		profile:   profile,
		seed:      opts.Seed,
		now:       now,
		workers:   opts.Workers,
		onPatient: opts.OnPatient,
	}

	include := opts.Resources
	if len(include) == 0 {
		include = profile.Resources.Include
	}
	if len(include) > 0 {
		generator.filter = map[string]bool{"Patient": true}
		for _, resourceType := range include {
			generator.filter[resourceType] = true
		}
	}

	for _, rule := range profile.Resources.Rules {
		condition, err := CompileCondition(rule.When.Condition)
		if err != nil {
			return nil, configErrorf(rule.Name, -1, "%s", err)
		}
		effects, err := compileEffects(rule)
		if err != nil {
			return nil, err
		}
		generator.rules = append(generator.rules, compiledRule{
			name:      rule.Name,
			condition: condition,
			effects:   effects,
		})
	}
	return generator, nil
}

// Now returns the run reference time.
func (g *Generator) Now() time.Time {
	return g.now
}

// Generate produces the bundle items of a run. In single mode count is
// ignored and exactly one patient is generated. Any configuration error
// aborts the whole run, no partial output is returned.
func (g *Generator) Generate(ctx context.Context, count int) ([]*bundle.Item, error) {
	if g.profile.Mode == data.ModeSingle {
		count = 1
	}
	if count < 1 {
		return nil, fmt.Errorf("patient count must be positive, got %d", count)
	}

	records := make([]*record, count)
	errs := make([]error, count)

	workers := g.workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan bool, workers)
	for k := range count {
		if err := ctx.Err(); err != nil {
			break
		}
		sem <- true
		go func(k int) {
			defer func() { <-sem }()
			records[k], errs[k] = g.generatePatient(k)
			if g.onPatient != nil {
				g.onPatient()
			}
		}(k)
	}
	for range cap(sem) {
		sem <- true
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var items []*bundle.Item
	for k := range count {
		if errs[k] != nil {
			return nil, errs[k]
		}
		items = append(items, g.filterItems(records[k].items)...)
	}
	return items, nil
}

// generatePatient builds one patient and everything its matching rules
// attach. Every patient draws from its own random substream so that patient
// k is identical whether generated alone or inside a cohort.
func (g *Generator) generatePatient(index int) (*record, error) {
	rng := NewRNG(g.seed).Substream(index)
	f := &factory{rng: rng, now: g.now}
	rec := &record{patientIdx: index}

	var def data.PatientDef
	var attrs Attributes
	if g.profile.Mode == data.ModeSingle {
		def = g.profile.SinglePatient
		attrs = g.deriveAttributes(def)
	} else {
		sampled, err := SampleDemographics(g.profile.Demographics, rng, g.now)
		if err != nil {
			if configErr, ok := err.(*ConfigError); ok {
				configErr.Patient = index
			}
			return nil, err
		}
		def = data.PatientDef{
			Name:      sampled.Name,
			Gender:    sampled.Gender,
			BirthDate: sampled.BirthDate,
		}
		attrs = sampled.Attributes
	}

	patientID := rng.UUID()
	rec.add("Patient", patientID, f.createPatient(def, patientID))

	ctx := &effectContext{
		patientIndex: index,
		patientID:    patientID,
		patient:      def,
		attrs:        attrs,
		rec:          rec,
		factory:      f,
		rng:          rng,
	}
	if err := g.applyRules(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// applyRules evaluates every rule in declaration order against the current
// attributes and applies the effects of the matching ones. Attributes set by
// an earlier rule are visible to the conditions of later ones.
func (g *Generator) applyRules(ctx *effectContext) error {
	for _, rule := range g.rules {
		ctx.rule = rule.name
		match, err := rule.condition.Eval(ctx.attrs)
		if err != nil {
			return configErrorf(rule.name, ctx.patientIndex, "%s", err)
		}
		if !match {
			continue
		}
		for _, ef := range rule.effects {
			if err := ef.apply(g, ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// deriveAttributes computes the attributes conditions can test from an
// author-specified patient: age from the birth date and the run reference
// time, and gender.
func (g *Generator) deriveAttributes(def data.PatientDef) Attributes {
	attrs := Attributes{}
	if def.Gender != "" {
		attrs["gender"] = def.Gender
	}
	if birth, err := time.Parse(dateFormat, def.BirthDate); err == nil {
		age := g.now.Year() - birth.Year()
		if g.now.YearDay() < birth.YearDay() {
			age--
		}
		attrs["age"] = float64(age)
	}
	return attrs
}

func (g *Generator) filterItems(items []*bundle.Item) []*bundle.Item {
	if g.filter == nil {
		return items
	}
	keep := make(map[string]bool, len(items))
	for _, item := range items {
		if g.filter[item.Type] {
			keep[item.ID] = true
		}
	}
	// the filter is reference-closed: resources a kept resource points at
	// are retained as well, like Patient is always retained
	for changed := true; changed; {
		changed = false
		for _, item := range items {
			if !keep[item.ID] {
				continue
			}
			for _, ref := range item.Refs {
				if ref.Reference != nil && !keep[*ref.Reference] {
					keep[*ref.Reference] = true
					changed = true
				}
			}
		}
	}
	kept := make([]*bundle.Item, 0, len(items))
	for _, item := range items {
		if keep[item.ID] {
			kept = append(kept, item)
		}
	}
	return kept
}

// record accumulates the bundle items of one patient group. Related persons
// and their resources stay in the group of the patient that declared them.
type record struct {
	patientIdx int
	items      []*bundle.Item
}

func (r *record) add(resourceType, id string, resource any, refs ...*fm.Reference) {
	r.items = append(r.items, bundle.NewItem(r.patientIdx, resourceType, id, resource, refs...))
}

// effectContext carries the per-patient state effects operate on.
type effectContext struct {
	rule         string
	patientIndex int
	patientID    string
	patient      data.PatientDef
	attrs        Attributes
	rec          *record
	factory      *factory
	rng          *RNG
	depth        int
}

type effect interface {
	apply(g *Generator, ctx *effectContext) error
}

// compileEffects turns a rule's effect block into the ordered effect list.
// Effect kinds apply in a fixed order, each list in declaration order.
func compileEffects(rule data.Rule) ([]effect, error) {
	then := rule.Then
	var effects []effect
	if len(then.SetAttributes) > 0 {
		effects = append(effects, setAttributesEffect{attrs: then.SetAttributes})
	}
	if len(then.AddConditions) > 0 {
		effects = append(effects, conditionsEffect{defs: then.AddConditions})
	}
	if len(then.AddObservations) > 0 {
		effects = append(effects, observationsEffect{defs: then.AddObservations})
	}
	if len(then.AddEncounters) > 0 {
		effects = append(effects, encountersEffect{defs: then.AddEncounters})
	}
	if len(then.AddMedicationRequests) > 0 {
		effects = append(effects, medicationRequestsEffect{defs: then.AddMedicationRequests})
	}
	if len(then.RelatedPersons) > 0 {
		for _, def := range then.RelatedPersons {
			if !validRelationship(def.Relationship) {
				return nil, configErrorf(rule.Name, -1,
					"unknown relationship keyword `%s`", def.Relationship)
			}
		}
		effects = append(effects, relatedPersonsEffect{defs: then.RelatedPersons})
	}
	if len(then.DiagnosticReports) > 0 {
		effects = append(effects, diagnosticReportsEffect{defs: then.DiagnosticReports})
	}
	if len(then.Immunizations) > 0 {
		effects = append(effects, immunizationsEffect{defs: then.Immunizations})
	}
	if len(then.Coverage) > 0 {
		effects = append(effects, coverageEffect{defs: then.Coverage})
	}
	return effects, nil
}

type setAttributesEffect struct {
	attrs map[string]any
}

func (e setAttributesEffect) apply(_ *Generator, ctx *effectContext) error {
	keys := make([]string, 0, len(e.attrs))
	for key := range e.attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		ctx.attrs[key] = e.attrs[key]
	}
	return nil
}

type conditionsEffect struct {
	defs []data.ConditionDef
}

func (e conditionsEffect) apply(_ *Generator, ctx *effectContext) error {
	for _, def := range e.defs {
		if def.Code.Resolved() == "" {
			return configErrorf(ctx.rule, ctx.patientIndex, "add_conditions entry without a code")
		}
		id := ctx.rng.UUID()
		condition := ctx.factory.createCondition(def, ctx.patientID, id)
		ctx.rec.add("Condition", id, condition, &condition.Subject)
	}
	return nil
}

type observationsEffect struct {
	defs []data.ObservationDef
}

func (e observationsEffect) apply(_ *Generator, ctx *effectContext) error {
	for _, def := range e.defs {
		if def.Loinc == "" {
			return configErrorf(ctx.rule, ctx.patientIndex, "add_observations entry without a loinc code")
		}
		points, err := timePoints(def.Times, ctx.rng, ctx.factory.now)
		if err != nil {
			return configErrorf(ctx.rule, ctx.patientIndex, "%s", err)
		}
		for _, point := range points {
			id := ctx.rng.UUID()
			observation := ctx.factory.createObservation(def, ctx.patientID, id, point)
			ctx.rec.add("Observation", id, observation, observation.Subject)
		}
	}
	return nil
}

type encountersEffect struct {
	defs []data.EncounterDef
}

func (e encountersEffect) apply(_ *Generator, ctx *effectContext) error {
	for _, def := range e.defs {
		qty := def.Qty
		if qty < 1 {
			qty = 1
		}
		for i := range qty {
			daysAgo := encounterDaysAgo(def, qty, i, ctx.rng)
			id := ctx.rng.UUID()
			encounter := ctx.factory.createEncounter(def, ctx.patientID, id, daysAgo)
			ctx.rec.add("Encounter", id, encounter, encounter.Subject)
		}
	}
	return nil
}

// encounterDaysAgo spreads qty encounters evenly over the spread window,
// oldest first. A single encounter takes days_ago, or a random recent day.
func encounterDaysAgo(def data.EncounterDef, qty, i int, rng *RNG) int {
	if qty == 1 {
		if def.DaysAgo != nil {
			return *def.DaysAgo
		}
		return rng.IntBetween(1, 30)
	}
	spread := def.SpreadMonths
	if spread < 1 {
		spread = 12
	}
	span := spread * 30
	return span - i*span/qty
}

type medicationRequestsEffect struct {
	defs []data.MedicationRequestDef
}

func (e medicationRequestsEffect) apply(_ *Generator, ctx *effectContext) error {
	for _, def := range e.defs {
		if def.Rxnorm == "" {
			return configErrorf(ctx.rule, ctx.patientIndex, "add_medication_requests entry without an rxnorm code")
		}
		id := ctx.rng.UUID()
		request := ctx.factory.createMedicationRequest(def, ctx.patientID, id)
		ctx.rec.add("MedicationRequest", id, request, &request.Subject)
	}
	return nil
}

type relatedPersonsEffect struct {
	defs []data.RelatedPersonDef
}

// apply creates, for every directive, a secondary Patient plus a symmetric
// pair of RelatedPerson resources. The first is attached to the declaring
// patient and carries the declared relationship, the second is attached to
// the secondary patient and carries the inverse. Each carries a business
// identifier holding the construction-time id of the Patient resource
// representing the person itself.
func (e relatedPersonsEffect) apply(g *Generator, ctx *effectContext) error {
	for _, def := range e.defs {
		coding, ok := relationshipCodings[def.Relationship]
		if !ok {
			return configErrorf(ctx.rule, ctx.patientIndex,
				"unknown relationship keyword `%s`", def.Relationship)
		}
		inverse := relationshipCodings[inverseRelationship[def.Relationship]]

		secondaryDef := data.PatientDef{
			Name:        def.Name,
			Gender:      def.Gender,
			BirthDate:   def.BirthDate,
			Identifiers: def.Identifiers,
			Phone:       def.Phone,
			Email:       def.Email,
		}
		secondaryID := ctx.rng.UUID()
		ctx.rec.add("Patient", secondaryID, ctx.factory.createPatient(secondaryDef, secondaryID))

		telecom := createTelecom(def.Phone, def.Email)
		firstID := ctx.rng.UUID()
		first := ctx.factory.createRelatedPerson(def.Name, coding, def.Gender, def.BirthDate,
			telecom, secondaryID, ctx.patientID, firstID)
		ctx.rec.add("RelatedPerson", firstID, first, &first.Patient)

		secondID := ctx.rng.UUID()
		second := ctx.factory.createRelatedPerson(ctx.patient.Name, inverse, ctx.patient.Gender,
			ctx.patient.BirthDate, createTelecom(ctx.patient.Phone, ctx.patient.Email),
			ctx.patientID, secondaryID, secondID)
		ctx.rec.add("RelatedPerson", secondID, second, &second.Patient)

		if def.ApplyRules && ctx.depth < maxRelatedDepth {
			secondaryCtx := &effectContext{
				patientIndex: ctx.patientIndex,
				patientID:    secondaryID,
				patient:      secondaryDef,
				attrs:        g.deriveAttributes(secondaryDef),
				rec:          ctx.rec,
				factory:      ctx.factory,
				rng:          ctx.rng,
				depth:        ctx.depth + 1,
			}
			if err := g.applyRules(secondaryCtx); err != nil {
				return err
			}
		}
	}
	return nil
}

type diagnosticReportsEffect struct {
	defs []data.DiagnosticReportDef
}

func (e diagnosticReportsEffect) apply(_ *Generator, ctx *effectContext) error {
	for _, def := range e.defs {
		if def.Code.Resolved() == "" {
			return configErrorf(ctx.rule, ctx.patientIndex, "diagnostic_reports entry without a code")
		}

		resultIDs := make([]string, 0, len(def.Observations))
		for _, obsDef := range def.Observations {
			if obsDef.Loinc == "" {
				return configErrorf(ctx.rule, ctx.patientIndex,
					"diagnostic_reports observation without a loinc code")
			}
			id := ctx.rng.UUID()
			observation := ctx.factory.createObservation(obsDef, ctx.patientID, id, ctx.factory.now)
			ctx.rec.add("Observation", id, observation, observation.Subject)
			resultIDs = append(resultIDs, id)
		}

		id := ctx.rng.UUID()
		report := ctx.factory.createDiagnosticReport(def, ctx.patientID, id, resultIDs)
		refs := []*fm.Reference{report.Subject}
		for i := range report.Result {
			refs = append(refs, &report.Result[i])
		}
		ctx.rec.add("DiagnosticReport", id, report, refs...)
	}
	return nil
}

type immunizationsEffect struct {
	defs []data.ImmunizationDef
}

func (e immunizationsEffect) apply(_ *Generator, ctx *effectContext) error {
	for _, def := range e.defs {
		if def.Vaccine.Resolved() == "" {
			return configErrorf(ctx.rule, ctx.patientIndex, "immunizations entry without a vaccine code")
		}
		qty := def.Qty
		if qty < 1 {
			qty = 1
		}
		baseDaysAgo := ctx.rng.IntBetween(1, 30)
		if def.DaysAgo != nil {
			baseDaysAgo = *def.DaysAgo
		}
		for i := range qty {
			// repeated doses are annual
			daysAgo := baseDaysAgo + i*365
			id := ctx.rng.UUID()
			immunization := ctx.factory.createImmunization(def, ctx.patientID, id, daysAgo)
			ctx.rec.add("Immunization", id, immunization, &immunization.Patient)
		}
	}
	return nil
}

type coverageEffect struct {
	defs []data.CoverageDef
}

func (e coverageEffect) apply(_ *Generator, ctx *effectContext) error {
	for _, def := range e.defs {
		id := ctx.rng.UUID()
		coverage := ctx.factory.createCoverage(def, ctx.patientID, id)
		ctx.rec.add("Coverage", id, coverage, coverage.Subscriber, &coverage.Beneficiary)
	}
	return nil
}

// timePoints expands a times specification into concrete moments relative to
// now. Without one, a single random moment within the last month is used.
func timePoints(times *data.TimesDef, rng *RNG, now time.Time) ([]time.Time, error) {
	if times == nil {
		return []time.Time{now.AddDate(0, 0, -rng.IntBetween(1, 30))}, nil
	}
	qty := times.Qty
	if qty < 1 {
		qty = 1
	}

	switch {
	case times.DaysAgo != nil:
		spacing := 30
		if times.SpacingDays != nil {
			spacing = *times.SpacingDays
		}
		points := make([]time.Time, 0, qty)
		for i := range qty {
			points = append(points, now.AddDate(0, 0, -(*times.DaysAgo+i*spacing)))
		}
		return points, nil
	case times.LookbackMonths != nil:
		span := *times.LookbackMonths * 30
		if span < 1 {
			return nil, fmt.Errorf("lookback_months must be positive, got %d", *times.LookbackMonths)
		}
		points := make([]time.Time, 0, qty)
		for i := range qty {
			// evenly over the window, oldest first
			points = append(points, now.AddDate(0, 0, -span*(qty-i)/qty))
		}
		return points, nil
	case times.LookbackDays != nil:
		span := *times.LookbackDays
		if span < 1 {
			return nil, fmt.Errorf("lookback_days must be positive, got %d", *times.LookbackDays)
		}
		daysAgo := make([]int, 0, qty)
		for range qty {
			daysAgo = append(daysAgo, rng.IntBetween(1, span))
		}
		sort.Sort(sort.Reverse(sort.IntSlice(daysAgo)))
		points := make([]time.Time, 0, qty)
		for _, days := range daysAgo {
			points = append(points, now.AddDate(0, 0, -days))
		}
		return points, nil
	default:
		points := make([]time.Time, 0, qty)
		for range qty {
			points = append(points, now.AddDate(0, 0, -rng.IntBetween(1, 30)))
		}
		return points, nil
	}
}
