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

import "fmt"

// ConfigError reports a malformed profile: a bad distribution, an unknown
// relationship keyword or a condition referencing an undeclared attribute.
// It is always fatal to the run; partial output is never emitted.
type ConfigError struct {
	// Rule is the name of the offending rule, empty outside rule evaluation.
	Rule string
	// Patient is the cohort index of the patient being generated, -1 when
	// the error is not tied to a patient.
	Patient int
	Msg     string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Rule != "" && e.Patient >= 0:
		return fmt.Sprintf("rule `%s`, patient %d: %s", e.Rule, e.Patient, e.Msg)
	case e.Rule != "":
		return fmt.Sprintf("rule `%s`: %s", e.Rule, e.Msg)
	case e.Patient >= 0:
		return fmt.Sprintf("patient %d: %s", e.Patient, e.Msg)
	default:
		return e.Msg
	}
}

func configErrorf(rule string, patient int, format string, args ...any) *ConfigError {
	return &ConfigError{Rule: rule, Patient: patient, Msg: fmt.Sprintf(format, args...)}
}
