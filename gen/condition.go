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
	"fmt"
	"strconv"
	"strings"
)

// Attributes is the primitive attribute view of a patient record that rule
// conditions are evaluated against. Values are float64 or string.
type Attributes map[string]any

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	clone := make(Attributes, len(a))
	for name, value := range a {
		clone[name] = value
	}
	return clone
}

// Condition is a compiled rule condition: a single comparison of a patient
// attribute against a literal, or the literal `true`. Conditions are compiled
// once at profile load so that malformed expressions fail before any patient
// is generated. Evaluation is pure and never mutates the attribute view.
type Condition struct {
	always     bool
	attribute  string
	operator   string
	number     float64
	text       string
	comparesNr bool
}

// comparison operators, longest first so that `<=` is not read as `<`.
var operators = []string{"<=", ">=", "==", "!=", "<", ">"}

// CompileCondition parses an expression like "age > 45", "gender == female"
// or "true" into a Condition.
func CompileCondition(expression string) (*Condition, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" || trimmed == "true" {
		return &Condition{always: true}, nil
	}

	for _, operator := range operators {
		attribute, literal, found := strings.Cut(trimmed, operator)
		if !found {
			continue
		}
		attribute = strings.TrimSpace(attribute)
		literal = strings.TrimSpace(literal)
		if attribute == "" || literal == "" {
			return nil, fmt.Errorf("incomplete condition `%s`", expression)
		}

		condition := &Condition{attribute: attribute, operator: operator}
		if number, err := strconv.ParseFloat(literal, 64); err == nil {
			condition.number = number
			condition.comparesNr = true
		} else {
			if operator != "==" && operator != "!=" {
				return nil, fmt.Errorf("condition `%s` orders a non-numeric literal", expression)
			}
			condition.text = strings.Trim(literal, `"'`)
		}
		return condition, nil
	}

	return nil, fmt.Errorf("condition `%s` contains no comparison operator", expression)
}

// Eval evaluates the condition against the attribute view. Referencing an
// attribute absent from the view is an error: silently skipping a rule
// because of a typo would be worse than failing the run.
func (c *Condition) Eval(attributes Attributes) (bool, error) {
	if c.always {
		return true, nil
	}

	value, ok := attributes[c.attribute]
	if !ok {
		return false, fmt.Errorf("condition references undeclared attribute `%s`", c.attribute)
	}

	if c.comparesNr {
		number, ok := numeric(value)
		if !ok {
			return false, fmt.Errorf("attribute `%s` is not numeric", c.attribute)
		}
		switch c.operator {
		case "<":
			return number < c.number, nil
		case "<=":
			return number <= c.number, nil
		case ">":
			return number > c.number, nil
		case ">=":
			return number >= c.number, nil
		case "==":
			return number == c.number, nil
		default:
			return number != c.number, nil
		}
	}

	text, ok := value.(string)
	if !ok {
		return false, fmt.Errorf("attribute `%s` is not a string", c.attribute)
	}
	if c.operator == "==" {
		return text == c.text, nil
	}
	return text != c.text, nil
}

func numeric(value any) (float64, bool) {
	switch number := value.(type) {
	case float64:
		return number, true
	case int:
		return float64(number), true
	case int64:
		return float64(number), true
	case uint64:
		return float64(number), true
	default:
		return 0, false
	}
}
