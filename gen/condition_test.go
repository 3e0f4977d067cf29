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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileCondition(t *testing.T) {
	t.Run("True", func(t *testing.T) {
		condition, err := CompileCondition("true")
		require.NoError(t, err)

		match, err := condition.Eval(Attributes{})
		require.NoError(t, err)
		assert.True(t, match)
	})

	t.Run("Empty", func(t *testing.T) {
		condition, err := CompileCondition("")
		require.NoError(t, err)

		match, err := condition.Eval(Attributes{})
		require.NoError(t, err)
		assert.True(t, match)
	})

	t.Run("MissingOperator", func(t *testing.T) {
		_, err := CompileCondition("age 45")
		assert.ErrorContains(t, err, "no comparison operator")
	})

	t.Run("MissingLiteral", func(t *testing.T) {
		_, err := CompileCondition("age >")
		assert.ErrorContains(t, err, "incomplete condition")
	})

	t.Run("OrderedStringLiteral", func(t *testing.T) {
		_, err := CompileCondition("gender > female")
		assert.ErrorContains(t, err, "non-numeric literal")
	})
}

func TestConditionEval(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		attrs      Attributes
		match      bool
	}{
		{"GreaterMatch", "age > 45", Attributes{"age": 50.0}, true},
		{"GreaterNoMatch", "age > 45", Attributes{"age": 30.0}, false},
		{"GreaterOrEqualBoundary", "age >= 45", Attributes{"age": 45.0}, true},
		{"LessBoundary", "age < 45", Attributes{"age": 45.0}, false},
		{"LessOrEqualBoundary", "age <= 45", Attributes{"age": 45.0}, true},
		{"NumericEqual", "age == 45", Attributes{"age": 45.0}, true},
		{"NumericNotEqual", "age != 45", Attributes{"age": 45.0}, false},
		{"StringEqual", "gender == female", Attributes{"gender": "female"}, true},
		{"StringEqualQuoted", `gender == "female"`, Attributes{"gender": "female"}, true},
		{"StringNotEqual", "gender != female", Attributes{"gender": "male"}, true},
		{"SpreadWhitespace", "  age   >  45 ", Attributes{"age": 46.0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			condition, err := CompileCondition(tt.expression)
			require.NoError(t, err)

			match, err := condition.Eval(tt.attrs)
			require.NoError(t, err)
			assert.Equal(t, tt.match, match)
		})
	}

	t.Run("UndeclaredAttribute", func(t *testing.T) {
		condition, err := CompileCondition("smoker == yes")
		require.NoError(t, err)

		_, err = condition.Eval(Attributes{"age": 50.0})
		assert.ErrorContains(t, err, "undeclared attribute `smoker`")
	})

	t.Run("NonNumericAttribute", func(t *testing.T) {
		condition, err := CompileCondition("age > 45")
		require.NoError(t, err)

		_, err = condition.Eval(Attributes{"age": "old"})
		assert.ErrorContains(t, err, "not numeric")
	})
}
