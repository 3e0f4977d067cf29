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
	fm "github.com/samply/golang-fhir-models/fhir-models/fhir"
)

// maxRelatedDepth bounds apply_rules recursion through related-person
// directives so that mutually related personas cannot loop forever.
const maxRelatedDepth = 3

// inverseRelationship maps a declared relationship keyword to the keyword
// used for the mirror RelatedPerson attached to the secondary patient.
var inverseRelationship = map[string]string{
	"parent":    "child",
	"child":     "parent",
	"spouse":    "spouse",
	"sibling":   "sibling",
	"guardian":  "child",
	"emergency": "emergency",
}

// relationshipCodings maps a relationship keyword to its v3-RoleCode coding.
var relationshipCodings = map[string]fm.Coding{
	"parent":    createCoding(systemRoleCode, "PRN", "parent"),
	"child":     createCoding(systemRoleCode, "CHILD", "child"),
	"spouse":    createCoding(systemRoleCode, "SPS", "spouse"),
	"sibling":   createCoding(systemRoleCode, "SIB", "sibling"),
	"guardian":  createCoding(systemRoleCode, "GUARD", "guardian"),
	"emergency": createCoding(systemRoleCode, "C", "emergency contact"),
}

// validRelationship reports whether keyword names a supported relationship.
func validRelationship(keyword string) bool {
	_, ok := relationshipCodings[keyword]
	return ok
}
