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

package data

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed personas/*.yaml
var personaFS embed.FS

// LoadPersona loads a built-in single-patient profile by name.
func LoadPersona(name string) (*Profile, error) {
	content, err := personaFS.ReadFile("personas/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("persona `%s` not found, available personas: %s",
			name, strings.Join(Personas(), ", "))
	}

	profile := Profile{}
	if err := yaml.Unmarshal(content, &profile); err != nil {
		return nil, fmt.Errorf("invalid persona `%s`: %w", name, err)
	}
	if err := profile.normalize(); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Personas returns the names of all built-in personas in sorted order.
func Personas() []string {
	entries, err := personaFS.ReadDir("personas")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}
