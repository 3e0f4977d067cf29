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

package cmd

import (
	"fmt"

	"github.com/samply/fhirgen/data"
	"github.com/spf13/cobra"
)

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the built-in personas",
	Long: `Lists the names of the built-in personas that can be used with
fhirgen generate --persona <name>.`,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range data.Personas() {
			fmt.Println(name)
		}
	},
}

func init() {
	rootCmd.AddCommand(personasCmd)
}
