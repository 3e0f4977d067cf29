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
	"net/url"
	"os"

	"github.com/samply/fhirgen/fhir"
	"github.com/spf13/cobra"
)

var server string
var disableTlsSecurity bool
var basicAuthUser string
var basicAuthPassword string
var bearerToken string
var noProgress bool

var client *fhir.Client

func createClient() error {
	fhirServerBaseUrl, err := url.ParseRequestURI(server)
	if err != nil {
		return fmt.Errorf("could not parse server's base URL: %v", err)
	}

	auth := fhir.ClientAuth{
		BasicAuthUser:     basicAuthUser,
		BasicAuthPassword: basicAuthPassword,
		Token:             bearerToken,
	}
	if disableTlsSecurity {
		client = fhir.NewClientInsecure(*fhirServerBaseUrl, auth)
	} else {
		client = fhir.NewClient(*fhirServerBaseUrl, auth)
	}
	return nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fhirgen",
	Short: "Generate synthetic FHIR® data from declarative profiles",
	Long: `fhirgen is a command line tool that generates synthetic FHIR® resources
from declarative YAML or JSON profiles.

A profile describes a patient population and a set of rules that attach
clinical resources to the patients matching them. Generated bundles can be
written to stdout, to files or uploaded to a FHIR server.`,
	Version: "0.3.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&disableTlsSecurity, "insecure", "k", false, "allow insecure server connections when using SSL")
	rootCmd.PersistentFlags().StringVar(&basicAuthUser, "user", "", "user information for basic authentication")
	rootCmd.PersistentFlags().StringVar(&basicAuthPassword, "password", "", "password information for basic authentication")
	rootCmd.PersistentFlags().StringVar(&bearerToken, "token", "", "bearer token for authentication")
	rootCmd.PersistentFlags().BoolVarP(&noProgress, "no-progress", "", false, "don't show progress bar")
}
