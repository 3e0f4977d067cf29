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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/samply/fhirgen/bundle"
	"github.com/samply/fhirgen/data"
	"github.com/samply/fhirgen/fhir"
	"github.com/samply/fhirgen/gen"
	"github.com/samply/fhirgen/util"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var profileFile string
var personaName string
var patientCount int
var seed uint64
var bundleTypeFlag string
var bundleSizeFlag int
var requestMethodFlag string
var resourceTypes []string
var outputFile string
var outputDir string
var generateWorkers int
var concurrency int

// loadGenerateProfile loads the profile either from a built-in persona or
// from a profile file.
func loadGenerateProfile() (*data.Profile, error) {
	switch {
	case profileFile != "" && personaName != "":
		return nil, fmt.Errorf("--profile and --persona are mutually exclusive")
	case personaName != "":
		return data.LoadPersona(personaName)
	case profileFile != "":
		return data.LoadProfile(profileFile)
	default:
		return nil, fmt.Errorf("either --profile or --persona is required")
	}
}

func parseRequestMethod(s string) (bundle.RequestMethod, error) {
	switch s {
	case "post":
		return bundle.MethodPost, nil
	case "put":
		return bundle.MethodPut, nil
	case "conditional":
		return bundle.MethodConditional, nil
	default:
		return "", fmt.Errorf("unsupported request method `%s`, use post, put or conditional", s)
	}
}

func newProgress() *mpb.Progress {
	if noProgress {
		return mpb.New(mpb.WithOutput(io.Discard))
	}
	return mpb.New()
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate synthetic FHIR resources from a profile",
	Long: `Generates synthetic FHIR resources from a declarative profile or a
built-in persona.

Resources are grouped into bundles which are written to stdout, to a file or
directory, or uploaded to a FHIR server when --server is given. One bundle
never splits the resources of a patient and the persons related to it.

The same profile, seed and count always produce identical output.`,
	Example: `  fhirgen generate --profile cohort.yaml --count 100 --seed 42
  fhirgen generate --persona mary-diabetes --output mary.json
  fhirgen generate --profile cohort.yaml --count 1000 --server http://localhost:8080/fhir`,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := loadGenerateProfile()
		if err != nil {
			return err
		}

		method, err := parseRequestMethod(requestMethodFlag)
		if err != nil {
			return err
		}

		transaction := profile.Output.Mode == data.OutputTransaction
		if bundleTypeFlag != "" {
			switch bundleTypeFlag {
			case "transaction":
				transaction = true
			case "collection":
				transaction = false
			default:
				return fmt.Errorf("unsupported bundle type `%s`, use transaction or collection", bundleTypeFlag)
			}
		}

		bundleSize := profile.Output.BundleSize
		if bundleSizeFlag > 0 {
			bundleSize = bundleSizeFlag
		}

		if server != "" {
			if !transaction {
				return fmt.Errorf("only transaction bundles can be uploaded, drop --bundle-type collection or --server")
			}
			if err := createClient(); err != nil {
				return err
			}
		}

		count := patientCount
		if profile.Mode == data.ModeSingle {
			count = 1
		}

		start := time.Now()
		progress := newProgress()
		bar := progress.AddBar(int64(count),
			mpb.BarRemoveOnComplete(),
			mpb.PrependDecorators(
				decor.Name("generate "),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)

		generator, err := gen.New(profile, gen.Options{
			Seed:      seed,
			Resources: resourceTypes,
			Workers:   generateWorkers,
			OnPatient: bar.Increment,
		})
		if err != nil {
			return err
		}

		items, err := generator.Generate(cmd.Context(), count)
		if err != nil {
			bar.Abort(true)
			progress.Wait()
			return err
		}
		progress.Wait()

		// The assembler draws its ids from the run-level stream, patients
		// draw from their own substreams, so output stays reproducible.
		runRNG := gen.NewRNG(seed)
		assembler := bundle.Assembler{
			Transaction: transaction,
			Method:      method,
			BundleSize:  bundleSize,
			Timestamp:   generator.Now().Format("2006-01-02T15:04:05+00:00"),
			NewID:       runRNG.UUID,
		}
		bundles, err := assembler.Assemble(items)
		if err != nil {
			return err
		}

		payloads := make([][]byte, 0, len(bundles))
		var totalBytes int
		for _, b := range bundles {
			payload, err := json.Marshal(b)
			if err != nil {
				return err
			}
			payloads = append(payloads, payload)
			totalBytes += len(payload)
		}

		if server != "" {
			if err := checkCapabilities(client); err != nil {
				return err
			}
			return uploadBundles(payloads, len(items), start)
		}
		if err := writeBundles(payloads); err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Patients         [total]                  %d\n", count)
		fmt.Fprintf(cmd.ErrOrStderr(), "Resources        [total]                  %d\n", len(items))
		fmt.Fprintf(cmd.ErrOrStderr(), "Bundles          [total, max size]        %d, %d\n", len(bundles), bundleSize)
		fmt.Fprintf(cmd.ErrOrStderr(), "Bytes            [total]                  %s\n",
			util.FmtBytesHumanReadable(float32(totalBytes)))
		fmt.Fprintf(cmd.ErrOrStderr(), "Duration         [total]                  %s\n",
			util.FmtDurationHumanReadable(time.Since(start)))
		return nil
	},
}

// writeBundles writes one bundle per line to stdout or the output file, or
// one file per bundle into the output directory.
func writeBundles(payloads [][]byte) error {
	switch {
	case outputDir != "":
		if err := util.CreateOutputDir(outputDir); err != nil {
			return err
		}
		for i, payload := range payloads {
			file, err := util.CreateOutputFile(filepath.Join(outputDir, fmt.Sprintf("bundle-%04d.json", i)))
			if err != nil {
				return err
			}
			_, err = file.Write(payload)
			if closeErr := file.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
		}
		return nil
	case outputFile != "":
		file, err := util.CreateOutputFile(outputFile)
		if err != nil {
			return err
		}
		defer file.Close()
		for _, payload := range payloads {
			if _, err := file.Write(append(payload, '\n')); err != nil {
				return err
			}
		}
		return nil
	default:
		for _, payload := range payloads {
			if _, err := os.Stdout.Write(append(payload, '\n')); err != nil {
				return err
			}
		}
		return nil
	}
}

type uploadResult struct {
	index           int
	requestDuration float64
	err             error
	errorResponse   *util.ErrorResponse
}

type aggregatedUploadResults struct {
	requestDurations []float64
	errors           []error
	errorResponses   []*util.ErrorResponse
}

// aggregateUploadResults consumes n results from resultCh and sends the
// aggregate to aggregatedCh.
func aggregateUploadResults(n int, resultCh <-chan uploadResult, aggregatedCh chan<- aggregatedUploadResults) {
	var agg aggregatedUploadResults
	for range n {
		result := <-resultCh
		switch {
		case result.err != nil:
			agg.errors = append(agg.errors, result.err)
		case result.errorResponse != nil:
			agg.errorResponses = append(agg.errorResponses, result.errorResponse)
		default:
			agg.requestDurations = append(agg.requestDurations, result.requestDuration)
		}
	}
	aggregatedCh <- agg
}

// uploadBundle posts one transaction bundle and returns an ErrorResponse for
// non-successful status codes.
// checkCapabilities performs the capabilities interaction to verify that the
// server actually talks FHIR before any bundle is shipped to it.
func checkCapabilities(client *fhir.Client) error {
	req, err := client.NewCapabilitiesRequest()
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Non-OK status while fetching the capability statement: %s", resp.Status)
	}
	if _, err := fhir.ReadCapabilityStatement(resp.Body); err != nil {
		return fmt.Errorf("error while reading the capability statement: %w", err)
	}
	return nil
}

func uploadBundle(client *fhir.Client, payload []byte) (*util.ErrorResponse, error) {
	req, err := client.NewTransactionRequest(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		_, err = io.Copy(io.Discard, resp.Body)
		return nil, err
	}

	errResponse := &util.ErrorResponse{StatusCode: resp.StatusCode}
	if outcome, err := fhir.ReadOperationOutcome(resp.Body); err == nil {
		errResponse.OperationOutcome = &outcome
	} else {
		errResponse.OtherError = err.Error()
	}
	return errResponse, nil
}

// uploadBundles ships the bundles to the FHIR server with bounded
// concurrency and prints a summary in the manner of an upload tool.
func uploadBundles(payloads [][]byte, resourceCount int, start time.Time) error {
	fmt.Printf("Starting Upload to %s ...\n", server)

	progress := newProgress()
	bar := progress.AddBar(int64(len(payloads)),
		mpb.BarRemoveOnComplete(),
		mpb.PrependDecorators(
			decor.Name("upload "),
			decor.OnComplete(decor.EwmaETA(decor.ET_STYLE_GO, 60, decor.WC{W: 4}), "done"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	resultCh := make(chan uploadResult)
	aggregatedCh := make(chan aggregatedUploadResults)
	go aggregateUploadResults(len(payloads), resultCh, aggregatedCh)

	sem := make(chan bool, concurrency)
	for i, payload := range payloads {
		sem <- true
		go func(i int, payload []byte) {
			defer func() { <-sem }()
			requestStart := time.Now()
			errResponse, err := uploadBundle(client, payload)
			elapsed := time.Since(requestStart)
			bar.EwmaIncrement(time.Duration(elapsed.Nanoseconds() / int64(concurrency)))
			resultCh <- uploadResult{
				index:           i,
				requestDuration: elapsed.Seconds(),
				err:             err,
				errorResponse:   errResponse,
			}
		}(i, payload)
	}
	for range cap(sem) {
		sem <- true
	}
	progress.Wait()
	client.CloseIdleConnections()

	agg := <-aggregatedCh

	fmt.Printf("Bundles          [total, concurrency]     %d, %d\n", len(payloads), concurrency)
	fmt.Printf("Resources        [total]                  %d\n", resourceCount)
	fmt.Printf("Success          [ratio]                  %.2f %%\n",
		float32(len(payloads)-len(agg.errors)-len(agg.errorResponses))/float32(len(payloads))*100)
	fmt.Printf("Duration         [total]                  %s\n",
		util.FmtDurationHumanReadable(time.Since(start)))

	if len(agg.requestDurations) > 0 {
		stats := util.CalculateDurationStatistics(agg.requestDurations)
		fmt.Printf("Requ. Latencies  [mean, 50, 95, 99, max]  %s, %s, %s, %s %s\n",
			stats.Mean, stats.Q50, stats.Q95, stats.Q99, stats.Max)
	}

	for _, err := range agg.errors {
		fmt.Println()
		fmt.Println("Error:", err)
	}
	for _, errResponse := range agg.errorResponses {
		fmt.Println()
		fmt.Print(errResponse)
	}
	if len(agg.errors) > 0 || len(agg.errorResponses) > 0 {
		return fmt.Errorf("%d of %d bundles failed to upload",
			len(agg.errors)+len(agg.errorResponses), len(payloads))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&profileFile, "profile", "p", "", "profile file (YAML or JSON)")
	generateCmd.Flags().StringVar(&personaName, "persona", "", "built-in persona name, see `fhirgen personas`")
	generateCmd.Flags().IntVarP(&patientCount, "count", "n", 10, "number of patients to generate (cohort mode)")
	generateCmd.Flags().Uint64Var(&seed, "seed", 0, "seed of the deterministic random stream")
	generateCmd.Flags().StringVar(&bundleTypeFlag, "bundle-type", "", "bundle type: transaction or collection (default from profile)")
	generateCmd.Flags().IntVar(&bundleSizeFlag, "bundle-size", 0, "nominal max resources per bundle, patient groups never split (default from profile)")
	generateCmd.Flags().StringVar(&requestMethodFlag, "request-method", "post", "transaction entry method: post, put or conditional")
	generateCmd.Flags().StringSliceVar(&resourceTypes, "resources", nil, "restrict output to these resource types, Patient is always kept")
	generateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write bundles to this file, one per line")
	generateCmd.Flags().StringVar(&outputDir, "output-dir", "", "write one bundle file per bundle into this directory")
	generateCmd.Flags().IntVar(&generateWorkers, "workers", 4, "number of concurrently generated patients")
	generateCmd.Flags().StringVar(&server, "server", "", "upload the bundles to this FHIR server base URL")
	generateCmd.Flags().IntVarP(&concurrency, "concurrency", "c", 2, "number of parallel uploads")
}
