// Command coordinatorctl is the operator CLI for the two admin actions
// §6's Admin API exposes: creating a competition and requesting its
// cancellation. Styled after cmd/lncli's option struct + subcommand
// layout, but built on jessevdk/go-flags' own Commander support rather
// than a second CLI framework, since two subcommands didn't justify
// pulling in urfave/cli alongside it.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/5day4cast/coordinator/internal/domain"
)

type options struct {
	AdminAddr string `long:"adminaddr" description:"Admin API base URL" default:"http://127.0.0.1:8081"`
}

var opts options

type createCompetitionCmd struct {
	ID                       string  `long:"id" description:"Client-assigned UUIDv7 competition id" required:"true"`
	SigningDate              string  `long:"signingdate" description:"RFC3339 signing deadline" required:"true"`
	StartObservationDate     string  `long:"startobservation" description:"RFC3339 observation window start" required:"true"`
	EndObservationDate       string  `long:"endobservation" description:"RFC3339 observation window end" required:"true"`
	EntryFee                 int64   `long:"entryfee" description:"Entry fee in sats" required:"true"`
	CoordinatorFeePercentage float64 `long:"coordinatorfeepct" description:"Coordinator fee as a percentage of the pool" default:"5"`
	TotalAllowedEntries      int     `long:"totalentries" required:"true"`
	NumberOfPlacesWin        int     `long:"placeswin" required:"true"`
	NumberOfValuesPerEntry   int     `long:"valuesperentry" required:"true"`
	LocationsFile            string `long:"locationsfile" description:"Path to a JSON array of station/metric locations" required:"true"`
}

func (c *createCompetitionCmd) Execute(args []string) error {
	signingDate, err := time.Parse(time.RFC3339, c.SigningDate)
	if err != nil {
		return fmt.Errorf("parsing signingdate: %w", err)
	}
	startObs, err := time.Parse(time.RFC3339, c.StartObservationDate)
	if err != nil {
		return fmt.Errorf("parsing startobservation: %w", err)
	}
	endObs, err := time.Parse(time.RFC3339, c.EndObservationDate)
	if err != nil {
		return fmt.Errorf("parsing endobservation: %w", err)
	}

	locationsRaw, err := os.ReadFile(c.LocationsFile)
	if err != nil {
		return fmt.Errorf("reading locations file: %w", err)
	}
	var locations []domain.Location
	if err := json.Unmarshal(locationsRaw, &locations); err != nil {
		return fmt.Errorf("parsing locations file: %w", err)
	}

	body := struct {
		ID string `json:"id"`
		domain.EventSubmission
	}{
		ID: c.ID,
		EventSubmission: domain.EventSubmission{
			SigningDate:              signingDate,
			StartObservationDate:     startObs,
			EndObservationDate:       endObs,
			EntryFee:                 c.EntryFee,
			CoordinatorFeePercentage: c.CoordinatorFeePercentage,
			TotalAllowedEntries:      c.TotalAllowedEntries,
			NumberOfPlacesWin:        c.NumberOfPlacesWin,
			NumberOfValuesPerEntry:   c.NumberOfValuesPerEntry,
			Locations:                locations,
		},
	}

	resp, err := postJSON(opts.AdminAddr+"/admin/api/competitions", body)
	if err != nil {
		return err
	}
	fmt.Println(resp)
	return nil
}

type cancelCmd struct {
	ID string `long:"id" description:"Competition id to cancel" required:"true"`
}

func (c *cancelCmd) Execute(args []string) error {
	resp, err := postJSON(fmt.Sprintf("%s/admin/api/competitions/%s/cancel", opts.AdminAddr, c.ID), nil)
	if err != nil {
		return err
	}
	fmt.Println(resp)
	return nil
}

func postJSON(url string, body interface{}) (string, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	resp, err := http.Post(url, "application/json", reqBody)
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response from %s: %w", url, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, respBody)
	}
	return string(respBody), nil
}

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.AddCommand("createcompetition", "Create a competition", "", &createCompetitionCmd{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if _, err := parser.AddCommand("cancel", "Request cancellation of a competition", "", &cancelCmd{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if _, err := parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
