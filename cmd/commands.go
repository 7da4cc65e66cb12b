package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"irfetch/dataapi"
	"irfetch/internal"
)

var (
	params    []string
	chunked   bool
	chunkPath string
	linkField string
)

var getCmd = &cobra.Command{
	Use:   "get <ENDPOINT>",
	Short: "Resolve an endpoint and print its data",
	Long: `Resolve a data API endpoint and print the decoded result.

Links returned by the endpoint are followed automatically. Use --chunks for
endpoints that answer with a chunk manifest, and --link-field for endpoints
that point at their data through a field such as data_url.

Examples:
  irfetch get /data/track/get
  irfetch get /data/results/get -p subsession_id=12345 -p include_licenses=true
  irfetch get /data/results/search_series -p season_year=2024 -p season_quarter=1 --chunks --chunk-path data
  irfetch get /data/league/roster -p league_id=1234 --link-field data_url`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGet(cmd, args[0], chunked)
	},
}

var chunksCmd = &cobra.Command{
	Use:   "chunks <ENDPOINT>",
	Short: "Resolve a chunked endpoint and print the assembled items",
	Long: `Resolve an endpoint whose payload carries a chunk_info manifest, download
every chunk and print the concatenated items. Same as "get --chunks".

Examples:
  irfetch chunks /data/results/lap_chart_data -p subsession_id=12345 -p simsession_number=0
  irfetch chunks /data/results/event_log -p subsession_id=12345 -p simsession_number=0 -c 4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGet(cmd, args[0], true)
	},
}

var carsCmd = &cobra.Command{
	Use:   "cars",
	Short: "Print every car merged with its assets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runComposite(cmd, "cars", (*dataapi.Client).Cars)
	},
}

var tracksCmd = &cobra.Command{
	Use:   "tracks",
	Short: "Print every track merged with its assets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runComposite(cmd, "tracks", (*dataapi.Client).Tracks)
	},
}

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Print every current series merged with its assets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runComposite(cmd, "series", (*dataapi.Client).Series)
	},
}

var rateLimitCmd = &cobra.Command{
	Use:   "ratelimit <ENDPOINT>",
	Short: "Call an endpoint once and print the reported request quota",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRateLimit(cmd, args[0])
	},
}

// rateLimitReport is the JSON shape printed by the ratelimit command
type rateLimitReport struct {
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	Reset             int64     `json:"reset"`
	ResetTime         time.Time `json:"reset_time"`
	SecondsUntilReset float64   `json:"seconds_until_reset"`
	RateLimited       bool      `json:"rate_limited"`
}

func runGet(cmd *cobra.Command, endpoint string, asChunks bool) error {
	query, err := parseParams(params)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	internal.LogInfo("Resolving %s", endpoint)

	var result interface{}
	switch {
	case linkField != "":
		result, err = client.GetDataURL(ctx, endpoint, query, linkField)
	case asChunks:
		result, err = client.GetChunked(ctx, endpoint, query, splitPath(chunkPath)...)
	default:
		result, err = client.Get(ctx, endpoint, query)
	}
	if err != nil {
		return err
	}

	logQuota(client)
	return writeResult(cmd.OutOrStdout(), result)
}

func runComposite(cmd *cobra.Command, name string,
	fetch func(*dataapi.Client, context.Context) ([]map[string]interface{}, error)) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	internal.LogInfo("Fetching %s with assets", name)
	records, err := fetch(client, ctx)
	if err != nil {
		return err
	}

	internal.LogInfo("Merged %d %s", len(records), name)
	logQuota(client)
	return writeResult(cmd.OutOrStdout(), records)
}

func runRateLimit(cmd *cobra.Command, endpoint string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if _, err := client.Get(ctx, endpoint, nil); err != nil {
		return err
	}

	tracker := client.RateLimit()
	if !tracker.HasData() {
		return fmt.Errorf("%s did not report rate limit headers", endpoint)
	}

	return writeResult(cmd.OutOrStdout(), rateLimitReport{
		Limit:             tracker.Limit(),
		Remaining:         tracker.Remaining(),
		Reset:             tracker.Reset(),
		ResetTime:         tracker.ResetTime(),
		SecondsUntilReset: tracker.SecondsUntilReset(),
		RateLimited:       tracker.IsRateLimited(),
	})
}

// parseParams turns repeated key=value flags into query parameters.
// A key given more than once becomes a list, sent comma-joined.
func parseParams(raw []string) (internal.Params, error) {
	query := internal.Params{}
	for _, pair := range raw {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, internal.NewValidationErrorWithValue("param", "parameters must look like key=value", pair).
				WithSuggestion("Use -p subsession_id=12345")
		}

		switch existing := query[key].(type) {
		case nil:
			query[key] = value
		case string:
			query[key] = []string{existing, value}
		case []string:
			query[key] = append(existing, value)
		}
	}
	return query, nil
}

// splitPath turns a dotted path such as "data" or "data.results" into keys
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func logQuota(client *dataapi.Client) {
	tracker := client.RateLimit()
	if tracker.HasData() {
		internal.LogDebug("Rate limit: %d/%d remaining, resets in %.0fs",
			tracker.Remaining(), tracker.Limit(), tracker.SecondsUntilReset())
	}
}

func init() {
	for _, c := range []*cobra.Command{getCmd, chunksCmd} {
		c.Flags().StringArrayVarP(&params, "param", "p", nil, "Query parameter as key=value (repeatable)")
		c.Flags().StringVar(&chunkPath, "chunk-path", "", "Dotted path to the object holding chunk_info (e.g. data)")
	}
	getCmd.Flags().BoolVar(&chunked, "chunks", false, "Download and assemble the chunk manifest in the response")
	getCmd.Flags().StringVar(&linkField, "link-field", "", "Fetch the URL found in this response field (e.g. data_url)")
}
