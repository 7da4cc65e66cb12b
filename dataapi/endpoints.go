package dataapi

import (
	"context"
	"fmt"

	"irfetch/internal"
)

// Get resolves any endpoint and returns the decoded payload
func (c *Client) Get(ctx context.Context, endpoint string, params internal.Params) (interface{}, error) {
	return c.resolver.Resolve(ctx, endpoint, params)
}

// GetChunked resolves an endpoint whose payload carries a chunk manifest at
// path (see ChunkInfo) and returns the assembled items.
func (c *Client) GetChunked(ctx context.Context, endpoint string, params internal.Params, path ...string) ([]interface{}, error) {
	resource, err := c.resolver.Resolve(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	return c.chunks.Assemble(ctx, ChunkInfo(resource, path...))
}

// GetDataURL resolves an endpoint whose payload points at its data through
// field (usually "data_url") and fetches that URL.
func (c *Client) GetDataURL(ctx context.Context, endpoint string, params internal.Params, field string) (interface{}, error) {
	resource, err := c.resolver.Resolve(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	obj, ok := resource.(map[string]interface{})
	if !ok {
		return nil, internal.NewAPIError(0, fmt.Sprintf("%s returned %T, expected an object with %s", endpoint, resource, field), internal.ErrInvalidResponse)
	}
	link, ok := obj[field].(string)
	if !ok {
		return nil, internal.NewAPIError(0, fmt.Sprintf("%s response has no %s", endpoint, field), internal.ErrInvalidResponse)
	}
	return c.resolver.FetchLink(ctx, link)
}

// GetCars returns every car
func (c *Client) GetCars(ctx context.Context) (interface{}, error) {
	return c.Get(ctx, "/data/car/get", nil)
}

// GetCarsAssets returns car images and descriptions keyed by car_id
func (c *Client) GetCarsAssets(ctx context.Context) (interface{}, error) {
	return c.Get(ctx, "/data/car/assets", nil)
}

// GetTracks returns every track configuration
func (c *Client) GetTracks(ctx context.Context) (interface{}, error) {
	return c.Get(ctx, "/data/track/get", nil)
}

// GetTracksAssets returns track images and descriptions keyed by track_id
func (c *Client) GetTracksAssets(ctx context.Context) (interface{}, error) {
	return c.Get(ctx, "/data/track/assets", nil)
}

// GetSeries returns the current official series
func (c *Client) GetSeries(ctx context.Context) (interface{}, error) {
	return c.Get(ctx, "/data/series/get", nil)
}

// GetSeriesAssets returns series logos and descriptions keyed by series_id
func (c *Client) GetSeriesAssets(ctx context.Context) (interface{}, error) {
	return c.Get(ctx, "/data/series/assets", nil)
}

// Cars returns every car merged with its assets
func (c *Client) Cars(ctx context.Context) ([]map[string]interface{}, error) {
	return c.composite(ctx, c.GetCars, c.GetCarsAssets, "car_id")
}

// Tracks returns every track merged with its assets
func (c *Client) Tracks(ctx context.Context) ([]map[string]interface{}, error) {
	return c.composite(ctx, c.GetTracks, c.GetTracksAssets, "track_id")
}

// Series returns every current series merged with its assets
func (c *Client) Series(ctx context.Context) ([]map[string]interface{}, error) {
	return c.composite(ctx, c.GetSeries, c.GetSeriesAssets, "series_id")
}

type fetchFunc func(ctx context.Context) (interface{}, error)

func (c *Client) composite(ctx context.Context, primary, assets fetchFunc, idField string) ([]map[string]interface{}, error) {
	records, err := primary(ctx)
	if err != nil {
		return nil, err
	}
	list, ok := records.([]interface{})
	if !ok {
		return nil, internal.NewAPIError(0, fmt.Sprintf("expected a list of records, got %T", records), internal.ErrInvalidResponse)
	}

	table, err := assets(ctx)
	if err != nil {
		return nil, err
	}
	assetMap, ok := table.(map[string]interface{})
	if !ok {
		return nil, internal.NewAPIError(0, fmt.Sprintf("expected an asset table, got %T", table), internal.ErrInvalidResponse)
	}

	return MergeAssets(list, assetMap, idField)
}

// ResultLapChartData returns every lap by every car in a sim session.
// simsessionNumber is -2 for practice, -1 for qualifying and 0 for the race.
func (c *Client) ResultLapChartData(ctx context.Context, subsessionID, simsessionNumber int) ([]interface{}, error) {
	return c.GetChunked(ctx, "/data/results/lap_chart_data", internal.Params{
		"subsession_id":     subsessionID,
		"simsession_number": simsessionNumber,
	})
}

// LapDataQuery selects the laps of one car in a sim session
type LapDataQuery struct {
	SubsessionID     int
	SimsessionNumber int
	CustID           int // required for single-driver events
	TeamID           int // required for team events
}

// ResultLapData returns the laps of one driver or team. A session where they
// completed no laps yields an empty list.
func (c *Client) ResultLapData(ctx context.Context, query LapDataQuery) ([]interface{}, error) {
	if query.CustID == 0 && query.TeamID == 0 {
		return nil, internal.NewValidationError("cust_id", "either a cust_id or a team_id is required")
	}

	params := internal.Params{
		"subsession_id":     query.SubsessionID,
		"simsession_number": query.SimsessionNumber,
	}
	if query.CustID != 0 {
		params["cust_id"] = query.CustID
	}
	if query.TeamID != 0 {
		params["team_id"] = query.TeamID
	}

	resource, err := c.Get(ctx, "/data/results/lap_data", params)
	if err != nil {
		return nil, err
	}

	info := ChunkInfo(resource)
	if !truthy(info) {
		return []interface{}{}, nil
	}
	return c.chunks.Assemble(ctx, info)
}

// ResultEventLog returns the events logged during a sim session
func (c *Client) ResultEventLog(ctx context.Context, subsessionID, simsessionNumber int) ([]interface{}, error) {
	return c.GetChunked(ctx, "/data/results/event_log", internal.Params{
		"subsession_id":     subsessionID,
		"simsession_number": simsessionNumber,
	})
}

// DriverStandingsQuery selects a season's driver standings
type DriverStandingsQuery struct {
	SeasonID    int
	CarClassID  int
	RaceWeekNum *int
	ClubID      int
	Division    *int // 0-based; 0 is Division 1
}

// SeasonDriverStandings returns the driver standings of a season and car class
func (c *Client) SeasonDriverStandings(ctx context.Context, query DriverStandingsQuery) ([]interface{}, error) {
	params := internal.Params{
		"season_id":     query.SeasonID,
		"car_class_id":  query.CarClassID,
		"race_week_num": query.RaceWeekNum,
		"division":      query.Division,
	}
	if query.ClubID != 0 {
		params["club_id"] = query.ClubID
	}
	return c.GetChunked(ctx, "/data/stats/season_driver_standings", params)
}

// SearchSeriesQuery filters official series sessions. It needs a season
// year and quarter or one of the range starts.
type SearchSeriesQuery struct {
	SeasonYear       int
	SeasonQuarter    int
	StartRangeBegin  string
	StartRangeEnd    string
	FinishRangeBegin string
	FinishRangeEnd   string
	CustID           int
	SeriesID         int
	RaceWeekNum      *int
	OfficialOnly     *bool // defaults to true
	EventTypes       []int
	CategoryIDs      []int
}

// ResultSearchSeries searches official series sessions
func (c *Client) ResultSearchSeries(ctx context.Context, query SearchSeriesQuery) ([]interface{}, error) {
	hasSeason := query.SeasonYear != 0 && query.SeasonQuarter != 0
	if !hasSeason && query.StartRangeBegin == "" && query.FinishRangeBegin == "" {
		return nil, internal.NewValidationError("season_year", "a season year and quarter or a date range is required").
			WithSuggestion("Set season_year and season_quarter, start_range_begin, or finish_range_begin")
	}

	officialOnly := true
	if query.OfficialOnly != nil {
		officialOnly = *query.OfficialOnly
	}

	params := internal.Params{
		"official_only": officialOnly,
		"race_week_num": query.RaceWeekNum,
		"event_types":   query.EventTypes,
		"category_ids":  query.CategoryIDs,
	}
	setNonZero(params, "season_year", query.SeasonYear)
	setNonZero(params, "season_quarter", query.SeasonQuarter)
	setNonZero(params, "cust_id", query.CustID)
	setNonZero(params, "series_id", query.SeriesID)
	setNonEmpty(params, "start_range_begin", query.StartRangeBegin)
	setNonEmpty(params, "start_range_end", query.StartRangeEnd)
	setNonEmpty(params, "finish_range_begin", query.FinishRangeBegin)
	setNonEmpty(params, "finish_range_end", query.FinishRangeEnd)

	return c.GetChunked(ctx, "/data/results/search_series", params, "data")
}

// MemberAwards returns the awards of a member, or of the logged-in member when custID is 0
func (c *Client) MemberAwards(ctx context.Context, custID int) (interface{}, error) {
	params := internal.Params{}
	setNonZero(params, "cust_id", custID)
	return c.GetDataURL(ctx, "/data/member/awards", params, "data_url")
}

// LeagueRoster returns the members of a league
func (c *Client) LeagueRoster(ctx context.Context, leagueID int, includeLicenses bool) (interface{}, error) {
	query := internal.Params{"league_id": leagueID}
	if includeLicenses {
		query["include_licenses"] = true
	}
	return c.GetDataURL(ctx, "/data/league/roster", query, "data_url")
}

// DefaultSpectatorEventTypes are practice, qualify, time trial and race
var DefaultSpectatorEventTypes = []int{2, 3, 4, 5}

// SeasonSpectatorSubsessionIDs returns the live subsession ids for the given event types
func (c *Client) SeasonSpectatorSubsessionIDs(ctx context.Context, eventTypes []int) ([]interface{}, error) {
	if eventTypes == nil {
		eventTypes = DefaultSpectatorEventTypes
	}

	params := internal.Params{}
	if len(eventTypes) > 0 {
		params["event_types"] = eventTypes
	}

	resource, err := c.Get(ctx, "/data/season/spectator_subsessionids", params)
	if err != nil {
		return nil, err
	}

	obj, ok := resource.(map[string]interface{})
	if !ok {
		return nil, internal.NewAPIError(0, fmt.Sprintf("expected an object, got %T", resource), internal.ErrInvalidResponse)
	}
	ids, ok := obj["subsession_ids"].([]interface{})
	if !ok {
		return nil, internal.NewAPIError(0, "response has no subsession_ids list", internal.ErrInvalidResponse)
	}
	return ids, nil
}

func setNonZero(params internal.Params, key string, value int) {
	if value != 0 {
		params[key] = value
	}
}

func setNonEmpty(params internal.Params, key, value string) {
	if value != "" {
		params[key] = value
	}
}
