package utils

import (
	"testing"

	"irfetch/internal"
)

func TestFormatParam(t *testing.T) {
	id := 42
	var nilPtr *int

	tests := []struct {
		name     string
		value    interface{}
		expected string
		ok       bool
	}{
		{"nil", nil, "", false},
		{"nil_pointer", nilPtr, "", false},
		{"pointer", &id, "42", true},
		{"true", true, "true", true},
		{"false", false, "false", true},
		{"int", 12345, "12345", true},
		{"string", "road", "road", true},
		{"float", 1.5, "1.5", true},
		{"whole_float", float64(3), "3", true},
		{"int_slice", []int{2, 3, 5}, "2,3,5", true},
		{"string_slice", []string{"a", "b"}, "a,b", true},
		{"mixed_slice", []interface{}{1, "x", true}, "1,x,true", true},
		{"nil_slice", []int(nil), "", false},
		{"empty_slice", []int{}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FormatParam(tt.value)
			if ok != tt.ok || got != tt.expected {
				t.Errorf("FormatParam(%v) = (%q, %v), want (%q, %v)", tt.value, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestEncodeParams(t *testing.T) {
	params := internal.Params{
		"season_year":    2024,
		"event_types":    []int{2, 5},
		"official_only":  true,
		"include_series": nil,
		"category":       "road",
	}

	expected := "category=road&event_types=2%2C5&official_only=true&season_year=2024"
	if got := EncodeParams(params); got != expected {
		t.Errorf("EncodeParams() = %q, want %q", got, expected)
	}

	if got := EncodeParams(nil); got != "" {
		t.Errorf("EncodeParams(nil) = %q, want empty", got)
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		endpoint string
		params   internal.Params
		expected string
	}{
		{
			name:     "plain_path",
			base:     "https://members-ng.iracing.com",
			endpoint: "/data/car/get",
			expected: "https://members-ng.iracing.com/data/car/get",
		},
		{
			name:     "slashes_normalized",
			base:     "https://members-ng.iracing.com/",
			endpoint: "data/car/get",
			expected: "https://members-ng.iracing.com/data/car/get",
		},
		{
			name:     "with_params",
			base:     "https://members-ng.iracing.com",
			endpoint: "/data/results/lap_data",
			params:   internal.Params{"subsession_id": 1, "simsession_number": 0},
			expected: "https://members-ng.iracing.com/data/results/lap_data?simsession_number=0&subsession_id=1",
		},
		{
			name:     "absolute_endpoint",
			base:     "https://members-ng.iracing.com",
			endpoint: "https://other.example.com/x?a=1",
			params:   internal.Params{"b": 2},
			expected: "https://other.example.com/x?a=1&b=2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildURL(tt.base, tt.endpoint, tt.params); got != tt.expected {
				t.Errorf("BuildURL() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		endpoint    string
		expectError bool
	}{
		{"/data/car/get", false},
		{"data/track/get", false},
		{"", true},
		{"   ", true},
		{"https://members-ng.iracing.com/data/car/get", true},
		{"/data/car/get?x=1", true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			err := ValidateEndpoint(tt.endpoint)
			if (err != nil) != tt.expectError {
				t.Errorf("ValidateEndpoint(%q) error = %v, expectError %v", tt.endpoint, err, tt.expectError)
			}
		})
	}
}

func TestValidateLinkURL(t *testing.T) {
	tests := []struct {
		link        string
		expectError bool
	}{
		{"https://scorpio-assets.s3.amazonaws.com/data.json?X-Amz-Signature=abc", false},
		{"http://127.0.0.1:8080/link", false},
		{"/relative/link", true},
		{"ftp://example.com/file", true},
		{"://bad", true},
	}

	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			err := ValidateLinkURL(tt.link)
			if (err != nil) != tt.expectError {
				t.Errorf("ValidateLinkURL(%q) error = %v, expectError %v", tt.link, err, tt.expectError)
			}
			if err != nil && !internal.IsType(err, internal.ErrInvalidResponse) {
				t.Errorf("expected InvalidResponse error, got %v", err)
			}
		})
	}
}
