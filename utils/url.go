package utils

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"irfetch/internal"
)

// BuildURL joins the service origin, an endpoint path and its query parameters
func BuildURL(baseURL, endpoint string, params internal.Params) string {
	target := endpoint
	if !isAbsoluteURL(endpoint) {
		target = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	}

	query := EncodeParams(params)
	if query == "" {
		return target
	}
	if strings.Contains(target, "?") {
		return target + "&" + query
	}
	return target + "?" + query
}

// EncodeParams serializes query parameters with one rule for every endpoint:
// nil values are omitted, booleans become true/false, slices and arrays are
// comma-joined, and everything else is formatted with fmt. Keys are sorted.
func EncodeParams(params internal.Params) string {
	values := url.Values{}
	for key, value := range params {
		if encoded, ok := FormatParam(value); ok {
			values.Set(key, encoded)
		}
	}
	return values.Encode()
}

// FormatParam renders one query value. ok is false when the value should be omitted.
func FormatParam(value interface{}) (string, bool) {
	if value == nil {
		return "", false
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), true
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return "", false
		}
		parts := make([]string, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			if part, ok := FormatParam(v.Index(i).Interface()); ok {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, ","), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64), true
	default:
		return fmt.Sprint(v.Interface()), true
	}
}

// ValidateEndpoint checks that an endpoint is a path on the service origin
func ValidateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return internal.NewValidationError("endpoint", "endpoint cannot be empty").
			WithSuggestion("Pass a data API path such as /data/car/get")
	}
	if isAbsoluteURL(endpoint) {
		return internal.NewValidationErrorWithValue("endpoint", "endpoint must be a path, not a full URL", endpoint).
			WithSuggestion("Drop the scheme and host; use --base-url to change the origin")
	}
	if strings.ContainsAny(endpoint, "?#") {
		return internal.NewValidationErrorWithValue("endpoint", "endpoint must not carry a query string", endpoint).
			WithSuggestion("Pass query parameters separately with -p key=value")
	}
	return nil
}

// ValidateLinkURL checks that a link returned by the service can be fetched directly
func ValidateLinkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return internal.WrapAPIError(err, "link is not a valid URL", internal.ErrInvalidResponse)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return internal.NewAPIError(0, "link is not an absolute http(s) URL", internal.ErrInvalidResponse).
			WithURL(raw)
	}
	return nil
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
