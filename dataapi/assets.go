package dataapi

import (
	"encoding/json"
	"fmt"
	"strconv"

	"irfetch/internal"
)

// MergeAssets joins primary records with their asset entries. Each record is
// copied and the asset fields are laid over it, asset values winning on key
// collisions. Every record must have an asset entry under its stringified id.
func MergeAssets(primary []interface{}, assets internal.AssetTable, idField string) ([]map[string]interface{}, error) {
	merged := make([]map[string]interface{}, 0, len(primary))

	for i, item := range primary {
		record, ok := item.(map[string]interface{})
		if !ok {
			return nil, internal.NewAPIError(0, fmt.Sprintf("record %d is %T, not an object", i, item), internal.ErrInvalidResponse)
		}

		id, ok := stringifyID(record[idField])
		if !ok {
			return nil, internal.NewAPIError(0, fmt.Sprintf("record %d has no usable %s", i, idField), internal.ErrAssetLookup).
				WithContext("id_field", idField)
		}

		entry, found := assets[id]
		if !found {
			return nil, internal.NewAPIError(0, fmt.Sprintf("no asset entry for %s %s", idField, id), internal.ErrAssetLookup).
				WithContext("id_field", idField).
				WithContext("id", id)
		}
		extra, ok := entry.(map[string]interface{})
		if !ok && entry != nil {
			return nil, internal.NewAPIError(0, fmt.Sprintf("asset entry for %s %s is %T, not an object", idField, id, entry), internal.ErrInvalidResponse)
		}

		out := make(map[string]interface{}, len(record)+len(extra))
		for k, v := range record {
			out[k] = v
		}
		for k, v := range extra {
			out[k] = v
		}
		merged = append(merged, out)
	}

	return merged, nil
}

// stringifyID renders an id the way asset tables key it
func stringifyID(v interface{}) (string, bool) {
	switch id := v.(type) {
	case nil:
		return "", false
	case json.Number:
		return id.String(), true
	case string:
		return id, true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	default:
		return fmt.Sprint(id), true
	}
}
