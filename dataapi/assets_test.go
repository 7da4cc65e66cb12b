package dataapi

import (
	"encoding/json"
	"testing"

	"irfetch/internal"
)

func TestMergeAssets(t *testing.T) {
	primary := []interface{}{
		map[string]interface{}{"car_id": json.Number("1"), "name": "A"},
	}
	assets := map[string]interface{}{
		"1": map[string]interface{}{"logo": "a.png"},
	}

	got, err := MergeAssets(primary, assets, "car_id")
	if err != nil {
		t.Fatalf("MergeAssets() error = %v", err)
	}
	if mustJSON(t, got) != `[{"car_id":1,"logo":"a.png","name":"A"}]` {
		t.Errorf("MergeAssets() = %s", mustJSON(t, got))
	}
}

func TestMergeAssets_AssetWinsCollisions(t *testing.T) {
	primary := []interface{}{
		map[string]interface{}{"track_id": json.Number("7"), "name": "Old", "config": "Full"},
	}
	assets := map[string]interface{}{
		"7": map[string]interface{}{"name": "New", "track_map": "/maps/7/"},
	}

	got, err := MergeAssets(primary, assets, "track_id")
	if err != nil {
		t.Fatal(err)
	}
	if got[0]["name"] != "New" || got[0]["config"] != "Full" || got[0]["track_map"] != "/maps/7/" {
		t.Errorf("unexpected merge %v", got[0])
	}
}

func TestMergeAssets_DoesNotMutateInputs(t *testing.T) {
	record := map[string]interface{}{"series_id": json.Number("3"), "name": "S"}
	asset := map[string]interface{}{"logo": "s.png"}

	got, err := MergeAssets([]interface{}{record}, map[string]interface{}{"3": asset}, "series_id")
	if err != nil {
		t.Fatal(err)
	}

	got[0]["name"] = "changed"
	if record["name"] != "S" {
		t.Error("merged record must be a copy")
	}
	if _, ok := record["logo"]; ok {
		t.Error("the primary record must not gain asset fields")
	}
	if len(asset) != 1 {
		t.Error("the asset entry must not change")
	}
}

func TestMergeAssets_IDTypes(t *testing.T) {
	assets := map[string]interface{}{
		"12": map[string]interface{}{"logo": "x.png"},
	}

	for _, id := range []interface{}{json.Number("12"), "12", 12, int64(12), float64(12)} {
		primary := []interface{}{map[string]interface{}{"car_id": id}}
		got, err := MergeAssets(primary, assets, "car_id")
		if err != nil {
			t.Errorf("id %T: %v", id, err)
			continue
		}
		if got[0]["logo"] != "x.png" {
			t.Errorf("id %T: asset not merged", id)
		}
	}
}

func TestMergeAssets_NullAssetEntry(t *testing.T) {
	primary := []interface{}{map[string]interface{}{"car_id": json.Number("5"), "name": "A"}}
	got, err := MergeAssets(primary, map[string]interface{}{"5": nil}, "car_id")
	if err != nil {
		t.Fatal(err)
	}
	if mustJSON(t, got) != `[{"car_id":5,"name":"A"}]` {
		t.Errorf("MergeAssets() = %s", mustJSON(t, got))
	}
}

func TestMergeAssets_Errors(t *testing.T) {
	tests := []struct {
		name    string
		primary []interface{}
		assets  map[string]interface{}
		want    internal.ErrorType
	}{
		{
			name:    "missing_asset",
			primary: []interface{}{map[string]interface{}{"car_id": json.Number("2")}},
			assets:  map[string]interface{}{"1": map[string]interface{}{}},
			want:    internal.ErrAssetLookup,
		},
		{
			name:    "missing_id",
			primary: []interface{}{map[string]interface{}{"name": "A"}},
			assets:  map[string]interface{}{},
			want:    internal.ErrAssetLookup,
		},
		{
			name:    "record_not_object",
			primary: []interface{}{json.Number("1")},
			assets:  map[string]interface{}{},
			want:    internal.ErrInvalidResponse,
		},
		{
			name:    "asset_not_object",
			primary: []interface{}{map[string]interface{}{"car_id": json.Number("1")}},
			assets:  map[string]interface{}{"1": "logo.png"},
			want:    internal.ErrInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MergeAssets(tt.primary, tt.assets, "car_id")
			if !internal.IsType(err, tt.want) {
				t.Fatalf("expected %s error, got %v", tt.want, err)
			}
			if got != nil {
				t.Errorf("no partial result expected, got %v", got)
			}
		})
	}
}

func TestMergeAssets_MissingAssetNamesID(t *testing.T) {
	primary := []interface{}{map[string]interface{}{"car_id": json.Number("99")}}
	_, err := MergeAssets(primary, map[string]interface{}{}, "car_id")

	apiErr, ok := err.(*internal.APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Context["id"] != "99" || apiErr.Context["id_field"] != "car_id" {
		t.Errorf("error context = %v", apiErr.Context)
	}
}

func TestMergeAssets_Empty(t *testing.T) {
	got, err := MergeAssets([]interface{}{}, map[string]interface{}{}, "car_id")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected an empty list, got %#v", got)
	}
}
