// Copyright 2021 The Rode Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/rode/search-bridge/go/v1/search"
	"github.com/shopspring/decimal"
)

// DecodeDocument parses a JSON document and converts its values to the native types of the
// schema fields. Dates are RFC 3339 strings, decimals are numbers or strings and geo points are
// {"lat": ..., "lon": ...} objects.
func DecodeDocument(schema *search.IndexSchema, raw []byte) (map[string]interface{}, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	document := map[string]interface{}{}
	if err := decoder.Decode(&document); err != nil {
		return nil, &search.SearchError{
			Kind:    search.ErrorKindInvalidArgument,
			Message: "invalid JSON document",
			Context: search.EventContext{Indexes: []string{schema.IndexName()}},
			Err:     err,
		}
	}

	return search.EncodeDocument(schema, document, func(field *search.ValueField, value interface{}) (interface{}, error) {
		return nativeValue(value, field.Type().ValueType())
	})
}

func nativeValue(value interface{}, target reflect.Type) (interface{}, error) {
	switch target {
	case reflect.TypeOf((*string)(nil)).Elem(), reflect.TypeOf((*bool)(nil)).Elem():
		if reflect.TypeOf(value) == target {
			return value, nil
		}
	case reflect.TypeOf((*int32)(nil)).Elem():
		if n, ok := value.(json.Number); ok {
			i, err := n.Int64()
			if err == nil && i >= math.MinInt32 && i <= math.MaxInt32 {
				return int32(i), nil
			}
		}
	case reflect.TypeOf((*int64)(nil)).Elem():
		if n, ok := value.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
		}
	case reflect.TypeOf((*float64)(nil)).Elem():
		if n, ok := value.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				return f, nil
			}
		}
	case reflect.TypeOf((*decimal.Decimal)(nil)).Elem():
		switch v := value.(type) {
		case json.Number:
			return decimal.NewFromString(v.String())
		case string:
			return decimal.NewFromString(v)
		}
	case reflect.TypeOf((*time.Time)(nil)).Elem():
		if s, ok := value.(string); ok {
			return time.Parse(time.RFC3339Nano, s)
		}
	case reflect.TypeOf((*search.GeoPoint)(nil)).Elem():
		if m, ok := value.(map[string]interface{}); ok {
			lat, latOk := m["lat"].(json.Number)
			lon, lonOk := m["lon"].(json.Number)
			if latOk && lonOk {
				latitude, err := lat.Float64()
				if err != nil {
					return nil, err
				}
				longitude, err := lon.Float64()
				if err != nil {
					return nil, err
				}
				return search.NewGeoPoint(latitude, longitude), nil
			}
		}
	}

	return nil, fmt.Errorf("cannot read %v as a value of type %s", value, search.TypeName(target))
}
