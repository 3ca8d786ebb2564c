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

package filtering

import (
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/rode/search-bridge/go/v1/search"
	"github.com/shopspring/decimal"
)

var (
	stringType  = reflect.TypeOf((*string)(nil)).Elem()
	boolType    = reflect.TypeOf((*bool)(nil)).Elem()
	int32Type   = reflect.TypeOf((*int32)(nil)).Elem()
	int64Type   = reflect.TypeOf((*int64)(nil)).Elem()
	float64Type = reflect.TypeOf((*float64)(nil)).Elem()
	decimalType = reflect.TypeOf((*decimal.Decimal)(nil)).Elem()
	timeType    = reflect.TypeOf((*time.Time)(nil)).Elem()
)

// coerce converts a CEL constant to the type the field's converter expects. Dates are
// RFC 3339 strings or epoch milliseconds; decimals are strings or numbers.
func coerce(field *search.ValueFieldContext, value interface{}) (interface{}, error) {
	converter, err := field.DslConverter(search.ValueConvertYes)
	if err != nil {
		return nil, err
	}
	target := converter.ValueType()

	converted, ok := convertConstant(value, target)
	if !ok {
		return nil, search.NewFieldError(search.ErrorKindTypeMismatch, field.IndexNames(), field.AbsolutePath(),
			"cannot use %v (%T) as a value of type %s", value, value, search.TypeName(target))
	}

	return converted, nil
}

func convertConstant(value interface{}, target reflect.Type) (interface{}, bool) {
	switch target {
	case stringType:
		v, ok := value.(string)
		return v, ok
	case boolType:
		v, ok := value.(bool)
		return v, ok
	case int32Type:
		v, ok := asInt64(value)
		if !ok || v < math.MinInt32 || v > math.MaxInt32 {
			return nil, false
		}
		return int32(v), true
	case int64Type:
		return asInt64(value)
	case float64Type:
		switch v := value.(type) {
		case float64:
			return v, true
		case int64:
			return float64(v), true
		case uint64:
			return float64(v), true
		}
	case decimalType:
		switch v := value.(type) {
		case string:
			d, err := decimal.NewFromString(v)
			return d, err == nil
		case float64:
			return decimal.NewFromFloat(v), true
		case int64:
			return decimal.NewFromInt(v), true
		case uint64:
			d, err := decimal.NewFromString(strconv.FormatUint(v, 10))
			return d, err == nil
		}
	case timeType:
		switch v := value.(type) {
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			return t, err == nil
		case int64:
			return time.UnixMilli(v).UTC(), true
		}
	}

	// custom converters may declare named types, such as a string enum
	rv := reflect.ValueOf(value)
	if rv.IsValid() && rv.Kind() == target.Kind() && rv.Type().ConvertibleTo(target) {
		return rv.Convert(target).Interface(), true
	}

	return nil, false
}

func asInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}

	return 0, false
}
