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

package esbackend

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rode/search-bridge/go/v1/search"
	"github.com/shopspring/decimal"
)

// Codec translates between the native value of a field and its JSON representation in
// Elasticsearch documents and queries.
type Codec interface {
	Encode(value interface{}) (interface{}, error)
	Decode(stored interface{}) (interface{}, error)
	IsCompatibleWith(other Codec) bool
}

func typeMismatch(expected string, value interface{}) error {
	return search.NewError(search.ErrorKindTypeMismatch, "invalid value type: expected '%s', got '%T'", expected, value)
}

func decodeError(codec string, stored interface{}) error {
	return search.NewError(search.ErrorKindEncoding, "unable to decode %s value from '%v' (%T)", codec, stored, stored)
}

type StringCodec struct{}

func (c *StringCodec) Encode(value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, typeMismatch("string", value)
	}

	return s, nil
}

func (c *StringCodec) Decode(stored interface{}) (interface{}, error) {
	switch v := stored.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	}

	return nil, decodeError("string", stored)
}

func (c *StringCodec) IsCompatibleWith(other Codec) bool {
	_, ok := other.(*StringCodec)
	return ok
}

type BooleanCodec struct{}

func (c *BooleanCodec) Encode(value interface{}) (interface{}, error) {
	b, ok := value.(bool)
	if !ok {
		return nil, typeMismatch("bool", value)
	}

	return b, nil
}

// Decode also accepts the 1/0 keys terms aggregations return for booleans.
func (c *BooleanCodec) Decode(stored interface{}) (interface{}, error) {
	switch v := stored.(type) {
	case bool:
		return v, nil
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b, nil
		}
	case json.Number:
		return v.String() != "0", nil
	case float64:
		return v != 0, nil
	}

	return nil, decodeError("boolean", stored)
}

func (c *BooleanCodec) IsCompatibleWith(other Codec) bool {
	_, ok := other.(*BooleanCodec)
	return ok
}

type IntegerCodec struct{}

func (c *IntegerCodec) Encode(value interface{}) (interface{}, error) {
	i, ok := value.(int32)
	if !ok {
		return nil, typeMismatch("int32", value)
	}

	return i, nil
}

func (c *IntegerCodec) Decode(stored interface{}) (interface{}, error) {
	i, err := decodeInt64(stored)
	if err != nil || i < math.MinInt32 || i > math.MaxInt32 {
		return nil, decodeError("integer", stored)
	}

	return int32(i), nil
}

func (c *IntegerCodec) IsCompatibleWith(other Codec) bool {
	_, ok := other.(*IntegerCodec)
	return ok
}

type LongCodec struct{}

func (c *LongCodec) Encode(value interface{}) (interface{}, error) {
	i, ok := value.(int64)
	if !ok {
		return nil, typeMismatch("int64", value)
	}

	return i, nil
}

func (c *LongCodec) Decode(stored interface{}) (interface{}, error) {
	i, err := decodeInt64(stored)
	if err != nil {
		return nil, decodeError("long", stored)
	}

	return i, nil
}

func (c *LongCodec) IsCompatibleWith(other Codec) bool {
	_, ok := other.(*LongCodec)
	return ok
}

type DoubleCodec struct{}

func (c *DoubleCodec) Encode(value interface{}) (interface{}, error) {
	f, ok := value.(float64)
	if !ok {
		return nil, typeMismatch("float64", value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, search.NewError(search.ErrorKindEncoding, "unable to encode %v: Elasticsearch only stores finite doubles", f)
	}

	return f, nil
}

func (c *DoubleCodec) Decode(stored interface{}) (interface{}, error) {
	f, err := decodeFloat64(stored)
	if err != nil {
		return nil, decodeError("double", stored)
	}

	return f, nil
}

func (c *DoubleCodec) IsCompatibleWith(other Codec) bool {
	_, ok := other.(*DoubleCodec)
	return ok
}

// DecimalCodec stores decimals as scaled_float: values are rounded to Scale digits and the
// unscaled value must fit a long.
type DecimalCodec struct {
	Scale int32
}

func (c *DecimalCodec) ScalingFactor() float64 {
	return math.Pow10(int(c.Scale))
}

func (c *DecimalCodec) Encode(value interface{}) (interface{}, error) {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return nil, typeMismatch("decimal.Decimal", value)
	}

	rounded := d.Round(c.Scale)
	if !rounded.Shift(c.Scale).BigInt().IsInt64() {
		return nil, search.NewError(search.ErrorKindEncoding,
			"unable to encode %s: the value is too large for a decimal with scale %d, its unscaled value must fit in a long", d, c.Scale)
	}

	return json.Number(rounded.String()), nil
}

func (c *DecimalCodec) Decode(stored interface{}) (interface{}, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch v := stored.(type) {
	case json.Number:
		d, err = decimal.NewFromString(v.String())
	case string:
		d, err = decimal.NewFromString(v)
	case float64:
		d = decimal.NewFromFloat(v)
	default:
		return nil, decodeError("decimal", stored)
	}
	if err != nil {
		return nil, decodeError("decimal", stored)
	}

	return d.Round(c.Scale), nil
}

func (c *DecimalCodec) IsCompatibleWith(other Codec) bool {
	o, ok := other.(*DecimalCodec)
	return ok && o.Scale == c.Scale
}

const (
	esDateFormatDefault     = "strict_date_optional_time"
	esDateFormatEpochMillis = "epoch_millis"
)

// DateCodec writes dates as RFC 3339 strings in UTC, which strict_date_optional_time parses, and
// reads back either strings or epoch milliseconds.
type DateCodec struct {
	Formats []string
}

func NewDateCodec(formats ...string) *DateCodec {
	if len(formats) == 0 {
		formats = []string{esDateFormatDefault, esDateFormatEpochMillis}
	}

	return &DateCodec{Formats: formats}
}

// MappingFormat joins the formats the way the mapping "format" attribute expects.
func (c *DateCodec) MappingFormat() string {
	return strings.Join(c.Formats, "||")
}

func (c *DateCodec) Encode(value interface{}) (interface{}, error) {
	t, ok := value.(time.Time)
	if !ok {
		return nil, typeMismatch("time.Time", value)
	}

	return t.UTC().Format(time.RFC3339Nano), nil
}

func (c *DateCodec) Decode(stored interface{}) (interface{}, error) {
	switch v := stored.(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			if millis, err := strconv.ParseInt(v, 10, 64); err == nil {
				return time.UnixMilli(millis).UTC(), nil
			}
			return nil, decodeError("date", stored)
		}
		return t.UTC(), nil
	case json.Number, float64:
		millis, err := decodeInt64(v)
		if err != nil {
			return nil, decodeError("date", stored)
		}
		return time.UnixMilli(millis).UTC(), nil
	}

	return nil, decodeError("date", stored)
}

func (c *DateCodec) IsCompatibleWith(other Codec) bool {
	o, ok := other.(*DateCodec)
	if !ok || len(o.Formats) != len(c.Formats) {
		return false
	}
	for i := range c.Formats {
		if c.Formats[i] != o.Formats[i] {
			return false
		}
	}

	return true
}

type GeoPointCodec struct{}

func (c *GeoPointCodec) Encode(value interface{}) (interface{}, error) {
	p, ok := value.(search.GeoPoint)
	if !ok {
		return nil, typeMismatch("search.GeoPoint", value)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return map[string]interface{}{"lat": p.Latitude, "lon": p.Longitude}, nil
}

// Decode accepts the object, "lat,lon" string and [lon, lat] array forms of a geo_point.
func (c *GeoPointCodec) Decode(stored interface{}) (interface{}, error) {
	switch v := stored.(type) {
	case map[string]interface{}:
		lat, latErr := decodeFloat64(v["lat"])
		lon, lonErr := decodeFloat64(v["lon"])
		if latErr == nil && lonErr == nil {
			return search.NewGeoPoint(lat, lon), nil
		}
	case string:
		parts := strings.Split(v, ",")
		if len(parts) == 2 {
			lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			lon, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if latErr == nil && lonErr == nil {
				return search.NewGeoPoint(lat, lon), nil
			}
		}
	case []interface{}:
		if len(v) == 2 {
			lon, lonErr := decodeFloat64(v[0])
			lat, latErr := decodeFloat64(v[1])
			if latErr == nil && lonErr == nil {
				return search.NewGeoPoint(lat, lon), nil
			}
		}
	}

	return nil, decodeError("geo_point", stored)
}

func (c *GeoPointCodec) IsCompatibleWith(other Codec) bool {
	_, ok := other.(*GeoPointCodec)
	return ok
}

func decodeInt64(stored interface{}) (int64, error) {
	switch v := stored.(type) {
	case json.Number:
		return v.Int64()
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	}

	return 0, fmt.Errorf("unexpected type %T", stored)
}

func decodeFloat64(stored interface{}) (float64, error) {
	switch v := stored.(type) {
	case json.Number:
		return v.Float64()
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	}

	return 0, fmt.Errorf("unexpected type %T", stored)
}
