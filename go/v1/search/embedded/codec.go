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

package embedded

import (
	"fmt"
	"math"
	"time"

	"github.com/rode/search-bridge/go/v1/search"
	"github.com/shopspring/decimal"
)

// maxExactFloat is the largest integer every smaller integer of which a float64 represents exactly.
const maxExactFloat = 1 << 53

// Codec translates between the native value of a field and the value bleve indexes and
// stores: strings, booleans, float64 numbers and geo points.
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

func exactInteger(value int64, codec string) (float64, error) {
	if value > maxExactFloat || value < -maxExactFloat {
		return 0, search.NewError(search.ErrorKindEncoding,
			"unable to encode %d as a %s: the embedded backend stores numbers as doubles, which are exact up to 2^53", value, codec)
	}

	return float64(value), nil
}

func decodeInteger(stored interface{}) (int64, error) {
	f, ok := stored.(float64)
	if !ok || f != math.Trunc(f) || math.Abs(f) > maxExactFloat {
		return 0, fmt.Errorf("'%v' is not an integer", stored)
	}

	return int64(f), nil
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
	s, ok := stored.(string)
	if !ok {
		return nil, decodeError("string", stored)
	}

	return s, nil
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

// Decode also accepts the T/F terms bleve indexes booleans as.
func (c *BooleanCodec) Decode(stored interface{}) (interface{}, error) {
	switch v := stored.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "T":
			return true, nil
		case "F":
			return false, nil
		}
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

	return float64(i), nil
}

func (c *IntegerCodec) Decode(stored interface{}) (interface{}, error) {
	i, err := decodeInteger(stored)
	if err != nil || i < math.MinInt32 || i > math.MaxInt32 {
		return nil, decodeError("integer", stored)
	}

	return int32(i), nil
}

func (c *IntegerCodec) IsCompatibleWith(other Codec) bool {
	_, ok := other.(*IntegerCodec)
	return ok
}

// LongCodec refuses values beyond ±2^53, which a double cannot store exactly.
type LongCodec struct{}

func (c *LongCodec) Encode(value interface{}) (interface{}, error) {
	i, ok := value.(int64)
	if !ok {
		return nil, typeMismatch("int64", value)
	}

	return exactInteger(i, "long")
}

func (c *LongCodec) Decode(stored interface{}) (interface{}, error) {
	i, err := decodeInteger(stored)
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
		return nil, search.NewError(search.ErrorKindEncoding, "unable to encode %v: only finite doubles can be indexed", f)
	}

	return f, nil
}

func (c *DoubleCodec) Decode(stored interface{}) (interface{}, error) {
	f, ok := stored.(float64)
	if !ok {
		return nil, decodeError("double", stored)
	}

	return f, nil
}

func (c *DoubleCodec) IsCompatibleWith(other Codec) bool {
	_, ok := other.(*DoubleCodec)
	return ok
}

// DecimalCodec indexes the unscaled value of decimals rounded to Scale digits, so that
// comparisons stay exact.
type DecimalCodec struct {
	Scale int32
}

func (c *DecimalCodec) Encode(value interface{}) (interface{}, error) {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return nil, typeMismatch("decimal.Decimal", value)
	}

	unscaled := d.Round(c.Scale).Shift(c.Scale).BigInt()
	if !unscaled.IsInt64() {
		return nil, search.NewError(search.ErrorKindEncoding, "unable to encode %s: the value is too large for a decimal with scale %d", d, c.Scale)
	}

	return exactInteger(unscaled.Int64(), fmt.Sprintf("decimal with scale %d", c.Scale))
}

func (c *DecimalCodec) Decode(stored interface{}) (interface{}, error) {
	unscaled, err := decodeInteger(stored)
	if err != nil {
		return nil, decodeError("decimal", stored)
	}

	return decimal.New(unscaled, -c.Scale), nil
}

func (c *DecimalCodec) IsCompatibleWith(other Codec) bool {
	o, ok := other.(*DecimalCodec)
	return ok && o.Scale == c.Scale
}

// DateCodec indexes dates as epoch milliseconds and refuses dates more precise than that.
type DateCodec struct{}

func (c *DateCodec) Encode(value interface{}) (interface{}, error) {
	t, ok := value.(time.Time)
	if !ok {
		return nil, typeMismatch("time.Time", value)
	}
	if t.Nanosecond()%int(time.Millisecond) != 0 {
		return nil, search.NewError(search.ErrorKindEncoding,
			"unable to encode %s as a date: the embedded backend stores dates with millisecond precision", t.Format(time.RFC3339Nano))
	}

	return exactInteger(t.UnixMilli(), "date")
}

func (c *DateCodec) Decode(stored interface{}) (interface{}, error) {
	millis, err := decodeInteger(stored)
	if err != nil {
		return nil, decodeError("date", stored)
	}

	return time.UnixMilli(millis).UTC(), nil
}

func (c *DateCodec) IsCompatibleWith(other Codec) bool {
	_, ok := other.(*DateCodec)
	return ok
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

// Decode accepts the [lon, lat] pairs bleve returns for stored geo points.
func (c *GeoPointCodec) Decode(stored interface{}) (interface{}, error) {
	switch v := stored.(type) {
	case []float64:
		if len(v) == 2 {
			return search.NewGeoPoint(v[1], v[0]), nil
		}
	case []interface{}:
		if len(v) == 2 {
			lon, lonOk := v[0].(float64)
			lat, latOk := v[1].(float64)
			if lonOk && latOk {
				return search.NewGeoPoint(lat, lon), nil
			}
		}
	case map[string]interface{}:
		lat, latOk := v["lat"].(float64)
		lon, lonOk := v["lon"].(float64)
		if latOk && lonOk {
			return search.NewGeoPoint(lat, lon), nil
		}
	}

	return nil, decodeError("geo_point", stored)
}

func (c *GeoPointCodec) IsCompatibleWith(other Codec) bool {
	_, ok := other.(*GeoPointCodec)
	return ok
}
