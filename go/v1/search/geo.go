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

package search

import (
	"fmt"
	"math"
)

// earthMeanRadius is the radius in meters Elasticsearch computes arc distances with.
const earthMeanRadius = 6371008.7714

type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

func NewGeoPoint(latitude, longitude float64) GeoPoint {
	return GeoPoint{Latitude: latitude, Longitude: longitude}
}

func (p GeoPoint) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return NewError(ErrorKindEncoding, "invalid latitude %v: must be within [-90, 90]", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return NewError(ErrorKindEncoding, "invalid longitude %v: must be within [-180, 180]", p.Longitude)
	}

	return nil
}

// ArcDistance is the haversine distance in meters between p and other.
func (p GeoPoint) ArcDistance(other GeoPoint) float64 {
	lat1 := p.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (other.Longitude - p.Longitude) * math.Pi / 180
	a := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)

	return 2 * earthMeanRadius * math.Asin(math.Min(1, math.Sqrt(a)))
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("%v,%v", p.Latitude, p.Longitude)
}

type DistanceUnit int

const (
	DistanceUnitMeters DistanceUnit = iota
	DistanceUnitKilometers
	DistanceUnitMiles
	DistanceUnitYards
	DistanceUnitFeet
	DistanceUnitNauticalMiles
)

var metersPerUnit = map[DistanceUnit]float64{
	DistanceUnitMeters:        1,
	DistanceUnitKilometers:    1000,
	DistanceUnitMiles:         1609.344,
	DistanceUnitYards:         0.9144,
	DistanceUnitFeet:          0.3048,
	DistanceUnitNauticalMiles: 1852,
}

// String returns the unit suffix understood by both backends.
func (u DistanceUnit) String() string {
	switch u {
	case DistanceUnitKilometers:
		return "km"
	case DistanceUnitMiles:
		return "mi"
	case DistanceUnitYards:
		return "yd"
	case DistanceUnitFeet:
		return "ft"
	case DistanceUnitNauticalMiles:
		return "nm"
	}

	return "m"
}

func (u DistanceUnit) ToMeters(distance float64) float64 {
	return distance * metersPerUnit[u]
}

func (u DistanceUnit) FromMeters(meters float64) float64 {
	return meters / metersPerUnit[u]
}
