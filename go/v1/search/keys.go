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

// Capability is a flag of an index field type gating a family of query elements.
type Capability int

const (
	CapabilitySearchable Capability = iota + 1
	CapabilitySortable
	CapabilityProjectable
	CapabilityAggregable
)

func (c Capability) String() string {
	switch c {
	case CapabilitySearchable:
		return "searchable"
	case CapabilitySortable:
		return "sortable"
	case CapabilityProjectable:
		return "projectable"
	case CapabilityAggregable:
		return "aggregable"
	}

	return "unknown"
}

// ConverterSide tells which converter of a field a query element applies.
type ConverterSide int

const (
	ConverterSideDsl ConverterSide = iota
	ConverterSideProjection
)

// ElementKey is a typed capability tag: it names one kind of query element and the builder
// type its factories produce.
type ElementKey[B any] struct {
	name        string
	capability  Capability
	converter   ConverterSide
	hitDecoded  bool
	unsupported string
}

// NewElementKey creates a key. hitDecoded marks elements whose values are decoded per hit
// with the codec of the index the hit comes from; for those, codecs of different indexes
// only need to agree when the configured converter is applied on top of them.
func NewElementKey[B any](name string, capability Capability, converter ConverterSide, hitDecoded bool, unsupported string) ElementKey[B] {
	return ElementKey[B]{
		name:        name,
		capability:  capability,
		converter:   converter,
		hitDecoded:  hitDecoded,
		unsupported: unsupported,
	}
}

func (k ElementKey[B]) Name() string {
	return k.name
}

func (k ElementKey[B]) Capability() Capability {
	return k.capability
}

func (k ElementKey[B]) ConverterSide() ConverterSide {
	return k.converter
}

func (k ElementKey[B]) HitDecoded() bool {
	return k.hitDecoded
}

// UnsupportedMessage explains why a field whose type has the capability flag still lacks the element.
func (k ElementKey[B]) UnsupportedMessage() string {
	return k.unsupported
}

func (k ElementKey[B]) String() string {
	return k.name
}

var (
	MatchPredicateKey = NewElementKey[MatchPredicateBuilder]("predicate:match", CapabilitySearchable, ConverterSideDsl, false,
		"Match predicates are not supported by this field type")
	RangePredicateKey = NewElementKey[RangePredicateBuilder]("predicate:range", CapabilitySearchable, ConverterSideDsl, false,
		"Range predicates are not supported by this field type")
	ExistsPredicateKey = NewElementKey[ExistsPredicateBuilder]("predicate:exists", CapabilitySearchable, ConverterSideDsl, false,
		"Exists predicates are not supported by this field type")
	SpatialWithinCirclePredicateKey = NewElementKey[SpatialWithinCirclePredicateBuilder]("predicate:spatial:within-circle", CapabilitySearchable, ConverterSideDsl, false,
		"Spatial predicates are not supported by this field type")

	FieldProjectionKey = NewElementKey[FieldProjectionBuilder]("projection:field", CapabilityProjectable, ConverterSideProjection, true,
		"Field projections are not supported by this field type")
	DistanceProjectionKey = NewElementKey[DistanceProjectionBuilder]("projection:distance", CapabilityProjectable, ConverterSideProjection, true,
		"Distance operations are not supported by this field type")

	FieldSortKey = NewElementKey[FieldSortBuilder]("sort:field", CapabilitySortable, ConverterSideDsl, false,
		"Sorts are not supported by this field type")
	DistanceSortKey = NewElementKey[DistanceSortBuilder]("sort:distance", CapabilitySortable, ConverterSideDsl, false,
		"Distance operations are not supported by this field type")

	TermsAggregationKey = NewElementKey[TermsAggregationBuilder]("aggregation:terms", CapabilityAggregable, ConverterSideProjection, false,
		"Terms aggregations are not supported by this field type")
	RangeAggregationKey = NewElementKey[RangeAggregationBuilder]("aggregation:range", CapabilityAggregable, ConverterSideDsl, false,
		"Range aggregations are not supported by this field type")
)
