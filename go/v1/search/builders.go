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
	"reflect"
)

// SearchPredicate, SearchProjection, SearchSort and SearchAggregation are the backend-native
// query elements produced by builders. They are only valid in a query targeting the same
// backend and a superset of the indexes they were built for.
type SearchPredicate interface {
	IndexNames() []string
}

type SearchProjection interface {
	IndexNames() []string
}

type SearchSort interface {
	IndexNames() []string
}

type SearchAggregation interface {
	IndexNames() []string
}

// ElementFactory builds one kind of query element for one field. Factories are created at
// bootstrap, owned by the field type that registered them and never mutated.
type ElementFactory[B any] interface {
	// Create validates the field supports the element and returns a builder bound to it.
	// The converter selected by convert is fixed for the life of the builder.
	Create(scope *IndexScope, field *ValueFieldContext, convert ValueConvert) (B, error)
	// HasCompatibleCodec reports whether other is the same kind of factory with a codec
	// encoding and decoding every value identically.
	HasCompatibleCodec(other interface{}) bool
	// HasCompatibleConverter reports whether other is the same kind of factory whose
	// converters behave identically for the side the element uses.
	HasCompatibleConverter(other interface{}) bool
}

type MatchPredicateBuilder interface {
	Value(value interface{}) error
	Fuzzy(maxEditDistance, exactPrefixLength int) error
	Analyzer(name string)
	SkipAnalysis()
	Boost(boost float64)
	Build() (SearchPredicate, error)
}

type RangePredicateBuilder interface {
	Within(r Range) error
	Boost(boost float64)
	Build() (SearchPredicate, error)
}

type ExistsPredicateBuilder interface {
	Boost(boost float64)
	Build() (SearchPredicate, error)
}

type SpatialWithinCirclePredicateBuilder interface {
	Circle(center GeoPoint, radius float64, unit DistanceUnit) error
	Boost(boost float64)
	Build() (SearchPredicate, error)
}

type FieldProjectionBuilder interface {
	// Multi requests every value of a multi-valued field as a []interface{}.
	Multi()
	Build() (SearchProjection, error)
}

type DistanceProjectionBuilder interface {
	Center(center GeoPoint) error
	Unit(unit DistanceUnit)
	Multi()
	Build() (SearchProjection, error)
}

type SortOrder int

const (
	SortOrderAsc SortOrder = iota
	SortOrderDesc
)

func (o SortOrder) String() string {
	if o == SortOrderDesc {
		return "desc"
	}

	return "asc"
}

type FieldSortBuilder interface {
	Order(order SortOrder)
	MissingFirst()
	MissingLast()
	MissingAs(value interface{}) error
	Build() (SearchSort, error)
}

type DistanceSortBuilder interface {
	Center(center GeoPoint) error
	Order(order SortOrder)
	Build() (SearchSort, error)
}

type TermsAggregationBuilder interface {
	MaxTermCount(count int) error
	MinDocumentCount(count int) error
	Build() (SearchAggregation, error)
}

type RangeAggregationBuilder interface {
	Range(r Range) error
	Build() (SearchAggregation, error)
}

// PredicateBuilders are the predicates that are not bound to a single value field.
type PredicateBuilders interface {
	MatchAll() SearchPredicate
	MatchID(ids ...string) SearchPredicate
	Bool() BooleanPredicateBuilder
	Nested(objectPath string, inner SearchPredicate) (SearchPredicate, error)
}

type BooleanPredicateBuilder interface {
	Must(p SearchPredicate) error
	Should(p SearchPredicate) error
	MustNot(p SearchPredicate) error
	Filter(p SearchPredicate) error
	MinimumShouldMatch(count int)
	Build() (SearchPredicate, error)
}

type ProjectionBuilders interface {
	DocumentID() SearchProjection
	Score() SearchProjection
	Composite(items ...SearchProjection) (SearchProjection, error)
}

type SortBuilders interface {
	Score(order SortOrder) SearchSort
	IndexOrder() SearchSort
}

type RangeBoundInclusion int

const (
	RangeBoundIncluded RangeBoundInclusion = iota
	RangeBoundExcluded
)

// Range bounds a predicate or aggregation bucket; a nil bound is unbounded.
type Range struct {
	Lower          interface{}
	LowerInclusion RangeBoundInclusion
	Upper          interface{}
	UpperInclusion RangeBoundInclusion
}

func RangeBetween(lower, upper interface{}) Range {
	return Range{Lower: lower, Upper: upper}
}

// RangeCanonical includes the lower bound and excludes the upper bound, the only form
// aggregation buckets accept.
func RangeCanonical(lower, upper interface{}) Range {
	return Range{Lower: lower, Upper: upper, UpperInclusion: RangeBoundExcluded}
}

func RangeAtLeast(lower interface{}) Range {
	return Range{Lower: lower}
}

func RangeGreaterThan(lower interface{}) Range {
	return Range{Lower: lower, LowerInclusion: RangeBoundExcluded}
}

func RangeAtMost(upper interface{}) Range {
	return Range{Upper: upper}
}

func RangeLessThan(upper interface{}) Range {
	return Range{Upper: upper, UpperInclusion: RangeBoundExcluded}
}

func (r Range) Unbounded() bool {
	return r.Lower == nil && r.Upper == nil
}

func (r Range) String() string {
	left, right := "[", "]"
	if r.LowerInclusion == RangeBoundExcluded {
		left = "("
	}
	if r.UpperInclusion == RangeBoundExcluded {
		right = ")"
	}
	lower, upper := "-inf", "+inf"
	if r.Lower != nil {
		lower = fmt.Sprint(r.Lower)
	}
	if r.Upper != nil {
		upper = fmt.Sprint(r.Upper)
	}

	return left + lower + ", " + upper + right
}

// ConvertRange applies the DSL converter to both bounds.
func ConvertRange(r Range, converter DslConverter, ctx ConvertContext) (Range, error) {
	converted := r
	var err error
	if r.Lower != nil {
		if converted.Lower, err = converter.ToIndexValue(r.Lower, ctx); err != nil {
			return Range{}, err
		}
	}
	if r.Upper != nil {
		if converted.Upper, err = converter.ToIndexValue(r.Upper, ctx); err != nil {
			return Range{}, err
		}
	}

	return converted, nil
}

// TermBucket is one bucket of a terms aggregation; Key went through the projection converter.
type TermBucket struct {
	Key   interface{}
	Count int64
}

type RangeBucket struct {
	Range Range
	Count int64
}

// SearchResult is what a compiled query returns once executed by its backend.
type SearchResult struct {
	TotalHits    int64
	Hits         []interface{}
	Aggregations map[string]interface{}
}

// CheckIndexNames fails when an element was built by a scope targeting other indexes than scope.
func CheckIndexNames(scope *IndexScope, elementIndexes []string) error {
	if !scope.targetsExactly(elementIndexes) {
		return NewError(ErrorKindInvalidArgument,
			"invalid search query element: it was created for indexes %v, but this query targets indexes %v",
			elementIndexes, scope.IndexNames())
	}

	return nil
}

// TypeName renders a reflect.Type for messages, tolerating nil.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	return t.String()
}
