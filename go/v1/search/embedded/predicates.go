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
	"math"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/rode/search-bridge/go/v1/search"
)

type blevePredicate interface {
	search.SearchPredicate
	toQuery() query.Query
}

func asBlevePredicate(scope *search.IndexScope, p search.SearchPredicate) (blevePredicate, error) {
	if p == nil {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "predicate must not be null")
	}
	predicate, ok := p.(blevePredicate)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "predicate %T was not built by the embedded backend", p)
	}
	if err := search.CheckIndexNames(scope, predicate.IndexNames()); err != nil {
		return nil, err
	}

	return predicate, nil
}

// boostable is implemented by every bleve query built from a field.
type boostable interface {
	query.Query
	SetBoost(b float64)
}

type leafPredicate struct {
	indexes []string
	query   query.Query
}

func (p *leafPredicate) IndexNames() []string {
	return p.indexes
}

func (p *leafPredicate) toQuery() query.Query {
	return p.query
}

func (b *fieldBuilderBase) leaf(q boostable, boost *float64) *leafPredicate {
	if boost != nil {
		q.SetBoost(*boost)
	}

	return &leafPredicate{
		indexes: b.scope.IndexNames(),
		query:   q,
	}
}

func inclusive(inclusion search.RangeBoundInclusion) *bool {
	included := inclusion == search.RangeBoundIncluded
	return &included
}

type matchPredicateBuilder struct {
	fieldBuilderBase
	converter    search.DslConverter
	value        interface{}
	fuzzy        bool
	maxEdits     int
	prefixLength int
	analyzer     string
	skipAnalysis bool
	boost        *float64
}

func newMatchPredicateBuilder(base fieldBuilderBase, convert search.ValueConvert) (search.MatchPredicateBuilder, error) {
	converter, err := base.field.DslConverter(convert)
	if err != nil {
		return nil, err
	}

	return &matchPredicateBuilder{
		fieldBuilderBase: base,
		converter:        converter,
	}, nil
}

func (b *matchPredicateBuilder) Value(value interface{}) error {
	encoded, err := b.encode(value, b.converter)
	if err != nil {
		return err
	}
	b.value = encoded

	return nil
}

func (b *matchPredicateBuilder) Fuzzy(maxEditDistance, exactPrefixLength int) error {
	if b.kind != kindText {
		return search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(),
			"fuzzy matching is only available on text fields")
	}
	if maxEditDistance < 0 || maxEditDistance > 2 {
		return search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(),
			"invalid maximum edit distance %d: must be 0, 1 or 2", maxEditDistance)
	}
	if exactPrefixLength < 0 {
		return search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(),
			"invalid exact prefix length %d: must be positive or zero", exactPrefixLength)
	}
	b.fuzzy = true
	b.maxEdits = maxEditDistance
	b.prefixLength = exactPrefixLength

	return nil
}

func (b *matchPredicateBuilder) Analyzer(name string) {
	b.analyzer = name
}

func (b *matchPredicateBuilder) SkipAnalysis() {
	b.skipAnalysis = true
}

func (b *matchPredicateBuilder) Boost(boost float64) {
	b.boost = &boost
}

// Build matches numbers with a single-value range, booleans with a boolean query, plain strings
// with a term query and analyzed or normalized strings with a match query.
func (b *matchPredicateBuilder) Build() (search.SearchPredicate, error) {
	if b.value == nil {
		return nil, search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(), "missing value to match")
	}

	var q boostable
	switch value := b.value.(type) {
	case float64:
		numeric := bleve.NewNumericRangeInclusiveQuery(&value, &value, inclusive(search.RangeBoundIncluded), inclusive(search.RangeBoundIncluded))
		numeric.SetField(b.path())
		q = numeric
	case bool:
		boolean := bleve.NewBoolFieldQuery(value)
		boolean.SetField(b.path())
		q = boolean
	case string:
		if b.kind != kindText && b.field.Type().NormalizerName() == "" && !b.skipAnalysis && b.analyzer == "" {
			term := bleve.NewTermQuery(value)
			term.SetField(b.path())
			q = term
			break
		}
		match := bleve.NewMatchQuery(value)
		match.SetField(b.path())
		if b.fuzzy {
			match.SetFuzziness(b.maxEdits)
			match.SetPrefix(b.prefixLength)
		}
		switch {
		case b.skipAnalysis:
			match.Analyzer = keyword.Name
		case b.analyzer != "":
			match.Analyzer = b.analyzer
		}
		q = match
	default:
		return nil, search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(),
			"match predicates are not available on values of type %T", b.value)
	}

	return b.leaf(q, b.boost), nil
}

type rangePredicateBuilder struct {
	fieldBuilderBase
	converter search.DslConverter
	query     boostable
	boost     *float64
}

func newRangePredicateBuilder(base fieldBuilderBase, convert search.ValueConvert) (search.RangePredicateBuilder, error) {
	converter, err := base.field.DslConverter(convert)
	if err != nil {
		return nil, err
	}

	return &rangePredicateBuilder{
		fieldBuilderBase: base,
		converter:        converter,
	}, nil
}

func (b *rangePredicateBuilder) Within(r search.Range) error {
	if r.Unbounded() {
		return search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(),
			"invalid range %s: at least one bound must be set", r)
	}

	var lower, upper interface{}
	var err error
	if r.Lower != nil {
		if lower, err = b.encode(r.Lower, b.converter); err != nil {
			return err
		}
	}
	if r.Upper != nil {
		if upper, err = b.encode(r.Upper, b.converter); err != nil {
			return err
		}
	}

	if b.kind.numeric() {
		min, max := floatBound(lower), floatBound(upper)
		numeric := bleve.NewNumericRangeInclusiveQuery(min, max, inclusive(r.LowerInclusion), inclusive(r.UpperInclusion))
		numeric.SetField(b.path())
		b.query = numeric
		return nil
	}

	min, _ := lower.(string)
	max, _ := upper.(string)
	terms := bleve.NewTermRangeInclusiveQuery(min, max, inclusive(r.LowerInclusion), inclusive(r.UpperInclusion))
	terms.SetField(b.path())
	b.query = terms

	return nil
}

func floatBound(encoded interface{}) *float64 {
	if encoded == nil {
		return nil
	}
	f := encoded.(float64)

	return &f
}

func (b *rangePredicateBuilder) Boost(boost float64) {
	b.boost = &boost
}

func (b *rangePredicateBuilder) Build() (search.SearchPredicate, error) {
	if b.query == nil {
		return nil, search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(), "missing range")
	}

	return b.leaf(b.query, b.boost), nil
}

type existsPredicateBuilder struct {
	fieldBuilderBase
	boost *float64
}

func newExistsPredicateBuilder(base fieldBuilderBase, _ search.ValueConvert) (search.ExistsPredicateBuilder, error) {
	return &existsPredicateBuilder{fieldBuilderBase: base}, nil
}

func (b *existsPredicateBuilder) Boost(boost float64) {
	b.boost = &boost
}

// Build matches any indexed value, bleve having no dedicated query for it.
func (b *existsPredicateBuilder) Build() (search.SearchPredicate, error) {
	var q boostable
	switch {
	case b.kind.numeric():
		min, max := -math.MaxFloat64, math.MaxFloat64
		numeric := bleve.NewNumericRangeInclusiveQuery(&min, &max, inclusive(search.RangeBoundIncluded), inclusive(search.RangeBoundIncluded))
		numeric.SetField(b.path())
		q = numeric
	case b.kind == kindBoolean:
		isTrue := bleve.NewBoolFieldQuery(true)
		isTrue.SetField(b.path())
		isFalse := bleve.NewBoolFieldQuery(false)
		isFalse.SetField(b.path())
		either := bleve.NewDisjunctionQuery()
		either.AddQuery(isTrue, isFalse)
		q = either
	case b.kind == kindGeoPoint:
		world := bleve.NewGeoBoundingBoxQuery(-180, 90, 180, -90)
		world.SetField(b.path())
		q = world
	default:
		wildcard := bleve.NewWildcardQuery("*")
		wildcard.SetField(b.path())
		q = wildcard
	}

	return b.leaf(q, b.boost), nil
}

type withinCirclePredicateBuilder struct {
	fieldBuilderBase
	center *search.GeoPoint
	meters float64
	boost  *float64
}

func newWithinCirclePredicateBuilder(base fieldBuilderBase, _ search.ValueConvert) (search.SpatialWithinCirclePredicateBuilder, error) {
	return &withinCirclePredicateBuilder{fieldBuilderBase: base}, nil
}

func (b *withinCirclePredicateBuilder) Circle(center search.GeoPoint, radius float64, unit search.DistanceUnit) error {
	if err := center.Validate(); err != nil {
		return b.locate(err, search.ErrorKindInvalidArgument)
	}
	if radius < 0 {
		return search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(),
			"invalid radius %v: must be positive or zero", radius)
	}
	b.center = &center
	b.meters = unit.ToMeters(radius)

	return nil
}

func (b *withinCirclePredicateBuilder) Boost(boost float64) {
	b.boost = &boost
}

func (b *withinCirclePredicateBuilder) Build() (search.SearchPredicate, error) {
	if b.center == nil {
		return nil, search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(), "missing circle")
	}

	q := bleve.NewGeoDistanceQuery(b.center.Longitude, b.center.Latitude, formatMeters(b.meters))
	q.SetField(b.path())

	return b.leaf(q, b.boost), nil
}

func formatMeters(meters float64) string {
	return strconv.FormatFloat(meters, 'f', -1, 64) + "m"
}

type predicateBuilders struct {
	scope *search.IndexScope
}

func (p *predicateBuilders) MatchAll() search.SearchPredicate {
	return &leafPredicate{
		indexes: p.scope.IndexNames(),
		query:   bleve.NewMatchAllQuery(),
	}
}

func (p *predicateBuilders) MatchID(ids ...string) search.SearchPredicate {
	return &leafPredicate{
		indexes: p.scope.IndexNames(),
		query:   bleve.NewDocIDQuery(append([]string{}, ids...)),
	}
}

func (p *predicateBuilders) Bool() search.BooleanPredicateBuilder {
	return &booleanPredicateBuilder{scope: p.scope}
}

// Nested always fails: nested objects are refused when the schema is validated, so no object
// field can be nested.
func (p *predicateBuilders) Nested(objectPath string, _ search.SearchPredicate) (search.SearchPredicate, error) {
	object, err := p.scope.ObjectField(objectPath)
	if err != nil {
		return nil, err
	}

	return nil, search.NewFieldError(search.ErrorKindInvalidArgument, object.IndexNames(), objectPath,
		"'%s' is not a nested object field; the embedded backend does not support nested objects", objectPath)
}

type booleanPredicateBuilder struct {
	scope              *search.IndexScope
	must               []blevePredicate
	should             []blevePredicate
	mustNot            []blevePredicate
	minimumShouldMatch *int
}

func (b *booleanPredicateBuilder) add(clauses *[]blevePredicate, p search.SearchPredicate) error {
	predicate, err := asBlevePredicate(b.scope, p)
	if err != nil {
		return err
	}
	*clauses = append(*clauses, predicate)

	return nil
}

func (b *booleanPredicateBuilder) Must(p search.SearchPredicate) error {
	return b.add(&b.must, p)
}

func (b *booleanPredicateBuilder) Should(p search.SearchPredicate) error {
	return b.add(&b.should, p)
}

func (b *booleanPredicateBuilder) MustNot(p search.SearchPredicate) error {
	return b.add(&b.mustNot, p)
}

// Filter is a must clause: bleve has no clauses that match without scoring.
func (b *booleanPredicateBuilder) Filter(p search.SearchPredicate) error {
	return b.add(&b.must, p)
}

func (b *booleanPredicateBuilder) MinimumShouldMatch(count int) {
	b.minimumShouldMatch = &count
}

func (b *booleanPredicateBuilder) Build() (search.SearchPredicate, error) {
	if b.minimumShouldMatch != nil && (*b.minimumShouldMatch < 0 || *b.minimumShouldMatch > len(b.should)) {
		return nil, search.NewError(search.ErrorKindInvalidArgument,
			"invalid minimum should match %d: there are %d should clauses", *b.minimumShouldMatch, len(b.should))
	}

	q := bleve.NewBooleanQuery()
	for _, p := range b.must {
		q.AddMust(p.toQuery())
	}
	for _, p := range b.should {
		q.AddShould(p.toQuery())
	}
	for _, p := range b.mustNot {
		q.AddMustNot(p.toQuery())
	}
	if b.minimumShouldMatch != nil {
		q.SetMinShould(float64(*b.minimumShouldMatch))
	}
	if len(b.must)+len(b.should)+len(b.mustNot) == 0 {
		q.AddMust(bleve.NewMatchAllQuery())
	}

	return &leafPredicate{
		indexes: b.scope.IndexNames(),
		query:   q,
	}, nil
}
