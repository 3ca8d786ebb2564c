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
	"strconv"
	"strings"

	"github.com/rode/search-bridge/go/v1/search"
)

type jsonObject = map[string]interface{}

// esPredicate renders itself relative to the nested object it is evaluated in ("" for the root
// document), so that predicates on fields in nested objects get wrapped exactly once.
type esPredicate interface {
	search.SearchPredicate
	toJSON(nestedContext string) jsonObject
}

// wrapNested wraps query in one nested query per path of hierarchy that is not already the
// context or one of its parents. Paths some targeted indexes lack must be flagged with
// ignoreUnmapped, otherwise the shards of those indexes fail.
func wrapNested(hierarchy []string, nestedContext string, ignoreUnmapped bool, query jsonObject) jsonObject {
	start := 0
	for start < len(hierarchy) && (hierarchy[start] == nestedContext || strings.HasPrefix(nestedContext, hierarchy[start]+".")) {
		start++
	}
	for i := len(hierarchy) - 1; i >= start; i-- {
		nested := jsonObject{
			"path":  hierarchy[i],
			"query": query,
		}
		if ignoreUnmapped {
			nested["ignore_unmapped"] = true
		}
		query = jsonObject{"nested": nested}
	}

	return query
}

func asEsPredicate(scope *search.IndexScope, p search.SearchPredicate) (esPredicate, error) {
	if p == nil {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "predicate must not be null")
	}
	predicate, ok := p.(esPredicate)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "predicate %T was not built by the Elasticsearch backend", p)
	}
	if err := search.CheckIndexNames(scope, predicate.IndexNames()); err != nil {
		return nil, err
	}

	return predicate, nil
}

type leafPredicate struct {
	indexes        []string
	nestedPaths    []string
	ignoreUnmapped bool
	query          jsonObject
}

func (p *leafPredicate) IndexNames() []string {
	return p.indexes
}

func (p *leafPredicate) toJSON(nestedContext string) jsonObject {
	return wrapNested(p.nestedPaths, nestedContext, p.ignoreUnmapped, p.query)
}

func (b *fieldBuilderBase) leaf(query jsonObject) *leafPredicate {
	return &leafPredicate{
		indexes:        b.scope.IndexNames(),
		nestedPaths:    b.nestedPaths,
		ignoreUnmapped: b.unmapped(),
		query:          query,
	}
}

func withBoost(body jsonObject, boost *float64) jsonObject {
	if boost != nil {
		body["boost"] = *boost
	}

	return body
}

type matchPredicateBuilder struct {
	fieldBuilderBase
	converter    search.DslConverter
	analyzed     bool
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
	fieldType := base.field.Type()

	return &matchPredicateBuilder{
		fieldBuilderBase: base,
		converter:        converter,
		analyzed:         fieldType.AnalyzerName() != "" || fieldType.NormalizerName() != "",
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
	if b.field.Type().AnalyzerName() == "" {
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

func (b *matchPredicateBuilder) Build() (search.SearchPredicate, error) {
	if b.value == nil {
		return nil, search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(), "missing value to match")
	}

	if !b.analyzed {
		return b.leaf(jsonObject{
			"term": jsonObject{
				b.path(): withBoost(jsonObject{"value": b.value}, b.boost),
			},
		}), nil
	}

	body := jsonObject{"query": b.value}
	if b.fuzzy {
		body["fuzziness"] = b.maxEdits
		body["prefix_length"] = b.prefixLength
	}
	switch {
	case b.skipAnalysis:
		body["analyzer"] = "keyword"
	case b.analyzer != "":
		body["analyzer"] = b.analyzer
	}

	return b.leaf(jsonObject{
		"match": jsonObject{
			b.path(): withBoost(body, b.boost),
		},
	}), nil
}

type rangePredicateBuilder struct {
	fieldBuilderBase
	converter search.DslConverter
	bounds    jsonObject
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

	bounds := jsonObject{}
	if r.Lower != nil {
		lower, err := b.encode(r.Lower, b.converter)
		if err != nil {
			return err
		}
		op := "gte"
		if r.LowerInclusion == search.RangeBoundExcluded {
			op = "gt"
		}
		bounds[op] = lower
	}
	if r.Upper != nil {
		upper, err := b.encode(r.Upper, b.converter)
		if err != nil {
			return err
		}
		op := "lte"
		if r.UpperInclusion == search.RangeBoundExcluded {
			op = "lt"
		}
		bounds[op] = upper
	}
	b.bounds = bounds

	return nil
}

func (b *rangePredicateBuilder) Boost(boost float64) {
	b.boost = &boost
}

func (b *rangePredicateBuilder) Build() (search.SearchPredicate, error) {
	if b.bounds == nil {
		return nil, search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(), "missing range")
	}

	return b.leaf(jsonObject{
		"range": jsonObject{
			b.path(): withBoost(b.bounds, b.boost),
		},
	}), nil
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

func (b *existsPredicateBuilder) Build() (search.SearchPredicate, error) {
	return b.leaf(jsonObject{
		"exists": withBoost(jsonObject{"field": b.path()}, b.boost),
	}), nil
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

	body := jsonObject{
		"distance": formatMeters(b.meters),
		b.path(): jsonObject{
			"lat": b.center.Latitude,
			"lon": b.center.Longitude,
		},
	}
	if b.unmapped() {
		body["ignore_unmapped"] = true
	}

	return b.leaf(jsonObject{
		"geo_distance": withBoost(body, b.boost),
	}), nil
}

type predicateBuilders struct {
	scope *search.IndexScope
}

func (p *predicateBuilders) MatchAll() search.SearchPredicate {
	return &leafPredicate{
		indexes: p.scope.IndexNames(),
		query:   jsonObject{"match_all": jsonObject{}},
	}
}

func (p *predicateBuilders) MatchID(ids ...string) search.SearchPredicate {
	values := append([]string{}, ids...)

	return &leafPredicate{
		indexes: p.scope.IndexNames(),
		query:   jsonObject{"ids": jsonObject{"values": values}},
	}
}

func (p *predicateBuilders) Bool() search.BooleanPredicateBuilder {
	return &booleanPredicateBuilder{scope: p.scope}
}

// Nested evaluates inner on each object of the nested field at objectPath separately, so that
// all of its clauses must match the same object.
func (p *predicateBuilders) Nested(objectPath string, inner search.SearchPredicate) (search.SearchPredicate, error) {
	object, err := p.scope.ObjectField(objectPath)
	if err != nil {
		return nil, err
	}
	if !object.Nested() {
		return nil, search.NewFieldError(search.ErrorKindInvalidArgument, object.IndexNames(), objectPath,
			"'%s' is not a nested object field; make sure the object field is declared with the nested structure", objectPath)
	}
	hierarchy, err := object.NestedPathHierarchy()
	if err != nil {
		return nil, err
	}
	predicate, err := asEsPredicate(p.scope, inner)
	if err != nil {
		return nil, err
	}

	return &nestedPredicate{
		indexes:        p.scope.IndexNames(),
		path:           objectPath,
		hierarchy:      hierarchy,
		ignoreUnmapped: !object.DeclaredInAllIndexes(),
		inner:          predicate,
	}, nil
}

type nestedPredicate struct {
	indexes        []string
	path           string
	hierarchy      []string
	ignoreUnmapped bool
	inner          esPredicate
}

func (p *nestedPredicate) IndexNames() []string {
	return p.indexes
}

func (p *nestedPredicate) toJSON(nestedContext string) jsonObject {
	return wrapNested(p.hierarchy, nestedContext, p.ignoreUnmapped, p.inner.toJSON(p.path))
}

type booleanPredicateBuilder struct {
	scope              *search.IndexScope
	must               []esPredicate
	should             []esPredicate
	mustNot            []esPredicate
	filter             []esPredicate
	minimumShouldMatch *int
}

func (b *booleanPredicateBuilder) add(clauses *[]esPredicate, p search.SearchPredicate) error {
	predicate, err := asEsPredicate(b.scope, p)
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

func (b *booleanPredicateBuilder) Filter(p search.SearchPredicate) error {
	return b.add(&b.filter, p)
}

func (b *booleanPredicateBuilder) MinimumShouldMatch(count int) {
	b.minimumShouldMatch = &count
}

func (b *booleanPredicateBuilder) Build() (search.SearchPredicate, error) {
	if b.minimumShouldMatch != nil && (*b.minimumShouldMatch < 0 || *b.minimumShouldMatch > len(b.should)) {
		return nil, search.NewError(search.ErrorKindInvalidArgument,
			"invalid minimum should match %d: there are %d should clauses", *b.minimumShouldMatch, len(b.should))
	}

	return &booleanPredicate{
		indexes:            b.scope.IndexNames(),
		must:               b.must,
		should:             b.should,
		mustNot:            b.mustNot,
		filter:             b.filter,
		minimumShouldMatch: b.minimumShouldMatch,
	}, nil
}

type booleanPredicate struct {
	indexes            []string
	must               []esPredicate
	should             []esPredicate
	mustNot            []esPredicate
	filter             []esPredicate
	minimumShouldMatch *int
}

func (p *booleanPredicate) IndexNames() []string {
	return p.indexes
}

func (p *booleanPredicate) toJSON(nestedContext string) jsonObject {
	body := jsonObject{}
	clauses := func(name string, predicates []esPredicate) {
		if len(predicates) == 0 {
			return
		}
		rendered := make([]interface{}, len(predicates))
		for i, predicate := range predicates {
			rendered[i] = predicate.toJSON(nestedContext)
		}
		body[name] = rendered
	}
	clauses("must", p.must)
	clauses("should", p.should)
	clauses("must_not", p.mustNot)
	clauses("filter", p.filter)
	if p.minimumShouldMatch != nil {
		body["minimum_should_match"] = *p.minimumShouldMatch
	}

	return jsonObject{"bool": body}
}

func formatMeters(meters float64) string {
	return strconv.FormatFloat(meters, 'f', -1, 64) + "m"
}
