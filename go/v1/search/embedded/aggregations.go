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
	"sort"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	blevesearch "github.com/blevesearch/bleve/v2/search"
	"github.com/rode/search-bridge/go/v1/search"
)

const defaultMaxTermCount = 100

type bleveAggregation interface {
	search.SearchAggregation
	toFacet() *bleve.FacetRequest
	extract(result *blevesearch.FacetResult, ctx search.ConvertContext) (interface{}, error)
}

func asBleveAggregation(scope *search.IndexScope, a search.SearchAggregation) (bleveAggregation, error) {
	if a == nil {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "aggregation must not be null")
	}
	aggregation, ok := a.(bleveAggregation)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "aggregation %T was not built by the embedded backend", a)
	}
	if err := search.CheckIndexNames(scope, aggregation.IndexNames()); err != nil {
		return nil, err
	}

	return aggregation, nil
}

type termsAggregationBuilder struct {
	fieldBuilderBase
	converter    search.ProjectionConverter
	maxTermCount int
	minDocCount  int
}

func newTermsAggregationBuilder(base fieldBuilderBase, convert search.ValueConvert) (search.TermsAggregationBuilder, error) {
	converter, err := base.field.ProjectionConverter(convert)
	if err != nil {
		return nil, err
	}

	return &termsAggregationBuilder{
		fieldBuilderBase: base,
		converter:        converter,
		maxTermCount:     defaultMaxTermCount,
		minDocCount:      1,
	}, nil
}

func (b *termsAggregationBuilder) MaxTermCount(count int) error {
	if count <= 0 {
		return search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(),
			"invalid maximum term count %d: must be strictly positive", count)
	}
	b.maxTermCount = count

	return nil
}

// MinDocumentCount filters the terms bleve returns; a count of zero cannot list terms no
// matching document has.
func (b *termsAggregationBuilder) MinDocumentCount(count int) error {
	if count < 0 {
		return search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(),
			"invalid minimum document count %d: must be positive or zero", count)
	}
	b.minDocCount = count

	return nil
}

func (b *termsAggregationBuilder) Build() (search.SearchAggregation, error) {
	return &termsAggregation{
		fieldBuilderBase: b.fieldBuilderBase,
		indexes:          b.scope.IndexNames(),
		converter:        b.converter,
		maxTermCount:     b.maxTermCount,
		minDocCount:      b.minDocCount,
	}, nil
}

type termsAggregation struct {
	fieldBuilderBase
	indexes      []string
	converter    search.ProjectionConverter
	maxTermCount int
	minDocCount  int
}

func (a *termsAggregation) IndexNames() []string {
	return a.indexes
}

func (a *termsAggregation) toFacet() *bleve.FacetRequest {
	return bleve.NewFacetRequest(a.path(), a.maxTermCount)
}

// extract returns []search.TermBucket, most frequent terms first and ties by term.
func (a *termsAggregation) extract(result *blevesearch.FacetResult, ctx search.ConvertContext) (interface{}, error) {
	var terms []*blevesearch.TermFacet
	if result.Terms != nil {
		terms = append(terms, result.Terms.Terms()...)
	}
	sort.SliceStable(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})

	buckets := make([]search.TermBucket, 0, len(terms))
	for _, term := range terms {
		if term.Count < a.minDocCount {
			continue
		}
		decoded, err := a.codec.Decode(term.Term)
		if err != nil {
			return nil, a.locate(err, search.ErrorKindEncoding)
		}
		key, err := a.converter.FromIndexValue(decoded, ctx)
		if err != nil {
			return nil, a.locate(err, search.ErrorKindTypeMismatch)
		}
		buckets = append(buckets, search.TermBucket{Key: key, Count: int64(term.Count)})
	}

	return buckets, nil
}

type numericRange struct {
	min *float64
	max *float64
}

type rangeAggregationBuilder struct {
	fieldBuilderBase
	converter search.DslConverter
	ranges    []search.Range
	encoded   []numericRange
}

func newRangeAggregationBuilder(base fieldBuilderBase, convert search.ValueConvert) (search.RangeAggregationBuilder, error) {
	converter, err := base.field.DslConverter(convert)
	if err != nil {
		return nil, err
	}

	return &rangeAggregationBuilder{
		fieldBuilderBase: base,
		converter:        converter,
	}, nil
}

// Range adds a bucket. Buckets include their lower bound and exclude their upper bound, like
// bleve numeric range facets.
func (b *rangeAggregationBuilder) Range(r search.Range) error {
	if (r.Lower != nil && r.LowerInclusion != search.RangeBoundIncluded) || (r.Upper != nil && r.UpperInclusion != search.RangeBoundExcluded) {
		return search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(),
			"invalid range %s: aggregation ranges must include their lower bound and exclude their upper bound", r)
	}

	var bucket numericRange
	var err error
	if r.Lower != nil {
		if bucket.min, err = b.encodeNumber(r.Lower, b.converter); err != nil {
			return err
		}
	}
	if r.Upper != nil {
		if bucket.max, err = b.encodeNumber(r.Upper, b.converter); err != nil {
			return err
		}
	}
	b.ranges = append(b.ranges, r)
	b.encoded = append(b.encoded, bucket)

	return nil
}

func (b *rangeAggregationBuilder) Build() (search.SearchAggregation, error) {
	if len(b.ranges) == 0 {
		return nil, search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(), "missing ranges")
	}

	return &rangeAggregation{
		fieldBuilderBase: b.fieldBuilderBase,
		indexes:          b.scope.IndexNames(),
		ranges:           b.ranges,
		encoded:          b.encoded,
	}, nil
}

type rangeAggregation struct {
	fieldBuilderBase
	indexes []string
	ranges  []search.Range
	encoded []numericRange
}

func (a *rangeAggregation) IndexNames() []string {
	return a.indexes
}

// toFacet names each range after its position.
func (a *rangeAggregation) toFacet() *bleve.FacetRequest {
	facet := bleve.NewFacetRequest(a.path(), len(a.encoded))
	for i, r := range a.encoded {
		facet.AddNumericRange(strconv.Itoa(i), r.min, r.max)
	}

	return facet
}

// extract returns []search.RangeBucket in the order the ranges were added.
func (a *rangeAggregation) extract(result *blevesearch.FacetResult, _ search.ConvertContext) (interface{}, error) {
	buckets := make([]search.RangeBucket, len(a.ranges))
	for i, r := range a.ranges {
		buckets[i] = search.RangeBucket{Range: r}
	}
	for _, facet := range result.NumericRanges {
		i, err := strconv.Atoi(facet.Name)
		if err != nil || i < 0 || i >= len(buckets) {
			continue
		}
		buckets[i].Count = int64(facet.Count)
	}

	return buckets, nil
}
