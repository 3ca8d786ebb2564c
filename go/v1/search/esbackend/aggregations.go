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
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rode/search-bridge/go/v1/search"
)

const (
	defaultMaxTermCount = 100
	nestedAggregation   = "inner"
)

type esAggregation interface {
	search.SearchAggregation
	toJSON() jsonObject
	extract(raw json.RawMessage, ctx search.ConvertContext) (interface{}, error)
}

func asEsAggregation(scope *search.IndexScope, a search.SearchAggregation) (esAggregation, error) {
	if a == nil {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "aggregation must not be null")
	}
	aggregation, ok := a.(esAggregation)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "aggregation %T was not built by the Elasticsearch backend", a)
	}
	if err := search.CheckIndexNames(scope, aggregation.IndexNames()); err != nil {
		return nil, err
	}

	return aggregation, nil
}

// wrapNestedAggregation nests body in one nested aggregation per enclosing nested object.
func wrapNestedAggregation(nestedPaths []string, body jsonObject) jsonObject {
	for i := len(nestedPaths) - 1; i >= 0; i-- {
		body = jsonObject{
			"nested": jsonObject{"path": nestedPaths[i]},
			"aggs":   jsonObject{nestedAggregation: body},
		}
	}

	return body
}

type aggregationBuckets struct {
	Buckets []struct {
		Key      interface{} `json:"key"`
		DocCount int64       `json:"doc_count"`
	} `json:"buckets"`
}

// unwrapNested strips the nested aggregations wrapped around a field aggregation result.
func unwrapNested(raw json.RawMessage, nestedLevels int, path string) (json.RawMessage, error) {
	for i := 0; i < nestedLevels; i++ {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, search.NewFieldError(search.ErrorKindBackend, nil, path, "invalid nested aggregation result: %s", err)
		}
		raw = wrapper[nestedAggregation]
	}

	return raw, nil
}

func decodeBuckets(raw json.RawMessage, nestedLevels int, path string) (*aggregationBuckets, error) {
	raw, err := unwrapNested(raw, nestedLevels, path)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	result := &aggregationBuckets{}
	if err := decoder.Decode(result); err != nil {
		return nil, search.NewFieldError(search.ErrorKindBackend, nil, path, "invalid aggregation result: %s", err)
	}

	return result, nil
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

func (a *termsAggregation) toJSON() jsonObject {
	return wrapNestedAggregation(a.nestedPaths, jsonObject{
		"terms": jsonObject{
			"field":         a.path(),
			"size":          a.maxTermCount,
			"min_doc_count": a.minDocCount,
			"order": []interface{}{
				jsonObject{"_count": "desc"},
				jsonObject{"_key": "asc"},
			},
		},
	})
}

// extract returns []search.TermBucket, most frequent terms first.
func (a *termsAggregation) extract(raw json.RawMessage, ctx search.ConvertContext) (interface{}, error) {
	result, err := decodeBuckets(raw, len(a.nestedPaths), a.path())
	if err != nil {
		return nil, err
	}

	buckets := make([]search.TermBucket, 0, len(result.Buckets))
	for _, bucket := range result.Buckets {
		decoded, err := a.codec.Decode(bucket.Key)
		if err != nil {
			return nil, a.locate(err, search.ErrorKindEncoding)
		}
		key, err := a.converter.FromIndexValue(decoded, ctx)
		if err != nil {
			return nil, a.locate(err, search.ErrorKindTypeMismatch)
		}
		buckets = append(buckets, search.TermBucket{Key: key, Count: bucket.DocCount})
	}

	return buckets, nil
}

type rangeAggregationBuilder struct {
	fieldBuilderBase
	converter search.DslConverter
	ranges    []search.Range
	encoded   []jsonObject
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

// Range adds a bucket. Buckets include their lower bound and exclude their upper bound.
func (b *rangeAggregationBuilder) Range(r search.Range) error {
	if (r.Lower != nil && r.LowerInclusion != search.RangeBoundIncluded) || (r.Upper != nil && r.UpperInclusion != search.RangeBoundExcluded) {
		return search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(),
			"invalid range %s: aggregation ranges must include their lower bound and exclude their upper bound", r)
	}

	bucket := jsonObject{"key": strconv.Itoa(len(b.ranges))}
	if r.Lower != nil {
		lower, err := b.encode(r.Lower, b.converter)
		if err != nil {
			return err
		}
		bucket["from"] = lower
	}
	if r.Upper != nil {
		upper, err := b.encode(r.Upper, b.converter)
		if err != nil {
			return err
		}
		bucket["to"] = upper
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
	encoded []jsonObject
}

func (a *rangeAggregation) IndexNames() []string {
	return a.indexes
}

func (a *rangeAggregation) toJSON() jsonObject {
	aggregationType := "range"
	if _, ok := a.codec.(*DateCodec); ok {
		aggregationType = "date_range"
	}
	ranges := make([]interface{}, len(a.encoded))
	for i, bucket := range a.encoded {
		ranges[i] = bucket
	}

	return wrapNestedAggregation(a.nestedPaths, jsonObject{
		aggregationType: jsonObject{
			"field":  a.path(),
			"keyed":  false,
			"ranges": ranges,
		},
	})
}

// extract returns []search.RangeBucket in the order the ranges were added.
func (a *rangeAggregation) extract(raw json.RawMessage, _ search.ConvertContext) (interface{}, error) {
	var result struct {
		Buckets []struct {
			Key      string `json:"key"`
			DocCount int64  `json:"doc_count"`
		} `json:"buckets"`
	}
	raw, err := unwrapNested(raw, len(a.nestedPaths), a.path())
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, search.NewFieldError(search.ErrorKindBackend, nil, a.path(), "invalid aggregation result: %s", err)
	}

	buckets := make([]search.RangeBucket, len(a.ranges))
	for i, r := range a.ranges {
		buckets[i] = search.RangeBucket{Range: r}
	}
	for _, bucket := range result.Buckets {
		i, err := strconv.Atoi(bucket.Key)
		if err != nil || i < 0 || i >= len(buckets) {
			continue
		}
		buckets[i].Count = bucket.DocCount
	}

	return buckets, nil
}
