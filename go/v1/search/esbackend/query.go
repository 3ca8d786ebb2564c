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
	"fmt"
	"sort"
	"strings"

	"github.com/rode/search-bridge/go/v1/search"
	"github.com/rode/search-bridge/go/v1/search/esbackend/esutil"
	"go.uber.org/zap"
)

// Query is a compiled Elasticsearch search: the request body plus what is needed to turn the
// response back into projected hits and aggregation buckets.
type Query struct {
	indexes        []string
	body           jsonObject
	projection     esProjection
	aggregations   map[string]esAggregation
	convertContext search.ConvertContext
}

func (q *Query) IndexNames() []string {
	return q.indexes
}

// Body is the JSON body of the _search request.
func (q *Query) Body() map[string]interface{} {
	return q.body
}

// ExtractResult projects the hits and decodes the aggregations of a search response.
func (q *Query) ExtractResult(response *esutil.EsSearchResponse) (*search.SearchResult, error) {
	if err := shardFailures(response.Shards); err != nil {
		return nil, err
	}
	result := &search.SearchResult{
		Hits:         []interface{}{},
		Aggregations: map[string]interface{}{},
	}
	if response.Hits != nil {
		if response.Hits.Total != nil {
			result.TotalHits = response.Hits.Total.Value
		}
		for _, hit := range response.Hits.Hits {
			value, err := q.projection.extract(&hitContext{
				hit:            hit,
				convertContext: q.convertContext,
			})
			if err != nil {
				return nil, err
			}
			result.Hits = append(result.Hits, value)
		}
	}

	for name, aggregation := range q.aggregations {
		raw, ok := response.Aggregations[name]
		if !ok {
			return nil, search.NewError(search.ErrorKindBackend, "missing aggregation '%s' in the response", name)
		}
		value, err := aggregation.extract(raw, q.convertContext)
		if err != nil {
			return nil, err
		}
		result.Aggregations[name] = value
	}

	return result, nil
}

// shardFailures refuses responses missing the hits of failed shards.
func shardFailures(shards *esutil.EsSearchResponseShards) error {
	if shards == nil || (shards.Failed == 0 && len(shards.Failures) == 0) {
		return nil
	}

	var indexes, reasons []string
	seen := map[string]bool{}
	for _, failure := range shards.Failures {
		if failure.Index != "" && !seen[failure.Index] {
			seen[failure.Index] = true
			indexes = append(indexes, failure.Index)
		}
		reasons = append(reasons, fmt.Sprintf("[%s] %s", failure.Reason.Type, failure.Reason.Reason))
	}
	sort.Strings(indexes)

	return &search.SearchError{
		Kind:    search.ErrorKindBackend,
		Message: fmt.Sprintf("search failed on %d of %d shards: %s", shards.Failed, shards.Total, strings.Join(reasons, "; ")),
		Context: search.EventContext{Indexes: indexes},
	}
}

type queryBuilder struct {
	logger *zap.Logger
	state  *search.QueryState
}

func newQueryBuilder(logger *zap.Logger, scope *search.IndexScope) *queryBuilder {
	return &queryBuilder{
		logger: logger,
		state:  search.NewQueryState(scope),
	}
}

func (b *queryBuilder) Where(predicate search.SearchPredicate) error {
	if _, err := asEsPredicate(b.state.Scope, predicate); err != nil {
		return err
	}

	return b.state.Where(predicate)
}

func (b *queryBuilder) Sort(sort search.SearchSort) error {
	if _, err := asEsSort(b.state.Scope, sort); err != nil {
		return err
	}

	return b.state.Sort(sort)
}

func (b *queryBuilder) Select(projection search.SearchProjection) error {
	if _, err := asEsProjection(b.state.Scope, projection); err != nil {
		return err
	}

	return b.state.Select(projection)
}

func (b *queryBuilder) Aggregate(name string, aggregation search.SearchAggregation) error {
	if _, err := asEsAggregation(b.state.Scope, aggregation); err != nil {
		return err
	}

	return b.state.Aggregate(name, aggregation)
}

func (b *queryBuilder) Offset(offset int) {
	b.state.SetOffset(offset)
}

func (b *queryBuilder) Limit(limit int) {
	b.state.SetLimit(limit)
}

func (b *queryBuilder) Build() (search.SearchQuery, error) {
	if err := b.state.MarkBuilt(); err != nil {
		return nil, err
	}
	scope := b.state.Scope

	body := jsonObject{
		"from":             b.state.Offset,
		"size":             b.state.Limit,
		"track_total_hits": true,
	}

	query := jsonObject{"match_all": jsonObject{}}
	if b.state.Predicate != nil {
		query = b.state.Predicate.(esPredicate).toJSON("")
	}
	body["query"] = query

	if len(b.state.Sorts) > 0 {
		sorts := make([]interface{}, len(b.state.Sorts))
		for i, sort := range b.state.Sorts {
			sorts[i] = sort.(esSort).toJSON()
		}
		body["sort"] = sorts
	}

	var projection esProjection = &sourceProjection{indexes: scope.IndexNames()}
	if b.state.Projection != nil {
		projection = b.state.Projection.(esProjection)
	}
	request := newRequestContext()
	projection.request(request)
	body["_source"] = request.source()
	if request.trackScores && len(b.state.Sorts) > 0 {
		body["track_scores"] = true
	}

	aggregations := map[string]esAggregation{}
	if len(b.state.AggNames) > 0 {
		aggs := jsonObject{}
		for _, name := range b.state.AggNames {
			aggregation := b.state.Aggregations[name].(esAggregation)
			aggregations[name] = aggregation
			aggs[name] = aggregation.toJSON()
		}
		body["aggs"] = aggs
	}

	b.logger.Debug("query built", zap.Strings("indexes", scope.IndexNames()), zap.Int("sorts", len(b.state.Sorts)), zap.Int("aggregations", len(aggregations)))

	return &Query{
		indexes:        scope.IndexNames(),
		body:           body,
		projection:     projection,
		aggregations:   aggregations,
		convertContext: scope.ConvertContext(),
	}, nil
}
