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
	"github.com/blevesearch/bleve/v2"
	blevesearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/rode/search-bridge/go/v1/search"
	"go.uber.org/zap"
)

// Query is a compiled bleve search request, plus what is needed to turn the result back into
// projected hits and aggregation buckets.
type Query struct {
	indexes        []string
	request        *bleve.SearchRequest
	projection     bleveProjection
	aggregations   map[string]bleveAggregation
	convertContext search.ConvertContext
}

func (q *Query) IndexNames() []string {
	return q.indexes
}

func (q *Query) Request() *bleve.SearchRequest {
	return q.request
}

// ExtractResult projects the hits and decodes the facets of a search result.
func (q *Query) ExtractResult(response *bleve.SearchResult) (*search.SearchResult, error) {
	result := &search.SearchResult{
		TotalHits:    int64(response.Total),
		Hits:         []interface{}{},
		Aggregations: map[string]interface{}{},
	}

	defaultIndex := ""
	if len(q.indexes) == 1 {
		defaultIndex = q.indexes[0]
	}
	for _, hit := range response.Hits {
		value, err := q.projection.extract(&hitContext{
			hit:            hit,
			defaultIndex:   defaultIndex,
			convertContext: q.convertContext,
		})
		if err != nil {
			return nil, err
		}
		result.Hits = append(result.Hits, value)
	}

	for name, aggregation := range q.aggregations {
		facet, ok := response.Facets[name]
		if !ok || facet == nil {
			return nil, search.NewError(search.ErrorKindBackend, "missing facet '%s' in the result", name)
		}
		value, err := aggregation.extract(facet, q.convertContext)
		if err != nil {
			return nil, err
		}
		result.Aggregations[name] = value
	}

	return result, nil
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
	if _, err := asBlevePredicate(b.state.Scope, predicate); err != nil {
		return err
	}

	return b.state.Where(predicate)
}

func (b *queryBuilder) Sort(sort search.SearchSort) error {
	if _, err := asBleveSort(b.state.Scope, sort); err != nil {
		return err
	}

	return b.state.Sort(sort)
}

func (b *queryBuilder) Select(projection search.SearchProjection) error {
	if _, err := asBleveProjection(b.state.Scope, projection); err != nil {
		return err
	}

	return b.state.Select(projection)
}

func (b *queryBuilder) Aggregate(name string, aggregation search.SearchAggregation) error {
	if _, err := asBleveAggregation(b.state.Scope, aggregation); err != nil {
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

	var q query.Query = bleve.NewMatchAllQuery()
	if b.state.Predicate != nil {
		q = b.state.Predicate.(blevePredicate).toQuery()
	}
	request := bleve.NewSearchRequestOptions(q, b.state.Limit, b.state.Offset, false)

	if len(b.state.Sorts) > 0 {
		order := make(blevesearch.SortOrder, len(b.state.Sorts))
		for i, sort := range b.state.Sorts {
			order[i] = sort.(bleveSort).toSort()
		}
		request.SortByCustom(order)
	}

	var projection bleveProjection = newSourceProjection(scope)
	if b.state.Projection != nil {
		projection = b.state.Projection.(bleveProjection)
	}
	fields := newRequestContext()
	projection.request(fields)
	if stored := fields.storedFields(); len(stored) > 0 {
		request.Fields = stored
	}

	aggregations := map[string]bleveAggregation{}
	for _, name := range b.state.AggNames {
		aggregation := b.state.Aggregations[name].(bleveAggregation)
		aggregations[name] = aggregation
		request.AddFacet(name, aggregation.toFacet())
	}

	b.logger.Debug("query built", zap.Strings("indexes", scope.IndexNames()), zap.Int("sorts", len(b.state.Sorts)), zap.Int("aggregations", len(aggregations)))

	return &Query{
		indexes:        scope.IndexNames(),
		request:        request,
		projection:     projection,
		aggregations:   aggregations,
		convertContext: scope.ConvertContext(),
	}, nil
}
