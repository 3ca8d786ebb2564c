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

// QueryBuilder collects the elements of one query and compiles them into the backend's native
// query. It is single-use: Build may only succeed once.
type QueryBuilder interface {
	Where(predicate SearchPredicate) error
	Sort(sort SearchSort) error
	Select(projection SearchProjection) error
	Aggregate(name string, aggregation SearchAggregation) error
	Offset(offset int)
	Limit(limit int)
	Build() (SearchQuery, error)
}

// SearchQuery is a compiled, backend-native query.
type SearchQuery interface {
	IndexNames() []string
}

const DefaultLimit = 10

// QueryState holds what every collector accumulates regardless of backend.
type QueryState struct {
	Scope        *IndexScope
	Predicate    SearchPredicate
	Sorts        []SearchSort
	Projection   SearchProjection
	Aggregations map[string]SearchAggregation
	AggNames     []string
	Offset       int
	Limit        int
	built        bool
}

func NewQueryState(scope *IndexScope) *QueryState {
	return &QueryState{
		Scope:        scope,
		Aggregations: map[string]SearchAggregation{},
		Limit:        DefaultLimit,
	}
}

func (q *QueryState) Where(predicate SearchPredicate) error {
	if err := CheckIndexNames(q.Scope, predicate.IndexNames()); err != nil {
		return err
	}
	q.Predicate = predicate

	return nil
}

func (q *QueryState) Sort(sort SearchSort) error {
	if err := CheckIndexNames(q.Scope, sort.IndexNames()); err != nil {
		return err
	}
	q.Sorts = append(q.Sorts, sort)

	return nil
}

func (q *QueryState) Select(projection SearchProjection) error {
	if err := CheckIndexNames(q.Scope, projection.IndexNames()); err != nil {
		return err
	}
	q.Projection = projection

	return nil
}

func (q *QueryState) Aggregate(name string, aggregation SearchAggregation) error {
	if name == "" {
		return NewError(ErrorKindInvalidArgument, "aggregation name must not be empty")
	}
	if _, ok := q.Aggregations[name]; ok {
		return NewError(ErrorKindInvalidArgument, "duplicate aggregation name '%s'", name)
	}
	if err := CheckIndexNames(q.Scope, aggregation.IndexNames()); err != nil {
		return err
	}
	q.Aggregations[name] = aggregation
	q.AggNames = append(q.AggNames, name)

	return nil
}

func (q *QueryState) SetOffset(offset int) {
	q.Offset = offset
}

func (q *QueryState) SetLimit(limit int) {
	q.Limit = limit
}

// MarkBuilt fails when the collector already produced a query.
func (q *QueryState) MarkBuilt() error {
	if q.built {
		return NewError(ErrorKindInvalidArgument, "this query builder was already built; create a new one for each query")
	}
	if q.Offset < 0 || q.Limit < 0 {
		return NewError(ErrorKindInvalidArgument, "offset (%d) and limit (%d) must not be negative", q.Offset, q.Limit)
	}
	q.built = true

	return nil
}
