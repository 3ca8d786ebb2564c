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
	blevesearch "github.com/blevesearch/bleve/v2/search"
	"github.com/rode/search-bridge/go/v1/search"
)

type bleveSort interface {
	search.SearchSort
	toSort() blevesearch.SearchSort
}

func asBleveSort(scope *search.IndexScope, s search.SearchSort) (bleveSort, error) {
	if s == nil {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "sort must not be null")
	}
	sort, ok := s.(bleveSort)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "sort %T was not built by the embedded backend", s)
	}
	if err := search.CheckIndexNames(scope, sort.IndexNames()); err != nil {
		return nil, err
	}

	return sort, nil
}

type fieldSortBuilder struct {
	fieldBuilderBase
	converter search.DslConverter
	order     search.SortOrder
	missing   blevesearch.SortFieldMissing
}

func newFieldSortBuilder(base fieldBuilderBase, convert search.ValueConvert) (search.FieldSortBuilder, error) {
	converter, err := base.field.DslConverter(convert)
	if err != nil {
		return nil, err
	}

	return &fieldSortBuilder{
		fieldBuilderBase: base,
		converter:        converter,
		missing:          blevesearch.SortFieldMissingLast,
	}, nil
}

func (b *fieldSortBuilder) Order(order search.SortOrder) {
	b.order = order
}

func (b *fieldSortBuilder) MissingFirst() {
	b.missing = blevesearch.SortFieldMissingFirst
}

func (b *fieldSortBuilder) MissingLast() {
	b.missing = blevesearch.SortFieldMissingLast
}

// MissingAs is not available: bleve can only sort documents without a value first or last.
func (b *fieldSortBuilder) MissingAs(value interface{}) error {
	if _, err := b.encode(value, b.converter); err != nil {
		return err
	}

	return search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(),
		"the embedded backend cannot sort documents without a value as if they had one; use MissingFirst or MissingLast")
}

func (b *fieldSortBuilder) Build() (search.SearchSort, error) {
	sortType := blevesearch.SortFieldAsString
	if b.kind.numeric() {
		sortType = blevesearch.SortFieldAsNumber
	}

	return &nativeSort{
		indexes: b.scope.IndexNames(),
		sort: &blevesearch.SortField{
			Field:   b.path(),
			Desc:    b.order == search.SortOrderDesc,
			Type:    sortType,
			Mode:    blevesearch.SortFieldDefault,
			Missing: b.missing,
		},
	}, nil
}

type distanceSortBuilder struct {
	fieldBuilderBase
	center *search.GeoPoint
	order  search.SortOrder
}

func newDistanceSortBuilder(base fieldBuilderBase, _ search.ValueConvert) (search.DistanceSortBuilder, error) {
	return &distanceSortBuilder{fieldBuilderBase: base}, nil
}

func (b *distanceSortBuilder) Center(center search.GeoPoint) error {
	if err := center.Validate(); err != nil {
		return b.locate(err, search.ErrorKindInvalidArgument)
	}
	b.center = &center

	return nil
}

func (b *distanceSortBuilder) Order(order search.SortOrder) {
	b.order = order
}

func (b *distanceSortBuilder) Build() (search.SearchSort, error) {
	if b.center == nil {
		return nil, search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(), "missing center")
	}

	sort, err := blevesearch.NewSortGeoDistance(b.path(), search.DistanceUnitMeters.String(),
		b.center.Longitude, b.center.Latitude, b.order == search.SortOrderDesc)
	if err != nil {
		return nil, b.locate(err, search.ErrorKindInvalidArgument)
	}

	return &nativeSort{
		indexes: b.scope.IndexNames(),
		sort:    sort,
	}, nil
}

type nativeSort struct {
	indexes []string
	sort    blevesearch.SearchSort
}

func (s *nativeSort) IndexNames() []string {
	return s.indexes
}

func (s *nativeSort) toSort() blevesearch.SearchSort {
	return s.sort
}

type sortBuilders struct {
	scope *search.IndexScope
}

func (s *sortBuilders) Score(order search.SortOrder) search.SearchSort {
	return &nativeSort{
		indexes: s.scope.IndexNames(),
		sort:    &blevesearch.SortScore{Desc: order == search.SortOrderDesc},
	}
}

// IndexOrder sorts by document ID, bleve exposing no insertion order.
func (s *sortBuilders) IndexOrder() search.SearchSort {
	return &nativeSort{
		indexes: s.scope.IndexNames(),
		sort:    &blevesearch.SortDocID{},
	}
}
