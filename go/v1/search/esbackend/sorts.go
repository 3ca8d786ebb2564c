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
	"github.com/rode/search-bridge/go/v1/search"
)

type esSort interface {
	search.SearchSort
	toJSON() interface{}
}

func asEsSort(scope *search.IndexScope, s search.SearchSort) (esSort, error) {
	if s == nil {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "sort must not be null")
	}
	sort, ok := s.(esSort)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "sort %T was not built by the Elasticsearch backend", s)
	}
	if err := search.CheckIndexNames(scope, sort.IndexNames()); err != nil {
		return nil, err
	}

	return sort, nil
}

// nestedSortContext renders the nested objects enclosing a sort field, outermost first.
func nestedSortContext(nestedPaths []string) jsonObject {
	var context jsonObject
	for i := len(nestedPaths) - 1; i >= 0; i-- {
		level := jsonObject{"path": nestedPaths[i]}
		if context != nil {
			level["nested"] = context
		}
		context = level
	}

	return context
}

type fieldSortBuilder struct {
	fieldBuilderBase
	converter search.DslConverter
	order     search.SortOrder
	missing   interface{}
}

func newFieldSortBuilder(base fieldBuilderBase, convert search.ValueConvert) (search.FieldSortBuilder, error) {
	converter, err := base.field.DslConverter(convert)
	if err != nil {
		return nil, err
	}

	return &fieldSortBuilder{
		fieldBuilderBase: base,
		converter:        converter,
	}, nil
}

func (b *fieldSortBuilder) Order(order search.SortOrder) {
	b.order = order
}

func (b *fieldSortBuilder) MissingFirst() {
	b.missing = "_first"
}

func (b *fieldSortBuilder) MissingLast() {
	b.missing = "_last"
}

func (b *fieldSortBuilder) MissingAs(value interface{}) error {
	encoded, err := b.encode(value, b.converter)
	if err != nil {
		return err
	}
	b.missing = encoded

	return nil
}

func (b *fieldSortBuilder) Build() (search.SearchSort, error) {
	body := jsonObject{"order": b.order.String()}
	if b.missing != nil {
		body["missing"] = b.missing
	}
	if nested := nestedSortContext(b.nestedPaths); nested != nil {
		body["nested"] = nested
	}
	if b.unmapped() {
		body["unmapped_type"] = unmappedType(b.field.Type())
	}

	return &jsonSort{
		indexes: b.scope.IndexNames(),
		body:    jsonObject{b.path(): body},
	}, nil
}

// unmappedType is the type indexes lacking the field sort it as. scaled_float cannot be
// created without a scaling factor, so decimals fall back to double.
func unmappedType(fieldType *search.IndexValueFieldType) string {
	property, ok := fieldType.Metadata().(*PropertyMapping)
	if !ok || property.Type == esTypes[kindDecimal] {
		return esTypes[kindDouble]
	}

	return property.Type
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

	body := jsonObject{
		b.path(): jsonObject{
			"lat": b.center.Latitude,
			"lon": b.center.Longitude,
		},
		"order":         b.order.String(),
		"unit":          search.DistanceUnitMeters.String(),
		"distance_type": "arc",
	}
	if nested := nestedSortContext(b.nestedPaths); nested != nil {
		body["nested"] = nested
	}
	if b.unmapped() {
		body["ignore_unmapped"] = true
	}

	return &jsonSort{
		indexes: b.scope.IndexNames(),
		body:    jsonObject{"_geo_distance": body},
	}, nil
}

type jsonSort struct {
	indexes []string
	body    interface{}
}

func (s *jsonSort) IndexNames() []string {
	return s.indexes
}

func (s *jsonSort) toJSON() interface{} {
	return s.body
}

type sortBuilders struct {
	scope *search.IndexScope
}

func (s *sortBuilders) Score(order search.SortOrder) search.SearchSort {
	return &jsonSort{
		indexes: s.scope.IndexNames(),
		body:    jsonObject{"_score": jsonObject{"order": order.String()}},
	}
}

func (s *sortBuilders) IndexOrder() search.SearchSort {
	return &jsonSort{
		indexes: s.scope.IndexNames(),
		body:    "_doc",
	}
}
