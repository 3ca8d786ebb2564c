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
	"reflect"
)

const fakeBackendName = "fake"

type fakeBackend struct{}

func (b *fakeBackend) Name() string                               { return fakeBackendName }
func (b *fakeBackend) ValidateSchema(*IndexSchema) error          { return nil }
func (b *fakeBackend) Predicates(*IndexScope) PredicateBuilders   { return nil }
func (b *fakeBackend) Projections(*IndexScope) ProjectionBuilders { return nil }
func (b *fakeBackend) Sorts(*IndexScope) SortBuilders             { return nil }
func (b *fakeBackend) NewQuery(scope *IndexScope) QueryBuilder    { return nil }

// fakeFactory stands in for a backend factory; scale plays the role of the codec configuration.
type fakeFactory[B any] struct {
	scale      int
	converters Converters
	side       ConverterSide
	create     func(field *ValueFieldContext, converters Converters) B
}

func (f *fakeFactory[B]) Create(_ *IndexScope, field *ValueFieldContext, convert ValueConvert) (B, error) {
	return f.create(field, field.TypeForIndex(field.IndexNames()[0]).Converters(convert)), nil
}

func (f *fakeFactory[B]) HasCompatibleCodec(other interface{}) bool {
	o, ok := other.(*fakeFactory[B])
	return ok && o.scale == f.scale
}

func (f *fakeFactory[B]) HasCompatibleConverter(other interface{}) bool {
	o, ok := other.(*fakeFactory[B])
	return ok && f.converters.CompatibleWith(o.converters, f.side)
}

type fakePredicate struct {
	indexes []string
	value   interface{}
}

func (p *fakePredicate) IndexNames() []string { return p.indexes }

type fakeMatchBuilder struct {
	field     *ValueFieldContext
	converter DslConverter
	value     interface{}
}

func (b *fakeMatchBuilder) Value(value interface{}) error {
	converted, err := b.converter.ToIndexValue(value, b.field.Scope().ConvertContext())
	if err != nil {
		return err
	}
	b.value = converted
	return nil
}
func (b *fakeMatchBuilder) Fuzzy(int, int) error { return nil }
func (b *fakeMatchBuilder) Analyzer(string)      {}
func (b *fakeMatchBuilder) SkipAnalysis()        {}
func (b *fakeMatchBuilder) Boost(float64)        {}
func (b *fakeMatchBuilder) Build() (SearchPredicate, error) {
	return &fakePredicate{indexes: b.field.Scope().IndexNames(), value: b.value}, nil
}

type fakeProjection struct {
	indexes []string
}

func (p *fakeProjection) IndexNames() []string { return p.indexes }

type fakeProjectionBuilder struct {
	field     *ValueFieldContext
	converter ProjectionConverter
}

func (b *fakeProjectionBuilder) Multi() {}
func (b *fakeProjectionBuilder) Build() (SearchProjection, error) {
	return &fakeProjection{indexes: b.field.Scope().IndexNames()}, nil
}

type fakeSortBuilder struct {
	field *ValueFieldContext
}

func (b *fakeSortBuilder) Order(SortOrder)              {}
func (b *fakeSortBuilder) MissingFirst()                {}
func (b *fakeSortBuilder) MissingLast()                 {}
func (b *fakeSortBuilder) MissingAs(interface{}) error  { return nil }
func (b *fakeSortBuilder) Build() (SearchSort, error)   { return nil, nil }

type fakeTypeOptions struct {
	scale       int
	searchable  bool
	sortable    bool
	projectable bool
	dsl         DslConverter
	projection  ProjectionConverter
}

var float64Type = reflect.TypeOf((*float64)(nil)).Elem()

func defaultFakeTypeOptions() fakeTypeOptions {
	return fakeTypeOptions{scale: 2, searchable: true, sortable: true, projectable: true}
}

func newFakeType(options fakeTypeOptions) *IndexValueFieldType {
	b := NewIndexValueFieldTypeBuilder(fakeBackendName, float64Type).
		Searchable(options.searchable).
		Sortable(options.sortable).
		Projectable(options.projectable).
		DslConverter(options.dsl).
		ProjectionConverter(options.projection)

	converters := Converters{Dsl: options.dsl, Projection: options.projection}
	if converters.Dsl == nil {
		converters.Dsl = RawDslConverter(float64Type)
	}
	if converters.Projection == nil {
		converters.Projection = RawProjectionConverter(float64Type)
	}

	if options.searchable {
		RegisterQueryElementFactory[MatchPredicateBuilder](b, MatchPredicateKey, &fakeFactory[MatchPredicateBuilder]{
			scale: options.scale, converters: converters, side: ConverterSideDsl,
			create: func(field *ValueFieldContext, c Converters) MatchPredicateBuilder {
				return &fakeMatchBuilder{field: field, converter: c.Dsl}
			},
		})
	}
	if options.projectable {
		RegisterQueryElementFactory[FieldProjectionBuilder](b, FieldProjectionKey, &fakeFactory[FieldProjectionBuilder]{
			scale: options.scale, converters: converters, side: ConverterSideProjection,
			create: func(field *ValueFieldContext, c Converters) FieldProjectionBuilder {
				return &fakeProjectionBuilder{field: field, converter: c.Projection}
			},
		})
	}
	if options.sortable {
		RegisterQueryElementFactory[FieldSortBuilder](b, FieldSortKey, &fakeFactory[FieldSortBuilder]{
			scale: options.scale, converters: converters, side: ConverterSideDsl,
			create: func(field *ValueFieldContext, _ Converters) FieldSortBuilder {
				return &fakeSortBuilder{field: field}
			},
		})
	}

	t, err := b.Build()
	if err != nil {
		panic(err)
	}

	return t
}

func newFakeSchema(indexName string, fields map[string]*IndexValueFieldType) *IndexSchema {
	b := NewIndexSchemaBuilder(fakeBackendName, indexName)
	for name, t := range fields {
		b.Root().Field(name, t)
	}
	schema, err := b.Build()
	if err != nil {
		panic(err)
	}

	return schema
}
