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
	"fmt"
	"reflect"
	"sort"

	"github.com/hashicorp/go-multierror"
)

type HighlighterType int

const (
	HighlighterPlain HighlighterType = iota
	HighlighterUnified
	HighlighterFastVector
)

func (h HighlighterType) String() string {
	switch h {
	case HighlighterUnified:
		return "unified"
	case HighlighterFastVector:
		return "fvh"
	}

	return "plain"
}

// IndexValueFieldType describes how values of a field are stored and which query elements
// can target it. It is built once at bootstrap and shared by every query.
type IndexValueFieldType struct {
	backendName string
	valueType   reflect.Type

	searchable  bool
	sortable    bool
	projectable bool
	aggregable  bool

	analyzerName       string
	searchAnalyzerName string
	normalizerName     string
	highlighters       map[HighlighterType]struct{}

	dslConverter        DslConverter
	projectionConverter ProjectionConverter
	rawDslConverter     DslConverter
	rawProjection       ProjectionConverter

	codec    interface{}
	metadata interface{}

	factories map[string]interface{}
	traits    []string
}

func (t *IndexValueFieldType) BackendName() string {
	return t.backendName
}

// ValueType is the native value type of the field, the one raw converters work with.
func (t *IndexValueFieldType) ValueType() reflect.Type {
	return t.valueType
}

func (t *IndexValueFieldType) Searchable() bool {
	return t.searchable
}

func (t *IndexValueFieldType) Sortable() bool {
	return t.sortable
}

func (t *IndexValueFieldType) Projectable() bool {
	return t.projectable
}

func (t *IndexValueFieldType) Aggregable() bool {
	return t.aggregable
}

func (t *IndexValueFieldType) Has(capability Capability) bool {
	switch capability {
	case CapabilitySearchable:
		return t.searchable
	case CapabilitySortable:
		return t.sortable
	case CapabilityProjectable:
		return t.projectable
	case CapabilityAggregable:
		return t.aggregable
	}

	return false
}

func (t *IndexValueFieldType) AnalyzerName() string {
	return t.analyzerName
}

// SearchAnalyzerName falls back to the indexing analyzer.
func (t *IndexValueFieldType) SearchAnalyzerName() string {
	if t.searchAnalyzerName == "" {
		return t.analyzerName
	}

	return t.searchAnalyzerName
}

func (t *IndexValueFieldType) NormalizerName() string {
	return t.normalizerName
}

func (t *IndexValueFieldType) HighlighterTypeSupported(highlighter HighlighterType) bool {
	_, ok := t.highlighters[highlighter]
	return ok
}

func (t *IndexValueFieldType) DslConverter() DslConverter {
	return t.dslConverter
}

func (t *IndexValueFieldType) ProjectionConverter() ProjectionConverter {
	return t.projectionConverter
}

func (t *IndexValueFieldType) RawDslConverter() DslConverter {
	return t.rawDslConverter
}

func (t *IndexValueFieldType) RawProjectionConverter() ProjectionConverter {
	return t.rawProjection
}

// Converters returns the converters selected by convert.
func (t *IndexValueFieldType) Converters(convert ValueConvert) Converters {
	if convert == ValueConvertNo {
		return Converters{Dsl: t.rawDslConverter, Projection: t.rawProjection}
	}

	return Converters{Dsl: t.dslConverter, Projection: t.projectionConverter}
}

// Codec is the backend codec of the field; its concrete type belongs to the backend.
func (t *IndexValueFieldType) Codec() interface{} {
	return t.codec
}

// Metadata holds backend-specific data such as the native mapping of the field.
func (t *IndexValueFieldType) Metadata() interface{} {
	return t.metadata
}

// Traits lists the names of every registered query element, sorted.
func (t *IndexValueFieldType) Traits() []string {
	return append([]string(nil), t.traits...)
}

// QueryElementFactory returns the factory registered for key, or false when the field type
// does not support that element.
func QueryElementFactory[B any](t *IndexValueFieldType, key ElementKey[B]) (ElementFactory[B], bool) {
	raw, ok := t.factories[key.name]
	if !ok {
		return nil, false
	}
	factory, ok := raw.(ElementFactory[B])

	return factory, ok
}

type IndexValueFieldTypeBuilder struct {
	fieldType *IndexValueFieldType
	errs      *multierror.Error
}

func NewIndexValueFieldTypeBuilder(backendName string, valueType reflect.Type) *IndexValueFieldTypeBuilder {
	return &IndexValueFieldTypeBuilder{
		fieldType: &IndexValueFieldType{
			backendName:  backendName,
			valueType:    valueType,
			highlighters: map[HighlighterType]struct{}{},
			factories:    map[string]interface{}{},
		},
	}
}

func (b *IndexValueFieldTypeBuilder) Searchable(searchable bool) *IndexValueFieldTypeBuilder {
	b.fieldType.searchable = searchable
	return b
}

func (b *IndexValueFieldTypeBuilder) Sortable(sortable bool) *IndexValueFieldTypeBuilder {
	b.fieldType.sortable = sortable
	return b
}

func (b *IndexValueFieldTypeBuilder) Projectable(projectable bool) *IndexValueFieldTypeBuilder {
	b.fieldType.projectable = projectable
	return b
}

func (b *IndexValueFieldTypeBuilder) Aggregable(aggregable bool) *IndexValueFieldTypeBuilder {
	b.fieldType.aggregable = aggregable
	return b
}

func (b *IndexValueFieldTypeBuilder) Analyzer(name string) *IndexValueFieldTypeBuilder {
	b.fieldType.analyzerName = name
	return b
}

func (b *IndexValueFieldTypeBuilder) SearchAnalyzer(name string) *IndexValueFieldTypeBuilder {
	b.fieldType.searchAnalyzerName = name
	return b
}

func (b *IndexValueFieldTypeBuilder) Normalizer(name string) *IndexValueFieldTypeBuilder {
	b.fieldType.normalizerName = name
	return b
}

func (b *IndexValueFieldTypeBuilder) HighlighterTypes(types ...HighlighterType) *IndexValueFieldTypeBuilder {
	for _, t := range types {
		b.fieldType.highlighters[t] = struct{}{}
	}
	return b
}

func (b *IndexValueFieldTypeBuilder) DslConverter(converter DslConverter) *IndexValueFieldTypeBuilder {
	b.fieldType.dslConverter = converter
	return b
}

func (b *IndexValueFieldTypeBuilder) ProjectionConverter(converter ProjectionConverter) *IndexValueFieldTypeBuilder {
	b.fieldType.projectionConverter = converter
	return b
}

func (b *IndexValueFieldTypeBuilder) Codec(codec interface{}) *IndexValueFieldTypeBuilder {
	b.fieldType.codec = codec
	return b
}

func (b *IndexValueFieldTypeBuilder) Metadata(metadata interface{}) *IndexValueFieldTypeBuilder {
	b.fieldType.metadata = metadata
	return b
}

// RegisterQueryElementFactory registers the factory serving key. Registering a key twice is
// a mapping bug and makes Build fail.
func RegisterQueryElementFactory[B any](b *IndexValueFieldTypeBuilder, key ElementKey[B], factory ElementFactory[B]) {
	if _, ok := b.fieldType.factories[key.name]; ok {
		b.errs = multierror.Append(b.errs, fmt.Errorf("duplicate registration of query element '%s'", key.name))
		return
	}
	if !b.fieldType.Has(key.capability) {
		b.errs = multierror.Append(b.errs, fmt.Errorf("query element '%s' registered on a field type that is not %s", key.name, key.capability))
		return
	}
	b.fieldType.factories[key.name] = factory
}

// Build freezes the field type. Missing converters default to the raw ones.
func (b *IndexValueFieldTypeBuilder) Build() (*IndexValueFieldType, error) {
	t := b.fieldType
	errs := b.errs

	if t.valueType == nil {
		errs = multierror.Append(errs, fmt.Errorf("missing value type"))
	}
	if t.analyzerName != "" && t.normalizerName != "" {
		errs = multierror.Append(errs, fmt.Errorf("both analyzer '%s' and normalizer '%s' are set; a field is either analyzed or normalized", t.analyzerName, t.normalizerName))
	}
	if t.searchAnalyzerName != "" && t.analyzerName == "" {
		errs = multierror.Append(errs, fmt.Errorf("search analyzer '%s' set on a field without analyzer", t.searchAnalyzerName))
	}

	t.rawDslConverter = RawDslConverter(t.valueType)
	t.rawProjection = RawProjectionConverter(t.valueType)
	if t.dslConverter == nil {
		t.dslConverter = t.rawDslConverter
	}
	if t.projectionConverter == nil {
		t.projectionConverter = t.rawProjection
	}
	if typed, ok := t.dslConverter.(indexTyped); ok && t.valueType != nil && typed.indexValueType() != t.valueType {
		errs = multierror.Append(errs, fmt.Errorf("DSL converter produces '%s' but the field value type is '%s'", typed.indexValueType(), t.valueType))
	}
	if typed, ok := t.projectionConverter.(indexTyped); ok && t.valueType != nil && typed.indexValueType() != t.valueType {
		errs = multierror.Append(errs, fmt.Errorf("projection converter consumes '%s' but the field value type is '%s'", typed.indexValueType(), t.valueType))
	}

	if errs.ErrorOrNil() != nil {
		return nil, &SearchError{
			Kind:    ErrorKindBootstrap,
			Message: fmt.Sprintf("invalid field type for value type '%s'", TypeName(t.valueType)),
			Err:     errs,
		}
	}

	for name := range t.factories {
		t.traits = append(t.traits, name)
	}
	sort.Strings(t.traits)
	b.fieldType = nil

	return t, nil
}
