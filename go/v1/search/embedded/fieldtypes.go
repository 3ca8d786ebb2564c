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
	"fmt"
	"reflect"
	"time"

	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/rode/search-bridge/go/v1/search"
	"github.com/shopspring/decimal"
)

type fieldKind int

const (
	kindKeyword fieldKind = iota
	kindText
	kindBoolean
	kindInteger
	kindLong
	kindDouble
	kindDecimal
	kindDate
	kindGeoPoint
)

var kindNames = map[fieldKind]string{
	kindKeyword:  "string",
	kindText:     "text",
	kindBoolean:  "boolean",
	kindInteger:  "integer",
	kindLong:     "long",
	kindDouble:   "double",
	kindDecimal:  "decimal",
	kindDate:     "date",
	kindGeoPoint: "geo_point",
}

func (k fieldKind) numeric() bool {
	switch k {
	case kindInteger, kindLong, kindDouble, kindDecimal, kindDate:
		return true
	}

	return false
}

// LowercaseNormalizer is the only normalizer the embedded backend knows: it indexes the whole
// value as a single lowercased term.
const LowercaseNormalizer = "lowercase"

// FieldTypeFactory creates the field types of the embedded backend.
type FieldTypeFactory struct{}

func (f *FieldTypeFactory) AsString() *FieldTypeOptions {
	return newFieldTypeOptions(kindKeyword, reflect.TypeOf((*string)(nil)).Elem(), &StringCodec{})
}

// AsText declares an analyzed string field. The bleve standard analyzer is used when analyzer
// is empty.
func (f *FieldTypeFactory) AsText(analyzer string) *FieldTypeOptions {
	o := newFieldTypeOptions(kindText, reflect.TypeOf((*string)(nil)).Elem(), &StringCodec{})
	if analyzer == "" {
		analyzer = standard.Name
	}
	o.analyzer = analyzer

	return o
}

func (f *FieldTypeFactory) AsBoolean() *FieldTypeOptions {
	return newFieldTypeOptions(kindBoolean, reflect.TypeOf((*bool)(nil)).Elem(), &BooleanCodec{})
}

func (f *FieldTypeFactory) AsInteger() *FieldTypeOptions {
	return newFieldTypeOptions(kindInteger, reflect.TypeOf((*int32)(nil)).Elem(), &IntegerCodec{})
}

func (f *FieldTypeFactory) AsLong() *FieldTypeOptions {
	return newFieldTypeOptions(kindLong, reflect.TypeOf((*int64)(nil)).Elem(), &LongCodec{})
}

func (f *FieldTypeFactory) AsDouble() *FieldTypeOptions {
	return newFieldTypeOptions(kindDouble, reflect.TypeOf((*float64)(nil)).Elem(), &DoubleCodec{})
}

func (f *FieldTypeFactory) AsDecimal(scale int32) *FieldTypeOptions {
	return newFieldTypeOptions(kindDecimal, reflect.TypeOf((*decimal.Decimal)(nil)).Elem(), &DecimalCodec{Scale: scale})
}

func (f *FieldTypeFactory) AsDate() *FieldTypeOptions {
	return newFieldTypeOptions(kindDate, reflect.TypeOf((*time.Time)(nil)).Elem(), &DateCodec{})
}

func (f *FieldTypeFactory) AsGeoPoint() *FieldTypeOptions {
	return newFieldTypeOptions(kindGeoPoint, reflect.TypeOf((*search.GeoPoint)(nil)).Elem(), &GeoPointCodec{})
}

// FieldTypeOptions configures one field type before it is built. Fields are searchable and
// projectable unless told otherwise.
type FieldTypeOptions struct {
	kind        fieldKind
	valueType   reflect.Type
	codec       Codec
	searchable  bool
	sortable    bool
	projectable bool
	aggregable  bool
	analyzer    string
	normalizer  string
	dsl         search.DslConverter
	projection  search.ProjectionConverter
}

func newFieldTypeOptions(kind fieldKind, valueType reflect.Type, codec Codec) *FieldTypeOptions {
	return &FieldTypeOptions{
		kind:        kind,
		valueType:   valueType,
		codec:       codec,
		searchable:  true,
		projectable: true,
	}
}

func (o *FieldTypeOptions) Searchable(searchable bool) *FieldTypeOptions {
	o.searchable = searchable
	return o
}

func (o *FieldTypeOptions) Sortable(sortable bool) *FieldTypeOptions {
	o.sortable = sortable
	return o
}

func (o *FieldTypeOptions) Projectable(projectable bool) *FieldTypeOptions {
	o.projectable = projectable
	return o
}

func (o *FieldTypeOptions) Aggregable(aggregable bool) *FieldTypeOptions {
	o.aggregable = aggregable
	return o
}

func (o *FieldTypeOptions) Normalizer(name string) *FieldTypeOptions {
	o.normalizer = name
	return o
}

func (o *FieldTypeOptions) DslConverter(converter search.DslConverter) *FieldTypeOptions {
	o.dsl = converter
	return o
}

func (o *FieldTypeOptions) ProjectionConverter(converter search.ProjectionConverter) *FieldTypeOptions {
	o.projection = converter
	return o
}

func (o *FieldTypeOptions) validate() error {
	var problem string
	switch {
	case o.kind == kindText && (o.sortable || o.aggregable):
		problem = "text fields cannot be sortable or aggregable; declare a string field with a normalizer instead"
	case o.kind == kindGeoPoint && o.aggregable:
		problem = "geo_point fields cannot be aggregable"
	case o.normalizer != "" && o.kind != kindKeyword:
		problem = fmt.Sprintf("normalizer '%s' can only be set on string fields", o.normalizer)
	case o.normalizer != "" && o.normalizer != LowercaseNormalizer:
		problem = fmt.Sprintf("unknown normalizer '%s': only '%s' is available", o.normalizer, LowercaseNormalizer)
	default:
		return nil
	}

	return search.NewError(search.ErrorKindBootstrap, "invalid %s field type: %s", kindNames[o.kind], problem)
}

// analyzerName is the bleve analyzer string fields are indexed with.
func (o *FieldTypeOptions) analyzerName() string {
	switch {
	case o.analyzer != "":
		return o.analyzer
	case o.normalizer != "":
		return normalizerAnalyzer
	default:
		return keyword.Name
	}
}

// fieldMapping is the bleve mapping of the field. Sorting and faceting read doc values, which
// bleve only builds for indexed fields.
func (o *FieldTypeOptions) fieldMapping() *mapping.FieldMapping {
	var fm *mapping.FieldMapping
	switch {
	case o.kind == kindKeyword || o.kind == kindText:
		fm = mapping.NewTextFieldMapping()
		fm.Analyzer = o.analyzerName()
		fm.IncludeTermVectors = o.kind == kindText
	case o.kind == kindBoolean:
		fm = mapping.NewBooleanFieldMapping()
	case o.kind == kindGeoPoint:
		fm = mapping.NewGeoPointFieldMapping()
	default:
		fm = mapping.NewNumericFieldMapping()
	}
	fm.Store = o.projectable
	fm.Index = o.searchable || o.sortable || o.aggregable
	fm.DocValues = o.sortable || o.aggregable
	fm.IncludeInAll = false

	return fm
}

// ToIndexFieldType builds the field type. Terms aggregations are only available on strings
// and booleans, range aggregations on numbers and dates.
func (o *FieldTypeOptions) ToIndexFieldType() (*search.IndexValueFieldType, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	b := search.NewIndexValueFieldTypeBuilder(BackendName, o.valueType).
		Searchable(o.searchable).
		Sortable(o.sortable).
		Projectable(o.projectable).
		Aggregable(o.aggregable).
		Analyzer(o.analyzer).
		Normalizer(o.normalizer).
		DslConverter(o.dsl).
		ProjectionConverter(o.projection).
		Codec(o.codec).
		Metadata(o.fieldMapping())
	if o.kind == kindText || o.kind == kindKeyword {
		b.HighlighterTypes(search.HighlighterPlain)
	}

	converters := search.Converters{Dsl: o.dsl, Projection: o.projection}
	if converters.Dsl == nil {
		converters.Dsl = search.RawDslConverter(o.valueType)
	}
	if converters.Projection == nil {
		converters.Projection = search.RawProjectionConverter(o.valueType)
	}

	f := &registrar{builder: b, kind: o.kind, codec: o.codec, converters: converters}
	geo := o.kind == kindGeoPoint
	if o.searchable {
		if geo {
			register(f, search.SpatialWithinCirclePredicateKey, newWithinCirclePredicateBuilder)
		} else {
			register(f, search.MatchPredicateKey, newMatchPredicateBuilder)
			if o.kind != kindBoolean {
				register(f, search.RangePredicateKey, newRangePredicateBuilder)
			}
		}
		register(f, search.ExistsPredicateKey, newExistsPredicateBuilder)
	}
	if o.projectable {
		register(f, search.FieldProjectionKey, newFieldProjectionBuilder)
		if geo {
			register(f, search.DistanceProjectionKey, newDistanceProjectionBuilder)
		}
	}
	if o.sortable {
		if geo {
			register(f, search.DistanceSortKey, newDistanceSortBuilder)
		} else {
			register(f, search.FieldSortKey, newFieldSortBuilder)
		}
	}
	if o.aggregable {
		if o.kind.numeric() {
			register(f, search.RangeAggregationKey, newRangeAggregationBuilder)
		} else {
			register(f, search.TermsAggregationKey, newTermsAggregationBuilder)
		}
	}

	return b.Build()
}

type registrar struct {
	builder    *search.IndexValueFieldTypeBuilder
	kind       fieldKind
	codec      Codec
	converters search.Converters
}

type createFunc[B any] func(base fieldBuilderBase, convert search.ValueConvert) (B, error)

// elementFactory is the factory every embedded field element is registered with.
type elementFactory[B any] struct {
	key        search.ElementKey[B]
	kind       fieldKind
	codec      Codec
	converters search.Converters
	create     createFunc[B]
}

func register[B any](r *registrar, key search.ElementKey[B], create createFunc[B]) {
	search.RegisterQueryElementFactory[B](r.builder, key, &elementFactory[B]{
		key:        key,
		kind:       r.kind,
		codec:      r.codec,
		converters: r.converters,
		create:     create,
	})
}

func (f *elementFactory[B]) Create(scope *search.IndexScope, field *search.ValueFieldContext, convert search.ValueConvert) (B, error) {
	var zero B
	if !field.Type().Has(f.key.Capability()) {
		return zero, search.NewFieldError(search.ErrorKindFieldCapability, field.IndexNames(), field.AbsolutePath(),
			"cannot use '%s': the field is not %s", f.key.Name(), f.key.Capability())
	}

	return f.create(fieldBuilderBase{
		scope: scope,
		field: field,
		kind:  f.kind,
		codec: f.codec,
	}, convert)
}

// HasCompatibleCodec also compares the kinds: a string and a text field share a codec but
// not the way they are indexed.
func (f *elementFactory[B]) HasCompatibleCodec(other interface{}) bool {
	o, ok := other.(*elementFactory[B])
	return ok && f.kind == o.kind && f.codec.IsCompatibleWith(o.codec)
}

func (f *elementFactory[B]) HasCompatibleConverter(other interface{}) bool {
	o, ok := other.(*elementFactory[B])
	return ok && f.converters.CompatibleWith(o.converters, f.key.ConverterSide())
}

// fieldBuilderBase is what every field element builder needs: the field, how it is indexed
// and its canonical codec.
type fieldBuilderBase struct {
	scope *search.IndexScope
	field *search.ValueFieldContext
	kind  fieldKind
	codec Codec
}

func (b *fieldBuilderBase) path() string {
	return b.field.AbsolutePath()
}

func (b *fieldBuilderBase) locate(err error, kind search.ErrorKind) error {
	return search.WithFieldContext(err, kind, b.field.IndexNames(), b.path())
}

func (b *fieldBuilderBase) encode(value interface{}, converter search.DslConverter) (interface{}, error) {
	if value == nil {
		return nil, search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(), "value must not be null")
	}
	converted, err := converter.ToIndexValue(value, b.scope.ConvertContext())
	if err != nil {
		return nil, b.locate(err, search.ErrorKindTypeMismatch)
	}
	encoded, err := b.codec.Encode(converted)
	if err != nil {
		return nil, b.locate(err, search.ErrorKindEncoding)
	}

	return encoded, nil
}

// encodeNumber encodes a bound of a numeric field.
func (b *fieldBuilderBase) encodeNumber(value interface{}, converter search.DslConverter) (*float64, error) {
	encoded, err := b.encode(value, converter)
	if err != nil {
		return nil, err
	}
	f := encoded.(float64)

	return &f, nil
}

func (b *fieldBuilderBase) codecForIndex(indexName string) Codec {
	if t := b.field.TypeForIndex(indexName); t != nil {
		if codec, ok := t.Codec().(Codec); ok {
			return codec
		}
	}

	return b.codec
}
