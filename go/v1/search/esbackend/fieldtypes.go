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
	"reflect"
	"time"

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

var esTypes = map[fieldKind]string{
	kindKeyword:  "keyword",
	kindText:     "text",
	kindBoolean:  "boolean",
	kindInteger:  "integer",
	kindLong:     "long",
	kindDouble:   "double",
	kindDecimal:  "scaled_float",
	kindDate:     "date",
	kindGeoPoint: "geo_point",
}

// FieldTypeFactory creates the field types of the Elasticsearch backend.
type FieldTypeFactory struct{}

func (f *FieldTypeFactory) AsString() *FieldTypeOptions {
	return newFieldTypeOptions(kindKeyword, reflect.TypeOf((*string)(nil)).Elem(), &StringCodec{})
}

func (f *FieldTypeFactory) AsText(analyzer string) *FieldTypeOptions {
	o := newFieldTypeOptions(kindText, reflect.TypeOf((*string)(nil)).Elem(), &StringCodec{})
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

// AsDate declares a date field accepting the given Elasticsearch formats, by default
// strict_date_optional_time||epoch_millis.
func (f *FieldTypeFactory) AsDate(formats ...string) *FieldTypeOptions {
	return newFieldTypeOptions(kindDate, reflect.TypeOf((*time.Time)(nil)).Elem(), NewDateCodec(formats...))
}

func (f *FieldTypeFactory) AsGeoPoint() *FieldTypeOptions {
	return newFieldTypeOptions(kindGeoPoint, reflect.TypeOf((*search.GeoPoint)(nil)).Elem(), &GeoPointCodec{})
}

// FieldTypeOptions configures one field type before it is built. Fields are searchable and
// projectable unless told otherwise, and neither sortable nor aggregable.
type FieldTypeOptions struct {
	kind           fieldKind
	valueType      reflect.Type
	codec          Codec
	searchable     bool
	sortable       bool
	projectable    bool
	aggregable     bool
	norms          *bool
	analyzer       string
	searchAnalyzer string
	normalizer     string
	indexNullAs    interface{}
	dsl            search.DslConverter
	projection     search.ProjectionConverter
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

func (o *FieldTypeOptions) Norms(norms bool) *FieldTypeOptions {
	o.norms = &norms
	return o
}

func (o *FieldTypeOptions) SearchAnalyzer(name string) *FieldTypeOptions {
	o.searchAnalyzer = name
	return o
}

func (o *FieldTypeOptions) Normalizer(name string) *FieldTypeOptions {
	o.normalizer = name
	return o
}

// IndexNullAs sets the value indexed in place of null; it goes through the DSL converter.
func (o *FieldTypeOptions) IndexNullAs(value interface{}) *FieldTypeOptions {
	o.indexNullAs = value
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

func (o *FieldTypeOptions) validate() []error {
	var errs []error
	if o.kind == kindText && (o.sortable || o.aggregable) {
		errs = append(errs, fmt.Errorf("text fields cannot be sortable or aggregable; declare a string field with a normalizer instead"))
	}
	if o.kind == kindGeoPoint && o.aggregable {
		errs = append(errs, fmt.Errorf("geo_point fields cannot be aggregable"))
	}
	if o.normalizer != "" && o.kind != kindKeyword {
		errs = append(errs, fmt.Errorf("normalizer '%s' can only be set on string fields", o.normalizer))
	}
	if o.norms != nil && o.kind != kindText && o.kind != kindKeyword {
		errs = append(errs, fmt.Errorf("norms can only be set on string and text fields"))
	}

	return errs
}

// ToIndexFieldType builds the field type, registering one factory per element the enabled
// capabilities allow.
func (o *FieldTypeOptions) ToIndexFieldType() (*search.IndexValueFieldType, error) {
	b := search.NewIndexValueFieldTypeBuilder(BackendName, o.valueType).
		Searchable(o.searchable).
		Sortable(o.sortable).
		Projectable(o.projectable).
		Aggregable(o.aggregable).
		Analyzer(o.analyzer).
		SearchAnalyzer(o.searchAnalyzer).
		Normalizer(o.normalizer).
		DslConverter(o.dsl).
		ProjectionConverter(o.projection).
		Codec(o.codec)

	switch o.kind {
	case kindText:
		b.HighlighterTypes(search.HighlighterPlain, search.HighlighterUnified, search.HighlighterFastVector)
	case kindKeyword:
		b.HighlighterTypes(search.HighlighterPlain, search.HighlighterUnified)
	}

	converters := search.Converters{Dsl: o.dsl, Projection: o.projection}
	if converters.Dsl == nil {
		converters.Dsl = search.RawDslConverter(o.valueType)
	}
	if converters.Projection == nil {
		converters.Projection = search.RawProjectionConverter(o.valueType)
	}

	property, err := o.propertyMapping(converters.Dsl)
	if err != nil {
		return nil, err
	}
	b.Metadata(property)

	geo := o.kind == kindGeoPoint
	if o.searchable {
		if geo {
			register(b, search.SpatialWithinCirclePredicateKey, o.codec, converters, newWithinCirclePredicateBuilder)
		} else {
			register(b, search.MatchPredicateKey, o.codec, converters, newMatchPredicateBuilder)
			register(b, search.RangePredicateKey, o.codec, converters, newRangePredicateBuilder)
		}
		register(b, search.ExistsPredicateKey, o.codec, converters, newExistsPredicateBuilder)
	}
	if o.projectable {
		register(b, search.FieldProjectionKey, o.codec, converters, newFieldProjectionBuilder)
		if geo {
			register(b, search.DistanceProjectionKey, o.codec, converters, newDistanceProjectionBuilder)
		}
	}
	if o.sortable {
		if geo {
			register(b, search.DistanceSortKey, o.codec, converters, newDistanceSortBuilder)
		} else {
			register(b, search.FieldSortKey, o.codec, converters, newFieldSortBuilder)
		}
	}
	if o.aggregable {
		register(b, search.TermsAggregationKey, o.codec, converters, newTermsAggregationBuilder)
		if o.kind != kindKeyword && o.kind != kindBoolean {
			register(b, search.RangeAggregationKey, o.codec, converters, newRangeAggregationBuilder)
		}
	}

	return b.Build()
}

func (o *FieldTypeOptions) propertyMapping(dsl search.DslConverter) (*PropertyMapping, error) {
	if errs := o.validate(); len(errs) > 0 {
		return nil, &search.SearchError{
			Kind:    search.ErrorKindBootstrap,
			Message: fmt.Sprintf("invalid %s field type: %v", esTypes[o.kind], errs),
		}
	}

	property := &PropertyMapping{
		Type:           esTypes[o.kind],
		Norms:          o.norms,
		Analyzer:       o.analyzer,
		SearchAnalyzer: o.searchAnalyzer,
		Normalizer:     o.normalizer,
	}
	if !o.searchable {
		property.Index = boolPtr(false)
	}
	docValues := o.sortable || o.aggregable || (o.kind == kindGeoPoint && o.projectable)
	if o.kind != kindText && !docValues {
		property.DocValues = boolPtr(false)
	}

	switch codec := o.codec.(type) {
	case *DecimalCodec:
		factor := codec.ScalingFactor()
		property.ScalingFactor = &factor
	case *DateCodec:
		property.Format = codec.MappingFormat()
	}

	if o.indexNullAs != nil {
		converted, err := dsl.ToIndexValue(o.indexNullAs, search.ConvertContext{})
		if err != nil {
			return nil, invalidNullValue(err)
		}
		encoded, err := o.codec.Encode(converted)
		if err != nil {
			return nil, invalidNullValue(err)
		}
		property.NullValue = encoded
	}

	return property, nil
}

func invalidNullValue(err error) error {
	return &search.SearchError{
		Kind:    search.ErrorKindBootstrap,
		Message: "invalid null value",
		Err:     err,
	}
}

func boolPtr(b bool) *bool {
	return &b
}

type createFunc[B any] func(base fieldBuilderBase, convert search.ValueConvert) (B, error)

// elementFactory is the factory every Elasticsearch field element is registered with. Two
// factories are codec-compatible when their codecs are.
type elementFactory[B any] struct {
	key        search.ElementKey[B]
	codec      Codec
	converters search.Converters
	create     createFunc[B]
}

func register[B any](b *search.IndexValueFieldTypeBuilder, key search.ElementKey[B], codec Codec, converters search.Converters, create createFunc[B]) {
	search.RegisterQueryElementFactory[B](b, key, &elementFactory[B]{
		key:        key,
		codec:      codec,
		converters: converters,
		create:     create,
	})
}

func (f *elementFactory[B]) Create(scope *search.IndexScope, field *search.ValueFieldContext, convert search.ValueConvert) (B, error) {
	var zero B
	if !field.Type().Has(f.key.Capability()) {
		return zero, search.NewFieldError(search.ErrorKindFieldCapability, field.IndexNames(), field.AbsolutePath(),
			"cannot use '%s': the field is not %s", f.key.Name(), f.key.Capability())
	}

	base, err := newFieldBuilderBase(scope, field, f.codec)
	if err != nil {
		return zero, err
	}

	return f.create(base, convert)
}

func (f *elementFactory[B]) HasCompatibleCodec(other interface{}) bool {
	o, ok := other.(*elementFactory[B])
	return ok && f.codec.IsCompatibleWith(o.codec)
}

func (f *elementFactory[B]) HasCompatibleConverter(other interface{}) bool {
	o, ok := other.(*elementFactory[B])
	return ok && f.converters.CompatibleWith(o.converters, f.key.ConverterSide())
}

// fieldBuilderBase is what every field element builder needs: the field, its canonical codec
// and the nested objects enclosing it.
type fieldBuilderBase struct {
	scope       *search.IndexScope
	field       *search.ValueFieldContext
	codec       Codec
	nestedPaths []string
}

func newFieldBuilderBase(scope *search.IndexScope, field *search.ValueFieldContext, codec Codec) (fieldBuilderBase, error) {
	nestedPaths, err := field.NestedPathHierarchy()
	if err != nil {
		return fieldBuilderBase{}, err
	}

	return fieldBuilderBase{
		scope:       scope,
		field:       field,
		codec:       codec,
		nestedPaths: nestedPaths,
	}, nil
}

func (b *fieldBuilderBase) path() string {
	return b.field.AbsolutePath()
}

// unmapped is true when some targeted index has no mapping for the field.
func (b *fieldBuilderBase) unmapped() bool {
	return !b.field.DeclaredInAllIndexes()
}

func (b *fieldBuilderBase) locate(err error, kind search.ErrorKind) error {
	return search.WithFieldContext(err, kind, b.field.IndexNames(), b.path())
}

// encode converts a caller value with converter then encodes it with the codec.
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

// codecForIndex returns the codec the named index decodes the field with, which may differ
// from the canonical one for hit-decoded elements.
func (b *fieldBuilderBase) codecForIndex(indexName string) Codec {
	if t := b.field.TypeForIndex(indexName); t != nil {
		if codec, ok := t.Codec().(Codec); ok {
			return codec
		}
	}

	return b.codec
}
