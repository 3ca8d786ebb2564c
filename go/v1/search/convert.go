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

// ValueConvert selects whether caller values go through the converters configured in the mapping.
type ValueConvert int

const (
	ValueConvertYes ValueConvert = iota
	ValueConvertNo
)

func (v ValueConvert) String() string {
	if v == ValueConvertNo {
		return "NO"
	}

	return "YES"
}

// ConvertContext carries ambient information available to converters.
type ConvertContext struct {
	TenantID string
	Locale   string
}

// DslConverter turns values passed to the query DSL into the field's native value type.
// ValueType is the type accepted from callers.
type DslConverter interface {
	ValueType() reflect.Type
	ToIndexValue(value interface{}, ctx ConvertContext) (interface{}, error)
	IsCompatibleWith(other DslConverter) bool
}

// ProjectionConverter turns native field values into the values returned by projections.
// ValueType is the type returned to callers.
type ProjectionConverter interface {
	ValueType() reflect.Type
	FromIndexValue(value interface{}, ctx ConvertContext) (interface{}, error)
	IsCompatibleWith(other ProjectionConverter) bool
}

// indexTyped is implemented by the converters of this package; it exposes the native
// type a converter produces (DSL side) or consumes (projection side).
type indexTyped interface {
	indexValueType() reflect.Type
}

type rawDslConverter struct {
	valueType reflect.Type
}

// RawDslConverter returns the pass-through DSL converter of a field whose native type is valueType.
func RawDslConverter(valueType reflect.Type) DslConverter {
	return &rawDslConverter{valueType: valueType}
}

func (c *rawDslConverter) ValueType() reflect.Type {
	return c.valueType
}

func (c *rawDslConverter) indexValueType() reflect.Type {
	return c.valueType
}

func (c *rawDslConverter) ToIndexValue(value interface{}, _ ConvertContext) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	if !reflect.TypeOf(value).AssignableTo(c.valueType) {
		return nil, NewError(ErrorKindTypeMismatch, "invalid value type: expected '%s', got '%T'", c.valueType, value)
	}

	return value, nil
}

func (c *rawDslConverter) IsCompatibleWith(other DslConverter) bool {
	o, ok := other.(*rawDslConverter)
	return ok && o.valueType == c.valueType
}

type rawProjectionConverter struct {
	valueType reflect.Type
}

// RawProjectionConverter returns the pass-through projection converter of a field whose native type is valueType.
func RawProjectionConverter(valueType reflect.Type) ProjectionConverter {
	return &rawProjectionConverter{valueType: valueType}
}

func (c *rawProjectionConverter) ValueType() reflect.Type {
	return c.valueType
}

func (c *rawProjectionConverter) indexValueType() reflect.Type {
	return c.valueType
}

func (c *rawProjectionConverter) FromIndexValue(value interface{}, _ ConvertContext) (interface{}, error) {
	return value, nil
}

func (c *rawProjectionConverter) IsCompatibleWith(other ProjectionConverter) bool {
	o, ok := other.(*rawProjectionConverter)
	return ok && o.valueType == c.valueType
}

type dslConverter[V, F any] struct {
	name string
	fn   func(V, ConvertContext) (F, error)
}

// NewDslConverter creates a DSL converter accepting V and producing the native type F.
// Two converters are compatible when they share the name and both types.
func NewDslConverter[V, F any](name string, fn func(V, ConvertContext) (F, error)) DslConverter {
	return &dslConverter[V, F]{name: name, fn: fn}
}

func (c *dslConverter[V, F]) ValueType() reflect.Type {
	return reflect.TypeOf((*V)(nil)).Elem()
}

func (c *dslConverter[V, F]) indexValueType() reflect.Type {
	return reflect.TypeOf((*F)(nil)).Elem()
}

func (c *dslConverter[V, F]) ToIndexValue(value interface{}, ctx ConvertContext) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	v, ok := value.(V)
	if !ok {
		return nil, NewError(ErrorKindTypeMismatch, "invalid value type for converter '%s': expected '%s', got '%T'", c.name, c.ValueType(), value)
	}

	return c.fn(v, ctx)
}

func (c *dslConverter[V, F]) IsCompatibleWith(other DslConverter) bool {
	o, ok := other.(*dslConverter[V, F])
	return ok && o.name == c.name
}

type projectionConverter[F, V any] struct {
	name string
	fn   func(F, ConvertContext) (V, error)
}

// NewProjectionConverter creates a projection converter consuming the native type F and returning V.
func NewProjectionConverter[F, V any](name string, fn func(F, ConvertContext) (V, error)) ProjectionConverter {
	return &projectionConverter[F, V]{name: name, fn: fn}
}

func (c *projectionConverter[F, V]) ValueType() reflect.Type {
	return reflect.TypeOf((*V)(nil)).Elem()
}

func (c *projectionConverter[F, V]) indexValueType() reflect.Type {
	return reflect.TypeOf((*F)(nil)).Elem()
}

func (c *projectionConverter[F, V]) FromIndexValue(value interface{}, ctx ConvertContext) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	f, ok := value.(F)
	if !ok {
		return nil, NewError(ErrorKindTypeMismatch, "invalid index value type for converter '%s': expected '%s', got '%T'", c.name, reflect.TypeOf((*F)(nil)).Elem(), value)
	}

	return c.fn(f, ctx)
}

func (c *projectionConverter[F, V]) IsCompatibleWith(other ProjectionConverter) bool {
	o, ok := other.(*projectionConverter[F, V])
	return ok && o.name == c.name
}

// Converters pairs the converters a field element factory was created with.
type Converters struct {
	Dsl        DslConverter
	Projection ProjectionConverter
}

// CompatibleWith compares the converter facing the given side.
func (c Converters) CompatibleWith(other Converters, side ConverterSide) bool {
	if side == ConverterSideProjection {
		return c.Projection.IsCompatibleWith(other.Projection)
	}

	return c.Dsl.IsCompatibleWith(other.Dsl)
}
