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
)

type indexedValueField struct {
	index string
	field *ValueField
}

// ValueFieldContext is one value field as seen across the indexes of a scope. Compatibility
// between the declaring indexes is only checked for the query elements actually requested.
type ValueFieldContext struct {
	scope        *IndexScope
	absolutePath string
	nodes        []indexedValueField
	factories    map[string]interface{}
}

func (f *ValueFieldContext) Scope() *IndexScope {
	return f.scope
}

func (f *ValueFieldContext) AbsolutePath() string {
	return f.absolutePath
}

// IndexNames lists the targeted indexes declaring the field, sorted.
func (f *ValueFieldContext) IndexNames() []string {
	names := make([]string, len(f.nodes))
	for i, n := range f.nodes {
		names[i] = n.index
	}

	return names
}

// Type is the field type of the first declaring index.
func (f *ValueFieldContext) Type() *IndexValueFieldType {
	return f.nodes[0].field.Type()
}

// TypeForIndex returns the field type declared by one index, or nil when that index lacks the field.
func (f *ValueFieldContext) TypeForIndex(indexName string) *IndexValueFieldType {
	for _, n := range f.nodes {
		if n.index == indexName {
			return n.field.Type()
		}
	}

	return nil
}

// DeclaredInAllIndexes is false when some targeted index lacks the field.
func (f *ValueFieldContext) DeclaredInAllIndexes() bool {
	return len(f.nodes) == len(f.scope.schemas)
}

func (f *ValueFieldContext) MultiValued() bool {
	for _, n := range f.nodes {
		if n.field.MultiValued() {
			return true
		}
	}

	return false
}

func (f *ValueFieldContext) PathComponents() []string {
	return f.nodes[0].field.PathComponents()
}

// NestedPathHierarchy returns the nested objects enclosing the field, which must be the same
// in every declaring index.
func (f *ValueFieldContext) NestedPathHierarchy() ([]string, error) {
	canonical := f.nodes[0]
	for _, other := range f.nodes[1:] {
		if !equalStrings(canonical.field.NestedPathHierarchy(), other.field.NestedPathHierarchy()) {
			return nil, NewFieldError(ErrorKindIncompatible, []string{canonical.index, other.index}, f.absolutePath,
				"inconsistent nested structure: the field is enclosed in nested objects %v in index '%s' but %v in index '%s'",
				canonical.field.NestedPathHierarchy(), canonical.index, other.field.NestedPathHierarchy(), other.index)
		}
	}

	return canonical.field.NestedPathHierarchy(), nil
}

// DslConverter returns the converter selected by convert after checking every declaring
// index would convert DSL arguments the same way.
func (f *ValueFieldContext) DslConverter(convert ValueConvert) (DslConverter, error) {
	canonical := f.nodes[0]
	converter := canonical.field.Type().Converters(convert).Dsl
	for _, other := range f.nodes[1:] {
		if !converter.IsCompatibleWith(other.field.Type().Converters(convert).Dsl) {
			return nil, f.incompatibility(canonical, other, "DSL converter", convert)
		}
	}

	return converter, nil
}

func (f *ValueFieldContext) ProjectionConverter(convert ValueConvert) (ProjectionConverter, error) {
	canonical := f.nodes[0]
	converter := canonical.field.Type().Converters(convert).Projection
	for _, other := range f.nodes[1:] {
		if !converter.IsCompatibleWith(other.field.Type().Converters(convert).Projection) {
			return nil, f.incompatibility(canonical, other, "projection converter", convert)
		}
	}

	return converter, nil
}

func (f *ValueFieldContext) incompatibility(canonical, other indexedValueField, attribute string, convert ValueConvert) error {
	return NewFieldError(ErrorKindIncompatible, []string{canonical.index, other.index}, f.absolutePath,
		"inconsistent configuration for field '%s' in a search query across multiple indexes: attribute '%s' differs between index '%s' and index '%s' (value conversion %s)",
		f.absolutePath, attribute, canonical.index, other.index, convert)
}

// QueryElement resolves the factory serving key on this field, checks the declaring indexes
// agree on it, and creates a builder. Verdicts are memoized per key and conversion mode.
func QueryElement[B any](f *ValueFieldContext, key ElementKey[B], convert ValueConvert) (B, error) {
	var zero B
	factory, err := resolveFactory(f, key, convert)
	if err != nil {
		return zero, err
	}

	return factory.Create(f.scope, f, convert)
}

type factoryVerdict[B any] struct {
	factory ElementFactory[B]
	err     error
}

func resolveFactory[B any](f *ValueFieldContext, key ElementKey[B], convert ValueConvert) (ElementFactory[B], error) {
	cacheKey := fmt.Sprintf("%s/%s", key.name, convert)
	if cached, ok := f.factories[cacheKey]; ok {
		verdict := cached.(factoryVerdict[B])
		return verdict.factory, verdict.err
	}

	factory, err := checkFactory(f, key, convert)
	f.factories[cacheKey] = factoryVerdict[B]{factory: factory, err: err}

	return factory, err
}

func checkFactory[B any](f *ValueFieldContext, key ElementKey[B], convert ValueConvert) (ElementFactory[B], error) {
	canonical := f.nodes[0]
	factory, ok := QueryElementFactory(canonical.field.Type(), key)
	if !ok {
		return nil, missingCapability(f.absolutePath, canonical, key)
	}

	for _, other := range f.nodes[1:] {
		otherFactory, ok := QueryElementFactory(other.field.Type(), key)
		if !ok {
			return nil, NewFieldError(ErrorKindIncompatible, []string{canonical.index, other.index}, f.absolutePath,
				"inconsistent support for '%s': the field supports it in index '%s' but not in index '%s' (absent capability)",
				key.name, canonical.index, other.index)
		}

		if !key.hitDecoded || convert == ValueConvertYes {
			if !factory.HasCompatibleCodec(otherFactory) {
				return nil, f.incompatibility(canonical, other, "codec", convert)
			}
		}

		if convert == ValueConvertYes {
			if !factory.HasCompatibleConverter(otherFactory) {
				return nil, f.incompatibility(canonical, other, "converter", convert)
			}
		} else if canonical.field.Type().ValueType() != other.field.Type().ValueType() {
			return nil, f.incompatibility(canonical, other, "value type", convert)
		}
	}

	return factory, nil
}

func missingCapability[B any](path string, node indexedValueField, key ElementKey[B]) error {
	fieldType := node.field.Type()
	if !fieldType.Has(key.capability) {
		return NewFieldError(ErrorKindFieldCapability, []string{node.index}, path,
			"cannot use '%s' on field '%s': the field is not %s; make sure the field is marked as %s in the mapping",
			key.name, path, key.capability, key.capability)
	}

	return NewFieldError(ErrorKindFieldCapability, []string{node.index}, path,
		"cannot use '%s' on field '%s': %s; traits of this field are %v",
		key.name, path, key.unsupported, fieldType.Traits())
}

// ObjectFieldContext is one object field as seen across the indexes of a scope.
type ObjectFieldContext struct {
	absolutePath string
	targets      int
	indexes      []string
	objects      []*ObjectField
}

func (o *ObjectFieldContext) AbsolutePath() string {
	return o.absolutePath
}

func (o *ObjectFieldContext) IndexNames() []string {
	return append([]string(nil), o.indexes...)
}

// DeclaredInAllIndexes is false when some targeted index lacks the object.
func (o *ObjectFieldContext) DeclaredInAllIndexes() bool {
	return len(o.objects) == o.targets
}

func (o *ObjectFieldContext) Nested() bool {
	return o.objects[0].Nested()
}

func (o *ObjectFieldContext) NestedPathHierarchy() ([]string, error) {
	canonical := o.objects[0]
	for i, other := range o.objects[1:] {
		if !equalStrings(canonical.NestedPathHierarchy(), other.NestedPathHierarchy()) {
			return nil, NewFieldError(ErrorKindIncompatible, []string{o.indexes[0], o.indexes[i+1]}, o.absolutePath,
				"inconsistent nested structure: %v in index '%s' but %v in index '%s'",
				canonical.NestedPathHierarchy(), o.indexes[0], other.NestedPathHierarchy(), o.indexes[i+1])
		}
	}

	return canonical.NestedPathHierarchy(), nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
