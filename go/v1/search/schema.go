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
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

type ObjectStructure int

const (
	ObjectStructureDefault ObjectStructure = iota
	ObjectStructureFlattened
	// ObjectStructureNested keeps the fields of each object together, so that predicates on
	// several of them match within one object rather than across the whole document.
	ObjectStructureNested
)

func (s ObjectStructure) String() string {
	switch s {
	case ObjectStructureFlattened:
		return "flattened"
	case ObjectStructureNested:
		return "nested"
	}

	return "default"
}

// IndexSchema is the immutable field tree of one index.
type IndexSchema struct {
	backendName  string
	indexName    string
	root         *ObjectField
	valueFields  map[string]*ValueField
	objectFields map[string]*ObjectField
}

func (s *IndexSchema) BackendName() string {
	return s.backendName
}

func (s *IndexSchema) IndexName() string {
	return s.indexName
}

func (s *IndexSchema) Root() *ObjectField {
	return s.root
}

func (s *IndexSchema) ValueField(absolutePath string) (*ValueField, bool) {
	f, ok := s.valueFields[absolutePath]
	return f, ok
}

func (s *IndexSchema) ObjectField(absolutePath string) (*ObjectField, bool) {
	f, ok := s.objectFields[absolutePath]
	return f, ok
}

// ValueFields returns every value field of the index sorted by absolute path.
func (s *IndexSchema) ValueFields() []*ValueField {
	fields := make([]*ValueField, 0, len(s.valueFields))
	for _, f := range s.valueFields {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].absolutePath < fields[j].absolutePath
	})

	return fields
}

type ObjectField struct {
	absolutePath        string
	relativeName        string
	parent              *ObjectField
	structure           ObjectStructure
	multiValued         bool
	nestedPathHierarchy []string
	valueChildren       []*ValueField
	objectChildren      []*ObjectField
}

func (o *ObjectField) IsRoot() bool {
	return o.parent == nil
}

func (o *ObjectField) AbsolutePath() string {
	return o.absolutePath
}

func (o *ObjectField) RelativeName() string {
	return o.relativeName
}

func (o *ObjectField) Parent() *ObjectField {
	return o.parent
}

func (o *ObjectField) Structure() ObjectStructure {
	return o.structure
}

func (o *ObjectField) Nested() bool {
	return o.structure == ObjectStructureNested
}

func (o *ObjectField) MultiValued() bool {
	return o.multiValued
}

// NestedPathHierarchy lists the absolute paths of the nested objects enclosing this object,
// outermost first, including itself when nested.
func (o *ObjectField) NestedPathHierarchy() []string {
	return o.nestedPathHierarchy
}

func (o *ObjectField) ValueFields() []*ValueField {
	return o.valueChildren
}

func (o *ObjectField) ObjectFields() []*ObjectField {
	return o.objectChildren
}

type ValueField struct {
	absolutePath        string
	relativeName        string
	parent              *ObjectField
	fieldType           *IndexValueFieldType
	multiValued         bool
	pathComponents      []string
	nestedPathHierarchy []string
}

func (f *ValueField) AbsolutePath() string {
	return f.absolutePath
}

func (f *ValueField) RelativeName() string {
	return f.relativeName
}

func (f *ValueField) Parent() *ObjectField {
	return f.parent
}

func (f *ValueField) Type() *IndexValueFieldType {
	return f.fieldType
}

// MultiValued is true when the field, or any object enclosing it, holds several values.
func (f *ValueField) MultiValued() bool {
	return f.multiValued
}

// PathComponents is the absolute path split on dots, computed once at bootstrap.
func (f *ValueField) PathComponents() []string {
	return f.pathComponents
}

func (f *ValueField) NestedPathHierarchy() []string {
	return f.nestedPathHierarchy
}

type IndexSchemaBuilder struct {
	backendName string
	indexName   string
	root        *ObjectFieldBuilder
	errs        *multierror.Error
}

func NewIndexSchemaBuilder(backendName, indexName string) *IndexSchemaBuilder {
	b := &IndexSchemaBuilder{
		backendName: backendName,
		indexName:   indexName,
	}
	b.root = &ObjectFieldBuilder{schema: b, names: map[string]struct{}{}}

	return b
}

func (b *IndexSchemaBuilder) Root() *ObjectFieldBuilder {
	return b.root
}

type ObjectFieldBuilder struct {
	schema      *IndexSchemaBuilder
	name        string
	path        string
	structure   ObjectStructure
	multiValued bool
	names       map[string]struct{}
	values      []*ValueFieldBuilder
	objects     []*ObjectFieldBuilder
}

type ValueFieldBuilder struct {
	name        string
	fieldType   *IndexValueFieldType
	multiValued bool
}

func (o *ObjectFieldBuilder) childPath(name string) string {
	if o.path == "" {
		return name
	}

	return o.path + "." + name
}

func (o *ObjectFieldBuilder) claim(name string) {
	path := o.childPath(name)
	if name == "" || strings.Contains(name, ".") {
		o.schema.errs = multierror.Append(o.schema.errs, fmt.Errorf("invalid field name '%s' at '%s': names must be non-empty and must not contain dots", name, path))
		return
	}
	if _, ok := o.names[name]; ok {
		o.schema.errs = multierror.Append(o.schema.errs, fmt.Errorf("duplicate field '%s'", path))
		return
	}
	o.names[name] = struct{}{}
}

// Field declares a value field named name in this object.
func (o *ObjectFieldBuilder) Field(name string, fieldType *IndexValueFieldType) *ValueFieldBuilder {
	o.claim(name)
	v := &ValueFieldBuilder{name: name, fieldType: fieldType}
	o.values = append(o.values, v)

	return v
}

// Object declares an object field named name in this object.
func (o *ObjectFieldBuilder) Object(name string, structure ObjectStructure) *ObjectFieldBuilder {
	o.claim(name)
	child := &ObjectFieldBuilder{
		schema:    o.schema,
		name:      name,
		path:      o.childPath(name),
		structure: structure,
		names:     map[string]struct{}{},
	}
	o.objects = append(o.objects, child)

	return child
}

func (o *ObjectFieldBuilder) MultiValued() *ObjectFieldBuilder {
	o.multiValued = true
	return o
}

func (v *ValueFieldBuilder) MultiValued() *ValueFieldBuilder {
	v.multiValued = true
	return v
}

// Build freezes the schema, reporting every mapping mistake at once.
func (b *IndexSchemaBuilder) Build() (*IndexSchema, error) {
	errs := b.errs
	if b.indexName == "" {
		errs = multierror.Append(errs, fmt.Errorf("missing index name"))
	}

	schema := &IndexSchema{
		backendName:  b.backendName,
		indexName:    b.indexName,
		valueFields:  map[string]*ValueField{},
		objectFields: map[string]*ObjectField{},
	}
	schema.root = b.buildObject(schema, b.root, nil, &errs)

	if err := errs.ErrorOrNil(); err != nil {
		return nil, &SearchError{
			Kind:    ErrorKindBootstrap,
			Message: "invalid index schema",
			Context: EventContext{Indexes: []string{b.indexName}},
			Err:     err,
		}
	}

	return schema, nil
}

func (b *IndexSchemaBuilder) buildObject(schema *IndexSchema, ob *ObjectFieldBuilder, parent *ObjectField, errs **multierror.Error) *ObjectField {
	object := &ObjectField{
		absolutePath: ob.path,
		relativeName: ob.name,
		parent:       parent,
		structure:    ob.structure,
		multiValued:  ob.multiValued,
	}
	if parent != nil {
		object.multiValued = object.multiValued || parent.multiValued
		object.nestedPathHierarchy = append([]string(nil), parent.nestedPathHierarchy...)
		if object.Nested() {
			object.nestedPathHierarchy = append(object.nestedPathHierarchy, object.absolutePath)
		}
		schema.objectFields[object.absolutePath] = object
	}

	for _, vb := range ob.values {
		path := ob.childPath(vb.name)
		if vb.fieldType == nil {
			*errs = multierror.Append(*errs, fmt.Errorf("missing type for field '%s'", path))
			continue
		}
		if vb.fieldType.BackendName() != b.backendName {
			*errs = multierror.Append(*errs, fmt.Errorf("field '%s' uses a type of backend '%s' in an index of backend '%s'", path, vb.fieldType.BackendName(), b.backendName))
			continue
		}
		field := &ValueField{
			absolutePath:        path,
			relativeName:        vb.name,
			parent:              object,
			fieldType:           vb.fieldType,
			multiValued:         vb.multiValued || object.multiValued,
			pathComponents:      strings.Split(path, "."),
			nestedPathHierarchy: object.nestedPathHierarchy,
		}
		object.valueChildren = append(object.valueChildren, field)
		schema.valueFields[path] = field
	}

	for _, child := range ob.objects {
		object.objectChildren = append(object.objectChildren, b.buildObject(schema, child, object, errs))
	}

	return object
}
