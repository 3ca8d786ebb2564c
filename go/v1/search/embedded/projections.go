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
	"sort"

	"github.com/blevesearch/bleve/v2/geo"
	blevesearch "github.com/blevesearch/bleve/v2/search"
	"github.com/rode/search-bridge/go/v1/search"
)

// allFields asks bleve to load every stored field.
const allFields = "*"

type bleveProjection interface {
	search.SearchProjection
	request(r *requestContext)
	extract(h *hitContext) (interface{}, error)
}

type requestContext struct {
	fullSource bool
	fields     map[string]struct{}
}

func newRequestContext() *requestContext {
	return &requestContext{fields: map[string]struct{}{}}
}

func (r *requestContext) storedFields() []string {
	if r.fullSource {
		return []string{allFields}
	}
	fields := make([]string, 0, len(r.fields))
	for field := range r.fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	return fields
}

type hitContext struct {
	hit            *blevesearch.DocumentMatch
	defaultIndex   string
	convertContext search.ConvertContext
}

// index is the index the hit comes from. bleve leaves it empty when a single index is searched.
func (h *hitContext) index() string {
	if h.hit.Index != "" {
		return h.hit.Index
	}

	return h.defaultIndex
}

// storedValues lists the values bleve loaded for a field. bleve returns one value as is and
// several as a []interface{}; geo points are []float64 pairs.
func (h *hitContext) storedValues(path string) []interface{} {
	stored, ok := h.hit.Fields[path]
	if !ok || stored == nil {
		return nil
	}
	if values, ok := stored.([]interface{}); ok {
		return values
	}

	return []interface{}{stored}
}

func singleOrMulti(values []interface{}, multi bool) interface{} {
	if multi {
		if values == nil {
			return []interface{}{}
		}
		return values
	}
	if len(values) == 0 {
		return nil
	}

	return values[0]
}

func checkMultiValued(base *fieldBuilderBase, multi bool) error {
	if !multi && base.field.MultiValued() {
		return search.NewFieldError(search.ErrorKindInvalidArgument, base.field.IndexNames(), base.path(),
			"the field is multi-valued; use a multi-valued projection to retrieve all of its values")
	}

	return nil
}

type fieldProjectionBuilder struct {
	fieldBuilderBase
	converter search.ProjectionConverter
	multi     bool
}

func newFieldProjectionBuilder(base fieldBuilderBase, convert search.ValueConvert) (search.FieldProjectionBuilder, error) {
	converter, err := base.field.ProjectionConverter(convert)
	if err != nil {
		return nil, err
	}

	return &fieldProjectionBuilder{
		fieldBuilderBase: base,
		converter:        converter,
	}, nil
}

func (b *fieldProjectionBuilder) Multi() {
	b.multi = true
}

func (b *fieldProjectionBuilder) Build() (search.SearchProjection, error) {
	if err := checkMultiValued(&b.fieldBuilderBase, b.multi); err != nil {
		return nil, err
	}

	return &fieldProjection{
		fieldBuilderBase: b.fieldBuilderBase,
		indexes:          b.scope.IndexNames(),
		converter:        b.converter,
		multi:            b.multi,
	}, nil
}

type fieldProjection struct {
	fieldBuilderBase
	indexes   []string
	converter search.ProjectionConverter
	multi     bool
}

func (p *fieldProjection) IndexNames() []string {
	return p.indexes
}

func (p *fieldProjection) request(r *requestContext) {
	r.fields[p.path()] = struct{}{}
}

// extract decodes the values with the codec of the index the hit comes from.
func (p *fieldProjection) extract(h *hitContext) (interface{}, error) {
	index := h.index()
	codec := p.codecForIndex(index)

	raw := h.storedValues(p.path())
	values := make([]interface{}, 0, len(raw))
	for _, stored := range raw {
		decoded, err := codec.Decode(stored)
		if err != nil {
			return nil, search.WithFieldContext(err, search.ErrorKindEncoding, []string{index}, p.path())
		}
		converted, err := p.converter.FromIndexValue(decoded, h.convertContext)
		if err != nil {
			return nil, search.WithFieldContext(err, search.ErrorKindTypeMismatch, []string{index}, p.path())
		}
		values = append(values, converted)
	}

	return singleOrMulti(values, p.multi), nil
}

type distanceProjectionBuilder struct {
	fieldBuilderBase
	center *search.GeoPoint
	unit   search.DistanceUnit
	multi  bool
}

func newDistanceProjectionBuilder(base fieldBuilderBase, _ search.ValueConvert) (search.DistanceProjectionBuilder, error) {
	return &distanceProjectionBuilder{fieldBuilderBase: base}, nil
}

func (b *distanceProjectionBuilder) Center(center search.GeoPoint) error {
	if err := center.Validate(); err != nil {
		return b.locate(err, search.ErrorKindInvalidArgument)
	}
	b.center = &center

	return nil
}

func (b *distanceProjectionBuilder) Unit(unit search.DistanceUnit) {
	b.unit = unit
}

func (b *distanceProjectionBuilder) Multi() {
	b.multi = true
}

func (b *distanceProjectionBuilder) Build() (search.SearchProjection, error) {
	if b.center == nil {
		return nil, search.NewFieldError(search.ErrorKindInvalidArgument, b.field.IndexNames(), b.path(), "missing center")
	}
	if err := checkMultiValued(&b.fieldBuilderBase, b.multi); err != nil {
		return nil, err
	}

	return &distanceProjection{
		indexes: b.scope.IndexNames(),
		path:    b.path(),
		center:  *b.center,
		unit:    b.unit,
		multi:   b.multi,
	}, nil
}

// distanceProjection computes distances from the stored points, with the haversine formula
// bleve sorts by distance with.
type distanceProjection struct {
	indexes []string
	path    string
	center  search.GeoPoint
	unit    search.DistanceUnit
	multi   bool
}

func (p *distanceProjection) IndexNames() []string {
	return p.indexes
}

func (p *distanceProjection) request(r *requestContext) {
	r.fields[p.path] = struct{}{}
}

func (p *distanceProjection) extract(h *hitContext) (interface{}, error) {
	codec := &GeoPointCodec{}
	raw := h.storedValues(p.path)

	distances := make([]interface{}, 0, len(raw))
	for _, stored := range raw {
		decoded, err := codec.Decode(stored)
		if err != nil {
			return nil, search.WithFieldContext(err, search.ErrorKindEncoding, []string{h.index()}, p.path)
		}
		point := decoded.(search.GeoPoint)
		kilometers := geo.Haversin(p.center.Longitude, p.center.Latitude, point.Longitude, point.Latitude)
		distances = append(distances, p.unit.FromMeters(kilometers*1000))
	}

	return singleOrMulti(distances, p.multi), nil
}

type documentIDProjection struct {
	indexes []string
}

func (p *documentIDProjection) IndexNames() []string {
	return p.indexes
}

func (p *documentIDProjection) request(*requestContext) {}

func (p *documentIDProjection) extract(h *hitContext) (interface{}, error) {
	return h.hit.ID, nil
}

type scoreProjection struct {
	indexes []string
}

func (p *scoreProjection) IndexNames() []string {
	return p.indexes
}

func (p *scoreProjection) request(*requestContext) {}

func (p *scoreProjection) extract(h *hitContext) (interface{}, error) {
	return h.hit.Score, nil
}

// sourceProjection rebuilds the document from its stored fields; it is used when a query
// selects nothing. Fields that are not projectable are missing from it.
type sourceProjection struct {
	indexes []string
	schemas map[string]*search.IndexSchema
}

func newSourceProjection(scope *search.IndexScope) *sourceProjection {
	schemas := map[string]*search.IndexSchema{}
	for _, schema := range scope.Schemas() {
		schemas[schema.IndexName()] = schema
	}

	return &sourceProjection{
		indexes: scope.IndexNames(),
		schemas: schemas,
	}
}

func (p *sourceProjection) IndexNames() []string {
	return p.indexes
}

func (p *sourceProjection) request(r *requestContext) {
	r.fullSource = true
}

func (p *sourceProjection) extract(h *hitContext) (interface{}, error) {
	index := h.index()
	document := map[string]interface{}{}
	schema, ok := p.schemas[index]
	if !ok {
		return nil, search.NewError(search.ErrorKindBackend, "hit %s comes from unexpected index '%s'", h.hit.ID, index)
	}

	for path := range h.hit.Fields {
		field, ok := schema.ValueField(path)
		if !ok {
			continue
		}
		codec := field.Type().Codec().(Codec)
		raw := h.storedValues(path)
		values := make([]interface{}, 0, len(raw))
		for _, stored := range raw {
			decoded, err := codec.Decode(stored)
			if err != nil {
				return nil, search.WithFieldContext(err, search.ErrorKindEncoding, []string{index}, path)
			}
			values = append(values, decoded)
		}
		setPath(document, field.PathComponents(), singleOrMulti(values, field.MultiValued()))
	}

	return document, nil
}

func setPath(document map[string]interface{}, components []string, value interface{}) {
	node := document
	for _, component := range components[:len(components)-1] {
		child, ok := node[component].(map[string]interface{})
		if !ok {
			child = map[string]interface{}{}
			node[component] = child
		}
		node = child
	}
	node[components[len(components)-1]] = value
}

type compositeProjection struct {
	indexes []string
	items   []bleveProjection
}

func (p *compositeProjection) IndexNames() []string {
	return p.indexes
}

func (p *compositeProjection) request(r *requestContext) {
	for _, item := range p.items {
		item.request(r)
	}
}

func (p *compositeProjection) extract(h *hitContext) (interface{}, error) {
	values := make([]interface{}, len(p.items))
	for i, item := range p.items {
		value, err := item.extract(h)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}

	return values, nil
}

type projectionBuilders struct {
	scope *search.IndexScope
}

func (p *projectionBuilders) DocumentID() search.SearchProjection {
	return &documentIDProjection{indexes: p.scope.IndexNames()}
}

func (p *projectionBuilders) Score() search.SearchProjection {
	return &scoreProjection{indexes: p.scope.IndexNames()}
}

func (p *projectionBuilders) Composite(items ...search.SearchProjection) (search.SearchProjection, error) {
	projections := make([]bleveProjection, len(items))
	for i, item := range items {
		projection, err := asBleveProjection(p.scope, item)
		if err != nil {
			return nil, err
		}
		projections[i] = projection
	}

	return &compositeProjection{
		indexes: p.scope.IndexNames(),
		items:   projections,
	}, nil
}

func asBleveProjection(scope *search.IndexScope, p search.SearchProjection) (bleveProjection, error) {
	if p == nil {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "projection must not be null")
	}
	projection, ok := p.(bleveProjection)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "projection %T was not built by the embedded backend", p)
	}
	if err := search.CheckIndexNames(scope, projection.IndexNames()); err != nil {
		return nil, err
	}

	return projection, nil
}
