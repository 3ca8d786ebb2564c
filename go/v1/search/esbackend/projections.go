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
	"sort"

	"github.com/rode/search-bridge/go/v1/search"
	"github.com/rode/search-bridge/go/v1/search/esbackend/esutil"
)

// esProjection contributes the source paths it needs to the request and then extracts its
// value from each hit.
type esProjection interface {
	search.SearchProjection
	request(r *requestContext)
	extract(h *hitContext) (interface{}, error)
}

type requestContext struct {
	fullSource  bool
	sourcePaths map[string]struct{}
	trackScores bool
}

func newRequestContext() *requestContext {
	return &requestContext{
		sourcePaths: map[string]struct{}{},
	}
}

func (r *requestContext) source() interface{} {
	if r.fullSource {
		return true
	}
	if len(r.sourcePaths) == 0 {
		return false
	}
	paths := make([]string, 0, len(r.sourcePaths))
	for path := range r.sourcePaths {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return paths
}

type hitContext struct {
	hit            *esutil.EsSearchResponseHit
	convertContext search.ConvertContext
	source         map[string]interface{}
}

func (h *hitContext) document() (map[string]interface{}, error) {
	if h.source == nil {
		source, err := esutil.DecodeSource(h.hit.Source)
		if err != nil {
			return nil, search.NewError(search.ErrorKindBackend, "invalid hit %s in index %s: %s", h.hit.ID, h.hit.Index, err)
		}
		h.source = source
	}

	return h.source, nil
}

// collectValues follows components through a document source, flattening arrays found at any
// level.
func collectValues(node interface{}, components []string) []interface{} {
	if node == nil {
		return nil
	}
	if array, ok := node.([]interface{}); ok {
		var values []interface{}
		for _, item := range array {
			values = append(values, collectValues(item, components)...)
		}
		return values
	}
	if len(components) == 0 {
		return []interface{}{node}
	}
	object, ok := node.(map[string]interface{})
	if !ok {
		return nil
	}

	return collectValues(object[components[0]], components[1:])
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
	convert   search.ValueConvert
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
		convert:          convert,
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
		components:       b.field.PathComponents(),
		converter:        b.converter,
		multi:            b.multi,
	}, nil
}

type fieldProjection struct {
	fieldBuilderBase
	indexes    []string
	components []string
	converter  search.ProjectionConverter
	multi      bool
}

func (p *fieldProjection) IndexNames() []string {
	return p.indexes
}

func (p *fieldProjection) request(r *requestContext) {
	r.sourcePaths[p.path()] = struct{}{}
}

// extract decodes the values with the codec of the index the hit comes from.
func (p *fieldProjection) extract(h *hitContext) (interface{}, error) {
	document, err := h.document()
	if err != nil {
		return nil, err
	}
	codec := p.codecForIndex(h.hit.Index)

	var raw []interface{}
	if _, geo := codec.(*GeoPointCodec); geo {
		raw = collectGeoPoints(document, p.components)
	} else {
		raw = collectValues(document, p.components)
	}
	values := make([]interface{}, 0, len(raw))
	for _, stored := range raw {
		decoded, err := codec.Decode(stored)
		if err != nil {
			return nil, search.WithFieldContext(err, search.ErrorKindEncoding, []string{h.hit.Index}, p.path())
		}
		converted, err := p.converter.FromIndexValue(decoded, h.convertContext)
		if err != nil {
			return nil, search.WithFieldContext(err, search.ErrorKindTypeMismatch, []string{h.hit.Index}, p.path())
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
		fieldBuilderBase: b.fieldBuilderBase,
		indexes:          b.scope.IndexNames(),
		components:       b.field.PathComponents(),
		center:           *b.center,
		unit:             b.unit,
		multi:            b.multi,
	}, nil
}

// distanceProjection reads the points from the source, through any nested object, and
// computes their arc distance to the center.
type distanceProjection struct {
	fieldBuilderBase
	indexes    []string
	components []string
	center     search.GeoPoint
	unit       search.DistanceUnit
	multi      bool
}

func (p *distanceProjection) IndexNames() []string {
	return p.indexes
}

func (p *distanceProjection) request(r *requestContext) {
	r.sourcePaths[p.path()] = struct{}{}
}

func (p *distanceProjection) extract(h *hitContext) (interface{}, error) {
	document, err := h.document()
	if err != nil {
		return nil, err
	}
	codec := p.codecForIndex(h.hit.Index)

	raw := collectGeoPoints(document, p.components)
	distances := make([]interface{}, 0, len(raw))
	for _, stored := range raw {
		decoded, err := codec.Decode(stored)
		if err != nil {
			return nil, search.WithFieldContext(err, search.ErrorKindEncoding, []string{h.hit.Index}, p.path())
		}
		point, ok := decoded.(search.GeoPoint)
		if !ok {
			return nil, search.NewFieldError(search.ErrorKindTypeMismatch, []string{h.hit.Index}, p.path(),
				"expected a geo point, got %T", decoded)
		}
		distances = append(distances, p.unit.FromMeters(p.center.ArcDistance(point)))
	}

	return singleOrMulti(distances, p.multi), nil
}

// collectGeoPoints works like collectValues but keeps [lon, lat] arrays whole.
func collectGeoPoints(node interface{}, components []string) []interface{} {
	if len(components) == 0 && isCoordinatePair(node) {
		return []interface{}{node}
	}
	if array, ok := node.([]interface{}); ok {
		var values []interface{}
		for _, item := range array {
			values = append(values, collectGeoPoints(item, components)...)
		}
		return values
	}
	if node == nil {
		return nil
	}
	if len(components) == 0 {
		return []interface{}{node}
	}
	object, ok := node.(map[string]interface{})
	if !ok {
		return nil
	}

	return collectGeoPoints(object[components[0]], components[1:])
}

func isCoordinatePair(node interface{}) bool {
	array, ok := node.([]interface{})
	if !ok || len(array) != 2 {
		return false
	}
	for _, item := range array {
		if _, err := decodeFloat64(item); err != nil {
			return false
		}
	}

	return true
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

func (p *scoreProjection) request(r *requestContext) {
	r.trackScores = true
}

func (p *scoreProjection) extract(h *hitContext) (interface{}, error) {
	if h.hit.Score == nil {
		return float64(0), nil
	}

	return *h.hit.Score, nil
}

// sourceProjection returns the whole document; it is used when a query selects nothing.
type sourceProjection struct {
	indexes []string
}

func (p *sourceProjection) IndexNames() []string {
	return p.indexes
}

func (p *sourceProjection) request(r *requestContext) {
	r.fullSource = true
}

func (p *sourceProjection) extract(h *hitContext) (interface{}, error) {
	return h.document()
}

type compositeProjection struct {
	indexes []string
	items   []esProjection
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
	projections := make([]esProjection, len(items))
	for i, item := range items {
		projection, err := asEsProjection(p.scope, item)
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

func asEsProjection(scope *search.IndexScope, p search.SearchProjection) (esProjection, error) {
	if p == nil {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "projection must not be null")
	}
	projection, ok := p.(esProjection)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "projection %T was not built by the Elasticsearch backend", p)
	}
	if err := search.CheckIndexNames(scope, projection.IndexNames()); err != nil {
		return nil, err
	}

	return projection, nil
}
