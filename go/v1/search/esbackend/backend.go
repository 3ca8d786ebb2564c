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
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/rode/search-bridge/go/config"
	"github.com/rode/search-bridge/go/v1/search"
	"github.com/rode/search-bridge/go/v1/search/esbackend/esutil"
	"go.uber.org/zap"
)

const BackendName = "elasticsearch"

// Backend compiles queries into Elasticsearch search requests and, when it has a client,
// executes them.
type Backend struct {
	logger  *zap.Logger
	client  esutil.Client
	refresh config.RefreshOption
	types   *FieldTypeFactory
}

func NewBackend(logger *zap.Logger, client esutil.Client, refresh config.RefreshOption) *Backend {
	return &Backend{
		logger:  logger,
		client:  client,
		refresh: refresh,
		types:   &FieldTypeFactory{},
	}
}

func (b *Backend) Name() string {
	return BackendName
}

func (b *Backend) FieldTypes() *FieldTypeFactory {
	return b.types
}

// ValidateSchema checks every field type of the schema was created by this backend.
func (b *Backend) ValidateSchema(schema *search.IndexSchema) error {
	var errs *multierror.Error
	for _, field := range schema.ValueFields() {
		if _, ok := field.Type().Codec().(Codec); !ok {
			errs = multierror.Append(errs, fmt.Errorf("field '%s' has no Elasticsearch codec", field.AbsolutePath()))
		}
		if _, ok := field.Type().Metadata().(*PropertyMapping); !ok {
			errs = multierror.Append(errs, fmt.Errorf("field '%s' has no Elasticsearch mapping", field.AbsolutePath()))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return &search.SearchError{
			Kind:    search.ErrorKindBootstrap,
			Message: "invalid schema",
			Context: search.EventContext{Indexes: []string{schema.IndexName()}},
			Err:     err,
		}
	}

	return nil
}

func (b *Backend) Predicates(scope *search.IndexScope) search.PredicateBuilders {
	return &predicateBuilders{scope: scope}
}

func (b *Backend) Projections(scope *search.IndexScope) search.ProjectionBuilders {
	return &projectionBuilders{scope: scope}
}

func (b *Backend) Sorts(scope *search.IndexScope) search.SortBuilders {
	return &sortBuilders{scope: scope}
}

func (b *Backend) NewQuery(scope *search.IndexScope) search.QueryBuilder {
	return newQueryBuilder(b.logger.Named("Query"), scope)
}

// EncodeDocument encodes a document through the codecs of the schema fields.
func (b *Backend) EncodeDocument(schema *search.IndexSchema, document map[string]interface{}) (map[string]interface{}, error) {
	return search.EncodeDocument(schema, document, func(field *search.ValueField, value interface{}) (interface{}, error) {
		return field.Type().Codec().(Codec).Encode(value)
	})
}

// IndexDocument encodes and indexes a document, generating an ID when id is empty.
func (b *Backend) IndexDocument(ctx context.Context, schema *search.IndexSchema, id string, document map[string]interface{}) (string, error) {
	if b.client == nil {
		return "", search.NewError(search.ErrorKindBackend, "no Elasticsearch client configured")
	}
	encoded, err := b.EncodeDocument(schema, document)
	if err != nil {
		return "", err
	}

	return b.client.IndexDocument(ctx, &esutil.IndexDocumentRequest{
		Index:      schema.IndexName(),
		DocumentId: id,
		Document:   encoded,
		Refresh:    b.refresh,
	})
}

// Search executes a query built by this backend.
func (b *Backend) Search(ctx context.Context, query search.SearchQuery) (*search.SearchResult, error) {
	log := b.logger.Named("Search").With(zap.Strings("indexes", query.IndexNames()))
	if b.client == nil {
		return nil, search.NewError(search.ErrorKindBackend, "no Elasticsearch client configured")
	}
	q, ok := query.(*Query)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "query %T was not built by the Elasticsearch backend", query)
	}

	response, err := b.client.Search(ctx, &esutil.SearchRequest{
		Indexes: q.IndexNames(),
		Body:    q.Body(),
	})
	if err != nil {
		return nil, &search.SearchError{
			Kind:    search.ErrorKindBackend,
			Message: "search request failed",
			Context: search.EventContext{Indexes: q.IndexNames()},
			Err:     err,
		}
	}

	result, err := q.ExtractResult(response)
	if err != nil {
		return nil, err
	}
	log.Debug("search complete", zap.Int64("totalHits", result.TotalHits), zap.Int("hits", len(result.Hits)))

	return result, nil
}
