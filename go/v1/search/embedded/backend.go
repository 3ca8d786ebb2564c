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
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rode/search-bridge/go/v1/search"
	"go.uber.org/zap"
)

const BackendName = "embedded"

// Backend compiles queries into bleve search requests and executes them on the indexes of its
// store.
type Backend struct {
	logger *zap.Logger
	store  *Store
	types  *FieldTypeFactory
}

func NewBackend(logger *zap.Logger, store *Store) *Backend {
	return &Backend{
		logger: logger,
		store:  store,
		types:  &FieldTypeFactory{},
	}
}

func (b *Backend) Name() string {
	return BackendName
}

func (b *Backend) FieldTypes() *FieldTypeFactory {
	return b.types
}

func (b *Backend) Store() *Store {
	return b.store
}

// ValidateSchema checks every field type was created by this backend and refuses nested
// objects, which bleve cannot index.
func (b *Backend) ValidateSchema(schema *search.IndexSchema) error {
	var errs *multierror.Error
	for _, field := range schema.ValueFields() {
		if _, ok := field.Type().Codec().(Codec); !ok {
			errs = multierror.Append(errs, fmt.Errorf("field '%s' has no embedded codec", field.AbsolutePath()))
		}
		if _, ok := field.Type().Metadata().(*mapping.FieldMapping); !ok {
			errs = multierror.Append(errs, fmt.Errorf("field '%s' has no bleve mapping", field.AbsolutePath()))
		}
	}
	checkObjects(schema.Root(), &errs)

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

func checkObjects(object *search.ObjectField, errs **multierror.Error) {
	for _, child := range object.ObjectFields() {
		if child.Nested() {
			*errs = multierror.Append(*errs, fmt.Errorf("object '%s' is nested, which the embedded backend does not support", child.AbsolutePath()))
		}
		checkObjects(child, errs)
	}
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

// IndexDocument encodes and indexes a document, generating an ID when id is empty. The
// document is searchable as soon as it returns.
func (b *Backend) IndexDocument(ctx context.Context, schema *search.IndexSchema, id string, document map[string]interface{}) (string, error) {
	log := b.logger.Named("IndexDocument").With(zap.String("index", schema.IndexName()))
	if err := ctx.Err(); err != nil {
		return "", err
	}
	index, err := b.store.Index(schema.IndexName())
	if err != nil {
		return "", err
	}
	encoded, err := b.EncodeDocument(schema, document)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.New().String()
	}

	if err := index.Index(id, encoded); err != nil {
		return "", &search.SearchError{
			Kind:    search.ErrorKindBackend,
			Message: "unable to index document",
			Context: search.EventContext{Indexes: []string{schema.IndexName()}},
			Err:     err,
		}
	}
	log.Debug("document indexed", zap.String("id", id))

	return id, nil
}

// DeleteDocument removes a document; deleting a missing document is not an error.
func (b *Backend) DeleteDocument(ctx context.Context, schema *search.IndexSchema, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	index, err := b.store.Index(schema.IndexName())
	if err != nil {
		return err
	}
	if err := index.Delete(id); err != nil {
		return &search.SearchError{
			Kind:    search.ErrorKindBackend,
			Message: "unable to delete document " + id,
			Context: search.EventContext{Indexes: []string{schema.IndexName()}},
			Err:     err,
		}
	}

	return nil
}

// Search executes a query built by this backend.
func (b *Backend) Search(ctx context.Context, query search.SearchQuery) (*search.SearchResult, error) {
	log := b.logger.Named("Search").With(zap.Strings("indexes", query.IndexNames()))
	q, ok := query.(*Query)
	if !ok {
		return nil, search.NewError(search.ErrorKindInvalidArgument, "query %T was not built by the embedded backend", query)
	}
	alias, err := b.store.Alias(q.IndexNames())
	if err != nil {
		return nil, err
	}

	response, err := alias.SearchInContext(ctx, q.Request())
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
