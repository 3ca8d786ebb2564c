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

package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/rode/search-bridge/go/config"
	"github.com/rode/search-bridge/go/v1/search"
	"github.com/rode/search-bridge/go/v1/search/embedded"
	"github.com/rode/search-bridge/go/v1/search/esbackend"
	"github.com/rode/search-bridge/go/v1/search/esbackend/esutil"
	"github.com/rode/search-bridge/go/v1/search/filtering"
	"go.uber.org/zap"
)

// DocumentBackend is a search backend that also stores documents.
type DocumentBackend interface {
	search.Backend
	IndexDocument(ctx context.Context, schema *search.IndexSchema, id string, document map[string]interface{}) (string, error)
	Search(ctx context.Context, query search.SearchQuery) (*search.SearchResult, error)
}

// Bridge serves the indexes a configuration declares on the configured backend.
type Bridge struct {
	logger   *zap.Logger
	backend  DocumentBackend
	mapping  *search.Mapping
	filterer filtering.Filterer
	close    func() error
}

// SearchRequest describes a search. Sort entries are field paths, descending when prefixed
// with '-', or "_score". Without Fields, hits are the stored documents; with Fields, each hit is
// the document ID followed by the value of every field.
type SearchRequest struct {
	Indexes []string
	Filter  string
	Sort    []string
	Fields  []string
	Offset  int
	Limit   int
}

const scoreSort = "_score"

// New connects to the configured backend and creates the missing indexes.
func New(ctx context.Context, logger *zap.Logger, c *config.SearchConfig) (*Bridge, error) {
	switch c.Backend {
	case config.BackendElasticsearch:
		esClient, err := esutil.NewElasticsearchClient(logger, c.Elasticsearch.URL, c.Elasticsearch.Username, c.Elasticsearch.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
		}
		return NewElasticsearch(ctx, logger, c, esutil.NewClient(logger.Named("ESClient"), esClient))
	case config.BackendEmbedded:
		return NewEmbedded(logger, c)
	default:
		return nil, fmt.Errorf("unknown backend: %s", c.Backend)
	}
}

func NewElasticsearch(ctx context.Context, logger *zap.Logger, c *config.SearchConfig, client esutil.Client) (*Bridge, error) {
	backend := esbackend.NewBackend(logger.Named("Elasticsearch"), client, c.Elasticsearch.Refresh)
	mapping, err := newMapping(logger, backend, c.Indexes, ElasticsearchFieldTypes(backend.FieldTypes()))
	if err != nil {
		return nil, err
	}
	if err := esbackend.NewIndexManager(logger.Named("IndexManager"), client).CreateIndexes(ctx, mapping); err != nil {
		return nil, err
	}

	return newBridge(logger, backend, mapping, func() error { return nil })
}

func NewEmbedded(logger *zap.Logger, c *config.SearchConfig) (*Bridge, error) {
	path := ""
	if c.Embedded != nil {
		path = c.Embedded.Path
	}
	store := embedded.NewStore(logger.Named("Store"), path)
	backend := embedded.NewBackend(logger.Named("Embedded"), store)
	mapping, err := newMapping(logger, backend, c.Indexes, EmbeddedFieldTypes(backend.FieldTypes()))
	if err != nil {
		return nil, err
	}
	if err := store.CreateIndexes(mapping); err != nil {
		return nil, err
	}

	return newBridge(logger, backend, mapping, store.Close)
}

func newMapping(logger *zap.Logger, backend search.Backend, indexes []*config.IndexConfig, fieldTypes FieldTypeFunc) (*search.Mapping, error) {
	schemas := make([]*search.IndexSchema, 0, len(indexes))
	for _, index := range indexes {
		schema, err := NewSchema(backend.Name(), index, fieldTypes)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}

	return search.NewMapping(logger.Named("Mapping"), backend, schemas...)
}

func newBridge(logger *zap.Logger, backend DocumentBackend, mapping *search.Mapping, closer func() error) (*Bridge, error) {
	filterer, err := filtering.NewFilterer(logger.Named("Filterer"))
	if err != nil {
		return nil, err
	}

	return &Bridge{
		logger:   logger,
		backend:  backend,
		mapping:  mapping,
		filterer: filterer,
		close:    closer,
	}, nil
}

func (b *Bridge) Mapping() *search.Mapping {
	return b.mapping
}

// IndexJSON indexes a JSON document, generating its ID when id is empty.
func (b *Bridge) IndexJSON(ctx context.Context, indexName, id string, raw []byte) (string, error) {
	schema, ok := b.mapping.Schema(indexName)
	if !ok {
		return "", search.NewError(search.ErrorKindInvalidArgument, "unknown index '%s'", indexName)
	}
	document, err := DecodeDocument(schema, raw)
	if err != nil {
		return "", err
	}

	return b.backend.IndexDocument(ctx, schema, id, document)
}

func (b *Bridge) Search(ctx context.Context, request *SearchRequest) (*search.SearchResult, error) {
	log := b.logger.Named("Search").With(zap.Strings("indexes", request.Indexes), zap.String("filter", request.Filter))

	indexes := request.Indexes
	if len(indexes) == 0 {
		indexes = b.mapping.IndexNames()
	}
	scope, err := b.mapping.Scope(indexes...)
	if err != nil {
		return nil, err
	}

	q := scope.NewQuery()
	if request.Filter != "" {
		predicate, err := b.filterer.ParseExpression(scope, request.Filter)
		if err != nil {
			return nil, err
		}
		if err := q.Where(predicate); err != nil {
			return nil, err
		}
	}
	for _, s := range request.Sort {
		sort, err := buildSort(scope, s)
		if err != nil {
			return nil, err
		}
		if err := q.Sort(sort); err != nil {
			return nil, err
		}
	}
	if len(request.Fields) > 0 {
		projection, err := buildProjection(scope, request.Fields)
		if err != nil {
			return nil, err
		}
		if err := q.Select(projection); err != nil {
			return nil, err
		}
	}
	q.Offset(request.Offset)
	if request.Limit > 0 {
		q.Limit(request.Limit)
	}

	query, err := q.Build()
	if err != nil {
		return nil, err
	}
	result, err := b.backend.Search(ctx, query)
	if err != nil {
		log.Error("search failed", zap.Error(err))
		return nil, err
	}

	return result, nil
}

func buildSort(scope *search.IndexScope, s string) (search.SearchSort, error) {
	if s == scoreSort {
		return scope.Sorts().Score(search.SortOrderDesc), nil
	}

	order := search.SortOrderAsc
	if strings.HasPrefix(s, "-") {
		order = search.SortOrderDesc
		s = s[1:]
	}
	b, err := scope.FieldSort(s, search.ValueConvertYes)
	if err != nil {
		return nil, err
	}
	b.Order(order)

	return b.Build()
}

func buildProjection(scope *search.IndexScope, fields []string) (search.SearchProjection, error) {
	items := []search.SearchProjection{scope.Projections().DocumentID()}
	for _, path := range fields {
		field, err := scope.Field(path)
		if err != nil {
			return nil, err
		}
		b, err := scope.FieldProjection(path, nil, search.ValueConvertYes)
		if err != nil {
			return nil, err
		}
		if field.MultiValued() {
			b.Multi()
		}
		p, err := b.Build()
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}

	return scope.Projections().Composite(items...)
}

func (b *Bridge) Close() error {
	return b.close()
}
