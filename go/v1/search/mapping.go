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

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Backend compiles query elements into one native query language.
type Backend interface {
	Name() string
	// ValidateSchema rejects schemas using features the backend cannot index.
	ValidateSchema(schema *IndexSchema) error
	Predicates(scope *IndexScope) PredicateBuilders
	Projections(scope *IndexScope) ProjectionBuilders
	Sorts(scope *IndexScope) SortBuilders
	NewQuery(scope *IndexScope) QueryBuilder
}

// Mapping is the registry of every index schema of one backend. It is created at bootstrap
// and safe for concurrent use; each query gets its own IndexScope from it.
type Mapping struct {
	logger  *zap.Logger
	backend Backend
	schemas map[string]*IndexSchema
	names   []string
}

func NewMapping(logger *zap.Logger, backend Backend, schemas ...*IndexSchema) (*Mapping, error) {
	log := logger.Named("NewMapping").With(zap.String("backend", backend.Name()))
	var errs *multierror.Error

	m := &Mapping{
		logger:  logger,
		backend: backend,
		schemas: map[string]*IndexSchema{},
	}
	for _, schema := range schemas {
		name := schema.IndexName()
		if _, ok := m.schemas[name]; ok {
			errs = multierror.Append(errs, fmt.Errorf("duplicate index '%s'", name))
			continue
		}
		if schema.BackendName() != backend.Name() {
			errs = multierror.Append(errs, fmt.Errorf("index '%s' was built for backend '%s'", name, schema.BackendName()))
			continue
		}
		if err := backend.ValidateSchema(schema); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		m.schemas[name] = schema
		m.names = append(m.names, name)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, &SearchError{
			Kind:    ErrorKindBootstrap,
			Message: fmt.Sprintf("invalid mapping for backend '%s'", backend.Name()),
			Err:     err,
		}
	}
	sort.Strings(m.names)
	log.Debug("mapping ready", zap.Strings("indexes", m.names))

	return m, nil
}

func (m *Mapping) Backend() Backend {
	return m.backend
}

func (m *Mapping) IndexNames() []string {
	return append([]string(nil), m.names...)
}

func (m *Mapping) Schema(indexName string) (*IndexSchema, bool) {
	s, ok := m.schemas[indexName]
	return s, ok
}

// Scope creates a scope targeting the named indexes, or every index when none is named.
func (m *Mapping) Scope(indexNames ...string) (*IndexScope, error) {
	if len(indexNames) == 0 {
		indexNames = m.names
	}

	schemas := make([]*IndexSchema, 0, len(indexNames))
	for _, name := range indexNames {
		schema, ok := m.schemas[name]
		if !ok {
			return nil, NewError(ErrorKindInvalidArgument, "unknown index '%s', valid indexes are %v", name, m.names)
		}
		schemas = append(schemas, schema)
	}

	return NewIndexScope(m.backend, schemas...)
}
