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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/hashicorp/go-multierror"
	"github.com/rode/search-bridge/go/v1/search"
	"go.uber.org/zap"
)

const indexDirSuffix = ".bleve"

// Store owns the bleve indexes of the embedded backend. Indexes live under path, or in memory
// when path is empty.
type Store struct {
	logger  *zap.Logger
	path    string
	mu      sync.RWMutex
	indexes map[string]bleve.Index
}

func NewStore(logger *zap.Logger, path string) *Store {
	return &Store{
		logger:  logger,
		path:    path,
		indexes: map[string]bleve.Index{},
	}
}

// CreateIndexes opens the index of every schema of the mapping, creating the missing ones.
func (s *Store) CreateIndexes(mapping *search.Mapping) error {
	log := s.logger.Named("CreateIndexes")
	var errs *multierror.Error

	for _, name := range mapping.IndexNames() {
		schema, _ := mapping.Schema(name)
		if err := s.open(schema); err != nil {
			log.Error("unable to open index", zap.String("index", name), zap.Error(err))
			errs = multierror.Append(errs, fmt.Errorf("index %s: %w", name, err))
			continue
		}
		log.Info("index ready", zap.String("index", name))
	}

	return errs.ErrorOrNil()
}

func (s *Store) open(schema *search.IndexSchema) error {
	name := schema.IndexName()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[name]; ok {
		return nil
	}

	indexMapping, err := BuildIndexMapping(schema)
	if err != nil {
		return err
	}

	var index bleve.Index
	if s.path == "" {
		index, err = bleve.NewMemOnly(indexMapping)
	} else {
		indexPath := filepath.Join(s.path, name+indexDirSuffix)
		if _, statErr := os.Stat(indexPath); statErr == nil {
			index, err = s.reopen(schema, indexPath, indexMapping)
		} else if err = os.MkdirAll(s.path, 0700); err == nil {
			index, err = bleve.New(indexPath, indexMapping)
		}
	}
	if err != nil {
		return err
	}
	index.SetName(name)
	s.indexes[name] = index

	return nil
}

// reopen opens an index kept on disk, refusing it when it was created from another schema.
func (s *Store) reopen(schema *search.IndexSchema, indexPath string, expected *mapping.IndexMappingImpl) (bleve.Index, error) {
	index, err := bleve.Open(indexPath)
	if err != nil {
		return nil, err
	}

	stored, err := canonicalMapping(index.Mapping())
	if err == nil {
		var built []byte
		built, err = canonicalMapping(expected)
		if err == nil && !bytes.Equal(stored, built) {
			err = &search.SearchError{
				Kind:    search.ErrorKindBootstrap,
				Message: fmt.Sprintf("the index at %s was created with a different mapping; remove it to rebuild the index", indexPath),
				Context: search.EventContext{Indexes: []string{schema.IndexName()}},
			}
		}
	}
	if err != nil {
		if closeErr := index.Close(); closeErr != nil {
			s.logger.Warn("unable to close index", zap.String("index", schema.IndexName()), zap.Error(closeErr))
		}
		return nil, err
	}

	return index, nil
}

// canonicalMapping serializes m the way bleve persists it, after a round trip so that a mapping
// built in memory and one read back from disk compare equal.
func canonicalMapping(m mapping.IndexMapping) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	decoded := mapping.NewIndexMapping()
	if err := json.Unmarshal(raw, decoded); err != nil {
		return nil, err
	}

	return json.Marshal(decoded)
}

func (s *Store) Index(name string) (bleve.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	index, ok := s.indexes[name]
	if !ok {
		return nil, search.NewError(search.ErrorKindBackend, "index '%s' is not open", name)
	}

	return index, nil
}

// Alias groups the named indexes so that one request searches them all.
func (s *Store) Alias(names []string) (bleve.IndexAlias, error) {
	indexes := make([]bleve.Index, 0, len(names))
	for _, name := range names {
		index, err := s.Index(name)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, index)
	}

	return bleve.NewIndexAlias(indexes...), nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs *multierror.Error
	for name, index := range s.indexes {
		if err := index.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("index %s: %w", name, err))
		}
		delete(s.indexes, name)
	}

	return errs.ErrorOrNil()
}
