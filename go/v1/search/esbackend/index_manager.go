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

	"github.com/hashicorp/go-multierror"
	"github.com/rode/search-bridge/go/v1/search"
	"github.com/rode/search-bridge/go/v1/search/esbackend/esutil"
	"go.uber.org/zap"
)

// IndexManager creates the Elasticsearch indexes of a mapping.
type IndexManager struct {
	logger *zap.Logger
	client esutil.Client
}

func NewIndexManager(logger *zap.Logger, client esutil.Client) *IndexManager {
	return &IndexManager{
		logger: logger,
		client: client,
	}
}

// CreateIndexes creates every index of the mapping that does not exist yet, attempting all of
// them before reporting failures.
func (im *IndexManager) CreateIndexes(ctx context.Context, mapping *search.Mapping) error {
	log := im.logger.Named("CreateIndexes")
	var errs *multierror.Error
	for _, name := range mapping.IndexNames() {
		schema, _ := mapping.Schema(name)
		typeMapping, err := BuildTypeMapping(schema)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}

		log.Debug("creating index", zap.String("index", name))
		if err := im.client.CreateIndex(ctx, &esutil.CreateIndexRequest{
			Index:       name,
			Mapping:     typeMapping,
			CheckExists: true,
		}); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return &search.SearchError{
			Kind:    search.ErrorKindBackend,
			Message: "unable to create indexes",
			Context: search.EventContext{Indexes: mapping.IndexNames()},
			Err:     err,
		}
	}

	return nil
}
