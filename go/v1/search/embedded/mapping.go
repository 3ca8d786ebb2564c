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
	"fmt"

	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/hashicorp/go-multierror"
	"github.com/rode/search-bridge/go/v1/search"
)

// normalizerAnalyzer implements LowercaseNormalizer.
const normalizerAnalyzer = "normalizer_lowercase"

// BuildIndexMapping renders the bleve mapping of an index from its schema. Fields that are not
// in the schema are neither indexed nor stored.
func BuildIndexMapping(schema *search.IndexSchema) (*mapping.IndexMappingImpl, error) {
	var errs *multierror.Error

	im := mapping.NewIndexMapping()
	im.IndexDynamic = false
	im.StoreDynamic = false
	im.DocValuesDynamic = false
	if err := im.AddCustomAnalyzer(normalizerAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		errs = multierror.Append(errs, err)
	}
	im.DefaultMapping = buildDocumentMapping(schema.Root(), &errs)

	if errs.ErrorOrNil() == nil {
		if err := im.Validate(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, &search.SearchError{
			Kind:    search.ErrorKindBootstrap,
			Message: "invalid bleve mapping",
			Context: search.EventContext{Indexes: []string{schema.IndexName()}},
			Err:     err,
		}
	}

	return im, nil
}

func buildDocumentMapping(object *search.ObjectField, errs **multierror.Error) *mapping.DocumentMapping {
	dm := mapping.NewDocumentMapping()
	dm.Dynamic = false

	for _, field := range object.ValueFields() {
		metadata, ok := field.Type().Metadata().(*mapping.FieldMapping)
		if !ok {
			*errs = multierror.Append(*errs, fmt.Errorf("field '%s' has no bleve mapping", field.AbsolutePath()))
			continue
		}
		fm := *metadata
		dm.AddFieldMappingsAt(field.RelativeName(), &fm)
	}

	for _, child := range object.ObjectFields() {
		if child.Nested() {
			*errs = multierror.Append(*errs, fmt.Errorf("object '%s' is nested, which the embedded backend does not support", child.AbsolutePath()))
			continue
		}
		dm.AddSubDocumentMapping(child.RelativeName(), buildDocumentMapping(child, errs))
	}

	return dm
}
