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

package util

import (
	"context"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	. "github.com/onsi/gomega"
	"github.com/rode/search-bridge/go/config"
	"github.com/rode/search-bridge/go/v1/bridge"
	"go.uber.org/zap"
)

var fake = gofakeit.New(0)

type Setup struct {
	Ctx    context.Context
	Bridge *bridge.Bridge
	Index  string
}

func checkErrFatal(e error) {
	if e != nil {
		log.Fatalf("Failed to create test setup.\nError: %v", e)
	}
}

// NewSetup maps the given fields in a new, randomly named index on the cluster at
// SEARCH_ELASTICSEARCH_URL, or localhost:9200.
func NewSetup(fields ...*config.FieldConfig) *Setup {
	ctx := context.Background()

	url, ok := os.LookupEnv("SEARCH_ELASTICSEARCH_URL")
	if !ok {
		url = "http://localhost:9200"
	}
	index := RandomIndexName()
	b, err := bridge.New(ctx, zap.NewNop(), &config.SearchConfig{
		Backend:       config.BackendElasticsearch,
		Elasticsearch: &config.ElasticsearchConfig{URL: url, Refresh: config.RefreshTrue},
		Indexes:       []*config.IndexConfig{{Name: index, Fields: fields}},
	})
	checkErrFatal(err)

	return &Setup{
		Ctx:    ctx,
		Bridge: b,
		Index:  index,
	}
}

func NewExpect(t *testing.T) func(actual interface{}, extra ...interface{}) Assertion {
	g := NewGomegaWithT(t)
	return g.Expect
}

func RandomIndexName() string {
	return "test-" + strings.ToLower(fake.LetterN(12))
}
