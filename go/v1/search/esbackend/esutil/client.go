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

package esutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/google/uuid"
	"github.com/rode/search-bridge/go/config"
	"go.uber.org/zap"
)

type CreateIndexRequest struct {
	Index       string
	Alias       string
	Mapping     interface{}
	Settings    interface{}
	CheckExists bool
}

type IndexDocumentRequest struct {
	Index      string
	DocumentId string
	Document   interface{}
	Refresh    config.RefreshOption
}

type SearchRequest struct {
	Indexes []string
	Body    interface{}
}

type Client interface {
	CreateIndex(ctx context.Context, request *CreateIndexRequest) error
	IndexDocument(ctx context.Context, request *IndexDocumentRequest) (string, error)
	Search(ctx context.Context, request *SearchRequest) (*EsSearchResponse, error)
}

type client struct {
	logger   *zap.Logger
	esClient *elasticsearch.Client
}

func NewClient(logger *zap.Logger, esClient *elasticsearch.Client) Client {
	return &client{
		logger,
		esClient,
	}
}

// NewElasticsearchClient connects to the cluster at url and checks it answers.
func NewElasticsearchClient(logger *zap.Logger, url, username, password string) (*elasticsearch.Client, error) {
	c, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{
			url,
		},
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	res, err := c.Info()
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("unexpected response from elasticsearch: %s", res.String())
	}

	var r map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, err
	}

	if version, ok := r["version"].(map[string]interface{}); ok {
		logger.Debug("Successful Elasticsearch connection", zap.Any("ES Server version", version["number"]))
	}

	return c, nil
}

func (c *client) CreateIndex(ctx context.Context, request *CreateIndexRequest) error {
	log := c.logger.Named("CreateIndex").With(zap.String("index", request.Index))

	if request.CheckExists {
		res, err := c.esClient.Indices.Exists([]string{request.Index}, c.esClient.Indices.Exists.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("error checking if index %s exists: %s", request.Index, err)
		}

		if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusNotFound {
			log.Error("error checking if index exists", zap.String("response", res.String()), zap.Int("status", res.StatusCode))

			return fmt.Errorf("unexpected status code (%d) when checking if index exists", res.StatusCode)
		}

		if !res.IsError() {
			log.Debug("index already exists")
			return nil
		}
	}

	createIndexReq := &EsCreateIndexRequest{
		Mappings: request.Mapping,
		Settings: request.Settings,
	}
	if request.Alias != "" {
		createIndexReq.Aliases = map[string]interface{}{
			request.Alias: map[string]interface{}{},
		}
	}

	payload, payloadJson := EncodeRequest(createIndexReq)
	log.Debug("creating index", zap.String("request", payloadJson))
	res, err := c.esClient.Indices.Create(request.Index, c.esClient.Indices.Create.WithContext(ctx), c.esClient.Indices.Create.WithBody(payload))
	if err != nil {
		return fmt.Errorf("error creating index %s: %s", request.Index, err)
	}

	if res.IsError() {
		if res.StatusCode == http.StatusBadRequest {
			errResponse := ESErrorResponse{}
			if err := DecodeResponse(res.Body, &errResponse); err != nil {
				return fmt.Errorf("error decoding Elasticsearch error response: %s", err)
			}

			if errResponse.Error.Type == "resource_already_exists_exception" {
				log.Info("index already exists")
				return nil
			}

			return fmt.Errorf("error creating index %s: %s: %s", request.Index, errResponse.Error.Type, errResponse.Error.Reason)
		}

		return fmt.Errorf("error creating index, status: %d", res.StatusCode)
	}

	log.Info("index created")

	return nil
}

func (c *client) IndexDocument(ctx context.Context, request *IndexDocumentRequest) (string, error) {
	log := c.logger.Named("IndexDocument").With(zap.String("index", request.Index))

	if request.DocumentId == "" {
		request.DocumentId = uuid.New().String()
	}
	if request.Refresh == "" {
		request.Refresh = config.RefreshTrue
	}

	body, _ := EncodeRequest(request.Document)
	res, err := c.esClient.Index(
		request.Index,
		body,
		c.esClient.Index.WithContext(ctx),
		c.esClient.Index.WithDocumentID(request.DocumentId),
		c.esClient.Index.WithRefresh(request.Refresh.String()),
	)
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", errors.New(fmt.Sprintf("unexpected response from elasticsearch: %s", res.String()))
	}

	esResponse := EsIndexDocResponse{}
	if err := DecodeResponse(res.Body, &esResponse); err != nil {
		return "", err
	}

	log.Debug("elasticsearch response", zap.Any("response", esResponse))

	return esResponse.Id, nil
}

func (c *client) Search(ctx context.Context, request *SearchRequest) (*EsSearchResponse, error) {
	log := c.logger.Named("Search").With(zap.Strings("indexes", request.Indexes))
	encodedBody, requestJson := EncodeRequest(request.Body)
	log = log.With(zap.String("request", requestJson))
	log.Debug("performing search")

	res, err := c.esClient.Search(
		c.esClient.Search.WithContext(ctx),
		c.esClient.Search.WithIndex(request.Indexes...),
		c.esClient.Search.WithBody(encodedBody),
	)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, errors.New(fmt.Sprintf("unexpected response from elasticsearch: %s", res.String()))
	}

	var searchResults EsSearchResponse
	if err := DecodeResponse(res.Body, &searchResults); err != nil {
		return nil, err
	}
	if searchResults.Hits == nil {
		searchResults.Hits = &EsSearchResponseHits{Total: &EsSearchResponseTotal{}}
	}

	log.Debug("search complete", zap.Int("took", searchResults.Took))

	return &searchResults, nil
}
