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

import "encoding/json"

// Elasticsearch /_search response

type EsSearchResponse struct {
	Took         int                        `json:"took"`
	Shards       *EsSearchResponseShards    `json:"_shards,omitempty"`
	Hits         *EsSearchResponseHits      `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations,omitempty"`
}

// EsSearchResponseShards reports the shards that failed; a search still answers 200 when only
// some of them did.
type EsSearchResponseShards struct {
	Total      int               `json:"total"`
	Successful int               `json:"successful"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
	Failures   []*EsShardFailure `json:"failures,omitempty"`
}

type EsShardFailure struct {
	Shard  int     `json:"shard"`
	Index  string  `json:"index"`
	Reason ESError `json:"reason"`
}

type EsSearchResponseHits struct {
	Total *EsSearchResponseTotal `json:"total"`
	Hits  []*EsSearchResponseHit `json:"hits"`
}

type EsSearchResponseTotal struct {
	Value    int64  `json:"value"`
	Relation string `json:"relation,omitempty"`
}

type EsSearchResponseHit struct {
	Index  string                     `json:"_index"`
	ID     string                     `json:"_id"`
	Score  *float64                   `json:"_score"`
	Source json.RawMessage            `json:"_source,omitempty"`
	Fields map[string]json.RawMessage `json:"fields,omitempty"`
	Sort   []interface{}              `json:"sort,omitempty"`
}

// Elasticsearch /$INDEX creation request

type EsCreateIndexRequest struct {
	Mappings interface{}            `json:"mappings,omitempty"`
	Settings interface{}            `json:"settings,omitempty"`
	Aliases  map[string]interface{} `json:"aliases,omitempty"`
}

// Elasticsearch /_doc response

type EsIndexDocResponse struct {
	Id     string           `json:"_id"`
	Status int              `json:"status"`
	Error  *EsIndexDocError `json:"error,omitempty"`
}

type EsIndexDocError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Elasticsearch 400 error response

type ESErrorResponse struct {
	Error ESError `json:"error"`
}

type ESError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
