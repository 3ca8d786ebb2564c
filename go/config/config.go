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

package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

const (
	BackendElasticsearch = "elasticsearch"
	BackendEmbedded      = "embedded"

	envPrefix = "SEARCH"
)

type SearchConfig struct {
	Backend       string               `mapstructure:"backend"`
	Elasticsearch *ElasticsearchConfig `mapstructure:"elasticsearch"`
	Embedded      *EmbeddedConfig      `mapstructure:"embedded"`
	Indexes       []*IndexConfig       `mapstructure:"indexes"`
}

type ElasticsearchConfig struct {
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Refresh  RefreshOption `mapstructure:"refresh"`
}

// EmbeddedConfig configures the bleve backend. Indexes are kept in memory when Path is empty.
type EmbeddedConfig struct {
	Path string `mapstructure:"path"`
}

// IndexConfig declares an index schema. Objects enclosing a field are created implicitly with the
// default structure unless declared in Objects.
type IndexConfig struct {
	Name    string          `mapstructure:"name"`
	Objects []*ObjectConfig `mapstructure:"objects"`
	Fields  []*FieldConfig  `mapstructure:"fields"`
}

type ObjectConfig struct {
	Path        string `mapstructure:"path"`
	Structure   string `mapstructure:"structure"`
	MultiValued bool   `mapstructure:"multiValued"`
}

type FieldConfig struct {
	Path        string   `mapstructure:"path"`
	Type        string   `mapstructure:"type"`
	Analyzer    string   `mapstructure:"analyzer"`
	Normalizer  string   `mapstructure:"normalizer"`
	Scale       int      `mapstructure:"scale"`
	Format      []string `mapstructure:"format"`
	Searchable  *bool    `mapstructure:"searchable"`
	Sortable    *bool    `mapstructure:"sortable"`
	Projectable *bool    `mapstructure:"projectable"`
	Aggregable  *bool    `mapstructure:"aggregable"`
	MultiValued bool     `mapstructure:"multiValued"`
}

// https://www.elastic.co/guide/en/elasticsearch/reference/current/docs-refresh.html
type RefreshOption string

func (r RefreshOption) String() string {
	return string(r)
}

const (
	RefreshTrue    RefreshOption = "true"
	RefreshWaitFor RefreshOption = "wait_for"
	RefreshFalse   RefreshOption = "false"
)

var fieldTypes = map[string]bool{
	"string":    true,
	"text":      true,
	"boolean":   true,
	"integer":   true,
	"long":      true,
	"double":    true,
	"decimal":   true,
	"date":      true,
	"geo_point": true,
}

var objectStructures = map[string]bool{
	"":          true,
	"default":   true,
	"flattened": true,
	"nested":    true,
}

func (c *ElasticsearchConfig) IsValid() error {
	var errs *multierror.Error
	if c.URL == "" {
		errs = multierror.Append(errs, fmt.Errorf("elasticsearch url is required"))
	}

	switch c.Refresh {
	case RefreshTrue, RefreshWaitFor, RefreshFalse:
	default:
		errs = multierror.Append(errs, fmt.Errorf("invalid refresh value: %s", c.Refresh))
	}

	return errs.ErrorOrNil()
}

func (c *IndexConfig) IsValid() error {
	var errs *multierror.Error
	if c.Name == "" {
		errs = multierror.Append(errs, fmt.Errorf("index name is required"))
	}
	for _, o := range c.Objects {
		if o.Path == "" {
			errs = multierror.Append(errs, fmt.Errorf("index %s: object path is required", c.Name))
		}
		if !objectStructures[o.Structure] {
			errs = multierror.Append(errs, fmt.Errorf("index %s: invalid structure %q for object %s", c.Name, o.Structure, o.Path))
		}
	}
	for _, f := range c.Fields {
		if f.Path == "" {
			errs = multierror.Append(errs, fmt.Errorf("index %s: field path is required", c.Name))
		}
		if !fieldTypes[f.Type] {
			errs = multierror.Append(errs, fmt.Errorf("index %s: invalid type %q for field %s", c.Name, f.Type, f.Path))
		}
	}

	return errs.ErrorOrNil()
}

func (c *SearchConfig) IsValid() error {
	var errs *multierror.Error
	switch c.Backend {
	case BackendElasticsearch:
		if c.Elasticsearch == nil {
			errs = multierror.Append(errs, fmt.Errorf("elasticsearch configuration is required"))
		} else if err := c.Elasticsearch.IsValid(); err != nil {
			errs = multierror.Append(errs, err)
		}
	case BackendEmbedded:
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown backend: %s", c.Backend))
	}

	names := map[string]bool{}
	for _, index := range c.Indexes {
		if err := index.IsValid(); err != nil {
			errs = multierror.Append(errs, err)
		}
		if names[index.Name] {
			errs = multierror.Append(errs, fmt.Errorf("duplicate index: %s", index.Name))
		}
		names[index.Name] = true
	}

	return errs.ErrorOrNil()
}

// Load reads the configuration file at path, if any, then applies SEARCH_* environment overrides
// (SEARCH_ELASTICSEARCH_URL for elasticsearch.url).
func Load(path string) (*SearchConfig, error) {
	v := viper.New()
	v.SetDefault("backend", BackendEmbedded)
	v.SetDefault("elasticsearch.refresh", string(RefreshTrue))
	v.SetDefault("elasticsearch.url", "")
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("embedded.path", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	c := &SearchConfig{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if err := c.IsValid(); err != nil {
		return nil, err
	}

	return c, nil
}
