package bridge

import (
	"github.com/rode/search-bridge/go/config"
)

func boolPtr(b bool) *bool {
	return &b
}

// booksConfig declares a books index with a field of every type.
func booksConfig() *config.IndexConfig {
	return &config.IndexConfig{
		Name: "books",
		Objects: []*config.ObjectConfig{
			{Path: "editions", MultiValued: true},
		},
		Fields: []*config.FieldConfig{
			{Path: "title", Type: "text"},
			{Path: "genre", Type: "string", Sortable: boolPtr(true), Aggregable: boolPtr(true)},
			{Path: "pages", Type: "integer", Sortable: boolPtr(true)},
			{Path: "price", Type: "decimal", Scale: 2, Sortable: boolPtr(true)},
			{Path: "published", Type: "date"},
			{Path: "available", Type: "boolean"},
			{Path: "location", Type: "geo_point"},
			{Path: "tags", Type: "string", MultiValued: true},
			{Path: "author.name", Type: "string", Normalizer: "lowercase"},
			{Path: "editions.year", Type: "long"},
		},
	}
}
