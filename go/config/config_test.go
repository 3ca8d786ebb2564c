package config

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/brianvoe/gofakeit/v6"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("ElasticsearchConfig", func() {
	DescribeTable("validation", func(c ElasticsearchConfig, shouldErr bool) {
		err := c.IsValid()

		if shouldErr {
			Expect(err).To(HaveOccurred())
		} else {
			Expect(err).ToNot(HaveOccurred())
		}
	},
		Entry("valid url, refresh true", ElasticsearchConfig{
			URL:     gofakeit.URL(),
			Refresh: RefreshTrue,
		}, false),
		Entry("valid url, refresh wait_for", ElasticsearchConfig{
			URL:     gofakeit.URL(),
			Refresh: RefreshWaitFor,
		}, false),
		Entry("valid url, refresh false", ElasticsearchConfig{
			URL:     gofakeit.URL(),
			Refresh: RefreshFalse,
		}, false),
		Entry("valid url, invalid refresh option", ElasticsearchConfig{
			URL:     gofakeit.URL(),
			Refresh: "somethingInvalid",
		}, true),
		Entry("missing url", ElasticsearchConfig{
			Refresh: RefreshTrue,
		}, true),
	)
})

var _ = Describe("SearchConfig", func() {
	DescribeTable("validation", func(c SearchConfig, shouldErr bool) {
		err := c.IsValid()

		if shouldErr {
			Expect(err).To(HaveOccurred())
		} else {
			Expect(err).ToNot(HaveOccurred())
		}
	},
		Entry("embedded backend", SearchConfig{Backend: BackendEmbedded}, false),
		Entry("elasticsearch backend", SearchConfig{
			Backend:       BackendElasticsearch,
			Elasticsearch: &ElasticsearchConfig{URL: gofakeit.URL(), Refresh: RefreshTrue},
		}, false),
		Entry("elasticsearch backend without configuration", SearchConfig{Backend: BackendElasticsearch}, true),
		Entry("unknown backend", SearchConfig{Backend: gofakeit.LetterN(8)}, true),
		Entry("valid index", SearchConfig{
			Backend: BackendEmbedded,
			Indexes: []*IndexConfig{{
				Name:    "books",
				Objects: []*ObjectConfig{{Path: "author", Structure: "nested"}},
				Fields:  []*FieldConfig{{Path: "author.name", Type: "text"}},
			}},
		}, false),
		Entry("invalid field type", SearchConfig{
			Backend: BackendEmbedded,
			Indexes: []*IndexConfig{{
				Name:   "books",
				Fields: []*FieldConfig{{Path: "title", Type: "blob"}},
			}},
		}, true),
		Entry("duplicate index", SearchConfig{
			Backend: BackendEmbedded,
			Indexes: []*IndexConfig{{Name: "books"}, {Name: "books"}},
		}, true),
	)
})

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = ioutil.TempDir("", "search-config")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
		os.Unsetenv("SEARCH_ELASTICSEARCH_URL")
	})

	It("should read the backend and the indexes from the file", func() {
		path := filepath.Join(dir, "config.yaml")
		Expect(ioutil.WriteFile(path, []byte(`
backend: elasticsearch
elasticsearch:
  url: http://localhost:9200
  refresh: wait_for
indexes:
  - name: books
    fields:
      - path: title
        type: text
        analyzer: english
      - path: price
        type: decimal
        scale: 2
        sortable: true
`), 0644)).To(Succeed())

		c, err := Load(path)

		Expect(err).ToNot(HaveOccurred())
		Expect(c.Backend).To(Equal(BackendElasticsearch))
		Expect(c.Elasticsearch.Refresh).To(Equal(RefreshWaitFor))
		Expect(c.Indexes).To(HaveLen(1))
		Expect(c.Indexes[0].Fields[1].Scale).To(Equal(2))
		Expect(*c.Indexes[0].Fields[1].Sortable).To(BeTrue())
		Expect(c.Indexes[0].Fields[1].Searchable).To(BeNil())
	})

	It("should let the environment override the file", func() {
		url := gofakeit.URL()
		os.Setenv("SEARCH_ELASTICSEARCH_URL", url)
		path := filepath.Join(dir, "config.yaml")
		Expect(ioutil.WriteFile(path, []byte("backend: elasticsearch\n"), 0644)).To(Succeed())

		c, err := Load(path)

		Expect(err).ToNot(HaveOccurred())
		Expect(c.Elasticsearch.URL).To(Equal(url))
		Expect(c.Elasticsearch.Refresh).To(Equal(RefreshTrue))
	})

	It("should default to the embedded backend", func() {
		c, err := Load("")

		Expect(err).ToNot(HaveOccurred())
		Expect(c.Backend).To(Equal(BackendEmbedded))
	})

	It("should fail on an invalid configuration", func() {
		path := filepath.Join(dir, "config.yaml")
		Expect(ioutil.WriteFile(path, []byte("backend: elasticsearch\n"), 0644)).To(Succeed())

		_, err := Load(path)

		Expect(err).To(HaveOccurred())
	})
})
