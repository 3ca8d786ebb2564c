package bridge

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"os"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rode/search-bridge/go/config"
	"github.com/rode/search-bridge/go/v1/search"
	"github.com/rode/search-bridge/go/v1/search/esbackend/esutil"
	"github.com/shopspring/decimal"
)

var _ = Describe("Bridge", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Context("on the embedded backend", func() {
		var b *Bridge

		BeforeEach(func() {
			var err error
			b, err = New(ctx, logger, &config.SearchConfig{
				Backend: config.BackendEmbedded,
				Indexes: []*config.IndexConfig{booksConfig()},
			})
			Expect(err).ToNot(HaveOccurred())

			for id, raw := range map[string]string{
				"b1": `{"title": "Dune", "genre": "sf", "pages": 412, "price": 12.35, "tags": ["classic", "desert"], "author": {"name": "Frank Herbert"}}`,
				"b2": `{"title": "Dune Messiah", "genre": "sf", "pages": 256, "price": "9.99", "tags": ["sequel"]}`,
				"b3": `{"title": "The Hobbit", "genre": "fantasy", "pages": 310, "price": 25}`,
			} {
				actual, err := b.IndexJSON(ctx, "books", id, []byte(raw))
				Expect(err).ToNot(HaveOccurred())
				Expect(actual).To(Equal(id))
			}
		})

		AfterEach(func() {
			Expect(b.Close()).To(Succeed())
		})

		It("should filter, sort and project", func() {
			result, err := b.Search(ctx, &SearchRequest{
				Filter: `genre == "sf" || pages > 300`,
				Sort:   []string{"-price"},
				Fields: []string{"title", "tags"},
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(result.TotalHits).To(BeEquivalentTo(3))
			Expect(result.Hits).To(Equal([]interface{}{
				[]interface{}{"b3", "The Hobbit", []interface{}{}},
				[]interface{}{"b1", "Dune", []interface{}{"classic", "desert"}},
				[]interface{}{"b2", "Dune Messiah", []interface{}{"sequel"}},
			}))
		})

		It("should return stored documents without fields", func() {
			result, err := b.Search(ctx, &SearchRequest{
				Indexes: []string{"books"},
				Filter:  `author.name == "frank herbert"`,
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Hits).To(HaveLen(1))
			document := result.Hits[0].(map[string]interface{})
			Expect(document["title"]).To(Equal("Dune"))
			Expect(document["price"].(decimal.Decimal).Equal(decimal.RequireFromString("12.35"))).To(BeTrue())
		})

		It("should page through the hits", func() {
			result, err := b.Search(ctx, &SearchRequest{
				Sort:   []string{"pages"},
				Fields: []string{"pages"},
				Offset: 1,
				Limit:  1,
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Hits).To(Equal([]interface{}{
				[]interface{}{"b3", int32(310)},
			}))
		})

		It("should report invalid filters", func() {
			_, err := b.Search(ctx, &SearchRequest{Filter: `pages > "many"`})

			Expect(search.IsErrorKind(err, search.ErrorKindTypeMismatch)).To(BeTrue())
		})

		It("should report sorts on fields that are not sortable", func() {
			_, err := b.Search(ctx, &SearchRequest{Sort: []string{"title"}})

			Expect(search.IsErrorKind(err, search.ErrorKindFieldCapability)).To(BeTrue())
		})

		It("should refuse documents for unknown indexes", func() {
			_, err := b.IndexJSON(ctx, fake.LetterN(10), "", []byte(`{}`))

			Expect(search.IsErrorKind(err, search.ErrorKindInvalidArgument)).To(BeTrue())
		})
	})

	It("should keep embedded indexes on disk", func() {
		dir, err := ioutil.TempDir("", "bridge")
		Expect(err).ToNot(HaveOccurred())
		defer os.RemoveAll(dir)
		c := &config.SearchConfig{
			Backend:  config.BackendEmbedded,
			Embedded: &config.EmbeddedConfig{Path: dir},
			Indexes:  []*config.IndexConfig{booksConfig()},
		}

		b, err := New(ctx, logger, c)
		Expect(err).ToNot(HaveOccurred())
		id, err := b.IndexJSON(ctx, "books", "", []byte(`{"title": "Dune"}`))
		Expect(err).ToNot(HaveOccurred())
		Expect(b.Close()).To(Succeed())

		b, err = New(ctx, logger, c)
		Expect(err).ToNot(HaveOccurred())
		defer b.Close()
		result, err := b.Search(ctx, &SearchRequest{Filter: `title.contains("dune")`, Fields: []string{"title"}})
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Hits).To(Equal([]interface{}{[]interface{}{id, "Dune"}}))
	})

	Context("on the Elasticsearch backend", func() {
		var (
			transport *esutil.MockEsTransport
			client    esutil.Client
			c         *config.SearchConfig
		)

		BeforeEach(func() {
			transport = &esutil.MockEsTransport{}
			esClient := &elasticsearch.Client{Transport: transport, API: esapi.New(transport)}
			client = esutil.NewClient(logger, esClient)
			c = &config.SearchConfig{
				Backend:       config.BackendElasticsearch,
				Elasticsearch: &config.ElasticsearchConfig{URL: fake.URL(), Refresh: config.RefreshWaitFor},
				Indexes:       []*config.IndexConfig{booksConfig()},
			}
		})

		It("should create the indexes and index JSON documents", func() {
			id := fake.UUID()
			transport.PreparedHttpResponses = []*http.Response{
				esutil.JsonResponse(http.StatusNotFound, map[string]interface{}{}),
				esutil.JsonResponse(http.StatusOK, map[string]interface{}{"acknowledged": true}),
				esutil.JsonResponse(http.StatusCreated, map[string]interface{}{"_id": id, "result": "created"}),
			}

			b, err := NewElasticsearch(ctx, logger, c, client)
			Expect(err).ToNot(HaveOccurred())
			actual, err := b.IndexJSON(ctx, "books", id, []byte(`{"title": "Dune", "price": 12.345, "pages": 412}`))

			Expect(err).ToNot(HaveOccurred())
			Expect(actual).To(Equal(id))
			Expect(transport.ReceivedHttpRequests).To(HaveLen(3))
			Expect(transport.ReceivedHttpRequests[1].Method).To(Equal(http.MethodPut))
			Expect(transport.ReceivedHttpRequests[1].URL.Path).To(Equal("/books"))
			request := transport.ReceivedHttpRequests[2]
			Expect(request.URL.Path).To(Equal("/books/_doc/" + id))
			Expect(request.URL.Query().Get("refresh")).To(Equal("wait_for"))
			body, err := ioutil.ReadAll(request.Body)
			Expect(err).ToNot(HaveOccurred())
			document := map[string]interface{}{}
			Expect(json.Unmarshal(body, &document)).To(Succeed())
			Expect(document).To(Equal(map[string]interface{}{
				"title": "Dune",
				"price": 12.35,
				"pages": float64(412),
			}))
		})

		It("should fail when the indexes cannot be created", func() {
			transport.PreparedHttpResponses = []*http.Response{
				esutil.JsonResponse(http.StatusInternalServerError, map[string]interface{}{}),
			}

			_, err := NewElasticsearch(ctx, logger, c, client)

			Expect(search.IsErrorKind(err, search.ErrorKindBackend)).To(BeTrue())
		})
	})

	It("should refuse unknown backends", func() {
		_, err := New(ctx, logger, &config.SearchConfig{Backend: fake.LetterN(8)})

		Expect(err).To(HaveOccurred())
	})
})
