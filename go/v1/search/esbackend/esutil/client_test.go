package esutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rode/search-bridge/go/config"
)

var _ = Describe("elasticsearch client", func() {
	var (
		client    Client
		transport *MockEsTransport
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()

		transport = &MockEsTransport{}
	})

	JustBeforeEach(func() {
		mockEsClient := &elasticsearch.Client{Transport: transport, API: esapi.New(transport)}
		client = NewClient(logger, mockEsClient)
	})

	Context("CreateIndex", func() {
		var (
			actualErr     error
			expectedIndex string
			expectedAlias string
			request       *CreateIndexRequest
		)

		BeforeEach(func() {
			expectedIndex = fake.LetterN(10)
			expectedAlias = fake.LetterN(10)
			request = &CreateIndexRequest{
				Index: expectedIndex,
				Alias: expectedAlias,
				Mapping: map[string]interface{}{
					"dynamic": "strict",
				},
			}
			transport.PreparedHttpResponses = []*http.Response{
				JsonResponse(http.StatusOK, map[string]interface{}{"acknowledged": true}),
			}
		})

		JustBeforeEach(func() {
			actualErr = client.CreateIndex(ctx, request)
		})

		It("should create the index with the mapping and the alias", func() {
			Expect(actualErr).ToNot(HaveOccurred())
			Expect(transport.ReceivedHttpRequests).To(HaveLen(1))
			Expect(transport.ReceivedHttpRequests[0].Method).To(Equal(http.MethodPut))
			Expect(transport.ReceivedHttpRequests[0].URL.Path).To(Equal("/" + expectedIndex))

			payload := map[string]interface{}{}
			body, err := ioutil.ReadAll(transport.ReceivedHttpRequests[0].Body)
			Expect(err).ToNot(HaveOccurred())
			Expect(json.Unmarshal(body, &payload)).To(Succeed())
			Expect(payload["mappings"]).To(Equal(map[string]interface{}{"dynamic": "strict"}))
			Expect(payload["aliases"]).To(HaveKey(expectedAlias))
			Expect(payload).ToNot(HaveKey("settings"))
		})

		When("the index already exists", func() {
			BeforeEach(func() {
				transport.PreparedHttpResponses = []*http.Response{
					JsonResponse(http.StatusBadRequest, &ESErrorResponse{
						Error: ESError{Type: "resource_already_exists_exception"},
					}),
				}
			})

			It("should not return an error", func() {
				Expect(actualErr).ToNot(HaveOccurred())
			})
		})

		When("the mapping is rejected", func() {
			BeforeEach(func() {
				transport.PreparedHttpResponses = []*http.Response{
					JsonResponse(http.StatusBadRequest, &ESErrorResponse{
						Error: ESError{Type: "mapper_parsing_exception", Reason: fake.Sentence(4)},
					}),
				}
			})

			It("should return the error type", func() {
				Expect(actualErr).To(MatchError(ContainSubstring("mapper_parsing_exception")))
			})
		})

		When("checking for existence first", func() {
			BeforeEach(func() {
				request.CheckExists = true
			})

			When("the index exists", func() {
				BeforeEach(func() {
					transport.PreparedHttpResponses = []*http.Response{{StatusCode: http.StatusOK, Body: ioutil.NopCloser(&emptyReader{})}}
				})

				It("should not create it", func() {
					Expect(actualErr).ToNot(HaveOccurred())
					Expect(transport.ReceivedHttpRequests).To(HaveLen(1))
					Expect(transport.ReceivedHttpRequests[0].Method).To(Equal(http.MethodHead))
				})
			})

			When("the index does not exist", func() {
				BeforeEach(func() {
					transport.PreparedHttpResponses = []*http.Response{
						{StatusCode: http.StatusNotFound, Body: ioutil.NopCloser(&emptyReader{})},
						JsonResponse(http.StatusOK, map[string]interface{}{"acknowledged": true}),
					}
				})

				It("should create it", func() {
					Expect(actualErr).ToNot(HaveOccurred())
					Expect(transport.ReceivedHttpRequests).To(HaveLen(2))
					Expect(transport.ReceivedHttpRequests[1].Method).To(Equal(http.MethodPut))
				})
			})

			When("the existence check fails", func() {
				BeforeEach(func() {
					transport.PreparedHttpResponses = []*http.Response{
						{StatusCode: http.StatusInternalServerError, Body: ioutil.NopCloser(&emptyReader{})},
					}
				})

				It("should return an error", func() {
					Expect(actualErr).To(HaveOccurred())
				})
			})
		})
	})

	Context("IndexDocument", func() {
		var (
			actualDocumentId   string
			actualErr          error
			expectedDocumentId string
			expectedIndex      string
			request            *IndexDocumentRequest
		)

		BeforeEach(func() {
			expectedDocumentId = fake.UUID()
			expectedIndex = fake.LetterN(10)
			request = &IndexDocumentRequest{
				Index:      expectedIndex,
				DocumentId: expectedDocumentId,
				Document:   map[string]interface{}{"title": fake.Sentence(3)},
			}
			transport.PreparedHttpResponses = []*http.Response{
				JsonResponse(http.StatusCreated, &EsIndexDocResponse{Id: expectedDocumentId}),
			}
		})

		JustBeforeEach(func() {
			actualDocumentId, actualErr = client.IndexDocument(ctx, request)
		})

		It("should index the document under the provided ID", func() {
			Expect(actualErr).ToNot(HaveOccurred())
			Expect(actualDocumentId).To(Equal(expectedDocumentId))
			Expect(transport.ReceivedHttpRequests[0].URL.Path).To(Equal(fmt.Sprintf("/%s/_doc/%s", expectedIndex, expectedDocumentId)))
		})

		It("should refresh the index by default", func() {
			Expect(transport.ReceivedHttpRequests[0].URL.Query().Get("refresh")).To(Equal("true"))
		})

		When("no document ID is provided", func() {
			BeforeEach(func() {
				request.DocumentId = ""
			})

			It("should generate one", func() {
				Expect(request.DocumentId).ToNot(BeEmpty())
				Expect(transport.ReceivedHttpRequests[0].URL.Path).To(Equal(fmt.Sprintf("/%s/_doc/%s", expectedIndex, request.DocumentId)))
			})
		})

		When("the refresh option is set to wait_for", func() {
			BeforeEach(func() {
				request.Refresh = config.RefreshWaitFor
			})

			It("should pass it along", func() {
				Expect(transport.ReceivedHttpRequests[0].URL.Query().Get("refresh")).To(Equal("wait_for"))
			})
		})

		When("indexing the document fails", func() {
			BeforeEach(func() {
				transport.PreparedHttpResponses[0] = JsonResponse(http.StatusInternalServerError, &EsIndexDocResponse{
					Error: &EsIndexDocError{
						Type:   fake.LetterN(10),
						Reason: fake.LetterN(10),
					},
				})
			})

			It("should return an error", func() {
				Expect(actualDocumentId).To(BeEmpty())
				Expect(actualErr).To(HaveOccurred())
			})
		})
	})

	Context("Search", func() {
		var (
			actualResponse *EsSearchResponse
			actualErr      error
			indexes        []string
		)

		BeforeEach(func() {
			indexes = []string{fake.LetterN(10), fake.LetterN(10)}
			transport.PreparedHttpResponses = []*http.Response{
				JsonResponse(http.StatusOK, map[string]interface{}{
					"took": 3,
					"hits": map[string]interface{}{
						"total": map[string]interface{}{"value": 1},
						"hits": []interface{}{
							map[string]interface{}{
								"_index":  indexes[0],
								"_id":     "1",
								"_score":  1.5,
								"_source": map[string]interface{}{"count": 9007199254740993},
							},
						},
					},
				}),
			}
		})

		JustBeforeEach(func() {
			actualResponse, actualErr = client.Search(ctx, &SearchRequest{
				Indexes: indexes,
				Body:    map[string]interface{}{"query": map[string]interface{}{"match_all": map[string]interface{}{}}},
			})
		})

		It("should search every index", func() {
			Expect(actualErr).ToNot(HaveOccurred())
			Expect(transport.ReceivedHttpRequests[0].URL.Path).To(Equal(fmt.Sprintf("/%s,%s/_search", indexes[0], indexes[1])))
		})

		It("should decode the hits", func() {
			Expect(actualResponse.Hits.Total.Value).To(BeEquivalentTo(1))
			Expect(actualResponse.Hits.Hits[0].Index).To(Equal(indexes[0]))
			Expect(*actualResponse.Hits.Hits[0].Score).To(Equal(1.5))

			source, err := DecodeSource(actualResponse.Hits.Hits[0].Source)
			Expect(err).ToNot(HaveOccurred())
			Expect(source["count"]).To(Equal(json.Number("9007199254740993")))
		})

		When("the search fails", func() {
			BeforeEach(func() {
				transport.PreparedHttpResponses = []*http.Response{
					JsonResponse(http.StatusBadRequest, &ESErrorResponse{Error: ESError{Type: "parsing_exception"}}),
				}
			})

			It("should return an error", func() {
				Expect(actualErr).To(HaveOccurred())
				Expect(actualResponse).To(BeNil())
			})
		})
	})
})

type emptyReader struct{}

func (r *emptyReader) Read([]byte) (int, error) {
	return 0, io.EOF
}
