package esbackend

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rode/search-bridge/go/v1/search"
	"github.com/shopspring/decimal"
)

var _ = Describe("aggregations", func() {
	var scope *search.IndexScope

	BeforeEach(func() {
		scope = newFixture(nil, 2).scope(booksIndex)
	})

	terms := func(path string, maxTermCount int) search.SearchAggregation {
		b, err := scope.TermsAggregation(path, search.ValueConvertYes)
		Expect(err).ToNot(HaveOccurred())
		if maxTermCount > 0 {
			Expect(b.MaxTermCount(maxTermCount)).To(Succeed())
		}
		a, err := b.Build()
		Expect(err).ToNot(HaveOccurred())

		return a
	}

	It("should render and extract terms and range aggregations", func() {
		prices, err := scope.RangeAggregation("price", search.ValueConvertYes)
		Expect(err).ToNot(HaveOccurred())
		cheap := search.RangeCanonical(nil, decimal.NewFromInt(10))
		expensive := search.RangeCanonical(decimal.NewFromInt(10), nil)
		Expect(prices.Range(cheap)).To(Succeed())
		Expect(prices.Range(expensive)).To(Succeed())
		pricesAggregation, err := prices.Build()
		Expect(err).ToNot(HaveOccurred())

		years, err := scope.RangeAggregation("published", search.ValueConvertYes)
		Expect(err).ToNot(HaveOccurred())
		recent := search.RangeCanonical(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), nil)
		Expect(years.Range(recent)).To(Succeed())
		yearsAggregation, err := years.Build()
		Expect(err).ToNot(HaveOccurred())

		q := compile(scope, func(q search.QueryBuilder) {
			Expect(q.Aggregate("genres", terms("genre", 0))).To(Succeed())
			Expect(q.Aggregate("amounts", terms("offers.amount", 5))).To(Succeed())
			Expect(q.Aggregate("prices", pricesAggregation)).To(Succeed())
			Expect(q.Aggregate("years", yearsAggregation)).To(Succeed())
			q.Limit(0)
		})

		Expect(toJson(q.Body()["aggs"])).To(MatchJSON(`{
			"genres": {"terms": {"field": "genre", "size": 100, "min_doc_count": 1, "order": [{"_count": "desc"}, {"_key": "asc"}]}},
			"amounts": {
				"nested": {"path": "offers"},
				"aggs": {"inner": {"terms": {"field": "offers.amount", "size": 5, "min_doc_count": 1, "order": [{"_count": "desc"}, {"_key": "asc"}]}}}
			},
			"prices": {"range": {"field": "price", "keyed": false, "ranges": [{"key": "0", "to": 10}, {"key": "1", "from": 10}]}},
			"years": {"date_range": {"field": "published", "keyed": false, "ranges": [{"key": "0", "from": "2020-01-01T00:00:00Z"}]}}
		}`))
		Expect(q.Body()["size"]).To(Equal(0))

		result, err := q.ExtractResult(responseOf(`{
			"hits": {"total": {"value": 9}, "hits": []},
			"aggregations": {
				"genres": {"buckets": [{"key": "sf", "doc_count": 3}, {"key": "fantasy", "doc_count": 1}]},
				"amounts": {"doc_count": 8, "inner": {"buckets": [{"key": 3, "doc_count": 2}]}},
				"prices": {"buckets": [{"key": "0", "to": 10.0, "doc_count": 2}, {"key": "1", "from": 10.0, "doc_count": 5}]},
				"years": {"buckets": [{"key": "0", "from": 1577836800000, "from_as_string": "2020-01-01T00:00:00.000Z", "doc_count": 4}]}
			}
		}`))

		Expect(err).ToNot(HaveOccurred())
		Expect(result.TotalHits).To(BeEquivalentTo(9))
		Expect(result.Hits).To(BeEmpty())
		Expect(result.Aggregations).To(Equal(map[string]interface{}{
			"genres": []search.TermBucket{
				{Key: "sf", Count: 3},
				{Key: "fantasy", Count: 1},
			},
			"amounts": []search.TermBucket{
				{Key: int64(3), Count: 2},
			},
			"prices": []search.RangeBucket{
				{Range: cheap, Count: 2},
				{Range: expensive, Count: 5},
			},
			"years": []search.RangeBucket{
				{Range: recent, Count: 4},
			},
		}))
	})

	It("should return empty buckets for ranges missing from the response", func() {
		b, err := scope.RangeAggregation("pages", search.ValueConvertYes)
		Expect(err).ToNot(HaveOccurred())
		Expect(b.Range(search.RangeCanonical(int32(0), int32(100)))).To(Succeed())
		a, err := b.Build()
		Expect(err).ToNot(HaveOccurred())
		q := compile(scope, func(q search.QueryBuilder) {
			Expect(q.Aggregate("pages", a)).To(Succeed())
		})

		result, err := q.ExtractResult(responseOf(`{"aggregations": {"pages": {"buckets": []}}}`))

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Aggregations["pages"]).To(Equal([]search.RangeBucket{
			{Range: search.RangeCanonical(int32(0), int32(100)), Count: 0},
		}))
	})

	It("should refuse ranges that are not canonical", func() {
		b, err := scope.RangeAggregation("price", search.ValueConvertYes)
		Expect(err).ToNot(HaveOccurred())

		err = b.Range(search.RangeBetween(decimal.NewFromInt(1), decimal.NewFromInt(2)))

		Expect(search.IsErrorKind(err, search.ErrorKindInvalidArgument)).To(BeTrue())
	})

	It("should refuse range aggregations on strings", func() {
		_, err := scope.RangeAggregation("genre", search.ValueConvertYes)

		Expect(search.IsErrorKind(err, search.ErrorKindFieldCapability)).To(BeTrue())
	})

	It("should refuse invalid term counts", func() {
		b, err := scope.TermsAggregation("genre", search.ValueConvertYes)
		Expect(err).ToNot(HaveOccurred())

		Expect(b.MaxTermCount(0)).ToNot(Succeed())
		Expect(b.MinDocumentCount(-1)).ToNot(Succeed())
	})

	It("should fail when the response lacks an aggregation", func() {
		q := compile(scope, func(q search.QueryBuilder) {
			Expect(q.Aggregate("genres", terms("genre", 0))).To(Succeed())
		})

		_, err := q.ExtractResult(responseOf(`{"hits": {"hits": []}}`))

		Expect(search.IsErrorKind(err, search.ErrorKindBackend)).To(BeTrue())
	})

	It("should refuse duplicate aggregation names", func() {
		q := scope.NewQuery()
		Expect(q.Aggregate("genres", terms("genre", 0))).To(Succeed())

		Expect(q.Aggregate("genres", terms("genre", 0))).ToNot(Succeed())
	})
})

var _ = Describe("query", func() {
	var scope *search.IndexScope

	BeforeEach(func() {
		scope = newFixture(nil, 2).scope(booksIndex)
	})

	It("should apply offset and limit", func() {
		q := compile(scope, func(q search.QueryBuilder) {
			q.Offset(20)
			q.Limit(5)
		})

		Expect(q.Body()["from"]).To(Equal(20))
		Expect(q.Body()["size"]).To(Equal(5))
		Expect(q.IndexNames()).To(Equal([]string{booksIndex}))
	})

	It("should only build once", func() {
		q := scope.NewQuery()
		_, err := q.Build()
		Expect(err).ToNot(HaveOccurred())

		_, err = q.Build()

		Expect(err).To(HaveOccurred())
	})

	It("should refuse elements built for other indexes", func() {
		f := newFixture(nil, 2)
		other, err := f.scope(magazinesIndex).FieldSort("genre", search.ValueConvertYes)
		Expect(err).ToNot(HaveOccurred())
		sort, err := other.Build()
		Expect(err).ToNot(HaveOccurred())

		Expect(f.scope(booksIndex).NewQuery().Sort(sort)).ToNot(Succeed())
	})
})
