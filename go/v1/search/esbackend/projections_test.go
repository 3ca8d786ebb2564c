package esbackend

import (
	"reflect"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/rode/search-bridge/go/v1/search"
	"github.com/shopspring/decimal"
)

var _ = Describe("projections", func() {
	var (
		f     *fixture
		scope *search.IndexScope
	)

	BeforeEach(func() {
		f = newFixture(nil, 2)
		scope = f.scope(booksIndex)
	})

	field := func(path string, multi bool) search.SearchProjection {
		b, err := scope.FieldProjection(path, nil, search.ValueConvertYes)
		Expect(err).ToNot(HaveOccurred())
		if multi {
			b.Multi()
		}
		p, err := b.Build()
		Expect(err).ToNot(HaveOccurred())

		return p
	}

	selecting := func(p search.SearchProjection) *Query {
		return compile(scope, func(q search.QueryBuilder) {
			Expect(q.Select(p)).To(Succeed())
		})
	}

	It("should return the source document by default", func() {
		q := compile(scope, func(search.QueryBuilder) {})

		result, err := q.ExtractResult(responseOf(`{"hits": {"total": {"value": 1}, "hits": [
			{"_index": "books", "_id": "1", "_source": {"title": "Dune", "pages": 412}}
		]}}`))

		Expect(err).ToNot(HaveOccurred())
		Expect(result.TotalHits).To(BeEquivalentTo(1))
		Expect(toJson(result.Hits[0])).To(MatchJSON(`{"title": "Dune", "pages": 412}`))
	})

	It("should compute distances from the projected source paths", func() {
		titleProjection := field("title", false)
		distance, err := scope.DistanceProjection("location", search.NewGeoPoint(45, 4))
		Expect(err).ToNot(HaveOccurred())
		distance.Unit(search.DistanceUnitKilometers)
		distanceProjection, err := distance.Build()
		Expect(err).ToNot(HaveOccurred())
		composite, err := scope.Projections().Composite(scope.Projections().DocumentID(), titleProjection, distanceProjection)
		Expect(err).ToNot(HaveOccurred())

		q := selecting(composite)

		Expect(q.Body()["_source"]).To(Equal([]string{"location", "title"}))
		Expect(q.Body()).ToNot(HaveKey("script_fields"))

		result, err := q.ExtractResult(responseOf(`{"hits": {"total": {"value": 2}, "hits": [
			{"_index": "books", "_id": "b1", "_source": {"title": "Dune", "location": {"lat": 46, "lon": 4}}},
			{"_index": "books", "_id": "b2", "_source": {"title": "Emma", "location": [4, 45]}}
		]}}`))

		Expect(err).ToNot(HaveOccurred())
		Expect(result.Hits).To(HaveLen(2))
		first := result.Hits[0].([]interface{})
		Expect(first[:2]).To(Equal([]interface{}{"b1", "Dune"}))
		Expect(first[2]).To(BeNumerically("~", 111.195, 0.001))
		second := result.Hits[1].([]interface{})
		Expect(second[2]).To(BeNumerically("~", 0, 1e-9))
	})

	It("should compute distances to points of nested objects", func() {
		types := f.backend.FieldTypes()
		stores := search.NewIndexSchemaBuilder(BackendName, "stores")
		branches := stores.Root().Object("branches", search.ObjectStructureNested).MultiValued()
		branches.Field("position", mustType(types.AsGeoPoint()))
		schema, err := stores.Build()
		Expect(err).ToNot(HaveOccurred())
		mapping, err := search.NewMapping(logger, f.backend, schema)
		Expect(err).ToNot(HaveOccurred())
		storesScope, err := mapping.Scope("stores")
		Expect(err).ToNot(HaveOccurred())

		distance, err := storesScope.DistanceProjection("branches.position", search.NewGeoPoint(45, 4))
		Expect(err).ToNot(HaveOccurred())
		distance.Multi()
		p, err := distance.Build()
		Expect(err).ToNot(HaveOccurred())
		q := compile(storesScope, func(q search.QueryBuilder) {
			Expect(q.Select(p)).To(Succeed())
		})

		Expect(q.Body()["_source"]).To(Equal([]string{"branches.position"}))

		result, err := q.ExtractResult(responseOf(`{"hits": {"hits": [
			{"_index": "stores", "_id": "s1", "_source": {"branches": [
				{"position": {"lat": 45, "lon": 4}},
				{"position": {"lat": 46, "lon": 4}}
			]}}
		]}}`))

		Expect(err).ToNot(HaveOccurred())
		distances := result.Hits[0].([]interface{})
		Expect(distances).To(HaveLen(2))
		Expect(distances[0]).To(BeNumerically("~", 0, 1e-9))
		Expect(distances[1]).To(BeNumerically("~", 111195.08, 0.01))
	})

	It("should track scores when sorting and projecting the score", func() {
		q := compile(scope, func(q search.QueryBuilder) {
			Expect(q.Select(scope.Projections().Score())).To(Succeed())
			Expect(q.Sort(scope.Sorts().Score(search.SortOrderDesc))).To(Succeed())
		})

		Expect(q.Body()["track_scores"]).To(BeTrue())
		Expect(q.Body()["_source"]).To(BeFalse())

		result, err := q.ExtractResult(responseOf(`{"hits": {"hits": [{"_index": "books", "_id": "1", "_score": 2.5}]}}`))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Hits).To(Equal([]interface{}{2.5}))
	})

	Describe("multi-valued fields", func() {
		It("should refuse single-valued projections", func() {
			b, err := scope.FieldProjection("tags", nil, search.ValueConvertYes)
			Expect(err).ToNot(HaveOccurred())

			_, err = b.Build()

			Expect(search.IsErrorKind(err, search.ErrorKindInvalidArgument)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("multi-valued"))
		})

		It("should collect every value", func() {
			q := selecting(field("tags", true))

			result, err := q.ExtractResult(responseOf(`{"hits": {"hits": [
				{"_index": "books", "_id": "1", "_source": {"tags": ["classic", "desert"]}},
				{"_index": "books", "_id": "2", "_source": {}}
			]}}`))

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Hits).To(Equal([]interface{}{
				[]interface{}{"classic", "desert"},
				[]interface{}{},
			}))
		})

		It("should collect values through nested objects", func() {
			q := selecting(field("offers.amount", true))

			result, err := q.ExtractResult(responseOf(`{"hits": {"hits": [
				{"_index": "books", "_id": "1", "_source": {"offers": [{"amount": 3}, {"seller": "acme"}, {"amount": 5}]}}
			]}}`))

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Hits).To(Equal([]interface{}{
				[]interface{}{int64(3), int64(5)},
			}))
		})
	})

	It("should decode projected values with their field codec", func() {
		q := selecting(field("published", false))

		result, err := q.ExtractResult(responseOf(`{"hits": {"hits": [
			{"_index": "books", "_id": "1", "_source": {"published": "2021-05-17T10:30:00Z"}},
			{"_index": "books", "_id": "2", "_source": {"published": 1577836800000}}
		]}}`))

		Expect(err).ToNot(HaveOccurred())
		Expect(toJson(result.Hits)).To(MatchJSON(`["2021-05-17T10:30:00Z", "2020-01-01T00:00:00Z"]`))
	})

	It("should report values that cannot be decoded", func() {
		q := selecting(field("pages", false))

		_, err := q.ExtractResult(responseOf(`{"hits": {"hits": [
			{"_index": "books", "_id": "1", "_source": {"pages": "many"}}
		]}}`))

		Expect(search.IsErrorKind(err, search.ErrorKindEncoding)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("pages"))
	})

	It("should refuse distance projections on fields that are not geo points", func() {
		_, err := scope.DistanceProjection("title", search.NewGeoPoint(0, 0))

		Expect(search.IsErrorKind(err, search.ErrorKindFieldCapability)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("Distance operations are not supported by this field type"))
	})

	Describe("across indexes with different decimal scales", func() {
		BeforeEach(func() {
			f = newFixture(nil, 4)
			scope = f.scope(booksIndex, magazinesIndex)
		})

		It("should decode raw projections with the codec of each hit's index", func() {
			b, err := scope.FieldProjection("price", reflect.TypeOf((*decimal.Decimal)(nil)).Elem(), search.ValueConvertNo)
			Expect(err).ToNot(HaveOccurred())
			p, err := b.Build()
			Expect(err).ToNot(HaveOccurred())
			q := selecting(p)

			result, err := q.ExtractResult(responseOf(`{"hits": {"hits": [
				{"_index": "books", "_id": "1", "_source": {"price": 12.3456}},
				{"_index": "magazines", "_id": "2", "_source": {"price": 12.3456}}
			]}}`))

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Hits).To(HaveLen(2))
			Expect(result.Hits[0].(decimal.Decimal).Equal(decimal.RequireFromString("12.35"))).To(BeTrue())
			Expect(result.Hits[1].(decimal.Decimal).Equal(decimal.RequireFromString("12.3456"))).To(BeTrue())
		})

		It("should refuse converted projections", func() {
			_, err := scope.FieldProjection("price", nil, search.ValueConvertYes)

			Expect(search.IsErrorKind(err, search.ErrorKindIncompatible)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("'codec'"))
		})

		It("should refuse sorts", func() {
			_, err := scope.FieldSort("price", search.ValueConvertNo)

			Expect(search.IsErrorKind(err, search.ErrorKindIncompatible)).To(BeTrue())
		})

		It("should accept fields with identical types", func() {
			_, err := scope.FieldSort("genre", search.ValueConvertYes)

			Expect(err).ToNot(HaveOccurred())
		})
	})
})
