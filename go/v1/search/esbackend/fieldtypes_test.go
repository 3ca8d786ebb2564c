package esbackend

import (
	"fmt"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	"github.com/rode/search-bridge/go/v1/search"
)

var _ = Describe("field types", func() {
	var types *FieldTypeFactory

	BeforeEach(func() {
		types = NewBackend(logger, nil, "").FieldTypes()
	})

	Describe("registered elements", func() {
		It("should register predicates and projections by default", func() {
			fieldType := mustType(types.AsString())

			Expect(fieldType.Traits()).To(Equal([]string{
				"predicate:exists",
				"predicate:match",
				"predicate:range",
				"projection:field",
			}))
		})

		It("should register sorts and aggregations when enabled", func() {
			fieldType := mustType(types.AsLong().Sortable(true).Aggregable(true).Projectable(false))

			Expect(fieldType.Traits()).To(Equal([]string{
				"aggregation:range",
				"aggregation:terms",
				"predicate:exists",
				"predicate:match",
				"predicate:range",
				"sort:field",
			}))
		})

		It("should not register range aggregations on strings", func() {
			fieldType := mustType(types.AsString().Aggregable(true))

			Expect(fieldType.Traits()).To(ContainElement("aggregation:terms"))
			Expect(fieldType.Traits()).ToNot(ContainElement("aggregation:range"))
		})

		It("should register spatial elements on geo points", func() {
			fieldType := mustType(types.AsGeoPoint().Sortable(true))

			Expect(fieldType.Traits()).To(Equal([]string{
				"predicate:exists",
				"predicate:spatial:within-circle",
				"projection:distance",
				"projection:field",
				"sort:distance",
			}))
		})

		It("should support highlighting on text fields only", func() {
			Expect(mustType(types.AsText("english")).HighlighterTypeSupported(search.HighlighterFastVector)).To(BeTrue())
			Expect(mustType(types.AsString()).HighlighterTypeSupported(search.HighlighterFastVector)).To(BeFalse())
			Expect(mustType(types.AsLong()).HighlighterTypeSupported(search.HighlighterPlain)).To(BeFalse())
		})
	})

	DescribeTable("invalid options", func(options func() *FieldTypeOptions, message string) {
		_, err := options().ToIndexFieldType()

		Expect(search.IsErrorKind(err, search.ErrorKindBootstrap)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring(message))
	},
		Entry("sortable text", func() *FieldTypeOptions { return types.AsText("english").Sortable(true) }, "cannot be sortable"),
		Entry("aggregable geo point", func() *FieldTypeOptions { return types.AsGeoPoint().Aggregable(true) }, "cannot be aggregable"),
		Entry("normalizer on a long", func() *FieldTypeOptions { return types.AsLong().Normalizer("lowercase") }, "normalizer 'lowercase'"),
		Entry("norms on a date", func() *FieldTypeOptions { return types.AsDate().Norms(true) }, "norms"),
		Entry("null value of the wrong type", func() *FieldTypeOptions { return types.AsLong().IndexNullAs("none") }, "invalid value type"),
	)

	Describe("property mappings", func() {
		property := func(o *FieldTypeOptions) string {
			return toJson(mustType(o).Metadata())
		}

		It("should disable doc values on fields that are neither sortable nor aggregable", func() {
			Expect(property(types.AsLong())).To(MatchJSON(`{"type":"long","doc_values":false}`))
			Expect(property(types.AsLong().Sortable(true))).To(MatchJSON(`{"type":"long"}`))
		})

		It("should disable indexing on fields that are not searchable", func() {
			Expect(property(types.AsString().Searchable(false))).To(MatchJSON(`{"type":"keyword","index":false,"doc_values":false}`))
		})

		It("should render analyzers and normalizers", func() {
			Expect(property(types.AsText("english").SearchAnalyzer("standard"))).
				To(MatchJSON(`{"type":"text","analyzer":"english","search_analyzer":"standard"}`))
			Expect(property(types.AsString().Normalizer("lowercase").Sortable(true))).
				To(MatchJSON(`{"type":"keyword","normalizer":"lowercase"}`))
		})

		It("should render the scaling factor of decimals", func() {
			Expect(property(types.AsDecimal(3).Sortable(true))).To(MatchJSON(`{"type":"scaled_float","scaling_factor":1000}`))
		})

		It("should render the format of dates", func() {
			Expect(property(types.AsDate("epoch_second").Sortable(true))).To(MatchJSON(`{"type":"date","format":"epoch_second"}`))
		})

		It("should encode the null value", func() {
			Expect(property(types.AsLong().Sortable(true).IndexNullAs(int64(-1)))).To(MatchJSON(`{"type":"long","null_value":-1}`))
		})

		It("should keep doc values on projectable geo points", func() {
			Expect(property(types.AsGeoPoint())).To(MatchJSON(`{"type":"geo_point"}`))
		})
	})

	Describe("BuildTypeMapping", func() {
		It("should render nested and plain objects with strict dynamic mapping", func() {
			builder := search.NewIndexSchemaBuilder(BackendName, fake.LetterN(8))
			root := builder.Root()
			root.Field("title", mustType(types.AsText("english")))
			root.Field("genre", mustType(types.AsString().Sortable(true)))
			author := root.Object("author", search.ObjectStructureDefault)
			author.Field("name", mustType(types.AsString().Sortable(true)))
			offers := root.Object("offers", search.ObjectStructureNested).MultiValued()
			offers.Field("amount", mustType(types.AsLong()))
			schema, err := builder.Build()
			Expect(err).ToNot(HaveOccurred())

			mapping, err := BuildTypeMapping(schema)

			Expect(err).ToNot(HaveOccurred())
			Expect(toJson(mapping)).To(MatchJSON(`{
				"dynamic": "strict",
				"properties": {
					"title": {"type": "text", "analyzer": "english"},
					"genre": {"type": "keyword"},
					"author": {"type": "object", "dynamic": "strict", "properties": {
						"name": {"type": "keyword"}
					}},
					"offers": {"type": "nested", "dynamic": "strict", "properties": {
						"amount": {"type": "long", "doc_values": false}
					}}
				}
			}`))
		})

		It("should refuse field types of another backend", func() {
			builder := search.NewIndexSchemaBuilder(BackendName, fake.LetterN(8))
			foreign, err := search.NewIndexValueFieldTypeBuilder(BackendName, mustType(types.AsLong()).ValueType()).Build()
			Expect(err).ToNot(HaveOccurred())
			builder.Root().Field("count", foreign)
			schema, err := builder.Build()
			Expect(err).ToNot(HaveOccurred())

			_, err = BuildTypeMapping(schema)

			Expect(search.IsErrorKind(err, search.ErrorKindBootstrap)).To(BeTrue())
			Expect(fmt.Sprint(err)).To(ContainSubstring("field 'count' has no Elasticsearch mapping"))
		})
	})
})
