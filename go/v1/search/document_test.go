package search

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("EncodeDocument", func() {
	var (
		schema *IndexSchema
		encode FieldEncoder
	)

	BeforeEach(func() {
		fieldType := newFakeType(defaultFakeTypeOptions())
		b := NewIndexSchemaBuilder(fakeBackendName, fake.LetterN(10))
		b.Root().Field("price", fieldType)
		b.Root().Field("ratings", fieldType).MultiValued()
		dimensions := b.Root().Object("dimensions", ObjectStructureDefault)
		dimensions.Field("width", fieldType)
		offers := b.Root().Object("offers", ObjectStructureNested).MultiValued()
		offers.Field("amount", fieldType)
		var err error
		schema, err = b.Build()
		Expect(err).ToNot(HaveOccurred())

		encode = func(field *ValueField, value interface{}) (interface{}, error) {
			f, ok := value.(float64)
			if !ok {
				return nil, errors.New("not a float64")
			}
			return f * 100, nil
		}
	})

	It("should encode values, objects and multi-valued fields", func() {
		encoded, err := EncodeDocument(schema, map[string]interface{}{
			"price":      1.5,
			"ratings":    []float64{1, 2},
			"dimensions": map[string]interface{}{"width": 0.5},
			"offers": []map[string]interface{}{
				{"amount": 2.0},
				{"amount": nil},
			},
			"ignored": nil,
		}, encode)

		Expect(err).ToNot(HaveOccurred())
		Expect(encoded).To(Equal(map[string]interface{}{
			"price":      150.0,
			"ratings":    []interface{}{100.0, 200.0},
			"dimensions": map[string]interface{}{"width": 50.0},
			"offers": []interface{}{
				map[string]interface{}{"amount": 200.0},
				map[string]interface{}{},
			},
		}))
	})

	It("should refuse unknown fields", func() {
		_, err := EncodeDocument(schema, map[string]interface{}{
			"dimensions": map[string]interface{}{"depth": 1.0},
		}, encode)

		Expect(IsErrorKind(err, ErrorKindUnknownField)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("dimensions.depth"))
	})

	It("should refuse several values for single-valued fields", func() {
		_, err := EncodeDocument(schema, map[string]interface{}{
			"price": []float64{1, 2},
		}, encode)

		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("not multi-valued"))
	})

	It("should refuse several objects for single-valued objects", func() {
		_, err := EncodeDocument(schema, map[string]interface{}{
			"dimensions": []interface{}{map[string]interface{}{"width": 1.0}},
		}, encode)

		Expect(IsErrorKind(err, ErrorKindInvalidArgument)).To(BeTrue())
	})

	It("should refuse values for object fields", func() {
		_, err := EncodeDocument(schema, map[string]interface{}{
			"dimensions": 1.0,
		}, encode)

		Expect(IsErrorKind(err, ErrorKindTypeMismatch)).To(BeTrue())
	})

	It("should locate encoding errors", func() {
		_, err := EncodeDocument(schema, map[string]interface{}{
			"offers": []interface{}{map[string]interface{}{"amount": "two"}},
		}, encode)

		Expect(IsErrorKind(err, ErrorKindEncoding)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("offers.amount"))
		Expect(err.Error()).To(ContainSubstring("not a float64"))
	})
})
