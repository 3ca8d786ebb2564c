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

package search

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("IndexSchema", func() {
	var (
		indexName string
		builder   *IndexSchemaBuilder
		price     *IndexValueFieldType
	)

	BeforeEach(func() {
		indexName = fake.LetterN(10)
		builder = NewIndexSchemaBuilder(fakeBackendName, indexName)
		price = newFakeType(defaultFakeTypeOptions())
	})

	It("should compute path components and nested hierarchy at bootstrap", func() {
		offers := builder.Root().Object("offers", ObjectStructureNested).MultiValued()
		offers.Object("seller", ObjectStructureDefault).Field("rating", price)
		builder.Root().Field("price", price)

		schema, err := builder.Build()
		Expect(err).ToNot(HaveOccurred())

		rating, ok := schema.ValueField("offers.seller.rating")
		Expect(ok).To(BeTrue())
		Expect(rating.PathComponents()).To(Equal([]string{"offers", "seller", "rating"}))
		Expect(rating.NestedPathHierarchy()).To(Equal([]string{"offers"}))
		Expect(rating.MultiValued()).To(BeTrue())
		Expect(rating.Parent().AbsolutePath()).To(Equal("offers.seller"))

		top, ok := schema.ValueField("price")
		Expect(ok).To(BeTrue())
		Expect(top.MultiValued()).To(BeFalse())
		Expect(top.NestedPathHierarchy()).To(BeEmpty())
		Expect(top.Parent().IsRoot()).To(BeTrue())

		Expect(schema.ValueFields()).To(HaveLen(2))
	})

	It("should report every mistake at once", func() {
		builder.Root().Field("price", price)
		builder.Root().Field("price", price)
		builder.Root().Field("a.b", price)
		builder.Root().Field("untyped", nil)

		_, err := builder.Build()
		Expect(IsErrorKind(err, ErrorKindBootstrap)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("duplicate field 'price'"))
		Expect(err.Error()).To(ContainSubstring("'a.b'"))
		Expect(err.Error()).To(ContainSubstring("missing type for field 'untyped'"))
		Expect(err.Error()).To(ContainSubstring(indexName))
	})

	It("should refuse field types of another backend", func() {
		other, err := NewIndexValueFieldTypeBuilder("other", float64Type).Build()
		Expect(err).ToNot(HaveOccurred())
		builder.Root().Field("price", other)

		_, err = builder.Build()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("backend 'other'"))
	})

	It("should refuse a schema without index name", func() {
		_, err := NewIndexSchemaBuilder(fakeBackendName, "").Build()

		Expect(err).To(HaveOccurred())
	})
})
