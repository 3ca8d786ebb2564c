package embedded

import (
	"math"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	"github.com/rode/search-bridge/go/v1/search"
	"github.com/shopspring/decimal"
)

func roundTrip(codec Codec, value interface{}) interface{} {
	encoded, err := codec.Encode(value)
	Expect(err).ToNot(HaveOccurred())
	decoded, err := codec.Decode(encoded)
	Expect(err).ToNot(HaveOccurred())

	return decoded
}

var _ = Describe("codecs", func() {
	DescribeTable("round trips", func(codec Codec, value interface{}) {
		Expect(roundTrip(codec, value)).To(Equal(value))
	},
		Entry("string", &StringCodec{}, fake.Word()),
		Entry("boolean", &BooleanCodec{}, true),
		Entry("integer", &IntegerCodec{}, int32(math.MinInt32)),
		Entry("long", &LongCodec{}, int64(-9007199254740992)),
		Entry("double", &DoubleCodec{}, 12.25),
		Entry("date", &DateCodec{}, time.Date(2021, 5, 17, 10, 30, 0, 123000000, time.UTC)),
	)

	It("should store numbers as doubles", func() {
		encoded, err := (&LongCodec{}).Encode(int64(42))

		Expect(err).ToNot(HaveOccurred())
		Expect(encoded).To(Equal(float64(42)))
	})

	It("should store dates as epoch milliseconds", func() {
		encoded, err := (&DateCodec{}).Encode(time.Date(2020, 1, 1, 1, 0, 0, 999000000, time.FixedZone("CET", 3600)))

		Expect(err).ToNot(HaveOccurred())
		Expect(encoded).To(Equal(float64(1577836800999)))
	})

	Describe("DecimalCodec", func() {
		codec := &DecimalCodec{Scale: 2}

		It("should store the unscaled value rounded to the scale", func() {
			encoded, err := codec.Encode(decimal.RequireFromString("12.345"))

			Expect(err).ToNot(HaveOccurred())
			Expect(encoded).To(Equal(float64(1235)))
		})

		It("should decode unscaled values", func() {
			decoded, err := codec.Decode(float64(-999))

			Expect(err).ToNot(HaveOccurred())
			Expect(decoded.(decimal.Decimal).Equal(decimal.RequireFromString("-9.99"))).To(BeTrue())
		})

		It("should refuse values a double cannot store exactly", func() {
			_, err := codec.Encode(decimal.New(1, 15))

			Expect(search.IsErrorKind(err, search.ErrorKindEncoding)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("2^53"))
		})

		It("should only be compatible with decimals of the same scale", func() {
			Expect(codec.IsCompatibleWith(&DecimalCodec{Scale: 2})).To(BeTrue())
			Expect(codec.IsCompatibleWith(&DecimalCodec{Scale: 3})).To(BeFalse())
			Expect(codec.IsCompatibleWith(&DoubleCodec{})).To(BeFalse())
		})
	})

	Describe("GeoPointCodec", func() {
		codec := &GeoPointCodec{}

		It("should encode points as lat/lon objects", func() {
			encoded, err := codec.Encode(search.NewGeoPoint(45.75, 4.85))

			Expect(err).ToNot(HaveOccurred())
			Expect(encoded).To(Equal(map[string]interface{}{"lat": 45.75, "lon": 4.85}))
		})

		DescribeTable("decoding", func(stored interface{}) {
			decoded, err := codec.Decode(stored)

			Expect(err).ToNot(HaveOccurred())
			Expect(decoded).To(Equal(search.NewGeoPoint(45.75, 4.85)))
		},
			Entry("lon/lat pair", []float64{4.85, 45.75}),
			Entry("untyped lon/lat pair", []interface{}{4.85, 45.75}),
			Entry("object", map[string]interface{}{"lat": 45.75, "lon": 4.85}),
		)

		It("should refuse invalid points", func() {
			_, err := codec.Encode(search.NewGeoPoint(91, 0))

			Expect(search.IsErrorKind(err, search.ErrorKindEncoding)).To(BeTrue())
		})
	})

	It("should decode the terms booleans are indexed as", func() {
		codec := &BooleanCodec{}

		Expect(codec.Decode("T")).To(Equal(true))
		Expect(codec.Decode("F")).To(Equal(false))
	})

	DescribeTable("encoding errors", func(codec Codec, value interface{}, kind search.ErrorKind) {
		_, err := codec.Encode(value)

		Expect(search.IsErrorKind(err, kind)).To(BeTrue())
	},
		Entry("long beyond 2^53", &LongCodec{}, int64(9007199254740993), search.ErrorKindEncoding),
		Entry("NaN", &DoubleCodec{}, math.NaN(), search.ErrorKindEncoding),
		Entry("int for a long", &LongCodec{}, 3, search.ErrorKindTypeMismatch),
		Entry("string for a date", &DateCodec{}, "2021-01-01", search.ErrorKindTypeMismatch),
		Entry("date finer than a millisecond", &DateCodec{}, time.Date(2021, 1, 1, 0, 0, 0, 999999, time.UTC), search.ErrorKindEncoding),
	)

	DescribeTable("decoding errors", func(codec Codec, stored interface{}) {
		_, err := codec.Decode(stored)

		Expect(search.IsErrorKind(err, search.ErrorKindEncoding)).To(BeTrue())
	},
		Entry("fractional integer", &IntegerCodec{}, 1.5),
		Entry("integer out of range", &IntegerCodec{}, float64(math.MaxInt32)+1),
		Entry("string for a long", &LongCodec{}, "12"),
		Entry("unknown boolean term", &BooleanCodec{}, "yes"),
		Entry("geo point with one coordinate", &GeoPointCodec{}, []float64{1}),
	)
})
