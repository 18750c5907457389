package model_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"api-bridge-go/internal/model"
)

var _ = Describe("Header", func() {
	var h model.Header

	BeforeEach(func() {
		h = nil
	})

	Describe("Add", func() {
		It("should canonicalise names", func() {
			h.Add("content-type", "application/json")
			Expect(h).To(HaveLen(1))
			Expect(h[0].Name).To(Equal("Content-Type"))
		})

		It("should keep repeated fields in order", func() {
			h.Add("Set-Cookie", "a=1")
			h.Add("X-Other", "x")
			h.Add("set-cookie", "b=2")

			Expect(h.Values("Set-Cookie")).To(Equal([]string{"a=1", "b=2"}))
			Expect(h.Get("Set-Cookie")).To(Equal("a=1"))
		})
	})

	Describe("Set", func() {
		It("should append when the name is absent", func() {
			h.Add("Accept", "*/*")
			h.Set("Cookie", "sid=1")

			Expect(h).To(Equal(model.Header{
				{Name: "Accept", Value: "*/*"},
				{Name: "Cookie", Value: "sid=1"},
			}))
		})

		It("should collapse duplicates into the first position", func() {
			h.Add("Vary", "Origin")
			h.Add("Accept", "*/*")
			h.Add("Vary", "Cookie")
			h.Set("vary", "Accept-Encoding")

			Expect(h).To(Equal(model.Header{
				{Name: "Vary", Value: "Accept-Encoding"},
				{Name: "Accept", Value: "*/*"},
			}))
		})
	})

	Describe("Del and Has", func() {
		It("should remove every field with the name", func() {
			h.Add("Host", "frontend.local")
			h.Add("Host", "other.local")
			h.Add("Accept", "*/*")

			Expect(h.Has("host")).To(BeTrue())
			h.Del("HOST")
			Expect(h.Has("Host")).To(BeFalse())
			Expect(h.Len()).To(Equal(1))
		})
	})

	Describe("Clone", func() {
		It("should not share storage", func() {
			h.Add("Accept", "*/*")
			c := h.Clone()
			c.Set("Accept", "text/html")

			Expect(h.Get("Accept")).To(Equal("*/*"))
			Expect(c.Get("Accept")).To(Equal("text/html"))
		})

		It("should keep nil as nil", func() {
			Expect(model.Header(nil).Clone()).To(BeNil())
		})
	})

	Describe("conversion", func() {
		It("should sort names and keep value order from http.Header", func() {
			src := http.Header{
				"X-B":        {"2"},
				"Set-Cookie": {"a=1", "b=2"},
				"Accept":     {"*/*"},
			}

			Expect(model.HeaderFromHTTP(src)).To(Equal(model.Header{
				{Name: "Accept", Value: "*/*"},
				{Name: "Set-Cookie", Value: "a=1"},
				{Name: "Set-Cookie", Value: "b=2"},
				{Name: "X-B", Value: "2"},
			}))
		})

		It("should round-trip through http.Header", func() {
			h.Add("Set-Cookie", "a=1")
			h.Add("Set-Cookie", "b=2")
			h.Add("Content-Type", "text/plain")

			out := h.HTTP()
			Expect(out.Values("Set-Cookie")).To(Equal([]string{"a=1", "b=2"}))
			Expect(out.Get("Content-Type")).To(Equal("text/plain"))
		})
	})
})

var _ = Describe("BodyKind", func() {
	DescribeTable("String",
		func(k model.BodyKind, want string) {
			Expect(k.String()).To(Equal(want))
		},
		Entry("none", model.BodyNone, "none"),
		Entry("binary", model.BodyBinary, "binary"),
		Entry("text", model.BodyText, "text"),
		Entry("unknown", model.BodyKind(42), "unknown"),
	)
})
