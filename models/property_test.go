package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProperty = `{
	"id": 123456,
	"propertyUrl": "/properties/123456",
	"bedrooms": 3,
	"summary": "A lovely home",
	"displayAddress": "High Street, Town",
	"propertyTypeFullDescription": "3 bedroom semi-detached house for sale",
	"location": {"latitude": 51.5, "longitude": -0.12},
	"price": {"amount": 350000, "currencyCode": "GBP"},
	"customer": {"brandTradingName": "Acme Estates", "branchName": "Town"},
	"featuredProperty": true,
	"numberOfImages": 12,
	"keywords": ["garden", "garage"]
}`

func TestPropertyUnmarshalKeepsUnknownFields(t *testing.T) {
	var p Property
	require.NoError(t, json.Unmarshal([]byte(sampleProperty), &p))

	assert.Equal(t, int64(123456), p.ID)
	require.NotNil(t, p.Bedrooms)
	assert.Equal(t, 3, *p.Bedrooms)
	assert.Equal(t, "Acme Estates", p.Customer.BrandTradingName)
	assert.True(t, p.FeaturedProperty)

	assert.Len(t, p.Extra, 2)
	assert.Equal(t, float64(12), p.Extra["numberOfImages"])
	assert.Equal(t, []interface{}{"garden", "garage"}, p.Extra["keywords"])
	assert.Nil(t, p.Meta)
}

func TestPropertyUnmarshalExistingMeta(t *testing.T) {
	var p Property
	require.NoError(t, json.Unmarshal([]byte(`{"propertyUrl":"/p/1","__retrieval_meta":{"outcode":7,"tags":{"postcode":"AB10"}}}`), &p))
	require.NotNil(t, p.Meta)
	assert.Equal(t, 7, p.Meta.Outcode)
	assert.Empty(t, p.Extra, "the metadata block is not an unknown field")
}

func TestPropertyURL(t *testing.T) {
	p := Property{PropertyURL: "/properties/1"}
	assert.Equal(t, "https://www.rightmove.co.uk/properties/1", p.URL("https://www.rightmove.co.uk/"))

	abs := Property{PropertyURL: "https://example.com/x"}
	assert.Equal(t, "https://example.com/x", abs.URL("https://www.rightmove.co.uk"))
}

func TestAttachMetaCollisionMerges(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := Property{}

	collided := p.AttachMeta(RetrievalMeta{UserAgent: "ua-1", Outcode: 1, Tags: map[string]string{"postcode": "AB10", "batch": "a"}})
	assert.False(t, collided)

	collided = p.AttachMeta(RetrievalMeta{UserAgent: "ua-2", Timestamp: ts, Tags: map[string]string{"batch": "b"}})
	assert.True(t, collided)

	assert.Equal(t, "ua-2", p.Meta.UserAgent)
	assert.Equal(t, 1, p.Meta.Outcode, "zero fields in the new block do not erase old values")
	assert.Equal(t, ts, p.Meta.Timestamp)
	assert.Equal(t, map[string]string{"postcode": "AB10", "batch": "b"}, p.Meta.Tags)
}

func TestAttachMetaCopiesTags(t *testing.T) {
	tags := map[string]string{"postcode": "AB10"}
	a, b := Property{}, Property{}
	a.AttachMeta(RetrievalMeta{Tags: tags})
	b.AttachMeta(RetrievalMeta{Tags: tags})

	a.Meta.Tags["postcode"] = "changed"
	assert.Equal(t, "AB10", b.Meta.Tags["postcode"])
	assert.Equal(t, "AB10", tags["postcode"])
}

func TestParseListingKind(t *testing.T) {
	tests := []struct {
		in      string
		want    ListingKind
		wantErr bool
	}{
		{"forsale", ForSale, false},
		{"Sale", ForSale, false},
		{"torent", ToRent, false},
		{"2", ToRent, false},
		{"auction", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseListingKind(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, "forsale", ForSale.Collection())
	assert.Equal(t, "to rent", ToRent.String())
}
