package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ListingKind selects between for-sale and to-rent listings. The numeric value
// is what the access log stores in its property_type column.
type ListingKind int

const (
	ForSale ListingKind = 1
	ToRent  ListingKind = 2
)

// Collection returns the document-store collection holding this kind.
func (k ListingKind) Collection() string {
	switch k {
	case ForSale:
		return "forsale"
	case ToRent:
		return "torent"
	default:
		return fmt.Sprintf("kind%d", int(k))
	}
}

func (k ListingKind) String() string {
	switch k {
	case ForSale:
		return "for sale"
	case ToRent:
		return "to rent"
	default:
		return fmt.Sprintf("kind %d", int(k))
	}
}

// ParseListingKind accepts "forsale", "sale", "torent", "rent" or the numeric id.
func ParseListingKind(s string) (ListingKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forsale", "for-sale", "sale", "1":
		return ForSale, nil
	case "torent", "to-rent", "rent", "2":
		return ToRent, nil
	}
	return 0, fmt.Errorf("unknown listing kind %q", s)
}

// Outcode is one postal area: the integer id used by the search endpoint and
// its textual postal-area code.
type Outcode struct {
	ID   int    `yaml:"id"`
	Code string `yaml:"code"`
}

// RetrievalMeta is the provenance block attached to every stored property.
type RetrievalMeta struct {
	UserAgent    string            `json:"user_agent" bson:"user_agent"`
	RequestFrom  string            `json:"request_from,omitempty" bson:"request_from,omitempty"`
	Timestamp    time.Time         `json:"timestamp" bson:"timestamp"`
	Version      string            `json:"version" bson:"version"`
	Outcode      int               `json:"outcode" bson:"outcode"`
	PropertyType ListingKind       `json:"property_type" bson:"property_type"`
	RunID        string            `json:"run_id,omitempty" bson:"run_id,omitempty"`
	Tags         map[string]string `json:"tags,omitempty" bson:"tags,omitempty"`
}

// Merge copies the non-zero fields of other over m. Tags are unioned, other
// winning on conflicting keys.
func (m *RetrievalMeta) Merge(other RetrievalMeta) {
	if other.UserAgent != "" {
		m.UserAgent = other.UserAgent
	}
	if other.RequestFrom != "" {
		m.RequestFrom = other.RequestFrom
	}
	if !other.Timestamp.IsZero() {
		m.Timestamp = other.Timestamp
	}
	if other.Version != "" {
		m.Version = other.Version
	}
	if other.Outcode != 0 {
		m.Outcode = other.Outcode
	}
	if other.PropertyType != 0 {
		m.PropertyType = other.PropertyType
	}
	if other.RunID != "" {
		m.RunID = other.RunID
	}
	if len(other.Tags) > 0 && m.Tags == nil {
		m.Tags = make(map[string]string, len(other.Tags))
	}
	for k, v := range other.Tags {
		m.Tags[k] = v
	}
}

type Location struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

type Price struct {
	Amount       float64 `json:"amount" bson:"amount"`
	Frequency    string  `json:"frequency,omitempty" bson:"frequency,omitempty"`
	CurrencyCode string  `json:"currencyCode,omitempty" bson:"currencyCode,omitempty"`
}

type Customer struct {
	BrandTradingName string `json:"brandTradingName" bson:"brandTradingName"`
	BranchName       string `json:"branchName" bson:"branchName"`
}

// Property is one listing exactly as the search payload describes it. Fields
// the decoder does not know about are kept in Extra and stored inline.
type Property struct {
	ID                          int64     `json:"id" bson:"id"`
	PropertyURL                 string    `json:"propertyUrl" bson:"propertyUrl"`
	Bedrooms                    *int      `json:"bedrooms,omitempty" bson:"bedrooms,omitempty"`
	Summary                     string    `json:"summary,omitempty" bson:"summary,omitempty"`
	DisplayAddress              string    `json:"displayAddress,omitempty" bson:"displayAddress,omitempty"`
	PropertySubType             string    `json:"propertySubType,omitempty" bson:"propertySubType,omitempty"`
	PropertyTypeFullDescription string    `json:"propertyTypeFullDescription,omitempty" bson:"propertyTypeFullDescription,omitempty"`
	Location                    *Location `json:"location,omitempty" bson:"location,omitempty"`
	Price                       *Price    `json:"price,omitempty" bson:"price,omitempty"`
	Customer                    *Customer `json:"customer,omitempty" bson:"customer,omitempty"`
	FeaturedProperty            bool      `json:"featuredProperty" bson:"featuredProperty"`
	DisplayStatus               string    `json:"displayStatus,omitempty" bson:"displayStatus,omitempty"`

	Meta  *RetrievalMeta         `json:"__retrieval_meta,omitempty" bson:"__retrieval_meta,omitempty"`
	Extra map[string]interface{} `json:"-" bson:",inline"`
}

var knownPropertyKeys = map[string]struct{}{
	"id": {}, "propertyUrl": {}, "bedrooms": {}, "summary": {}, "displayAddress": {},
	"propertySubType": {}, "propertyTypeFullDescription": {}, "location": {},
	"price": {}, "customer": {}, "featuredProperty": {}, "displayStatus": {},
	"__retrieval_meta": {},
}

// UnmarshalJSON decodes the named fields and keeps every other key in Extra.
func (p *Property) UnmarshalJSON(data []byte) error {
	type plain Property
	if err := json.Unmarshal(data, (*plain)(p)); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k, raw := range all {
		if _, ok := knownPropertyKeys[k]; ok {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("property field %q: %w", k, err)
		}
		if p.Extra == nil {
			p.Extra = make(map[string]interface{})
		}
		p.Extra[k] = v
	}
	return nil
}

// URL returns the listing's natural key.
func (p *Property) URL(baseURL string) string {
	if strings.HasPrefix(p.PropertyURL, "http") {
		return p.PropertyURL
	}
	return strings.TrimRight(baseURL, "/") + p.PropertyURL
}

// AttachMeta sets the retrieval metadata. It reports true when the property
// already carried a block, in which case meta is merged into the old one.
func (p *Property) AttachMeta(meta RetrievalMeta) (collided bool) {
	if p.Meta != nil {
		p.Meta.Merge(meta)
		return true
	}
	m := meta
	if meta.Tags != nil {
		m.Tags = make(map[string]string, len(meta.Tags))
		for k, v := range meta.Tags {
			m.Tags[k] = v
		}
	}
	p.Meta = &m
	return false
}
