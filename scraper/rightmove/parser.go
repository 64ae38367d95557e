package rightmove

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"outcode-retriever/models"
)

// jsonModelMarker prefixes the search payload inside the result page.
const jsonModelMarker = "window.jsonModel = "

// SearchResult is the data payload of one result page.
type SearchResult struct {
	// Total is the result count reported by the page; valid when HasTotal.
	Total      int
	HasTotal   bool
	Properties []*models.Property
}

type jsonModel struct {
	Properties *[]*models.Property `json:"properties"`
	Pagination struct {
		Last json.RawMessage `json:"last"`
	} `json:"pagination"`
	ResultCount json.RawMessage `json:"resultCount"`
}

// ParsePage extracts the embedded search payload from a result page body.
func ParsePage(body []byte) (*SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseFailure{Reason: "read document", Err: err}
	}

	var script string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, jsonModelMarker) {
			script = text
			return false
		}
		return true
	})
	if script == "" {
		return nil, &ParseFailure{Reason: "no " + strings.TrimSpace(jsonModelMarker) + " script in page"}
	}

	payload := script[strings.Index(script, jsonModelMarker)+len(jsonModelMarker):]

	// Decode only the first JSON value; anything after the object literal is
	// ordinary script.
	var model jsonModel
	if err := json.NewDecoder(strings.NewReader(payload)).Decode(&model); err != nil {
		return nil, &ParseFailure{Reason: "decode json model", Err: err}
	}
	if model.Properties == nil {
		return nil, &ParseFailure{Reason: "json model has no properties array"}
	}

	res := &SearchResult{Properties: *model.Properties}
	if n, ok := parseCount(model.Pagination.Last); ok {
		res.Total, res.HasTotal = n, true
	} else if n, ok := parseCount(model.ResultCount); ok {
		res.Total, res.HasTotal = n, true
	}
	return res, nil
}

// parseCount accepts a JSON number or a string such as "1,032".
func parseCount(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
