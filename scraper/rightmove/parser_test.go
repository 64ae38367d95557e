package rightmove

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resultPage renders a minimal result page whose json model reports last as
// the pagination total and lists one property per url.
func resultPage(last string, urls ...string) string {
	props := make([]string, 0, len(urls))
	for i, u := range urls {
		props = append(props, fmt.Sprintf(
			`{"id":%d,"propertyUrl":%q,"bedrooms":2,"propertyTypeFullDescription":"2 bedroom flat for sale","displayStatus":"","extraField":"x"}`,
			i+1, u))
	}
	return `<!DOCTYPE html><html><head><title>results</title>
<script>var other = 1;</script>
<script>
    window.jsonModel = {"properties":[` + strings.Join(props, ",") + `],"pagination":{"last":"` + last + `"},"resultCount":"999"};
    window.somethingElse = {};
</script></head><body></body></html>`
}

func TestParsePage(t *testing.T) {
	res, err := ParsePage([]byte(resultPage("1,032", "/properties/1", "/properties/2")))
	require.NoError(t, err)

	assert.True(t, res.HasTotal)
	assert.Equal(t, 1032, res.Total, "commas are stripped from the count")
	require.Len(t, res.Properties, 2)
	assert.Equal(t, "/properties/2", res.Properties[1].PropertyURL)
	assert.Equal(t, "x", res.Properties[0].Extra["extraField"])
}

func TestParsePageFallsBackToResultCount(t *testing.T) {
	body := `<script>window.jsonModel = {"properties":[],"resultCount":"1,204"}</script>`
	res, err := ParsePage([]byte(body))
	require.NoError(t, err)
	assert.True(t, res.HasTotal)
	assert.Equal(t, 1204, res.Total)
	assert.Empty(t, res.Properties)
}

func TestParsePageNumericCount(t *testing.T) {
	res, err := ParsePage([]byte(`<script>window.jsonModel = {"properties":[],"pagination":{"last":96}}</script>`))
	require.NoError(t, err)
	assert.Equal(t, 96, res.Total)
}

func TestParsePageFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no script", `<html><body>Service unavailable</body></html>`},
		{"bad json", `<script>window.jsonModel = {"properties": [</script>`},
		{"no properties", `<script>window.jsonModel = {"pagination":{"last":"10"}}</script>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePage([]byte(tt.body))
			var pf *ParseFailure
			assert.True(t, errors.As(err, &pf), "got %v", err)
		})
	}
}

func TestParsePageNoCount(t *testing.T) {
	res, err := ParsePage([]byte(`<script>window.jsonModel = {"properties":[]}</script>`))
	require.NoError(t, err)
	assert.False(t, res.HasTotal)
}
