package rightmove

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"outcode-retriever/models"
	"outcode-retriever/requester"
	"outcode-retriever/utils"
)

const BaseURL = "https://www.rightmove.co.uk"

// FindURLs maps each listing kind to its search endpoint.
var FindURLs = map[models.ListingKind]string{
	models.ForSale: BaseURL + "/property-for-sale/find.html",
	models.ToRent:  BaseURL + "/property-to-rent/find.html",
}

// Fetcher issues rate-limited GETs. *requester.Requester satisfies it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, params url.Values, headers http.Header) (*requester.Response, error)
}

// Page is one fetched and parsed result page of an outcode.
type Page struct {
	Outcode int
	// Index is the pagination offset; zero for the first page.
	Index int
	// Total is the result count discovered on the first page.
	Total      int
	Properties []*models.Property
}

// GetterOptions configures a Getter.
type GetterOptions struct {
	// FindURL overrides the endpoint chosen by listing kind.
	FindURL     string
	Retries     int
	Pause       time.Duration
	IncludeSSTC bool
	Logger      *utils.Logger
}

// Getter fetches result pages for one listing kind.
type Getter struct {
	fetcher     Fetcher
	findURL     string
	retries     int
	pause       time.Duration
	includeSSTC bool
	logger      *utils.Logger
	sleep       func(time.Duration)
}

// NewGetter creates a Getter for kind.
func NewGetter(fetcher Fetcher, kind models.ListingKind, opts GetterOptions) (*Getter, error) {
	findURL := opts.FindURL
	if findURL == "" {
		var ok bool
		if findURL, ok = FindURLs[kind]; !ok {
			return nil, fmt.Errorf("getter: no search endpoint for %s", kind)
		}
	}
	retries := opts.Retries
	if retries < 1 {
		retries = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &Getter{
		fetcher:     fetcher,
		findURL:     findURL,
		retries:     retries,
		pause:       opts.Pause,
		includeSSTC: opts.IncludeSSTC,
		logger:      logger,
		sleep:       time.Sleep,
	}, nil
}

// SearchPayload builds the query parameters for one result page. index is
// omitted for the first page.
func SearchPayload(outcode int, index *int, perPage int, includeSSTC bool) url.Values {
	v := url.Values{}
	v.Set("locationIdentifier", fmt.Sprintf("OUTCODE^%d", outcode))
	v.Set("numberOfPropertiesPerPage", strconv.Itoa(perPage))
	v.Set("viewType", "LIST")
	v.Set("includeSSTC", strconv.FormatBool(includeSSTC))
	if index != nil {
		v.Set("index", strconv.Itoa(*index))
	}
	return v
}

// FetchPage issues one search request, retrying the same request up to
// retries attempts in total with pause between attempts. The result count is
// only read from first-page requests (no index parameter).
func (g *Getter) FetchPage(ctx context.Context, outcode int, params url.Values, retries int, pause time.Duration) (*Page, error) {
	first := params.Get("index") == ""
	index := 0
	if !first {
		index, _ = strconv.Atoi(params.Get("index"))
	}

	var res *SearchResult
	retry := &utils.RetryConfig{
		MaxAttempts: retries,
		BaseDelay:   pause,
		Logger:      g.logger.With("outcode", outcode).With("index", index),
		Sleep:       g.sleep,
		Retryable: func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			var tf *TransientFetchFailure
			return errors.As(err, &tf)
		},
	}

	err := retry.Do(fmt.Sprintf("search outcode %d", outcode), func() error {
		resp, err := g.fetcher.Get(ctx, g.findURL, params, nil)
		if err != nil {
			return &TransientFetchFailure{Outcode: outcode, Err: err}
		}
		if resp.StatusCode != http.StatusOK {
			return &TransientFetchFailure{Outcode: outcode, StatusCode: resp.StatusCode}
		}
		parsed, err := ParsePage(resp.Body)
		if err != nil {
			return err
		}
		res = parsed
		return nil
	})
	if err != nil {
		var ex *utils.ExhaustedError
		if errors.As(err, &ex) {
			return nil, &RetrievalFailure{Outcode: outcode, Attempts: ex.Attempts, Err: ex.Err}
		}
		return nil, fmt.Errorf("outcode %d: %w", outcode, err)
	}

	page := &Page{Outcode: outcode, Index: index, Properties: res.Properties}
	if first {
		if !res.HasTotal {
			return nil, fmt.Errorf("outcode %d: %w", outcode, &ParseFailure{Reason: "first page carries no result count"})
		}
		page.Total = res.Total
	}
	return page, nil
}

// Pages returns the lazy page sequence for one outcode.
func (g *Getter) Pages(outcode, perPage int) *Pager {
	return &Pager{getter: g, outcode: outcode, perPage: perPage}
}
