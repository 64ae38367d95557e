package rightmove

import (
	"context"
)

// Pager walks every result page of one outcode. Use it like bufio.Scanner:
//
//	p := getter.Pages(outcode, 48)
//	for p.Next(ctx) {
//		use(p.Page())
//	}
//	if err := p.Err(); err != nil { ... }
//
// A Pager cannot be restarted.
type Pager struct {
	getter  *Getter
	outcode int
	perPage int

	started bool
	done    bool
	total   int
	offsets []int
	pos     int

	page    *Page
	err     error
	skipped []int
}

// Next fetches the next page. It returns false when the sequence is over or
// the first page could not be retrieved; Err tells the two apart.
func (p *Pager) Next(ctx context.Context) bool {
	if p.done {
		return false
	}

	if !p.started {
		p.started = true
		if err := ctx.Err(); err != nil {
			p.err = err
			p.done = true
			return false
		}
		params := SearchPayload(p.outcode, nil, p.perPage, p.getter.includeSSTC)
		page, err := p.getter.FetchPage(ctx, p.outcode, params, p.getter.retries, p.getter.pause)
		if err != nil {
			p.err = err
			p.done = true
			return false
		}
		p.total = page.Total
		p.offsets = Offsets(p.total, p.perPage)
		p.page = page
		return true
	}

	for p.pos < len(p.offsets) {
		index := p.offsets[p.pos]
		p.pos++

		if err := ctx.Err(); err != nil {
			p.err = err
			p.done = true
			return false
		}

		params := SearchPayload(p.outcode, &index, p.perPage, p.getter.includeSSTC)
		page, err := p.getter.FetchPage(ctx, p.outcode, params, p.getter.retries, p.getter.pause)
		if err != nil {
			p.getter.logger.With("outcode", p.outcode).
				Error("[getter] Failed to get page of results with index %d: %v", index, err)
			p.skipped = append(p.skipped, index)
			continue
		}
		page.Total = p.total
		p.page = page
		return true
	}

	p.page = nil
	p.done = true
	return false
}

// Page returns the page fetched by the last successful Next.
func (p *Pager) Page() *Page { return p.page }

// Err returns the error that stopped the sequence, if any. Skipped later
// pages are not errors.
func (p *Pager) Err() error { return p.err }

// Total returns the result count discovered on the first page.
func (p *Pager) Total() int { return p.total }

// Skipped lists the offsets whose pages failed after all retries.
func (p *Pager) Skipped() []int { return p.skipped }

// Offsets returns every multiple of perPage from perPage up to and including
// the largest multiple not above total.
func Offsets(total, perPage int) []int {
	if perPage <= 0 {
		return nil
	}
	var out []int
	for i := perPage; i <= total; i += perPage {
		out = append(out, i)
	}
	return out
}
