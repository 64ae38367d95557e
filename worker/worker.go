package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outcode-retriever/models"
	"outcode-retriever/outcodes"
	"outcode-retriever/scraper/rightmove"
	"outcode-retriever/services"
	"outcode-retriever/storage"
	"outcode-retriever/utils"
)

// PageIterator yields the result pages of one outcode. *rightmove.Pager
// satisfies it.
type PageIterator interface {
	Next(ctx context.Context) bool
	Page() *rightmove.Page
	Err() error
	Skipped() []int
}

// PageSource opens the page sequence of an outcode.
type PageSource interface {
	Pages(outcode, perPage int) PageIterator
}

type getterSource struct{ g *rightmove.Getter }

func (s getterSource) Pages(outcode, perPage int) PageIterator { return s.g.Pages(outcode, perPage) }

// FromGetter adapts a rightmove Getter to a PageSource.
func FromGetter(g *rightmove.Getter) PageSource { return getterSource{g: g} }

// AccessLogger records the terminal outcome of a unit. *storage.TableLog
// satisfies it.
type AccessLogger interface {
	Log(ctx context.Context, e models.AccessEntry) error
}

// UnitExhausted is recorded for a unit abandoned after its last retry.
type UnitExhausted struct {
	Outcode  int
	Attempts int
	Err      error
}

func (e *UnitExhausted) Error() string {
	return fmt.Sprintf("outcode %d abandoned after %d attempts: %v", e.Outcode, e.Attempts, e.Err)
}

func (e *UnitExhausted) Unwrap() error { return e.Err }

// Options configures a Worker.
type Options struct {
	Sources   map[models.ListingKind]PageSource
	Store     storage.PropertyStore
	AccessLog AccessLogger
	Outcodes  *outcodes.Set

	// Classifier and Issues are optional. When both are set, classification
	// issues of every stored page are written out.
	Classifier *services.Classifier
	Issues     storage.IssueWriter
	Summary    *services.SummaryService

	PerPage     int
	Concurrency int

	UserAgent   string
	RequestFrom string
	Version     string
	Location    *time.Location

	Logger *utils.Logger
}

// Worker drives retrieval of outcodes into the property store.
type Worker struct {
	sources     map[models.ListingKind]PageSource
	store       storage.PropertyStore
	accessLog   AccessLogger
	outcodes    *outcodes.Set
	classifier  *services.Classifier
	issues      storage.IssueWriter
	summary     *services.SummaryService
	perPage     int
	concurrency int
	userAgent   string
	requestFrom string
	version     string
	loc         *time.Location
	logger      *utils.Logger

	sleep    func(time.Duration)
	now      func() time.Time
	newRunID func() string
}

func New(opts Options) (*Worker, error) {
	if len(opts.Sources) == 0 {
		return nil, errors.New("worker: no page sources")
	}
	if opts.Store == nil {
		return nil, errors.New("worker: no property store")
	}
	if opts.Outcodes == nil {
		return nil, errors.New("worker: no outcode set")
	}
	w := &Worker{
		sources:     opts.Sources,
		store:       opts.Store,
		accessLog:   opts.AccessLog,
		outcodes:    opts.Outcodes,
		classifier:  opts.Classifier,
		issues:      opts.Issues,
		summary:     opts.Summary,
		perPage:     opts.PerPage,
		concurrency: opts.Concurrency,
		userAgent:   opts.UserAgent,
		requestFrom: opts.RequestFrom,
		version:     opts.Version,
		loc:         opts.Location,
		logger:      opts.Logger,
		sleep:       time.Sleep,
		now:         time.Now,
		newRunID:    uuid.NewString,
	}
	if w.perPage <= 0 {
		w.perPage = 48
	}
	if w.loc == nil {
		w.loc = time.UTC
	}
	if w.logger == nil {
		w.logger = utils.NewLogger()
	}
	if w.summary == nil {
		w.summary = services.NewSummaryService(w.logger)
	}
	return w, nil
}

// unitResult is what one attempt at an outcode produced.
type unitResult struct {
	ids     []string
	issues  int
	skipped []int
}

// RetrieveUnit fetches every page of one outcode, attaches retrieval
// metadata and stores each non-empty page as one batch. It returns the ids
// of the stored records. Only a first-page failure or a store error fails
// the unit; later pages that cannot be fetched are skipped.
func (w *Worker) RetrieveUnit(ctx context.Context, outcode models.Outcode, kind models.ListingKind, tags map[string]string) ([]string, error) {
	res, err := w.retrieveUnit(ctx, outcode, kind, w.newRunID(), tags)
	if err != nil {
		return nil, err
	}
	return res.ids, nil
}

func (w *Worker) retrieveUnit(ctx context.Context, outcode models.Outcode, kind models.ListingKind, runID string, tags map[string]string) (res *unitResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("outcode %d: panic: %v", outcode.ID, r)
		}
	}()

	src, ok := w.sources[kind]
	if !ok {
		return nil, fmt.Errorf("worker: no page source for %s", kind)
	}

	log := w.logger.With("outcode", outcode.ID).With("kind", kind.Collection())
	log.Info("[worker] Getting %s for outcode %d (%s)", kind.Collection(), outcode.ID, outcode.Code)

	allTags := make(map[string]string, len(tags)+1)
	if outcode.Code != "" {
		allTags["postcode"] = outcode.Code
	}
	for k, v := range tags {
		allTags[k] = v
	}

	res = &unitResult{}
	pages := src.Pages(outcode.ID, w.perPage)
	for pages.Next(ctx) {
		page := pages.Page()
		if len(page.Properties) == 0 {
			continue
		}

		meta := models.RetrievalMeta{
			UserAgent:    w.userAgent,
			RequestFrom:  w.requestFrom,
			Timestamp:    w.now().In(w.loc),
			Version:      w.version,
			Outcode:      outcode.ID,
			PropertyType: kind,
			RunID:        runID,
			Tags:         allTags,
		}
		for _, p := range page.Properties {
			if p.AttachMeta(meta) {
				log.Warn("[worker] Property %s already carries __retrieval_meta; merging", p.PropertyURL)
			}
		}

		ids, err := w.store.InsertMany(ctx, kind, page.Properties)
		if err != nil {
			return nil, fmt.Errorf("outcode %d: store page %d: %w", outcode.ID, page.Index, err)
		}
		res.ids = append(res.ids, ids...)

		if w.classifier != nil {
			_, issues := w.classifier.ClassifyPage(page.Properties, kind)
			res.issues += len(issues)
			if len(issues) > 0 && w.issues != nil {
				if err := w.issues.WriteIssues(outcode, kind, issues); err != nil {
					log.Warn("[worker] Could not write %d classification issues: %v", len(issues), err)
				}
			}
		}
	}
	if err := pages.Err(); err != nil {
		return nil, err
	}

	res.skipped = pages.Skipped()
	if len(res.skipped) > 0 {
		log.Warn("[worker] Outcode %d stored %d records with %d pages skipped", outcode.ID, len(res.ids), len(res.skipped))
	}
	return res, nil
}

// pending is an outcode waiting in the retry queue.
type pending struct {
	idx      int
	outcode  models.Outcode
	attempts int
	err      error
}

// RetrieveAll runs every known outcode in id order, then sweeps the failed
// ones until each has either succeeded or used maxRetries attempts. tags are
// added to the retrieval metadata of every stored record. Every outcode ends
// with exactly one access log row, also when ctx is cancelled mid-run. Unit
// errors never escape.
func (w *Worker) RetrieveAll(ctx context.Context, kind models.ListingKind, tags map[string]string, maxRetries int, retryPause time.Duration) *models.RunReport {
	runID := w.newRunID()
	started := w.now()
	units := w.outcodes.All()
	log := w.logger.With("run_id", runID).With("kind", kind.Collection())

	log.Info("[worker] Retrieving %s for %d outcodes (max retries %d)", kind.Collection(), len(units), maxRetries)

	outcomes := make([]models.UnitOutcome, len(units))
	failures := make([]error, len(units))
	issues := make([]int, len(units))

	pool := utils.NewWorkerPool(w.concurrency)
	for i, u := range units {
		i, u := i, u
		pool.Submit(func() {
			if err := ctx.Err(); err != nil {
				failures[i] = err
				return
			}
			res, err := w.retrieveUnit(ctx, u, kind, runID, tags)
			if err != nil {
				failures[i] = err
				log.With("outcode", u.ID).Warn("[worker] Outcode %d failed, deferring: %v", u.ID, err)
				return
			}
			issues[i] = res.issues
			outcomes[i] = models.UnitOutcome{Outcode: u, Success: true, Stored: len(res.ids)}
			w.logAccess(ctx, u, kind, successResult(len(res.ids), kind), true, 0)
		})
	}
	pool.Wait()

	var queue []*pending
	for i, err := range failures {
		if err != nil {
			queue = append(queue, &pending{idx: i, outcode: units[i], attempts: 1, err: err})
		}
	}
	if len(queue) > 0 {
		log.Info("[worker] %d outcodes deferred for retry", len(queue))
	}

	giveUp := func(p *pending) {
		ex := &UnitExhausted{Outcode: p.outcode.ID, Attempts: p.attempts, Err: p.err}
		log.With("outcode", p.outcode.ID).Error("[worker] Giving up: %v", ex)
		outcomes[p.idx] = models.UnitOutcome{
			Outcode:    p.outcode,
			NumRetries: p.attempts - 1,
			Err:        ex.Error(),
		}
		w.logAccess(ctx, p.outcode, kind, p.err.Error(), false, p.attempts-1)
	}

	for sweep := 1; len(queue) > 0; sweep++ {
		if err := ctx.Err(); err != nil {
			for _, p := range queue {
				p.err = err
				giveUp(p)
			}
			break
		}

		var next []*pending
		for _, p := range queue {
			if p.attempts >= maxRetries {
				giveUp(p)
				continue
			}
			p.attempts++
			log.With("outcode", p.outcode.ID).Info("[worker] Retry sweep %d: outcode %d attempt %d/%d",
				sweep, p.outcode.ID, p.attempts, maxRetries)

			res, err := w.retrieveUnit(ctx, p.outcode, kind, runID, tags)
			if err == nil {
				issues[p.idx] = res.issues
				outcomes[p.idx] = models.UnitOutcome{
					Outcode:    p.outcode,
					Success:    true,
					Stored:     len(res.ids),
					NumRetries: p.attempts - 1,
				}
				w.logAccess(ctx, p.outcode, kind, successResult(len(res.ids), kind), true, p.attempts-1)
				continue
			}

			p.err = err
			if p.attempts >= maxRetries {
				giveUp(p)
				continue
			}
			log.With("outcode", p.outcode.ID).Warn("[worker] Attempt %d failed, pausing %v: %v", p.attempts, retryPause, err)
			if retryPause > 0 {
				w.sleep(retryPause)
			}
			next = append(next, p)
		}
		queue = next
	}

	report := w.summary.Generate(outcomes)
	report.Kind = kind
	report.RunID = runID
	report.StartedAt = started
	report.FinishedAt = w.now()
	for _, n := range issues {
		report.Issues += n
	}

	log.Info("[worker] Run complete: %d/%d outcodes succeeded, %d records stored",
		report.Succeeded, report.Units, report.RecordsStored)
	return report
}

func successResult(n int, kind models.ListingKind) string {
	return fmt.Sprintf("Retrieved %d entries of type %s", n, kind.Collection())
}

// logAccess writes an access log row. Failures are logged, never returned.
// The row is written even after ctx is cancelled.
func (w *Worker) logAccess(ctx context.Context, outcode models.Outcode, kind models.ListingKind, result string, success bool, retries int) {
	if w.accessLog == nil {
		return
	}
	err := w.accessLog.Log(context.WithoutCancel(ctx), models.AccessEntry{
		Timestamp:    w.now().In(w.loc),
		Outcode:      outcode.ID,
		PropertyType: kind,
		Result:       result,
		Success:      success,
		NumRetries:   retries,
	})
	if err != nil {
		w.logger.With("outcode", outcode.ID).Error("[worker] Could not write access log row: %v", err)
	}
}
