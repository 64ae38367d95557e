package requester

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"outcode-retriever/utils"
)

// BrowserTransport renders each GET in headless Chrome and returns the
// resulting document as the response body. It is used for result pages that
// only carry their data payload after scripts run.
type BrowserTransport struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	timeout       time.Duration
	logger        *utils.Logger
}

// NewBrowserTransport launches headless Chrome. Close shuts it down.
func NewBrowserTransport(chromeBin, userAgent string, timeout time.Duration, logger *utils.Logger) (*BrowserTransport, error) {
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("[browser] Using browser binary: %q", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	// One browser process for the whole run; each request gets its own tab.
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("browser: start: %w", err)
	}

	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BrowserTransport{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		timeout:       timeout,
		logger:        logger,
	}, nil
}

// Do navigates to req.URL. Only GET is supported.
func (b *BrowserTransport) Do(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return nil, fmt.Errorf("browser: method %s not supported", req.Method)
	}

	ctx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, b.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(req.Context(), cancelTimeout)
	defer stop()

	extra := network.Headers{}
	for k := range req.Header {
		if strings.EqualFold(k, "User-Agent") {
			continue
		}
		extra[k] = headerValue(req.Header, k)
	}
	if err := chromedp.Run(ctx, network.Enable(), network.SetExtraHTTPHeaders(extra)); err != nil {
		return nil, fmt.Errorf("browser: set headers: %w", err)
	}

	resp, err := chromedp.RunResponse(ctx, chromedp.Navigate(req.URL.String()))
	if err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", req.URL.Redacted(), err)
	}

	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("browser: read document: %w", err)
	}

	status := http.StatusOK
	if resp != nil && resp.Status != 0 {
		status = int(resp.Status)
	}
	b.logger.Debug("[browser] %s -> %d (%d bytes)", req.URL.Redacted(), status, len(html))

	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(html)),
		Request:    req,
	}, nil
}

// Close shuts the browser down.
func (b *BrowserTransport) Close() error {
	b.cancelBrowser()
	b.cancelAlloc()
	return nil
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
