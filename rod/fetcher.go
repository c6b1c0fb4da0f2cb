// Package rod fetches rendered HTML through headless Chrome. It is the
// fallback path for pages whose static HTML carries too little text to
// index, typically JavaScript-rendered documentation sites.
package rod

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/usefocal/focal"
)

// Ensure Fetcher implements focal.Fetcher at compile time.
var _ focal.Fetcher = (*Fetcher)(nil)

// DefaultFetchTimeout is the default per-page fetch timeout.
const DefaultFetchTimeout = 10 * time.Second

// Fetcher retrieves rendered HTML from URLs using Chrome browser automation.
// Pages are created on a managed browser that is recycled after a number of
// fetches to keep Chrome's memory in check. Fetcher is safe for concurrent
// use by multiple goroutines.
type Fetcher struct {
	manager *BrowserManager
	timeout time.Duration
	closed  atomic.Bool
}

// Option configures a Fetcher.
type Option func(*fetcherConfig)

type fetcherConfig struct {
	timeout     time.Duration
	managerOpts []ManagerOption
}

// WithFetchTimeout sets the timeout applied to each Fetch call.
// Defaults to DefaultFetchTimeout (10s) if not specified.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *fetcherConfig) {
		c.timeout = d
	}
}

// WithManagerOptions forwards options to the underlying BrowserManager.
func WithManagerOptions(opts ...ManagerOption) Option {
	return func(c *fetcherConfig) {
		c.managerOpts = append(c.managerOpts, opts...)
	}
}

// NewFetcher creates a new Fetcher that launches a headless Chrome browser.
// Close must be called when the Fetcher is no longer needed.
//
// Returns an error if Chrome/Chromium cannot be found or launched.
func NewFetcher(opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{timeout: DefaultFetchTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	manager, err := NewBrowserManager(cfg.managerOpts...)
	if err != nil {
		return nil, err
	}

	return &Fetcher{manager: manager, timeout: cfg.timeout}, nil
}

// shadowDOMSerializer returns the document's HTML with open shadow roots
// expanded into declarative <template shadowrootmode> blocks, so that
// navigation rendered inside Web Components survives serialization. Falls
// back to plain outerHTML on browsers without the getHTML API.
const shadowDOMSerializer = `() => {
	const roots = [];
	const collect = (node) => {
		for (const el of node.querySelectorAll('*')) {
			if (el.shadowRoot) {
				roots.push(el.shadowRoot);
				collect(el.shadowRoot);
			}
		}
	};
	collect(document);
	const doc = document.documentElement;
	if (typeof doc.getHTML === 'function') {
		return '<!DOCTYPE html>\n' + doc.getHTML({serializableShadowRoots: true, shadowRoots: roots});
	}
	return '<!DOCTYPE html>\n' + doc.outerHTML;
}`

// Fetch navigates to the URL and returns the rendered HTML.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.closed.Load() {
		return "", focal.Errorf(focal.EINVALID, "fetcher is closed")
	}

	// Check context before starting
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	// Create a new page on the managed browser
	page, err := f.manager.Browser().Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", err
	}
	defer page.Close()

	// Set context for all subsequent operations
	page = page.Context(ctx)

	if err := page.Navigate(url); err != nil {
		return "", err
	}

	if err := page.WaitLoad(); err != nil {
		return "", err
	}

	obj, err := page.Eval(shadowDOMSerializer)
	if err != nil {
		return "", err
	}

	f.manager.FetchDone()
	return obj.Value.Str(), nil
}

// Close releases browser resources. Close is safe to call multiple times.
func (f *Fetcher) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	return f.manager.Close()
}

// LauncherPID returns the process ID of the browser launcher.
// This method exists for testing purposes to verify proper cleanup.
func (f *Fetcher) LauncherPID() int {
	return f.manager.LauncherPID()
}
