package rod

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog"
)

// DefaultMaxFetches is how many rendered fetches a browser serves before
// it is swapped for a fresh one.
const DefaultMaxFetches = 75

// BrowserManager hands out a shared headless Chrome instance and swaps
// it for a fresh one every maxFetches rendered pages. Chrome leaks
// memory under sustained page churn and never gives it back, so a crawl
// that renders hundreds of pages needs periodic browser turnover.
//
// BrowserManager is safe for concurrent use.
type BrowserManager struct {
	logger     zerolog.Logger
	maxFetches int64
	closed     atomic.Bool

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	fetches  int64
}

// ManagerOption configures a BrowserManager.
type ManagerOption func(*BrowserManager)

// WithMaxFetches sets how many fetches a browser serves before recycling.
func WithMaxFetches(n int64) ManagerOption {
	return func(bm *BrowserManager) {
		bm.maxFetches = n
	}
}

// WithManagerLogger sets the logger used for browser lifecycle events.
func WithManagerLogger(logger zerolog.Logger) ManagerOption {
	return func(bm *BrowserManager) {
		bm.logger = logger
	}
}

// NewBrowserManager launches a headless Chrome instance. Close must be
// called when the manager is no longer needed.
func NewBrowserManager(opts ...ManagerOption) (*BrowserManager, error) {
	bm := &BrowserManager{
		maxFetches: DefaultMaxFetches,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(bm)
	}

	if err := bm.launch(); err != nil {
		return nil, err
	}

	return bm, nil
}

// Browser returns the current browser, recycling first when the fetch
// count has reached the threshold. Callers report completed fetches
// through FetchDone.
func (bm *BrowserManager) Browser() *rod.Browser {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.fetches >= bm.maxFetches {
		bm.recycle()
	}

	return bm.browser
}

// FetchDone counts one rendered fetch toward the recycling threshold.
func (bm *BrowserManager) FetchDone() {
	bm.mu.Lock()
	bm.fetches++
	bm.mu.Unlock()
}

// Close shuts down the browser. Safe to call multiple times.
func (bm *BrowserManager) Close() error {
	if !bm.closed.CompareAndSwap(false, true) {
		return nil
	}

	bm.mu.Lock()
	defer bm.mu.Unlock()

	return bm.shutdown()
}

// launch starts a browser with flags that keep background pages from
// being throttled or killed mid-render. Must be called with mu held, or
// before the manager is shared.
func (bm *BrowserManager) launch() error {
	lnchr := launcher.New().
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-dev-shm-usage").
		Set("disable-hang-monitor").
		Leakless(true).
		Headless(true)

	u, err := lnchr.Launch()
	if err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		lnchr.Kill()
		return fmt.Errorf("connecting to browser: %w", err)
	}

	bm.browser = browser
	bm.launcher = lnchr
	return nil
}

// shutdown closes the current browser and launcher. Must be called with
// mu held.
func (bm *BrowserManager) shutdown() error {
	var err error
	if bm.browser != nil {
		err = bm.browser.Close()
		bm.browser = nil
	}
	if bm.launcher != nil {
		bm.launcher.Kill()
		bm.launcher = nil
	}
	return err
}

// recycle replaces the browser with a fresh instance. A failed launch
// keeps the old browser running; the next threshold crossing retries.
// Must be called with mu held.
func (bm *BrowserManager) recycle() {
	oldBrowser := bm.browser
	oldLauncher := bm.launcher
	bm.browser = nil
	bm.launcher = nil

	if err := bm.launch(); err != nil {
		bm.browser = oldBrowser
		bm.launcher = oldLauncher
		bm.logger.Error().Err(err).Msg("browser recycle failed, keeping current browser")
		return
	}

	if oldBrowser != nil {
		_ = oldBrowser.Close()
	}
	if oldLauncher != nil {
		oldLauncher.Kill()
	}
	bm.logger.Debug().Int64("fetches", bm.fetches).Msg("browser recycled")
	bm.fetches = 0
}

// LauncherPID returns the browser launcher's process ID so tests can
// verify the process is gone after Close.
func (bm *BrowserManager) LauncherPID() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.launcher == nil {
		return 0
	}
	return bm.launcher.PID()
}
