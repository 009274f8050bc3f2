package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/pageproxy/internal/extract"
)

const innerTextScript = `document.body ? document.body.innerText : ""`

// session is a single browser tab bound to one render.
type session interface {
	// Text navigates to targetURL and returns the body text together with
	// the status of the main document response (0 when unknown).
	Text(ctx context.Context, targetURL string) (string, int, error)
	Close(ctx context.Context) error
}

type dialer func(ctx context.Context, endpoint string) (session, error)

type remoteSession struct {
	taskCtx     context.Context
	taskCancel  context.CancelFunc
	allocCancel context.CancelFunc
}

// dialRemote prepares a session against a DevTools websocket endpoint. The
// websocket is opened lazily by the first action run in the session.
func dialRemote(_ context.Context, endpoint string) (session, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), endpoint, chromedp.NoModifyURL)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	return &remoteSession{
		taskCtx:     taskCtx,
		taskCancel:  taskCancel,
		allocCancel: allocCancel,
	}, nil
}

func (s *remoteSession) Text(ctx context.Context, targetURL string) (string, int, error) {
	runCtx, cancel := s.bind(ctx)
	defer cancel()

	doc := newDocumentState()
	chromedp.ListenTarget(runCtx, doc.captureEvent)

	var text string
	var loaderID cdp.LoaderID
	err := chromedp.Run(runCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, id, errorText, _, err := page.Navigate(targetURL).Do(ctx)
			if err != nil {
				return fmt.Errorf("navigate: %w", err)
			}
			if errorText != "" {
				return fmt.Errorf("navigate: %s", errorText)
			}
			loaderID = id
			if id == "" {
				// same-document navigation
				return nil
			}
			return doc.waitDOMContentLoaded(ctx, id)
		}),
		chromedp.Evaluate(innerTextScript, &text),
	)
	status := doc.status(loaderID)
	if err != nil {
		return "", status, fmt.Errorf("render %s: %w", targetURL, err)
	}
	return extract.Collapse(text), status, nil
}

// bind derives a chromedp context that honors the deadline and cancellation
// of ctx.
func (s *remoteSession) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx := s.taskCtx
	cancelDeadline := func() {}
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
	}
	runCtx, cancelRun := context.WithCancel(runCtx)
	stop := context.AfterFunc(ctx, cancelRun)
	return runCtx, func() {
		stop()
		cancelRun()
		cancelDeadline()
	}
}

func (s *remoteSession) Close(ctx context.Context) error {
	defer s.allocCancel()

	closeCtx := s.taskCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		closeCtx, cancel = context.WithDeadline(closeCtx, deadline)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Cancel(closeCtx)
	}()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("close browser session: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.taskCancel()
		return fmt.Errorf("close browser session: %w", ctx.Err())
	}
}

// documentState collects lifecycle and response events for the main frame.
type documentState struct {
	mu        sync.Mutex
	domLoaded map[cdp.LoaderID]bool
	statuses  map[cdp.LoaderID]int
	signal    chan struct{}
}

func newDocumentState() *documentState {
	return &documentState{
		domLoaded: make(map[cdp.LoaderID]bool),
		statuses:  make(map[cdp.LoaderID]int),
		signal:    make(chan struct{}, 1),
	}
}

func (d *documentState) captureEvent(ev any) {
	switch ev := ev.(type) {
	case *page.EventLifecycleEvent:
		if ev.Name != "DOMContentLoaded" {
			return
		}
		d.mu.Lock()
		d.domLoaded[ev.LoaderID] = true
		d.mu.Unlock()
		select {
		case d.signal <- struct{}{}:
		default:
		}
	case *network.EventResponseReceived:
		if ev.Type != network.ResourceTypeDocument || ev.Response == nil {
			return
		}
		d.mu.Lock()
		d.statuses[ev.LoaderID] = int(ev.Response.Status)
		d.mu.Unlock()
	}
}

func (d *documentState) loaded(loaderID cdp.LoaderID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.domLoaded[loaderID]
}

func (d *documentState) waitDOMContentLoaded(ctx context.Context, loaderID cdp.LoaderID) error {
	for !d.loaded(loaderID) {
		select {
		case <-d.signal:
		case <-ctx.Done():
			return fmt.Errorf("wait for DOMContentLoaded: %w", ctx.Err())
		}
	}
	return nil
}

// status is the response status of the navigation's own document, or 0 when
// none was seen. Frame documents carry other loader IDs and never count.
func (d *documentState) status(loaderID cdp.LoaderID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statuses[loaderID]
}
