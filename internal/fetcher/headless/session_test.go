package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/require"
)

func TestDocumentStateWaitsForMatchingLoader(t *testing.T) {
	t.Parallel()

	doc := newDocumentState()
	doc.captureEvent(&page.EventLifecycleEvent{LoaderID: "blank", Name: "DOMContentLoaded"})

	done := make(chan error, 1)
	go func() {
		done <- doc.waitDOMContentLoaded(context.Background(), "nav")
	}()

	select {
	case err := <-done:
		t.Fatalf("wait returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	doc.captureEvent(&page.EventLifecycleEvent{LoaderID: "nav", Name: "load"})
	doc.captureEvent(&page.EventLifecycleEvent{LoaderID: "nav", Name: "DOMContentLoaded"})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not observe DOMContentLoaded")
	}
}

func TestDocumentStateEarlyEventIsRemembered(t *testing.T) {
	t.Parallel()

	doc := newDocumentState()
	doc.captureEvent(&page.EventLifecycleEvent{LoaderID: "nav", Name: "DOMContentLoaded"})
	require.NoError(t, doc.waitDOMContentLoaded(context.Background(), "nav"))
}

func TestDocumentStateWaitHonorsContext(t *testing.T) {
	t.Parallel()

	doc := newDocumentState()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := doc.waitDOMContentLoaded(ctx, "nav")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDocumentStateStatus(t *testing.T) {
	t.Parallel()

	doc := newDocumentState()
	require.Zero(t, doc.status("nav"))

	doc.captureEvent(&network.EventResponseReceived{
		LoaderID: "nav",
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500},
	})
	require.Zero(t, doc.status("nav"))

	doc.captureEvent(&network.EventResponseReceived{
		LoaderID: "nav",
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 403},
	})
	doc.captureEvent(&network.EventResponseReceived{
		LoaderID: "frame",
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200},
	})
	require.Equal(t, 403, doc.status("nav"))
	require.Equal(t, 200, doc.status("frame"))
	require.Zero(t, doc.status("other"))
}

func TestDocumentStateIgnoresFrameDocuments(t *testing.T) {
	t.Parallel()

	doc := newDocumentState()
	doc.captureEvent(&network.EventResponseReceived{
		LoaderID: "iframe",
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 403},
	})
	require.Zero(t, doc.status("nav"))
	require.Nil(t, documentStatusFailure(doc.status("nav")))
}
