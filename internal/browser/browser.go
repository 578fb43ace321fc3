// CLAUDE:SUMMARY Owns the Chrome connection: launch or attach via Rod, open stealth pages, expose page operations behind the Tab interface.
// Package browser manages the Chrome side of tabkeeper: one browser
// process (launched locally or attached via a control URL) and the pages
// opened in it. Page operations are exposed through the Tab interface so
// higher layers can be tested against fakes without a running Chrome.
package browser

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// PageMeta is the current URL and title of a page.
type PageMeta struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Tab is the operation surface of one browser page. *Page implements it
// against real Chrome; tests substitute fakes.
type Tab interface {
	// TargetID returns the CDP target identifier, stable for the life of
	// the page.
	TargetID() string
	// Meta reports the page's current URL and title.
	Meta(ctx context.Context) (PageMeta, error)
	// Alive probes whether the page still answers CDP calls.
	Alive(ctx context.Context) bool

	Navigate(ctx context.Context, url string) error
	Eval(ctx context.Context, expr string) (json.RawMessage, error)
	ClickNode(ctx context.Context, id proto.DOMBackendNodeID) error
	TypeNode(ctx context.Context, id proto.DOMBackendNodeID, text string, submit bool) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	PDF(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)

	// AXTree returns the flattened accessibility tree of the page.
	AXTree(ctx context.Context) ([]*proto.AccessibilityAXNode, error)
	// NodeAttributes returns the DOM attributes of the element backing an
	// accessibility node.
	NodeAttributes(ctx context.Context, id proto.DOMBackendNodeID) (map[string]string, error)

	WaitLoad(ctx context.Context) error
	WaitStable(ctx context.Context, quiet time.Duration) error
	WaitIdle(ctx context.Context, timeout time.Duration) error

	Close() error
}
