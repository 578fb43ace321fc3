// CLAUDE:SUMMARY Implements the Tab interface on a Rod page: navigation, eval, node-targeted input, capture, accessibility tree, and wait primitives.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// aliveProbeTimeout bounds the CDP round-trip used to decide whether a
// page is still usable.
const aliveProbeTimeout = 3 * time.Second

// Page is a live browser page. It implements Tab.
type Page struct {
	p          *rod.Page
	navTimeout time.Duration
	logger     *slog.Logger
}

var _ Tab = (*Page)(nil)

// TargetID returns the CDP target identifier of the page.
func (pg *Page) TargetID() string {
	return string(pg.p.TargetID)
}

// Meta reports the page's current URL and title.
func (pg *Page) Meta(ctx context.Context) (PageMeta, error) {
	info, err := pg.p.Context(ctx).Info()
	if err != nil {
		return PageMeta{}, fmt.Errorf("browser: page info: %w", err)
	}
	return PageMeta{URL: info.URL, Title: info.Title}, nil
}

// Alive probes the page with a bounded Target.getTargetInfo call. A page
// whose renderer crashed or whose target was closed stops answering.
func (pg *Page) Alive(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, aliveProbeTimeout)
	defer cancel()
	_, err := pg.p.Context(probeCtx).Info()
	return err == nil
}

// Navigate loads a URL and waits for the load event. A load-event timeout
// is logged but not returned: slow pages are still usable.
func (pg *Page) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, pg.navTimeout)
	defer cancel()

	if err := pg.p.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := pg.p.Context(navCtx).WaitLoad(); err != nil {
		pg.logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// Eval runs a JavaScript expression in the page and returns the result as
// JSON. Plain expressions are wrapped into a function, which is the form
// the protocol requires.
func (pg *Page) Eval(ctx context.Context, expr string) (json.RawMessage, error) {
	res, err := pg.p.Context(ctx).Eval(wrapExpression(expr))
	if err != nil {
		return nil, fmt.Errorf("browser: eval: %w", err)
	}
	out, err := json.Marshal(res.Value.Val())
	if err != nil {
		return nil, fmt.Errorf("browser: encode eval result: %w", err)
	}
	return out, nil
}

// wrapExpression turns a bare expression into a function literal unless it
// already is one.
func wrapExpression(expr string) string {
	trimmed := strings.TrimSpace(expr)
	if strings.HasPrefix(trimmed, "(") ||
		strings.HasPrefix(trimmed, "function") ||
		strings.HasPrefix(trimmed, "async ") {
		return trimmed
	}
	return "() => (" + trimmed + ")"
}

// ClickNode clicks the element backing an accessibility node. Rod scrolls
// the element into view and waits for it to be interactable.
func (pg *Page) ClickNode(ctx context.Context, id proto.DOMBackendNodeID) error {
	el, err := pg.elementByBackendID(ctx, id)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click node %d: %w", id, err)
	}
	return nil
}

// TypeNode replaces the text of the element backing an accessibility node
// and optionally presses Enter afterwards.
func (pg *Page) TypeNode(ctx context.Context, id proto.DOMBackendNodeID, text string, submit bool) error {
	el, err := pg.elementByBackendID(ctx, id)
	if err != nil {
		return err
	}

	// Empty or non-text elements make SelectAllText fail; typing still works.
	if err := el.SelectAllText(); err != nil {
		pg.logger.Debug("browser: select all text failed", "node", id, "error", err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("browser: type into node %d: %w", id, err)
	}
	if submit {
		if err := el.Type(input.Enter); err != nil {
			return fmt.Errorf("browser: press enter on node %d: %w", id, err)
		}
	}
	return nil
}

func (pg *Page) elementByBackendID(ctx context.Context, id proto.DOMBackendNodeID) (*rod.Element, error) {
	page := pg.p.Context(ctx)
	res, err := proto.DOMResolveNode{BackendNodeID: id}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("browser: resolve node %d: %w", id, err)
	}
	el, err := page.ElementFromObject(res.Object)
	if err != nil {
		return nil, fmt.Errorf("browser: element from node %d: %w", id, err)
	}
	return el, nil
}

// Screenshot captures the viewport, or the full scroll height when
// fullPage is set.
func (pg *Page) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	data, err := pg.p.Context(ctx).Screenshot(fullPage, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return data, nil
}

// PDF renders the page to PDF with backgrounds included.
func (pg *Page) PDF(ctx context.Context) ([]byte, error) {
	r, err := pg.p.Context(ctx).PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return nil, fmt.Errorf("browser: print to pdf: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("browser: read pdf stream: %w", err)
	}
	return data, nil
}

// HTML returns the serialised DOM of the page.
func (pg *Page) HTML(ctx context.Context) (string, error) {
	html, err := pg.p.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: get html: %w", err)
	}
	return html, nil
}

// AXTree fetches the full accessibility tree as a flat node list. The
// Accessibility domain must be enabled once per page before the first
// fetch; enabling it repeatedly is harmless.
func (pg *Page) AXTree(ctx context.Context) ([]*proto.AccessibilityAXNode, error) {
	page := pg.p.Context(ctx)
	if err := (proto.AccessibilityEnable{}).Call(page); err != nil {
		return nil, fmt.Errorf("browser: enable accessibility: %w", err)
	}
	res, err := proto.AccessibilityGetFullAXTree{}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("browser: get accessibility tree: %w", err)
	}
	return res.Nodes, nil
}

// NodeAttributes returns the DOM attributes of the element backing an
// accessibility node, as a name to value map.
func (pg *Page) NodeAttributes(ctx context.Context, id proto.DOMBackendNodeID) (map[string]string, error) {
	res, err := proto.DOMDescribeNode{BackendNodeID: id}.Call(pg.p.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("browser: describe node %d: %w", id, err)
	}
	attrs := make(map[string]string, len(res.Node.Attributes)/2)
	for i := 0; i+1 < len(res.Node.Attributes); i += 2 {
		attrs[res.Node.Attributes[i]] = res.Node.Attributes[i+1]
	}
	return attrs, nil
}

// WaitLoad waits for the page load event.
func (pg *Page) WaitLoad(ctx context.Context) error {
	if err := pg.p.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load: %w", err)
	}
	return nil
}

// WaitStable waits until the page layout stops changing for the quiet
// window.
func (pg *Page) WaitStable(ctx context.Context, quiet time.Duration) error {
	if quiet <= 0 {
		quiet = time.Second
	}
	if err := pg.p.Context(ctx).WaitStable(quiet); err != nil {
		return fmt.Errorf("browser: wait stable: %w", err)
	}
	return nil
}

// WaitIdle waits until the network goes idle, up to the timeout.
func (pg *Page) WaitIdle(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := pg.p.Context(ctx).WaitIdle(timeout); err != nil {
		return fmt.Errorf("browser: wait idle: %w", err)
	}
	return nil
}

// Close closes the underlying browser page.
func (pg *Page) Close() error {
	if err := pg.p.Close(); err != nil {
		return fmt.Errorf("browser: close page: %w", err)
	}
	return nil
}
