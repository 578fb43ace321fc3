package tabkeeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/tabkeeper/internal/browser"
	"github.com/hazyhaar/tabkeeper/internal/store"

	_ "modernc.org/sqlite"
)

// axVal builds an AXValue carrying v, going through JSON the way CDP does.
func axVal(v any) *proto.AccessibilityAXValue {
	b, err := json.Marshal(map[string]any{"value": v})
	if err != nil {
		panic(err)
	}
	av := &proto.AccessibilityAXValue{}
	if err := json.Unmarshal(b, av); err != nil {
		panic(err)
	}
	return av
}

func axNode(id, role, name string, backend int, children ...string) *proto.AccessibilityAXNode {
	n := &proto.AccessibilityAXNode{
		NodeID:           proto.AccessibilityAXNodeID(id),
		BackendDOMNodeID: proto.DOMBackendNodeID(backend),
	}
	if role != "" {
		n.Role = axVal(role)
	}
	if name != "" {
		n.Name = axVal(name)
	}
	for _, c := range children {
		n.ChildIDs = append(n.ChildIDs, proto.AccessibilityAXNodeID(c))
	}
	return n
}

// fakeTab implements browser.Tab without a browser.
type fakeTab struct {
	id   string
	html string
	pdf  []byte
	png  []byte
	eval json.RawMessage

	mu        sync.Mutex
	url       string
	title     string
	nodes     []*proto.AccessibilityAXNode
	dead      bool
	clicked   []proto.DOMBackendNodeID
	typed     []string
	navigated []string
}

func (f *fakeTab) TargetID() string { return f.id }

func (f *fakeTab) Meta(ctx context.Context) (browser.PageMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return browser.PageMeta{URL: f.url, Title: f.title}, nil
}

func (f *fakeTab) Alive(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead
}

func (f *fakeTab) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	f.url = url
	return nil
}

func (f *fakeTab) Eval(ctx context.Context, expr string) (json.RawMessage, error) {
	if f.eval != nil {
		return f.eval, nil
	}
	return json.RawMessage("null"), nil
}

func (f *fakeTab) ClickNode(ctx context.Context, id proto.DOMBackendNodeID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicked = append(f.clicked, id)
	return nil
}

func (f *fakeTab) TypeNode(ctx context.Context, id proto.DOMBackendNodeID, text string, submit bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typed = append(f.typed, fmt.Sprintf("%d:%s:%v", id, text, submit))
	return nil
}

func (f *fakeTab) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return f.png, nil
}

func (f *fakeTab) PDF(ctx context.Context) ([]byte, error) { return f.pdf, nil }

func (f *fakeTab) HTML(ctx context.Context) (string, error) { return f.html, nil }

func (f *fakeTab) AXTree(ctx context.Context) ([]*proto.AccessibilityAXNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes, nil
}

func (f *fakeTab) NodeAttributes(ctx context.Context, id proto.DOMBackendNodeID) (map[string]string, error) {
	return nil, nil
}

func (f *fakeTab) WaitLoad(ctx context.Context) error                        { return nil }
func (f *fakeTab) WaitStable(ctx context.Context, quiet time.Duration) error { return nil }
func (f *fakeTab) WaitIdle(ctx context.Context, timeout time.Duration) error { return nil }

func (f *fakeTab) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead = true
	return nil
}

func (f *fakeTab) setNodes(nodes []*proto.AccessibilityAXNode) {
	f.mu.Lock()
	f.nodes = nodes
	f.mu.Unlock()
}

func (f *fakeTab) kill() {
	f.mu.Lock()
	f.dead = true
	f.mu.Unlock()
}

// testTabs is a page factory handing out fake tabs and remembering them
// in creation order.
type testTabs struct {
	mu   sync.Mutex
	made []*fakeTab
}

func (tt *testTabs) factory(ctx context.Context) (browser.Tab, error) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	ft := &fakeTab{
		id:   fmt.Sprintf("target-%d", len(tt.made)),
		html: "<html><head><title>Example Domain</title></head><body><h1>Hello World</h1></body></html>",
		pdf:  []byte("not a real pdf"),
		png:  []byte{0x89, 'P', 'N', 'G'},
	}
	tt.made = append(tt.made, ft)
	return ft, nil
}

func (tt *testTabs) count() int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return len(tt.made)
}

func (tt *testTabs) tab(t *testing.T, i int) *fakeTab {
	t.Helper()
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if i >= len(tt.made) {
		t.Fatalf("no fake tab %d, only %d created", i, len(tt.made))
	}
	return tt.made[i]
}

// newTestKeeper builds a Keeper on fake tabs, never touching Chrome.
// With persist, sessions go to a temp SQLite file.
func newTestKeeper(t *testing.T, persist bool) (*Keeper, *testTabs) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ArtifactsDir = t.TempDir()
	if persist {
		cfg.Store.Path = filepath.Join(t.TempDir(), "tabkeeper.db")
	}
	tt := &testTabs{}
	k, err := New(cfg, slog.Default(), WithPageFactory(tt.factory))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { k.Stop(context.Background()) })
	return k, tt
}

// buttonTree is a minimal page: one button (backend 42), one textbox
// (backend 43). Refs come out as e1 and e2.
func buttonTree() []*proto.AccessibilityAXNode {
	return []*proto.AccessibilityAXNode{
		axNode("1", "WebArea", "Example", 1, "2", "3", "4"),
		axNode("2", "StaticText", "Welcome", 10),
		axNode("3", "button", "Go", 42),
		axNode("4", "textbox", "Email", 43),
	}
}

func TestResolvePage(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	info, created, err := k.ResolvePage(ctx, "checkout")
	if err != nil {
		t.Fatalf("ResolvePage: %v", err)
	}
	if !created {
		t.Error("first resolve: created = false, want true")
	}
	if info.Name != "checkout" {
		t.Errorf("Name = %q, want checkout", info.Name)
	}
	if info.TargetID == "" {
		t.Error("expected non-empty TargetID")
	}
	if info.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	again, created, err := k.ResolvePage(ctx, "checkout")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if created {
		t.Error("second resolve: created = true, want false")
	}
	if again.TargetID != info.TargetID {
		t.Errorf("TargetID changed across resolves: %q vs %q", again.TargetID, info.TargetID)
	}
	if tt.count() != 1 {
		t.Errorf("factory ran %d times, want 1", tt.count())
	}
}

func TestResolvePage_InvalidName(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	for _, name := range []string{
		"",
		strings.Repeat("x", maxNameLen+1),
		"a/b",
		"tab\x00name",
		"line\nbreak",
	} {
		if _, _, err := k.ResolvePage(ctx, name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ResolvePage(%q) err = %v, want ErrInvalidName", name, err)
		}
	}
	if tt.count() != 0 {
		t.Errorf("invalid names created %d pages, want 0", tt.count())
	}
}

func TestListPages(t *testing.T) {
	k, _ := newTestKeeper(t, false)
	ctx := context.Background()

	if got := k.ListPages(ctx); len(got) != 0 {
		t.Fatalf("empty keeper lists %d pages", len(got))
	}

	k.ResolvePage(ctx, "zulu")
	k.ResolvePage(ctx, "alpha")
	if _, err := k.Navigate(ctx, "alpha", "https://alpha.example/home"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	pages := k.ListPages(ctx)
	if len(pages) != 2 {
		t.Fatalf("listed %d pages, want 2", len(pages))
	}
	if pages[0].Name != "alpha" || pages[1].Name != "zulu" {
		t.Errorf("order = %q, %q; want alpha, zulu", pages[0].Name, pages[1].Name)
	}
	if pages[0].URL != "https://alpha.example/home" {
		t.Errorf("alpha URL = %q", pages[0].URL)
	}
}

func TestClosePage(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	k.ResolvePage(ctx, "work")
	if err := k.ClosePage(ctx, "work"); err != nil {
		t.Fatalf("ClosePage: %v", err)
	}
	if tt.tab(t, 0).Alive(ctx) {
		t.Error("closed page's tab still alive")
	}
	if len(k.ListPages(ctx)) != 0 {
		t.Error("page still listed after close")
	}

	// The name is free for a fresh page.
	info, created, err := k.ResolvePage(ctx, "work")
	if err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if !created {
		t.Error("re-resolve after close: created = false, want true")
	}
	if info.TargetID == tt.tab(t, 0).id {
		t.Error("re-resolve reused the closed tab")
	}
}

func TestClosePage_Unknown(t *testing.T) {
	k, _ := newTestKeeper(t, false)
	if err := k.ClosePage(context.Background(), "ghost"); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("err = %v, want ErrPageNotFound", err)
	}
}

func TestSnapshotAndClick(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	k.ResolvePage(ctx, "shop")
	tt.tab(t, 0).setNodes(buttonTree())

	res, err := k.Snapshot(ctx, "shop")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if res.Generation != 1 {
		t.Errorf("Generation = %d, want 1", res.Generation)
	}
	if res.RefCount != 2 {
		t.Errorf("RefCount = %d, want 2", res.RefCount)
	}
	if !strings.Contains(res.Text, `button "Go" [ref=e1]`) {
		t.Errorf("snapshot text missing button line:\n%s", res.Text)
	}
	if !strings.Contains(res.Text, `textbox "Email" [ref=e2]`) {
		t.Errorf("snapshot text missing textbox line:\n%s", res.Text)
	}

	act, err := k.Click(ctx, "shop", "e1")
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if act.Status != "clicked" || act.Ref != "e1" {
		t.Errorf("ActionResult = %+v", act)
	}
	ft := tt.tab(t, 0)
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.clicked) != 1 || ft.clicked[0] != 42 {
		t.Errorf("clicked = %v, want [42]", ft.clicked)
	}
}

func TestType(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	k.ResolvePage(ctx, "shop")
	tt.tab(t, 0).setNodes(buttonTree())
	if _, err := k.Snapshot(ctx, "shop"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	act, err := k.Type(ctx, "shop", "e2", "user@example.com", true)
	if err != nil {
		t.Fatalf("Type: %v", err)
	}
	if act.Status != "typed" {
		t.Errorf("Status = %q", act.Status)
	}
	ft := tt.tab(t, 0)
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.typed) != 1 || ft.typed[0] != "43:user@example.com:true" {
		t.Errorf("typed = %v", ft.typed)
	}
}

func TestClick_BeforeSnapshot(t *testing.T) {
	k, _ := newTestKeeper(t, false)
	ctx := context.Background()

	k.ResolvePage(ctx, "fresh")
	if _, err := k.Click(ctx, "fresh", "e1"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("err = %v, want ErrNoSnapshot", err)
	}
}

func TestClick_StaleRef(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	k.ResolvePage(ctx, "shop")
	ft := tt.tab(t, 0)
	ft.setNodes([]*proto.AccessibilityAXNode{
		axNode("1", "WebArea", "Shop", 1, "2", "3", "4"),
		axNode("2", "button", "Add", 42),
		axNode("3", "button", "Remove", 43),
		axNode("4", "link", "Checkout", 44),
	})
	if _, err := k.Snapshot(ctx, "shop"); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}

	// The page changed: only one button remains. Recapture replaces the
	// whole ref index, so e3 from the first snapshot must be rejected.
	ft.setNodes([]*proto.AccessibilityAXNode{
		axNode("1", "WebArea", "Shop", 1, "2"),
		axNode("2", "button", "Add", 42),
	})
	res, err := k.Snapshot(ctx, "shop")
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if res.Generation != 2 {
		t.Errorf("Generation = %d, want 2", res.Generation)
	}

	if _, err := k.Click(ctx, "shop", "e3"); !errors.Is(err, ErrRefNotFound) {
		t.Errorf("stale ref err = %v, want ErrRefNotFound", err)
	}
	if _, err := k.Click(ctx, "shop", "e1"); err != nil {
		t.Errorf("current ref rejected: %v", err)
	}
}

func TestSnapshot_PagesIndependent(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	k.ResolvePage(ctx, "shop")
	k.ResolvePage(ctx, "mail")
	tt.tab(t, 0).setNodes(buttonTree())
	tt.tab(t, 1).setNodes([]*proto.AccessibilityAXNode{
		axNode("1", "WebArea", "Mail", 1, "2"),
		axNode("2", "button", "Compose", 99),
	})

	if _, err := k.Snapshot(ctx, "shop"); err != nil {
		t.Fatalf("snapshot shop: %v", err)
	}
	if _, err := k.Snapshot(ctx, "mail"); err != nil {
		t.Fatalf("snapshot mail: %v", err)
	}

	// e1 names a different node on each page.
	if _, err := k.Click(ctx, "shop", "e1"); err != nil {
		t.Fatalf("click shop: %v", err)
	}
	if _, err := k.Click(ctx, "mail", "e1"); err != nil {
		t.Fatalf("click mail: %v", err)
	}
	shop, mail := tt.tab(t, 0), tt.tab(t, 1)
	shop.mu.Lock()
	shopClicked := append([]proto.DOMBackendNodeID(nil), shop.clicked...)
	shop.mu.Unlock()
	mail.mu.Lock()
	mailClicked := append([]proto.DOMBackendNodeID(nil), mail.clicked...)
	mail.mu.Unlock()
	if len(shopClicked) != 1 || shopClicked[0] != 42 {
		t.Errorf("shop clicked = %v, want [42]", shopClicked)
	}
	if len(mailClicked) != 1 || mailClicked[0] != 99 {
		t.Errorf("mail clicked = %v, want [99]", mailClicked)
	}

	// Recapturing one page leaves the other's refs alone.
	if _, err := k.Snapshot(ctx, "shop"); err != nil {
		t.Fatalf("second shop snapshot: %v", err)
	}
	ref, err := k.ResolveRef(ctx, "mail", "e1")
	if err != nil {
		t.Fatalf("mail ref after shop recapture: %v", err)
	}
	if ref.Generation != 1 {
		t.Errorf("mail generation = %d, want 1", ref.Generation)
	}
}

func TestResolveRef(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	k.ResolvePage(ctx, "shop")
	tt.tab(t, 0).setNodes(buttonTree())
	if _, err := k.Snapshot(ctx, "shop"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	ref, err := k.ResolveRef(ctx, "shop", "e1")
	if err != nil {
		t.Fatalf("ResolveRef: %v", err)
	}
	if ref.Role != "button" || ref.Name != "Go" {
		t.Errorf("ref = %+v", ref)
	}
	if ref.Generation != 1 {
		t.Errorf("Generation = %d, want 1", ref.Generation)
	}

	// Ref lookup never creates pages.
	before := tt.count()
	if _, err := k.ResolveRef(ctx, "nonexistent", "e1"); !errors.Is(err, ErrPageNotFound) {
		t.Errorf("unknown page err = %v, want ErrPageNotFound", err)
	}
	if tt.count() != before {
		t.Error("ResolveRef created a page")
	}
}

func TestNavigate(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	info, err := k.Navigate(ctx, "news", "https://news.example/front")
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if info.URL != "https://news.example/front" {
		t.Errorf("URL = %q", info.URL)
	}
	ft := tt.tab(t, 0)
	ft.mu.Lock()
	navigated := append([]string(nil), ft.navigated...)
	ft.mu.Unlock()
	if len(navigated) != 1 || navigated[0] != "https://news.example/front" {
		t.Errorf("navigated = %v", navigated)
	}
}

func TestNavigate_BadURL(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	for _, raw := range []string{
		"",
		"ftp://files.example/x",
		"javascript:alert(1)",
		"/relative/path",
		"example.com",
	} {
		if _, err := k.Navigate(ctx, "news", raw); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Navigate(%q) err = %v, want ErrInvalidInput", raw, err)
		}
	}
	if tt.count() != 0 {
		t.Errorf("bad URLs created %d pages, want 0", tt.count())
	}
}

func TestNavigate_PersistsURL(t *testing.T) {
	k, _ := newTestKeeper(t, true)
	ctx := context.Background()

	if _, err := k.Navigate(ctx, "docs", "https://docs.example/guide"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	sess, err := k.store.GetSession(ctx, "docs")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess == nil || sess.URL != "https://docs.example/guide" {
		t.Fatalf("persisted session = %+v", sess)
	}

	if err := k.ClosePage(ctx, "docs"); err != nil {
		t.Fatalf("ClosePage: %v", err)
	}
	sess, err = k.store.GetSession(ctx, "docs")
	if err != nil {
		t.Fatalf("GetSession after close: %v", err)
	}
	if sess != nil {
		t.Errorf("session row survived close: %+v", sess)
	}
}

func TestRecreate_KeepsPersistedURL(t *testing.T) {
	k, tt := newTestKeeper(t, true)
	ctx := context.Background()

	if _, err := k.Navigate(ctx, "mail", "https://mail.example/inbox"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	// Simulate a crashed tab: the next resolve sweeps it and opens a
	// fresh page under the same name without erasing the recorded URL.
	tt.tab(t, 0).kill()
	_, created, err := k.ResolvePage(ctx, "mail")
	if err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if !created {
		t.Error("dead page resolve: created = false, want true")
	}
	sess, err := k.store.GetSession(ctx, "mail")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess == nil || sess.URL != "https://mail.example/inbox" {
		t.Errorf("recorded URL lost on recreation: %+v", sess)
	}
}

func TestRecreate_DropsStaleIndex(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	k.ResolvePage(ctx, "mail")
	tt.tab(t, 0).setNodes(buttonTree())
	if _, err := k.Snapshot(ctx, "mail"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	oldTarget := tt.tab(t, 0).id
	if k.index.Generation(oldTarget) != 1 {
		t.Fatalf("Generation = %d, want 1", k.index.Generation(oldTarget))
	}

	tt.tab(t, 0).kill()
	if _, _, err := k.ResolvePage(ctx, "mail"); err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	if k.index.Generation(oldTarget) != 0 {
		t.Error("dead page's ref index was not dropped")
	}
	if _, err := k.Click(ctx, "mail", "e1"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("click after recreation err = %v, want ErrNoSnapshot", err)
	}
}

func TestRestoreSessions(t *testing.T) {
	k, tt := newTestKeeper(t, true)
	ctx := context.Background()

	k.store.SaveSession(ctx, &store.Session{Name: "blog", URL: "https://blog.example/post"})
	k.store.SaveSession(ctx, &store.Session{Name: "blank"})

	k.restoreSessions(ctx)

	if n := len(k.ListPages(ctx)); n != 2 {
		t.Fatalf("restored %d pages, want 2", n)
	}
	// ListSessions is name-ordered: blank first, blog second.
	blog := tt.tab(t, 1)
	blog.mu.Lock()
	navigated := append([]string(nil), blog.navigated...)
	blog.mu.Unlock()
	if len(navigated) != 1 || navigated[0] != "https://blog.example/post" {
		t.Errorf("blog navigated = %v", navigated)
	}
	blank := tt.tab(t, 0)
	blank.mu.Lock()
	defer blank.mu.Unlock()
	if len(blank.navigated) != 0 {
		t.Errorf("blank session navigated = %v, want none", blank.navigated)
	}
}

func TestEval(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	if _, err := k.Eval(ctx, "calc", "   "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank expression err = %v, want ErrInvalidInput", err)
	}
	if tt.count() != 0 {
		t.Error("blank expression created a page")
	}

	k.ResolvePage(ctx, "calc")
	tt.tab(t, 0).eval = json.RawMessage(`{"sum":42}`)
	res, err := k.Eval(ctx, "calc", "compute()")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if string(res.Value) != `{"sum":42}` {
		t.Errorf("Value = %s", res.Value)
	}
}

func TestScreenshot(t *testing.T) {
	k, _ := newTestKeeper(t, false)
	ctx := context.Background()

	res, err := k.Screenshot(ctx, "page", "shots/home.png", false)
	if err != nil {
		t.Fatalf("Screenshot: %v", err)
	}
	if res.Bytes != 4 {
		t.Errorf("Bytes = %d, want 4", res.Bytes)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data[1:4]) != "PNG" {
		t.Errorf("artifact content = %q", data)
	}
	if !strings.HasPrefix(res.Path, k.cfg.ArtifactsDir) {
		t.Errorf("artifact %q escaped %q", res.Path, k.cfg.ArtifactsDir)
	}
}

func TestScreenshot_PathChecks(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	if _, err := k.Screenshot(ctx, "page", "", false); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty path err = %v, want ErrInvalidInput", err)
	}
	if _, err := k.Screenshot(ctx, "page", "../../etc/passwd", false); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("traversal err = %v, want ErrPathTraversal", err)
	}
	if tt.count() != 0 {
		t.Errorf("rejected paths created %d pages, want 0", tt.count())
	}
}

func TestPDF(t *testing.T) {
	k, _ := newTestKeeper(t, false)
	ctx := context.Background()

	res, err := k.PDF(ctx, "report", "report.pdf")
	if err != nil {
		t.Fatalf("PDF: %v", err)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	// The fake emits junk, so validation cannot count pages; the file is
	// still written and reported.
	if res.PDFPages != 0 {
		t.Errorf("PDFPages = %d, want 0 for unparseable output", res.PDFPages)
	}
	if res.Bytes == 0 {
		t.Error("Bytes = 0")
	}
}

func TestMarkdown(t *testing.T) {
	k, _ := newTestKeeper(t, false)
	ctx := context.Background()

	res, err := k.Markdown(ctx, "reader")
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if res.Title != "Example Domain" {
		t.Errorf("Title = %q", res.Title)
	}
	if !strings.Contains(res.Markdown, "Hello World") {
		t.Errorf("Markdown = %q", res.Markdown)
	}
	if res.Bytes != len(res.Markdown) {
		t.Errorf("Bytes = %d, want %d", res.Bytes, len(res.Markdown))
	}
	if len(res.Hash) != 64 {
		t.Errorf("Hash = %q, want 64 hex chars", res.Hash)
	}
}

func TestWait(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	if err := k.Wait(ctx, "page", "loaded", time.Second); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad state err = %v, want ErrInvalidInput", err)
	}
	if tt.count() != 0 {
		t.Error("bad wait state created a page")
	}

	for _, state := range []string{WaitLoad, WaitStable, WaitIdle} {
		if err := k.Wait(ctx, "page", state, 0); err != nil {
			t.Errorf("Wait(%s): %v", state, err)
		}
	}
}

func TestStatus(t *testing.T) {
	k, _ := newTestKeeper(t, false)
	ctx := context.Background()

	k.ResolvePage(ctx, "one")
	k.ResolvePage(ctx, "two")

	st := k.Status(ctx)
	if st.Status != "ok" {
		t.Errorf("Status = %q", st.Status)
	}
	if st.Version != Version {
		t.Errorf("Version = %q, want %q", st.Version, Version)
	}
	if st.Pages != 2 {
		t.Errorf("Pages = %d, want 2", st.Pages)
	}
	if st.BrowserAlive {
		t.Error("BrowserAlive = true without a browser")
	}
	if st.Uptime == "" {
		t.Error("empty Uptime")
	}
}

func TestSnapshotHistory(t *testing.T) {
	k, tt := newTestKeeper(t, true)
	ctx := context.Background()

	k.ResolvePage(ctx, "shop")
	tt.tab(t, 0).setNodes(buttonTree())
	if _, err := k.Snapshot(ctx, "shop"); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	if _, err := k.Snapshot(ctx, "shop"); err != nil {
		t.Fatalf("second snapshot: %v", err)
	}

	entries, err := k.SnapshotHistory(ctx, "shop", 0)
	if err != nil {
		t.Fatalf("SnapshotHistory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("history has %d entries, want 2", len(entries))
	}
	if entries[0].Generation != 2 || entries[1].Generation != 1 {
		t.Errorf("generations = %d, %d; want 2, 1", entries[0].Generation, entries[1].Generation)
	}
	if entries[0].RefCount != 2 {
		t.Errorf("RefCount = %d, want 2", entries[0].RefCount)
	}

	// History survives page close.
	if err := k.ClosePage(ctx, "shop"); err != nil {
		t.Fatalf("ClosePage: %v", err)
	}
	entries, err = k.SnapshotHistory(ctx, "shop", 1)
	if err != nil {
		t.Fatalf("SnapshotHistory after close: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("limited history has %d entries, want 1", len(entries))
	}
}

func TestSnapshotHistory_NoStore(t *testing.T) {
	k, _ := newTestKeeper(t, false)
	entries, err := k.SnapshotHistory(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("SnapshotHistory: %v", err)
	}
	if entries != nil {
		t.Errorf("entries = %v, want nil without a store", entries)
	}
}

func TestOpMetrics(t *testing.T) {
	k, tt := newTestKeeper(t, true)
	ctx := context.Background()

	k.ResolvePage(ctx, "shop")
	tt.tab(t, 0).setNodes(buttonTree())
	if _, err := k.Snapshot(ctx, "shop"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if _, err := k.Navigate(ctx, "shop", "https://example.com/"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if _, err := k.Navigate(ctx, "shop", "ftp://nope"); err == nil {
		t.Fatal("bad navigate succeeded")
	}

	k.metrics.Flush()
	pts, err := k.metrics.Query(ctx, "", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(pts) != 3 {
		t.Fatalf("recorded %d points, want 3", len(pts))
	}
	byOp := map[string]int{}
	var failed int
	for _, p := range pts {
		byOp[p.Op]++
		if p.Session != "shop" {
			t.Errorf("point session = %q, want shop", p.Session)
		}
		if !p.OK {
			failed++
		}
	}
	if byOp["snapshot"] != 1 || byOp["navigate"] != 2 {
		t.Errorf("ops = %v, want 1 snapshot and 2 navigates", byOp)
	}
	if failed != 1 {
		t.Errorf("failed points = %d, want 1 (the rejected navigate)", failed)
	}
}

func TestOpMetrics_NoStore(t *testing.T) {
	k, _ := newTestKeeper(t, false)
	if k.metrics != nil {
		t.Fatal("metrics recorder exists without a store")
	}
	// Ops must not panic when nothing records them.
	if _, _, err := k.ResolvePage(context.Background(), "solo"); err != nil {
		t.Fatalf("ResolvePage: %v", err)
	}
	if _, _, err := k.ResolvePage(context.Background(), "solo"); err != nil {
		t.Fatalf("ResolvePage again: %v", err)
	}
}

func TestStop_Idempotent(t *testing.T) {
	k, tt := newTestKeeper(t, false)
	ctx := context.Background()

	k.ResolvePage(ctx, "a")
	if err := k.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if tt.tab(t, 0).Alive(ctx) {
		t.Error("tab alive after Stop")
	}
	if err := k.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestValidateName(t *testing.T) {
	if err := validateName("checkout-2"); err != nil {
		t.Errorf("valid name rejected: %v", err)
	}
	if err := validateName(strings.Repeat("x", maxNameLen)); err != nil {
		t.Errorf("max-length name rejected: %v", err)
	}
	if err := validateName("über-tab"); err != nil {
		t.Errorf("unicode name rejected: %v", err)
	}
	if err := validateName(strings.Repeat("x", maxNameLen+1)); !errors.Is(err, ErrInvalidName) {
		t.Error("over-length name accepted")
	}
}
