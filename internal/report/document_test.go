package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"inspector-report/internal/model"
)

func makeEvents(n int, warnings bool) []model.EventRecord {
	base := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)
	out := make([]model.EventRecord, n)
	for i := range out {
		out[i] = model.EventRecord{
			ID:           fmt.Sprintf("ev-%d", i),
			EventName:    "page_view",
			Timestamp:    base.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
			PageURL:      "https://shop.example/p/" + fmt.Sprint(i),
			DistinctID:   "user-1",
			ProjectToken: "tok",
			Params:       map[string]any{"page_title": "Home"},
		}
		if warnings {
			out[i].Warnings = []string{"missing token"}
		}
	}
	return out
}

func draw(t *testing.T, events []model.EventRecord, layout *Layout) (*recorder, Result) {
	t.Helper()
	rec := &recorder{}
	res := Draw(rec, Context{
		Events:      events,
		GeneratedAt: "2024-01-05T12:00:00Z",
		Source:      "extension",
		SessionInfo: map[string]string{"pageUrl": "https://shop.example/", "userAgent": "test-agent"},
	}, layout, Options{})
	if res.Pages != rec.pages {
		t.Fatalf("Result.Pages = %d, canvas saw %d", res.Pages, rec.pages)
	}
	return rec, res
}

// tableRows are the first-column cells of body rows.
func tableRows(rec *recorder) []textCall {
	x := A4Landscape.MarginLeft + tableCellPadding
	return rec.find(func(tc textCall) bool {
		return tc.x == x && tc.style.Size == sizeTable && !tc.style.Bold
	})
}

func tableHeaders(rec *recorder) []textCall {
	return rec.find(func(tc textCall) bool { return tc.text == "Timestamp" && tc.style.Bold })
}

func TestDrawEmptyEvents(t *testing.T) {
	rec, res := draw(t, nil, MixpanelLayout)

	if res.Pages != 1 {
		t.Fatalf("Pages = %d", res.Pages)
	}
	if len(rec.exact("Mixpanel Inspector Report")) != 1 {
		t.Fatal("missing title")
	}
	for _, s := range []string{"Total events: 0", "Unique event names: 0", "Warning count: 0", "Time range: n/a"} {
		if len(rec.exact(s)) != 1 {
			t.Fatalf("missing summary item %q", s)
		}
	}
	if len(rec.exact("No events available for this report.")) != 1 {
		t.Fatal("missing empty state")
	}
	if len(tableHeaders(rec)) != 0 || len(rec.prefixed("Event details")) != 0 || len(rec.prefixed("Diagnostics")) != 0 {
		t.Fatal("empty report must not draw table, cards or warnings")
	}
	if res.TableRows != 0 || res.Cards != 0 || res.WarningRows != 0 {
		t.Fatalf("unexpected counts %+v", res)
	}
}

func TestDrawMixedEvents(t *testing.T) {
	events := []model.EventRecord{
		{EventName: "page_view", Timestamp: "2024-01-05T10:00:00Z", Warnings: []string{"a", "b"}},
		{EventName: "purchase", Timestamp: "not a time"},
		{EventName: "scroll", Timestamp: "2024-01-05T12:00:00Z"},
	}
	rec, res := draw(t, events, MixpanelLayout)

	for _, s := range []string{
		"Total events: 3",
		"Warning count: 2",
		"Time range: Jan 5, 2024, 10:00:00 AM to Jan 5, 2024, 12:00:00 PM",
	} {
		if len(rec.exact(s)) != 1 {
			t.Fatalf("missing summary item %q", s)
		}
	}
	if res.TableRows != 3 || res.Cards != 3 {
		t.Fatalf("rows %d cards %d", res.TableRows, res.Cards)
	}
	if res.WarningRows != 1 {
		t.Fatalf("WarningRows = %d", res.WarningRows)
	}
	if len(rec.exact("1. page_view @ Jan 5, 2024, 10:00:00 AM => a | b")) != 1 {
		t.Fatal("missing warning line")
	}
	if len(rec.exact("Warnings: a | b")) != 1 {
		t.Fatal("missing warnings line on the card")
	}
	if len(rec.prefixed("Showing first")) != 0 {
		t.Fatal("unexpected cap notice")
	}
}

func TestDrawOverCap(t *testing.T) {
	rec, res := draw(t, makeEvents(600, false), MixpanelLayout)

	if res.TableRows != MaxEventsInReport || res.Cards != MaxEventsInReport {
		t.Fatalf("rows %d cards %d", res.TableRows, res.Cards)
	}
	if len(tableRows(rec)) != MaxEventsInReport {
		t.Fatalf("drew %d table rows", len(tableRows(rec)))
	}
	if len(rec.exact("Showing first 500 of 600 events. Export a smaller time range for full detail.")) != 1 {
		t.Fatal("missing table notice")
	}
	if len(rec.exact("Details limited to first 500 of 600 events.")) != 1 {
		t.Fatal("missing card notice")
	}
	if len(rec.exact("No warnings captured in this request.")) != 1 {
		t.Fatal("missing empty warnings line")
	}
	if len(rec.prefixed("Diagnostics limited")) != 0 {
		t.Fatal("unexpected warnings notice")
	}
	if len(rec.exact("Total events: 600")) != 1 {
		t.Fatal("summary must cover every event")
	}
}

func TestDrawExactlyAtCap(t *testing.T) {
	rec, res := draw(t, makeEvents(MaxEventsInReport, false), GA4Layout)

	if res.TableRows != MaxEventsInReport || res.Cards != MaxEventsInReport {
		t.Fatalf("rows %d cards %d", res.TableRows, res.Cards)
	}
	if len(rec.prefixed("Showing first")) != 0 || len(rec.prefixed("Details limited")) != 0 {
		t.Fatal("a list exactly at the cap shows no notice")
	}
}

func TestDrawTableHeaderOncePerPage(t *testing.T) {
	rec, _ := draw(t, makeEvents(120, false), GA4Layout)

	headers := perPage(tableHeaders(rec))
	rows := perPage(tableRows(rec))
	if len(rows) < 2 {
		t.Fatalf("expected the table to span pages, got %d", len(rows))
	}
	for page := range rows {
		if headers[page] != 1 {
			t.Fatalf("page %d has %d table headers", page, headers[page])
		}
	}
	for page := range headers {
		if rows[page] == 0 {
			t.Fatalf("page %d has a header without rows", page)
		}
	}

	// header before the first row of its page
	for _, h := range tableHeaders(rec) {
		for _, r := range tableRows(rec) {
			if r.page == h.page && r.y <= h.y {
				t.Fatalf("row at %v above header at %v on page %d", r.y, h.y, h.page)
			}
		}
	}
}

func TestDrawCardHeadingContinued(t *testing.T) {
	rec, _ := draw(t, makeEvents(40, true), MixpanelLayout)

	cardPages := make(map[int]bool)
	for _, r := range rec.rects {
		if r.kind == "card" {
			cardPages[r.page] = true
		}
	}
	if len(cardPages) < 2 {
		t.Fatalf("expected cards on several pages, got %d", len(cardPages))
	}
	if n := len(rec.exact("Event details")); n != 1 {
		t.Fatalf("%d first headings", n)
	}
	cont := perPage(rec.exact("Event details (cont.)"))
	if len(cont) != len(cardPages)-1 {
		t.Fatalf("%d continued headings for %d card pages", len(cont), len(cardPages))
	}
	for page, n := range cont {
		if n != 1 || !cardPages[page] {
			t.Fatalf("page %d: %d continued headings", page, n)
		}
	}

	for _, r := range rec.rects {
		if r.kind == "card" && r.y+r.h > A4Landscape.Bottom()+1e-6 {
			t.Fatalf("card crosses the footer band on page %d", r.page)
		}
	}
}

func TestDrawWarningsCap(t *testing.T) {
	rec, res := draw(t, makeEvents(350, true), MixpanelLayout)

	if res.WarningRows != MaxWarningEvents {
		t.Fatalf("WarningRows = %d", res.WarningRows)
	}
	if len(rec.exact("Diagnostics limited to first 300 events with warnings.")) != 1 {
		t.Fatal("missing warnings notice")
	}
	if len(rec.prefixed("Diagnostics / warnings (cont.)")) == 0 {
		t.Fatal("expected a continued warnings heading")
	}
	if len(rec.prefixed("300. ")) != 1 || len(rec.prefixed("301. ")) != 0 {
		t.Fatal("warnings numbering")
	}
}

func TestDrawGA4HasNoWarningsSection(t *testing.T) {
	rec, res := draw(t, makeEvents(3, true), GA4Layout)
	if res.WarningRows != 0 || len(rec.prefixed("Diagnostics")) != 0 {
		t.Fatal("GA4 layout has no warnings section")
	}
	if len(rec.prefixed("Source: ")) != 0 {
		t.Fatal("GA4 layout has no source line")
	}
}

func TestDrawFooterOnEveryPage(t *testing.T) {
	rec, res := draw(t, makeEvents(200, true), MixpanelLayout)

	footers := rec.prefixed("Mixpanel Inspector | Report generated at Jan 5, 2024, 12:00:00 PM | Page ")
	if len(footers) != res.Pages {
		t.Fatalf("%d footers for %d pages", len(footers), res.Pages)
	}
	for i, f := range footers {
		if want := fmt.Sprintf("| Page %d", i+1); !strings.HasSuffix(f.text, want) {
			t.Fatalf("footer %d = %q", i, f.text)
		}
		if f.page != i {
			t.Fatalf("footer %d drawn on page %d", i+1, f.page)
		}
		if f.y != A4Landscape.FooterY() {
			t.Fatalf("footer at y=%v", f.y)
		}
	}

	bottom := A4Landscape.Bottom()
	for _, tc := range rec.texts {
		if tc.y != A4Landscape.FooterY() && tc.y > bottom+1e-6 {
			t.Fatalf("%q drawn in the footer band at y=%v", tc.text, tc.y)
		}
	}
}

func TestDrawDoesNotMutateEvents(t *testing.T) {
	events := makeEvents(5, true)
	events[0].Params["items"] = []any{map[string]any{"item_name": "x"}}
	before := make([]model.EventRecord, len(events))
	for i := range events {
		before[i] = events[i]
		before[i].Params = map[string]any{}
		for k, v := range events[i].Params {
			before[i].Params[k] = v
		}
		before[i].Warnings = append([]string(nil), events[i].Warnings...)
	}

	draw(t, events, MixpanelLayout)

	if !reflect.DeepEqual(before, events) {
		t.Fatal("events changed during render")
	}
}

func TestDrawLogoFailureIsNotFatal(t *testing.T) {
	rec := &recorder{imageErr: errors.New("bad image")}
	res := Draw(rec, Context{Events: makeEvents(2, false), LogoPath: "logo.png"}, GA4Layout,
		Options{Attribution: "Powered by Test"})

	if res.LogoErr == nil {
		t.Fatal("expected LogoErr")
	}
	if rec.images != 1 || res.TableRows != 2 {
		t.Fatalf("images %d rows %d", rec.images, res.TableRows)
	}
	if len(rec.exact("Powered by Test")) != 1 {
		t.Fatal("attribution missing")
	}

	rec = &recorder{}
	Draw(rec, Context{}, GA4Layout, Options{})
	if rec.images != 0 {
		t.Fatal("no logo path, no image")
	}
}

func TestDrawNilLayoutFallsBackToGA4(t *testing.T) {
	rec := &recorder{}
	Draw(rec, Context{}, nil, Options{})
	if len(rec.exact(GA4Layout.Title)) != 1 {
		t.Fatal("expected the GA4 title")
	}
}

func TestColumnLayout(t *testing.T) {
	for _, l := range []*Layout{GA4Layout, MixpanelLayout} {
		xs, widths := columnLayout(l.Columns, 40, A4Landscape.ContentWidth())
		sum := 0.0
		for i, w := range widths {
			sum += w
			if i > 0 && !near(xs[i], xs[i-1]+widths[i-1]) {
				t.Fatalf("%s: column %d not adjacent", l.Product, i)
			}
		}
		if !near(sum, A4Landscape.ContentWidth()) {
			t.Fatalf("%s: widths sum to %v", l.Product, sum)
		}
	}
}

func TestRenderWritesPDF(t *testing.T) {
	var buf bytes.Buffer
	res, err := Render(&buf, Context{
		Events:      makeEvents(30, true),
		GeneratedAt: "2024-01-05T12:00:00Z",
		Source:      "extension",
	}, MixpanelLayout, Options{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("not a pdf: %q", buf.Bytes()[:min(16, buf.Len())])
	}
	if res.Pages < 2 {
		t.Fatalf("Pages = %d", res.Pages)
	}
}

func TestRenderBadLogo(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "logo.png")
	if err := os.WriteFile(corrupt, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{filepath.Join(dir, "missing.png"), corrupt} {
		var buf bytes.Buffer
		res, err := Render(&buf, Context{Events: makeEvents(1, false), LogoPath: path}, GA4Layout, Options{})
		if err != nil {
			t.Fatalf("%s: Render: %v", path, err)
		}
		if res.LogoErr == nil {
			t.Fatalf("%s: expected LogoErr", path)
		}
		if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
			t.Fatalf("%s: not a pdf", path)
		}
	}
}

var errBoom = errors.New("boom")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errBoom }

func TestRenderWriteError(t *testing.T) {
	_, err := Render(failingWriter{}, Context{}, GA4Layout, Options{})
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v", err)
	}
}

func TestRenderConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			layout := GA4Layout
			if i%2 == 1 {
				layout = MixpanelLayout
			}
			var buf bytes.Buffer
			if _, err := Render(&buf, Context{Events: makeEvents(20+i, i%3 == 0)}, layout, Options{}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
