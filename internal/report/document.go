package report

import (
	"fmt"
	"io"

	"inspector-report/internal/model"
)

// Context is the input of one render. Events are read, never modified.
type Context struct {
	Events      []model.EventRecord
	SessionInfo map[string]string // optional "pageUrl", "userAgent"
	GeneratedAt string
	Source      string
	LogoPath    string
}

// Result describes what a render drew.
type Result struct {
	Pages       int
	TableRows   int
	Cards       int
	WarningRows int

	// LogoErr is set when the logo could not be drawn. The report is still
	// complete without it.
	LogoErr error
}

// Render
// ------------------------------------------------------------
// Lays the report out and writes the PDF to w.
//
// Malformed fields never fail a render; they show as the fallback text. The
// only error is a failure to produce or write the byte stream, in which case
// w may hold a partial document that the caller must discard.
func Render(w io.Writer, rc Context, layout *Layout, opts Options) (Result, error) {
	if layout == nil {
		layout = GA4Layout
	}
	opts = opts.withDefaults()

	created, _ := ParseTimestamp(rc.GeneratedAt, opts.Location)
	canvas := newPDFCanvas(opts.Geometry, layout.Title, created)

	res := Draw(canvas, rc, layout, opts)
	if err := canvas.Output(w); err != nil {
		return res, fmt.Errorf("report: write pdf: %w", err)
	}
	return res, nil
}

// Draw lays the report out on c without producing bytes.
func Draw(c Canvas, rc Context, layout *Layout, opts Options) Result {
	if layout == nil {
		layout = GA4Layout
	}
	opts = opts.withDefaults()

	d := &document{
		canvas:      c,
		layout:      layout,
		opts:        opts,
		rc:          rc,
		generatedAt: FormatTimestamp(rc.GeneratedAt, opts.Location),
	}
	d.pager = NewPager(c, opts.Geometry, d.drawFooter)
	d.build()
	d.res.Pages = d.pager.Pages()
	return d.res
}

type document struct {
	canvas Canvas
	pager  *Pager
	layout *Layout
	opts   Options
	rc     Context

	generatedAt string
	res         Result
}

func (d *document) left() float64  { return d.pager.Left() }
func (d *document) width() float64 { return d.opts.Geometry.ContentWidth() }

// build draws every block in order. The first AddPage goes through the
// pager, so page 1 gets its footer like every later page.
func (d *document) build() {
	events := d.rc.Events
	visible := events
	if limit := d.layout.EventCap; limit > 0 && len(visible) > limit {
		visible = visible[:limit]
	}

	d.pager.AddPage()
	d.drawTitleBlock()
	d.drawMetadata()
	d.drawSummary(Aggregate(events, d.opts.Location))
	d.drawSectionTitle("Events")

	if len(visible) == 0 {
		d.drawEmptyState("No events available for this report.")
		return
	}

	d.drawTable(visible)
	if len(events) > len(visible) {
		d.drawNotice(fmt.Sprintf("Showing first %d of %d events. Export a smaller time range for full detail.",
			len(visible), len(events)))
		d.pager.Advance(8)
	}

	d.drawCards(visible)
	if len(events) > len(visible) {
		d.drawNotice(fmt.Sprintf("Details limited to first %d of %d events.", len(visible), len(events)))
		d.pager.Advance(8)
	}

	if d.layout.ShowWarnings {
		d.drawWarnings(events)
	}
}
