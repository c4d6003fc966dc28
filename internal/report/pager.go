package report

// Geometry is the fixed page layout of one document.
type Geometry struct {
	Width, Height float64

	MarginTop, MarginRight, MarginBottom, MarginLeft float64

	// FooterBand is kept free above the bottom margin for the page footer.
	FooterBand float64
}

// A4Landscape is the geometry of every report: A4 landscape in points,
// 40pt margins and a 50pt footer band.
var A4Landscape = Geometry{
	Width:        841.89,
	Height:       595.28,
	MarginTop:    40,
	MarginRight:  40,
	MarginBottom: 40,
	MarginLeft:   40,
	FooterBand:   50,
}

// ContentWidth is the horizontal space between the side margins.
func (g Geometry) ContentWidth() float64 {
	return g.Width - g.MarginLeft - g.MarginRight
}

// Bottom is the lowest y a block may reach.
func (g Geometry) Bottom() float64 {
	return g.Height - g.MarginBottom - g.FooterBand
}

// FooterY is where the footer line is drawn.
func (g Geometry) FooterY() float64 {
	return g.Height - g.MarginBottom - 10
}

// Cursor is the write position: 0-based page index and vertical offset.
type Cursor struct {
	Page int
	Y    float64
}

// Pager
// ------------------------------------------------------------
// Owns the cursor for one document and decides page breaks.
//
//   - AddPage allocates a page, moves the cursor to the top margin and
//     calls onPageAdded before anything else is drawn on that page
//   - EnsureSpace breaks the page when the next block would cross Bottom
//   - Advance and MoveTo only move down; only AddPage resets Y
//
// A Pager is not safe for concurrent use; each render owns its own.
type Pager struct {
	canvas Canvas
	geo    Geometry
	cur    Cursor
	pages  int

	onPageAdded func(pageNumber int)
}

// NewPager returns a pager with no pages. hook receives 1-based page
// numbers and may be nil.
func NewPager(c Canvas, geo Geometry, hook func(pageNumber int)) *Pager {
	return &Pager{
		canvas:      c,
		geo:         geo,
		cur:         Cursor{Page: -1, Y: geo.MarginTop},
		onPageAdded: hook,
	}
}

func (p *Pager) Geometry() Geometry { return p.geo }
func (p *Pager) Cursor() Cursor     { return p.cur }
func (p *Pager) Y() float64         { return p.cur.Y }
func (p *Pager) Pages() int         { return p.pages }

// Left is the x of the content area.
func (p *Pager) Left() float64 { return p.geo.MarginLeft }

// AddPage starts a new page.
func (p *Pager) AddPage() {
	p.canvas.AddPage()
	p.pages++
	p.cur.Page++
	p.cur.Y = p.geo.MarginTop
	if p.onPageAdded != nil {
		p.onPageAdded(p.pages)
	}
}

// Fits reports whether h more points fit above Bottom on this page.
func (p *Pager) Fits(h float64) bool {
	return p.cur.Y+h <= p.geo.Bottom()
}

// EnsureSpace breaks the page unless h more points fit, and reports
// whether it did. A caller drawing a listing redraws its heading on true.
func (p *Pager) EnsureSpace(h float64) bool {
	if p.Fits(h) {
		return false
	}
	p.AddPage()
	return true
}

// Advance moves the cursor down by dy. Negative values are ignored.
func (p *Pager) Advance(dy float64) {
	if dy > 0 {
		p.cur.Y += dy
	}
}

// MoveTo moves the cursor down to y; it never moves it up.
func (p *Pager) MoveTo(y float64) {
	if y > p.cur.Y {
		p.cur.Y = y
	}
}
