package report

import (
	"fmt"
	"math"
	"strings"

	"inspector-report/internal/model"
)

// Block metrics, in points.
const (
	logoBlockWidth      = 170
	logoInset           = 18
	logoBoxWidth        = 150
	logoBoxHeight       = 50
	titleBlockHeight    = 72
	summaryColumnOffset = 300
	summaryRowHeight    = 16
	tableHeaderHeight   = 18
	tableRowHeight      = 16
	tableCellPadding    = 4
	cardPadding         = 8
	cardGap             = 8
	warningLineHeight   = 14
)

const (
	sizeTitle   = 20
	sizeHeading = 13
	sizeSummary = 12
	sizeMeta    = 10
	sizeTable   = 8.5
	sizeNotice  = 8.5
	sizeFooter  = 8
)

// drawFooter runs from the pager as soon as a page exists. It draws below
// the footer band and leaves the cursor alone.
func (d *document) drawFooter(pageNumber int) {
	text := fmt.Sprintf("%s | Report generated at %s | Page %d", d.layout.Brand, d.generatedAt, pageNumber)
	d.canvas.Text(d.left(), d.opts.Geometry.FooterY(), d.width(), text,
		TextStyle{Size: sizeFooter, Color: colorFaint})
}

func (d *document) drawTitleBlock() {
	left, width := d.left(), d.width()
	top := d.pager.Y()
	logoX := left + width - logoBlockWidth

	if d.rc.LogoPath != "" {
		if err := d.canvas.Image(d.rc.LogoPath, logoX+logoInset, top, logoBoxWidth, logoBoxHeight); err != nil {
			d.res.LogoErr = err
		}
	}
	if d.opts.Attribution != "" {
		d.canvas.Text(logoX, top+55, logoBlockWidth, d.opts.Attribution,
			TextStyle{Size: 9, Color: colorMuted, Align: AlignRight})
	}

	d.canvas.Text(left, top, width-190, d.layout.Title,
		TextStyle{Size: sizeTitle, Bold: true, Color: colorInk})

	d.pager.MoveTo(top + math.Max(lineHeight(sizeTitle), titleBlockHeight))
}

func (d *document) drawMetadata() {
	lines := []string{"Generated at: " + d.generatedAt}
	if d.layout.ShowSource {
		lines = append(lines, "Source: "+Truncate(Clean(d.rc.Source, "extension", 64), 80))
	}
	if v := d.rc.SessionInfo["pageUrl"]; v != "" {
		lines = append(lines, "Page URL: "+Truncate(v, 120))
	}
	if v := d.rc.SessionInfo["userAgent"]; v != "" {
		lines = append(lines, "User agent: "+Truncate(v, 120))
	}

	st := TextStyle{Size: sizeMeta, Color: colorBody}
	for _, line := range lines {
		d.pager.EnsureSpace(lineHeight(sizeMeta))
		d.canvas.Text(d.left(), d.pager.Y(), d.width(), line, st)
		d.pager.Advance(lineHeight(sizeMeta))
	}
	d.pager.Advance(8)
}

func (d *document) drawSummary(st Stats) {
	height := d.layout.Summary.Height
	d.pager.EnsureSpace(height)

	left, width := d.left(), d.width()
	y := d.pager.Y()

	d.canvas.FillRoundedRect(left, y, width, height, 4, colorPanel)
	d.canvas.Text(left+12, y+10, width-24, "Summary",
		TextStyle{Size: sizeSummary, Bold: true, Color: colorInk})

	value := TextStyle{Size: sizeMeta, Color: colorBody}
	for i, item := range d.layout.Summary.Items(st) {
		col, row := i/2, i%2
		x := left + 12 + float64(col)*summaryColumnOffset
		w := summaryColumnOffset - 24.0
		if col > 0 {
			w = width - float64(col)*summaryColumnOffset - 12
		}
		d.canvas.Text(x, y+30+float64(row)*summaryRowHeight, w, item.Label+": "+item.Value, value)
	}

	d.pager.MoveTo(y + height + 24)
}

func (d *document) drawSectionTitle(title string) {
	d.pager.EnsureSpace(lineHeight(sizeHeading))
	d.canvas.Text(d.left(), d.pager.Y(), d.width(), title,
		TextStyle{Size: sizeHeading, Bold: true, Color: colorInk})
	d.pager.Advance(lineHeight(sizeHeading))
}

func (d *document) drawEmptyState(text string) {
	d.pager.Advance(10)
	d.canvas.Text(d.left(), d.pager.Y(), d.width(), text, TextStyle{Size: sizeMeta, Color: colorMuted})
	d.pager.Advance(lineHeight(sizeMeta))
}

func (d *document) drawNotice(text string) {
	h := 2 + lineHeight(sizeNotice)
	d.pager.EnsureSpace(h)
	d.canvas.Text(d.left(), d.pager.Y()+2, d.width(), text, TextStyle{Size: sizeNotice, Color: colorFaint})
	d.pager.Advance(h)
}

// columnLayout returns the x and width of every column. Widths are floored
// and the remainder goes to the last column, so they sum to width exactly.
func columnLayout(cols []Column, left, width float64) (xs, widths []float64) {
	xs = make([]float64, len(cols))
	widths = make([]float64, len(cols))
	sum := 0.0
	for i, c := range cols {
		widths[i] = math.Floor(width * c.Weight)
		sum += widths[i]
	}
	if n := len(cols); n > 0 {
		widths[n-1] += width - sum
	}
	x := left
	for i := range cols {
		xs[i] = x
		x += widths[i]
	}
	return xs, widths
}

// drawTable
// ------------------------------------------------------------
// NeedHeader → header → rows, and after every page break the header row is
// drawn again before the next row. The header is only started where it
// fits together with one row.
func (d *document) drawTable(events []model.EventRecord) {
	cols := d.layout.Columns
	left, width := d.left(), d.width()
	xs, widths := columnLayout(cols, left, width)

	header := func() {
		y := d.pager.Y()
		d.canvas.FillRect(left, y, width, tableHeaderHeight, colorHeaderRow)
		st := TextStyle{Size: sizeTable, Bold: true, Color: colorInk}
		for i, c := range cols {
			d.canvas.Text(xs[i]+tableCellPadding, y+5, widths[i]-2*tableCellPadding, c.Title, st)
		}
		d.pager.Advance(tableHeaderHeight)
	}

	d.pager.Advance(8)
	d.pager.EnsureSpace(tableHeaderHeight + tableRowHeight)
	header()

	cell := TextStyle{Size: sizeTable, Color: colorInk}
	for i := range events {
		if d.pager.EnsureSpace(tableRowHeight) {
			header()
		}
		y := d.pager.Y()
		if i%2 == 1 {
			d.canvas.FillRect(left, y, width, tableRowHeight, colorStripe)
		}

		v := deriveView(&events[i], d.opts.Location)
		for j, c := range cols {
			d.canvas.Text(xs[j]+tableCellPadding, y+4, widths[j]-2*tableCellPadding, c.Value(v), cell)
		}
		d.pager.Advance(tableRowHeight)
		d.res.TableRows++
	}

	d.pager.Advance(8)
}

// listingHeading draws a section heading; continued headings carry
// "(cont.)".
func (d *document) listingHeading(title string, continued bool, gap float64) {
	if continued {
		title += " (cont.)"
	}
	d.pager.Advance(6)
	d.canvas.Text(d.left(), d.pager.Y(), d.width(), title,
		TextStyle{Size: sizeHeading, Bold: true, Color: colorInk})
	d.pager.Advance(lineHeight(sizeHeading) + gap)
}

func listingHeadingHeight(gap float64) float64 {
	return 6 + lineHeight(sizeHeading) + gap
}

func (d *document) drawCards(events []model.EventRecord) {
	const title = "Event details"
	const gap = 12 // heading → first card
	cardHeight := d.layout.Card.Height

	d.pager.EnsureSpace(listingHeadingHeight(gap) + cardHeight)
	d.listingHeading(title, false, gap)

	for i := range events {
		if d.pager.EnsureSpace(cardHeight) {
			d.listingHeading(title, true, gap)
		}
		v := deriveView(&events[i], d.opts.Location)
		d.drawCard(d.pager.Y(), d.layout.Card.Build(v))
		d.pager.Advance(cardHeight + cardGap)
		d.res.Cards++
	}
}

func (d *document) drawCard(y float64, card Card) {
	cl := d.layout.Card
	left, width := d.left(), d.width()
	textX := left + cardPadding
	textWidth := width - 2*cardPadding

	d.canvas.StrokeRoundedRect(left, y, width, cl.Height, 3, 0.6, colorBorder)

	d.canvas.Text(textX, y+cardPadding, textWidth, card.Heading,
		TextStyle{Size: 9, Bold: true, Color: colorInk})
	if card.Subline != "" {
		d.canvas.Text(textX, y+cardPadding+13, textWidth, card.Subline,
			TextStyle{Size: sizeTable, Color: colorInk})
	}

	colWidth := (textWidth - cl.ColumnGap) / 2
	colTop := y + cardPadding + cl.ColumnsOffset
	ident := TextStyle{Size: 8, Color: colorSubtle}
	step := lineHeight(ident.Size) + 1
	for i, line := range card.Left {
		d.canvas.Text(textX, colTop+float64(i)*step, colWidth, line, ident)
	}
	for i, line := range card.Right {
		d.canvas.Text(textX+colWidth+cl.ColumnGap, colTop+float64(i)*step, colWidth, line, ident)
	}

	for _, fl := range card.Footer {
		ly := y + cl.Height - fl.Offset
		if fl.Rule {
			d.canvas.Line(textX, ly-6, left+width-cardPadding, ly-6, 0.3, colorHeaderRow)
		}
		st := TextStyle{Size: fl.Size, Color: colorInk}
		if fl.Alert {
			st.Color = colorAlert
		}
		d.canvas.Text(textX, ly, textWidth, fl.Text, st)
	}
}

// drawWarnings lists every event that carries warnings, numbered, up to
// the layout's cap.
func (d *document) drawWarnings(events []model.EventRecord) {
	const title = "Diagnostics / warnings"
	const gap = 18 // heading → first line
	left, width := d.left(), d.width()

	var flagged []*model.EventRecord
	total := 0
	for i := range events {
		if len(Warnings(&events[i])) == 0 {
			continue
		}
		total++
		if limit := d.layout.WarningEventCap; limit <= 0 || len(flagged) < limit {
			flagged = append(flagged, &events[i])
		}
	}

	d.pager.EnsureSpace(listingHeadingHeight(gap) + warningLineHeight)
	d.listingHeading(title, false, gap)

	if len(flagged) == 0 {
		d.canvas.Text(left, d.pager.Y(), width, "No warnings captured in this request.",
			TextStyle{Size: 9.5, Color: colorMuted})
		d.pager.Advance(lineHeight(9.5))
		return
	}

	line := TextStyle{Size: sizeTable, Color: colorBody}
	for i, ev := range flagged {
		if d.pager.EnsureSpace(warningLineHeight) {
			d.listingHeading(title, true, gap)
		}
		v := deriveView(ev, d.opts.Location)
		text := fmt.Sprintf("%d. %s @ %s => %s", i+1,
			Truncate(v.Name, 40),
			Truncate(v.Timestamp, 40),
			Truncate(strings.Join(v.Warnings, keyParamsSeparator), 130))
		d.canvas.Text(left, d.pager.Y(), width, text, line)
		d.pager.Advance(warningLineHeight)
		d.res.WarningRows++
	}

	if total > len(flagged) {
		d.drawNotice(fmt.Sprintf("Diagnostics limited to first %d events with warnings.", len(flagged)))
	}
}
