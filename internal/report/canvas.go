package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-pdf/fpdf"
)

// RGB is a drawing colour.
type RGB struct{ R, G, B int }

var (
	colorInk       = RGB{17, 24, 39}    // #111827 headings, table text
	colorBody      = RGB{31, 41, 55}    // #1f2937 metadata, summary values
	colorSubtle    = RGB{55, 65, 81}    // #374151 card identity columns
	colorMuted     = RGB{75, 85, 99}    // #4b5563 attribution, empty states
	colorFaint     = RGB{107, 114, 128} // #6b7280 footer, notices
	colorHeaderRow = RGB{229, 231, 235} // #e5e7eb table header, card rules
	colorStripe    = RGB{249, 250, 251} // #f9fafb alternate rows
	colorPanel     = RGB{243, 244, 246} // #f3f4f6 summary box
	colorBorder    = RGB{209, 213, 219} // #d1d5db card outline
	colorAlert     = RGB{127, 29, 29}   // #7f1d1d warnings on cards
)

// Align is the horizontal text alignment inside a text box.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// TextStyle describes one run of single-line text.
type TextStyle struct {
	Size  float64
	Bold  bool
	Color RGB
	Align Align
}

// lineHeight is the vertical advance of one line set at size.
func lineHeight(size float64) float64 {
	return size * 1.2
}

// Canvas
// ------------------------------------------------------------
// Drawing surface used by the pager and block renderers. Coordinates are
// points from the top-left corner of the current page; text is placed by
// the top of its line box and never wraps.
//
// The PDF implementation is pdfCanvas. Tests substitute a recorder.
type Canvas interface {
	AddPage()
	Text(x, y, w float64, s string, st TextStyle)
	FillRect(x, y, w, h float64, fill RGB)
	FillRoundedRect(x, y, w, h, r float64, fill RGB)
	StrokeRoundedRect(x, y, w, h, r, lineWidth float64, stroke RGB)
	Line(x1, y1, x2, y2, lineWidth float64, stroke RGB)
	// Image fits the file into the w×h box, right-aligned. Failures are
	// returned and leave the page untouched.
	Image(path string, x, y, w, h float64) error
}

var errNoImage = errors.New("no image path")

type pdfCanvas struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func newPDFCanvas(geo Geometry, title string, created time.Time) *pdfCanvas {
	// Orientation follows from the explicit page size.
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: geo.Width, Ht: geo.Height},
	})
	pdf.SetMargins(geo.MarginLeft, geo.MarginTop, geo.MarginRight)
	pdf.SetAutoPageBreak(false, geo.MarginBottom)
	pdf.SetTitle(title, true)
	pdf.SetCreator("inspector-report", true)
	pdf.SetCatalogSort(true)
	if !created.IsZero() {
		pdf.SetCreationDate(created)
	}

	return &pdfCanvas{
		pdf: pdf,
		tr:  pdf.UnicodeTranslatorFromDescriptor(""),
	}
}

func (c *pdfCanvas) AddPage() {
	c.pdf.AddPage()
}

func (c *pdfCanvas) Text(x, y, w float64, s string, st TextStyle) {
	style := ""
	if st.Bold {
		style = "B"
	}
	align := "LT"
	if st.Align == AlignRight {
		align = "RT"
	}
	c.pdf.SetFont("Helvetica", style, st.Size)
	c.pdf.SetTextColor(st.Color.R, st.Color.G, st.Color.B)
	c.pdf.SetXY(x, y)
	c.pdf.CellFormat(w, lineHeight(st.Size), c.tr(s), "", 0, align, false, 0, "")
}

func (c *pdfCanvas) FillRect(x, y, w, h float64, fill RGB) {
	c.pdf.SetFillColor(fill.R, fill.G, fill.B)
	c.pdf.Rect(x, y, w, h, "F")
}

func (c *pdfCanvas) FillRoundedRect(x, y, w, h, r float64, fill RGB) {
	c.pdf.SetFillColor(fill.R, fill.G, fill.B)
	c.pdf.RoundedRect(x, y, w, h, r, "1234", "F")
}

func (c *pdfCanvas) StrokeRoundedRect(x, y, w, h, r, lineWidth float64, stroke RGB) {
	c.pdf.SetLineWidth(lineWidth)
	c.pdf.SetDrawColor(stroke.R, stroke.G, stroke.B)
	c.pdf.RoundedRect(x, y, w, h, r, "1234", "D")
}

func (c *pdfCanvas) Line(x1, y1, x2, y2, lineWidth float64, stroke RGB) {
	c.pdf.SetLineWidth(lineWidth)
	c.pdf.SetDrawColor(stroke.R, stroke.G, stroke.B)
	c.pdf.Line(x1, y1, x2, y2)
}

func (c *pdfCanvas) Image(path string, x, y, w, h float64) (err error) {
	if path == "" {
		return errNoImage
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}

	// The image decoders can panic on truncated files.
	defer func() {
		if r := recover(); r != nil {
			c.pdf.ClearError()
			err = fmt.Errorf("decode image %s: %v", path, r)
		}
	}()

	opts := fpdf.ImageOptions{}
	info := c.pdf.RegisterImageOptions(path, opts)
	if err := c.pdf.Error(); err != nil {
		c.pdf.ClearError()
		return err
	}
	if info == nil || info.Width() <= 0 || info.Height() <= 0 {
		return fmt.Errorf("image %s has no extent", path)
	}

	scale := math.Min(w/info.Width(), h/info.Height())
	dw, dh := info.Width()*scale, info.Height()*scale
	c.pdf.ImageOptions(path, x+w-dw, y, dw, dh, false, opts, 0, "")
	if err := c.pdf.Error(); err != nil {
		c.pdf.ClearError()
		return err
	}
	return nil
}

func (c *pdfCanvas) Output(w io.Writer) error {
	return c.pdf.Output(w)
}
