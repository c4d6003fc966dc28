package report

import (
	"strings"
)

type textCall struct {
	page  int // 0-based
	x, y  float64
	w     float64
	text  string
	style TextStyle
}

type rectCall struct {
	page       int
	kind       string
	x, y, w, h float64
}

// recorder is a Canvas that remembers every call.
type recorder struct {
	pages    int
	texts    []textCall
	rects    []rectCall
	images   int
	imageErr error
}

func (r *recorder) page() int { return r.pages - 1 }

func (r *recorder) AddPage() { r.pages++ }

func (r *recorder) Text(x, y, w float64, s string, st TextStyle) {
	r.texts = append(r.texts, textCall{page: r.page(), x: x, y: y, w: w, text: s, style: st})
}

func (r *recorder) FillRect(x, y, w, h float64, _ RGB) {
	r.rects = append(r.rects, rectCall{page: r.page(), kind: "fill", x: x, y: y, w: w, h: h})
}

func (r *recorder) FillRoundedRect(x, y, w, h, _ float64, _ RGB) {
	r.rects = append(r.rects, rectCall{page: r.page(), kind: "panel", x: x, y: y, w: w, h: h})
}

func (r *recorder) StrokeRoundedRect(x, y, w, h, _, _ float64, _ RGB) {
	r.rects = append(r.rects, rectCall{page: r.page(), kind: "card", x: x, y: y, w: w, h: h})
}

func (r *recorder) Line(_, _, _, _, _ float64, _ RGB) {}

func (r *recorder) Image(_ string, _, _, _, _ float64) error {
	r.images++
	return r.imageErr
}

func (r *recorder) find(pred func(textCall) bool) []textCall {
	var out []textCall
	for _, tc := range r.texts {
		if pred(tc) {
			out = append(out, tc)
		}
	}
	return out
}

func (r *recorder) exact(s string) []textCall {
	return r.find(func(tc textCall) bool { return tc.text == s })
}

func (r *recorder) prefixed(s string) []textCall {
	return r.find(func(tc textCall) bool { return strings.HasPrefix(tc.text, s) })
}

// perPage counts calls by page index.
func perPage(calls []textCall) map[int]int {
	m := make(map[int]int)
	for _, c := range calls {
		m[c.page]++
	}
	return m
}
