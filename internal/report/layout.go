package report

import (
	"strconv"
	"strings"
	"time"
)

// Column is one column of the events table. Weights of a table sum to 1.
type Column struct {
	Title  string
	Weight float64
	Value  func(v EventView) string
}

// SummaryItem is one label/value pair in the summary box.
type SummaryItem struct {
	Label string
	Value string
}

// SummaryLayout fixes the summary box height and the pairs it shows. Pairs
// fill a two-column grid, two rows per column.
type SummaryLayout struct {
	Height float64
	Items  func(st Stats) []SummaryItem
}

// Card is the content of one detail card.
type Card struct {
	Heading string
	Subline string   // directly under the heading, optional
	Left    []string // identity column, one line each
	Right   []string
	Footer  []CardLine
}

// CardLine is a line anchored to the bottom edge of a card.
type CardLine struct {
	Text   string
	Offset float64 // from the card bottom up to the top of the line
	Size   float64
	Alert  bool
	Rule   bool // separator drawn 6pt above the line
}

// CardLayout fixes the card box and builds its content.
type CardLayout struct {
	Height        float64
	ColumnGap     float64
	ColumnsOffset float64 // from the padded card top to the identity columns
	Build         func(v EventView) Card
}

// Layout
// ------------------------------------------------------------
// Everything that differs between report products. The pagination
// machinery in document.go is shared; a Layout only decides which derived
// fields are surfaced and how many events each section may show.
type Layout struct {
	Product string // route/product key, also the file name prefix
	Title   string
	Brand   string // footer product name

	Columns []Column
	Card    CardLayout
	Summary SummaryLayout

	ShowSource   bool
	ShowWarnings bool

	EventCap        int // table and card rows
	WarningEventCap int // warnings listing rows
}

// Shared caps.
const (
	MaxEventsInReport = 500
	MaxWarningEvents  = 300
)

// GA4Layout renders Google Analytics 4 hits: categorised event names,
// measurement/client/session identity and key e-commerce or page-view
// parameters.
var GA4Layout = &Layout{
	Product: "ga4-inspector",
	Title:   "GA4 Inspector Report",
	Brand:   "GA4 Inspector",
	Columns: []Column{
		{Title: "Timestamp", Weight: 0.18, Value: func(v EventView) string { return Truncate(v.Timestamp, 34) }},
		{Title: "Event name", Weight: 0.22, Value: func(v EventView) string { return Truncate(v.Name, 34) }},
		{Title: "Category", Weight: 0.12, Value: func(v EventView) string { return v.Category }},
		{Title: "Measurement ID", Weight: 0.18, Value: func(v EventView) string {
			return Truncate(Clean(v.Event.MeasurementID, Fallback, defaultMaxLength), 30)
		}},
		{Title: "Page URL", Weight: 0.30, Value: func(v EventView) string { return Truncate(v.PageURL, 40) }},
	},
	Card: CardLayout{
		Height:        94,
		ColumnGap:     20,
		ColumnsOffset: 27,
		Build:         ga4Card,
	},
	Summary: SummaryLayout{
		Height: 74,
		Items: func(st Stats) []SummaryItem {
			return []SummaryItem{
				{Label: "Total events", Value: strconv.Itoa(st.TotalEvents)},
				{Label: "Time range", Value: st.TimeRange},
			}
		},
	},
	EventCap:        MaxEventsInReport,
	WarningEventCap: MaxWarningEvents,
}

// MixpanelLayout renders Mixpanel tracking calls: looser identity fields,
// raw parameters and per-event capture warnings.
var MixpanelLayout = &Layout{
	Product: "mixpanel-inspector",
	Title:   "Mixpanel Inspector Report",
	Brand:   "Mixpanel Inspector",
	Columns: []Column{
		{Title: "Timestamp", Weight: 0.17, Value: func(v EventView) string { return Truncate(v.Timestamp, 34) }},
		{Title: "Event name", Weight: 0.22, Value: func(v EventView) string { return Truncate(v.Name, 34) }},
		{Title: "Source", Weight: 0.12, Value: func(v EventView) string {
			return Truncate(Clean(v.Event.Source, Fallback, 40), 18)
		}},
		{Title: "Endpoint", Weight: 0.12, Value: func(v EventView) string {
			return Truncate(Clean(v.Event.EndpointType, Fallback, 40), 18)
		}},
		{Title: "Distinct ID", Weight: 0.15, Value: func(v EventView) string {
			return Truncate(Clean(firstNonEmpty(v.Event.DistinctID, v.Event.ClientID), Fallback, 80), 24)
		}},
		{Title: "Page URL", Weight: 0.22, Value: func(v EventView) string {
			return Truncate(Clean(v.Event.PageURL, Fallback, 4000), 34)
		}},
	},
	Card: CardLayout{
		Height:        108,
		ColumnGap:     16,
		ColumnsOffset: 14,
		Build:         mixpanelCard,
	},
	Summary: SummaryLayout{
		Height: 86,
		Items: func(st Stats) []SummaryItem {
			return []SummaryItem{
				{Label: "Total events", Value: strconv.Itoa(st.TotalEvents)},
				{Label: "Unique event names", Value: strconv.Itoa(st.UniqueNames)},
				{Label: "Warning count", Value: strconv.Itoa(st.WarningCount)},
				{Label: "Time range", Value: st.TimeRange},
			}
		},
	},
	ShowSource:      true,
	ShowWarnings:    true,
	EventCap:        MaxEventsInReport,
	WarningEventCap: MaxWarningEvents,
}

// LayoutFor looks a layout up by product key.
func LayoutFor(product string) (*Layout, bool) {
	switch product {
	case GA4Layout.Product:
		return GA4Layout, true
	case MixpanelLayout.Product:
		return MixpanelLayout, true
	}
	return nil, false
}

func ga4Card(v EventView) Card {
	ev := v.Event

	clientID, _ := param(ev, "client_id")
	if ev.ClientID != "" {
		clientID = ev.ClientID
	}
	sessionID, _ := param(ev, "session_id")
	if ev.SessionID != "" {
		sessionID = ev.SessionID
	}

	c := Card{
		Heading: Truncate(v.Name, 50) + " | " + v.Category + " | " + Truncate(v.Timestamp, 42),
		Subline: "Page URL: " + Truncate(v.PageURL, 80),
		Left: []string{
			"Measurement ID: " + Truncate(Clean(ev.MeasurementID, Fallback, 60), 30),
			"Client ID: " + Truncate(Clean(clientID, Fallback, 80), 30),
			"Session ID: " + Truncate(Clean(sessionID, Fallback, 80), 30),
		},
		Right: []string{
			"Hit number: " + Truncate(paramText(ev, 40, "hit_number", "_n"), 30),
			"Session count: " + Truncate(paramText(ev, 40, "session_count", "sct", "ga_session_number"), 30),
			"User ID: " + Truncate(paramText(ev, 80, "user_id"), 30),
		},
	}
	if v.KeyParams != "" {
		c.Footer = append(c.Footer, CardLine{
			Text:   "Key params: " + Truncate(v.KeyParams, 170),
			Offset: 18,
			Size:   8,
			Rule:   true,
		})
	}
	return c
}

func mixpanelCard(v EventView) Card {
	ev := v.Event
	id := func(label, value string, maxLength int) string {
		return label + ": " + Truncate(Clean(value, Fallback, maxLength), 35)
	}

	c := Card{
		Heading: Truncate(v.Name, 48) + " | " + Truncate(v.Timestamp, 45),
		Left: []string{
			id("Project token", ev.ProjectToken, 90),
			id("Distinct ID", ev.DistinctID, 120),
			id("Session ID", ev.SessionID, 120),
		},
		Right: []string{
			id("Client ID", ev.ClientID, 120),
			id("Measurement ID", ev.MeasurementID, 120),
			id("Tab ID", ev.TabID, 40),
		},
		Footer: []CardLine{
			{
				Text: "Source: " + Truncate(Clean(ev.Source, Fallback, 80), 25) +
					" | Endpoint: " + Truncate(Clean(ev.EndpointType, Fallback, 80), 25),
				Offset: 46,
				Size:   8.2,
			},
			{Text: "Page URL: " + Truncate(Clean(ev.PageURL, Fallback, 4000), 95), Offset: 34, Size: 8.2},
			{Text: "Params: " + Truncate(SerializeParams(ev.Params), 180), Offset: 22, Size: 8.2},
		},
	}
	if len(v.Warnings) > 0 {
		c.Footer = append(c.Footer, CardLine{
			Text:   "Warnings: " + Truncate(strings.Join(v.Warnings, keyParamsSeparator), 180),
			Offset: 10,
			Size:   8,
			Alert:  true,
		})
	}
	return c
}

// Options are per-render settings that do not depend on the product.
type Options struct {
	Location    *time.Location // timestamps are shown in this zone; UTC when nil
	Attribution string         // line under the logo; omitted when empty
	Geometry    Geometry       // A4Landscape when zero
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Geometry == (Geometry{}) {
		o.Geometry = A4Landscape
	}
	return o
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
