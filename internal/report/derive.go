package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"inspector-report/internal/model"
)

// Category labels.
const (
	CategoryPageView   = "Page view"
	CategoryEcommerce  = "E-commerce"
	CategoryEngagement = "Engagement"
	CategoryOther      = "Other"
)

const unknownEventName = "(unknown)"

const (
	maxWarningsPerEvent = 25
	maxWarningLength    = 500
	maxSerializedParams = 25
	keyParamsSeparator  = " | "
)

var pageViewEvents = setOf("page_view", "first_visit", "session_start")

var ecommerceEvents = setOf(
	"view_promotion",
	"view_item",
	"view_item_list",
	"select_item",
	"select_promotion",
	"add_to_cart",
	"add_to_wishlist",
	"remove_from_cart",
	"begin_checkout",
	"add_payment_info",
	"add_shipping_info",
	"purchase",
	"refund",
	"view_cart",
)

var engagementEvents = setOf(
	"login",
	"sign_up",
	"share",
	"scroll",
	"file_download",
	"video_start",
	"video_progress",
	"video_complete",
	"form_start",
	"form_submit",
)

func setOf(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// Category classifies a GA4 event name. The three sets are disjoint, so
// the check order does not matter.
func Category(eventName string) string {
	n := strings.ToLower(strings.TrimSpace(eventName))
	if _, ok := pageViewEvents[n]; ok {
		return CategoryPageView
	}
	if _, ok := ecommerceEvents[n]; ok {
		return CategoryEcommerce
	}
	if _, ok := engagementEvents[n]; ok {
		return CategoryEngagement
	}
	return CategoryOther
}

// param returns the first key present in ev.Params with a non-nil value.
func param(ev *model.EventRecord, keys ...string) (any, bool) {
	if ev == nil || len(ev.Params) == 0 {
		return nil, false
	}
	for _, k := range keys {
		if v, ok := ev.Params[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func paramText(ev *model.EventRecord, maxLength int, keys ...string) string {
	v, _ := param(ev, keys...)
	return Clean(v, Fallback, maxLength)
}

// ResolvePageURL prefers the event's own page URL, then the page_location
// parameter.
func ResolvePageURL(ev *model.EventRecord) string {
	if ev != nil && ev.PageURL != "" {
		return Clean(ev.PageURL, Fallback, defaultMaxLength)
	}
	return paramText(ev, defaultMaxLength, "page_location")
}

// ItemsSummary describes an items parameter: a list reports its length and
// the first item's name, a single object reports "1 item".
func ItemsSummary(items any) string {
	switch v := items.(type) {
	case []any:
		if len(v) == 0 {
			return "0 items"
		}
		first := ""
		if m, ok := v[0].(map[string]any); ok && present(m["item_name"]) {
			first = fmt.Sprintf(" (%s)", Clean(m["item_name"], "", 80))
		}
		return fmt.Sprintf("%d items%s", len(v), first)
	case map[string]any:
		if present(v["item_name"]) {
			if name := Clean(v["item_name"], "", 80); name != "" {
				return fmt.Sprintf("1 item (%s)", name)
			}
		}
		return "1 item"
	}
	return Fallback
}

func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	}
	return true
}

// KeyParamsSummary picks the parameters worth a line on the detail card.
// Only e-commerce and page-view events have one; other categories return "".
func KeyParamsSummary(ev *model.EventRecord, category string) string {
	if ev == nil || len(ev.Params) == 0 {
		return ""
	}

	var parts []string
	switch category {
	case CategoryEcommerce:
		if v, ok := param(ev, "transaction_id"); ok {
			parts = append(parts, "transaction_id: "+Clean(v, Fallback, 80))
		}
		if v, ok := param(ev, "value"); ok {
			parts = append(parts, "value: "+Clean(v, Fallback, 40))
		}
		if v, ok := param(ev, "currency"); ok {
			parts = append(parts, "currency: "+Clean(v, Fallback, 40))
		}
		if v, ok := param(ev, "items"); ok {
			parts = append(parts, "items: "+ItemsSummary(v))
		}
	case CategoryPageView:
		if v, ok := param(ev, "page_location"); ok {
			parts = append(parts, "page_location: "+Truncate(v, 70))
		}
		if v, ok := param(ev, "page_title"); ok {
			parts = append(parts, "page_title: "+Truncate(v, 50))
		}
		if v, ok := param(ev, "page_referrer"); ok {
			parts = append(parts, "page_referrer: "+Truncate(v, 60))
		}
	}
	return strings.Join(parts, keyParamsSeparator)
}

// Warnings returns the event's non-empty warnings, each cut to 500 runes,
// at most 25 of them.
func Warnings(ev *model.EventRecord) []string {
	if ev == nil || len(ev.Warnings) == 0 {
		return nil
	}
	out := make([]string, 0, min(len(ev.Warnings), maxWarningsPerEvent))
	for _, w := range ev.Warnings {
		if len(out) == maxWarningsPerEvent {
			break
		}
		if c := Clean(w, "", maxWarningLength); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// SerializeParams renders up to 25 parameters as "key=value" pairs, keys in
// sorted order.
func SerializeParams(params map[string]any) string {
	if len(params) == 0 {
		return Fallback
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > maxSerializedParams {
		keys = keys[:maxSerializedParams]
	}

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, Clean(k, "key", 40)+"="+Clean(params[k], "null", 80))
	}
	return strings.Join(parts, keyParamsSeparator)
}

// EventView holds the display values derived from one EventRecord. It is
// rebuilt whenever a block needs it and never cached.
type EventView struct {
	Event     *model.EventRecord
	Name      string
	Category  string
	Timestamp string
	PageURL   string
	KeyParams string
	Warnings  []string
}

func deriveView(ev *model.EventRecord, loc *time.Location) EventView {
	name := Clean(ev.EventName, unknownEventName, 256)
	category := Category(name)
	return EventView{
		Event:     ev,
		Name:      name,
		Category:  category,
		Timestamp: FormatTimestamp(ev.Timestamp, loc),
		PageURL:   ResolvePageURL(ev),
		KeyParams: KeyParamsSummary(ev, category),
		Warnings:  Warnings(ev),
	}
}
