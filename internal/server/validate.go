package server

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"inspector-report/internal/model"
	"inspector-report/internal/report"

	json "github.com/goccy/go-json"
)

// maxEventsPerRequest bounds the Mixpanel events array.
const maxEventsPerRequest = 10_000

// Sanitiser bounds, in runes.
const (
	maxParamKeys       = 200
	maxNestedArray     = 25
	maxNestedObject    = 50
	maxKeyLength       = 200
	maxValueLength     = 4000
	maxWarnings        = 50
	maxWarningLength   = 500
	maxSessionInfoKeys = 200
)

const malformedJSON = "Malformed JSON payload."

// reportRules describes what one report endpoint accepts.
type reportRules struct {
	layout *report.Layout

	// requireEvents: events must hold 1..maxEventsPerRequest items.
	requireEvents bool

	// extendedFields keeps the Mixpanel event fields (projectToken,
	// distinctId, tabId, endpointType, warnings) and non-string sessionInfo
	// scalars. Without it only the GA4 subset survives.
	extendedFields bool
}

var (
	ga4Rules      = reportRules{layout: report.GA4Layout}
	mixpanelRules = reportRules{layout: report.MixpanelLayout, requireEvents: true, extendedFields: true}
)

// validationError carries the messages returned in "details".
type validationError struct {
	details []string
}

func (e *validationError) Error() string {
	return "invalid request body: " + strings.Join(e.details, "; ")
}

// parsePayload
//
// Decodes a report request, checks its shape and returns a sanitised
// payload. Shape errors are collected and returned together as a
// *validationError. Field content never fails: unusable values are dropped
// and later render as the fallback text.
func parsePayload(raw []byte, rules reportRules) (model.ReportPayload, error) {
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return model.ReportPayload{}, &validationError{details: []string{malformedJSON}}
	}

	var errs []string
	obj, ok := body.(map[string]any)
	if !ok {
		return model.ReportPayload{}, &validationError{details: []string{"Body must be a JSON object."}}
	}

	events, ok := obj["events"].([]any)
	switch {
	case !ok:
		errs = append(errs, "events must be an array.")
	case rules.requireEvents && len(events) == 0:
		errs = append(errs, "events must contain at least one item.")
	case rules.requireEvents && len(events) > maxEventsPerRequest:
		errs = append(errs, fmt.Sprintf("events must contain at most %d items.", maxEventsPerRequest))
	}

	generatedAt, ok := obj["generatedAt"].(string)
	if !ok || !validTimestamp(generatedAt) {
		errs = append(errs, "generatedAt must be a valid ISO 8601 datetime string.")
	}

	source, _ := obj["source"].(string)
	if source != "extension" {
		errs = append(errs, `source must be exactly "extension".`)
	}

	rawSession, present := obj["sessionInfo"]
	if present && rawSession != nil {
		if _, ok := rawSession.(map[string]any); !ok {
			errs = append(errs, "sessionInfo must be an object when provided.")
		}
	}

	if len(errs) > 0 {
		return model.ReportPayload{}, &validationError{details: errs}
	}

	out := model.ReportPayload{
		Events:      make([]model.EventRecord, len(events)),
		SessionInfo: sanitizeSessionInfo(rawSession, rules.extendedFields),
		GeneratedAt: generatedAt,
		Source:      source,
	}
	for i, ev := range events {
		out.Events[i] = sanitizeEvent(ev, rules.extendedFields)
	}
	return out, nil
}

func validTimestamp(s string) bool {
	_, ok := report.ParseTimestamp(s, time.UTC)
	return ok
}

// ------------------------------------------------------------
// Sanitisers
// ------------------------------------------------------------

func sanitizeEvent(v any, extended bool) model.EventRecord {
	ev, ok := v.(map[string]any)
	if !ok {
		return model.EventRecord{}
	}

	rec := model.EventRecord{
		ID:            optionalString(ev["id"], 128),
		Timestamp:     optionalString(ev["timestamp"], 128),
		EventName:     optionalString(ev["eventName"], 256),
		MeasurementID: optionalString(ev["measurementId"], 128),
		ClientID:      optionalString(ev["clientId"], 256),
		SessionID:     optionalString(ev["sessionId"], 256),
		PageURL:       optionalString(ev["pageUrl"], 4000),
		Source:        optionalString(ev["source"], 128),
		Params:        sanitizeParams(ev["params"]),
	}
	if extended {
		rec.ProjectToken = optionalString(ev["projectToken"], 128)
		rec.DistinctID = optionalString(ev["distinctId"], 256)
		rec.TabID = optionalInteger(ev["tabId"])
		rec.EndpointType = optionalString(ev["endpointType"], 64)
		rec.Warnings = sanitizeWarnings(ev["warnings"])
	}
	return rec
}

// optionalString keeps scalars as cleaned text; objects, arrays and null
// become "".
func optionalString(v any, maxLength int) string {
	switch v.(type) {
	case string, float64, bool:
		return report.Clean(v, "", maxLength)
	}
	return ""
}

// optionalInteger reads a number or a string with a leading integer
// ("42", " 42px") and returns it as decimal text, or "".
func optionalInteger(v any) string {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatInt(int64(math.Trunc(x)), 10)
	case string:
		s := strings.TrimSpace(x)
		end := 0
		if end < len(s) && (s[end] == '-' || s[end] == '+') {
			end++
		}
		digits := end
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		if end == digits {
			return ""
		}
		n, err := strconv.ParseInt(s[:end], 10, 64)
		if err != nil {
			return ""
		}
		return strconv.FormatInt(n, 10)
	}
	return ""
}

// sanitizeParams keeps up to maxParamKeys entries. Keys are taken in
// sorted order so the kept subset does not depend on map iteration.
func sanitizeParams(v any) map[string]any {
	params, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]any, min(len(params), maxParamKeys))
	for _, k := range sortedKeys(params, maxParamKeys) {
		out[cleanKey(k)] = sanitizeParamValue(params[k])
	}
	return out
}

func sanitizeParamValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return report.Clean(x, "", maxValueLength)
	case float64, bool:
		return x
	case []any:
		n := min(len(x), maxNestedArray)
		out := make([]any, n)
		for i := 0; i < n; i++ {
			out[i] = sanitizeParamValue(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, min(len(x), maxNestedObject))
		for _, k := range sortedKeys(x, maxNestedObject) {
			out[cleanKey(k)] = sanitizeParamValue(x[k])
		}
		return out
	}
	return report.Clean(v, "", maxValueLength)
}

func sanitizeWarnings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, w := range list[:min(len(list), maxWarnings)] {
		if s := optionalString(w, maxWarningLength); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// sanitizeSessionInfo keeps string values (and, with extended, numbers
// and booleans as text). An empty result is nil.
func sanitizeSessionInfo(v any, extended bool) map[string]string {
	info, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string)
	for _, k := range sortedKeys(info, maxSessionInfoKeys) {
		switch info[k].(type) {
		case string:
		case float64, bool:
			if !extended {
				continue
			}
		default:
			continue
		}
		out[cleanKey(k)] = report.Clean(info[k], "", maxValueLength)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cleanKey(k string) string {
	return report.Clean(k, "", maxKeyLength)
}

func sortedKeys(m map[string]any, limit int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}
