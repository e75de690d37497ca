// internal/quota/decode.go
// Tolerant decoder for the usage endpoint payload
package quota

import (
	"encoding/json"
	"fmt"
	"time"
)

// Defaults applied when the payload omits a field. Every remote field is
// optional; a payload missing most of them still decodes.
var Defaults = struct {
	UsedPercent            float64
	PrimaryWindowSeconds   int64
	SecondaryWindowSeconds int64
	ResetAfterSeconds      int64
	LimitReached           bool
	Status                 string
	AuthType               string
}{
	UsedPercent:            0,
	PrimaryWindowSeconds:   18000,
	SecondaryWindowSeconds: 604800,
	ResetAfterSeconds:      0,
	LimitReached:           false,
	Status:                 "ok",
	AuthType:               "OAuth (ChatGPT)",
}

type object = map[string]interface{}

// Decode maps a usage payload into a Snapshot for account captured at now.
// Only a body that is not a JSON object is an error.
func Decode(body []byte, account string, now time.Time) (*Snapshot, error) {
	var root object
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("decode usage payload: %w", err)
	}

	snap := &Snapshot{
		Account:      account,
		CapturedAt:   now,
		Status:       Defaults.Status,
		AuthType:     Defaults.AuthType,
		LimitReached: Defaults.LimitReached,
	}

	if plan, ok := stringField(root, "plan_type"); ok {
		snap.Plan = plan
	}

	if rl, ok := objectField(root, "rate_limit"); ok {
		if w, ok := objectField(rl, "primary_window"); ok {
			snap.Primary = decodeWindow(w, Defaults.PrimaryWindowSeconds, now)
		}
		if w, ok := objectField(rl, "secondary_window"); ok {
			snap.Secondary = decodeWindow(w, Defaults.SecondaryWindowSeconds, now)
		}
		if reached, ok := boolField(rl, "limit_reached"); ok {
			snap.LimitReached = reached
		}
	}

	if cr, ok := objectField(root, "code_review_rate_limit"); ok {
		if w, ok := objectField(cr, "primary_window"); ok {
			used := Defaults.UsedPercent
			if v, ok := numberField(w, "used_percent"); ok {
				used = v
			}
			snap.CodeReviewUsed = &used
		}
	}

	return snap, nil
}

func decodeWindow(w object, defaultWindowSeconds int64, now time.Time) *Window {
	used := Defaults.UsedPercent
	if v, ok := numberField(w, "used_percent"); ok {
		used = v
	}

	windowSeconds := defaultWindowSeconds
	if v, ok := numberField(w, "limit_window_seconds"); ok && v > 0 {
		windowSeconds = int64(v)
	}

	resetAfter := Defaults.ResetAfterSeconds
	if v, ok := numberField(w, "reset_after_seconds"); ok && v > 0 {
		resetAfter = int64(v)
	}

	win := &Window{
		UsedPercent:       used,
		RemainingPercent:  100 - used,
		WindowSeconds:     windowSeconds,
		ResetAfterSeconds: resetAfter,
	}
	if resetAfter > 0 {
		at := now.Add(time.Duration(resetAfter) * time.Second)
		win.ResetsAt = &at
	}
	return win
}

func objectField(o object, key string) (object, bool) {
	v, ok := o[key].(map[string]interface{})
	return v, ok
}

func numberField(o object, key string) (float64, bool) {
	v, ok := o[key].(float64)
	return v, ok
}

func stringField(o object, key string) (string, bool) {
	v, ok := o[key].(string)
	return v, ok && v != ""
}

func boolField(o object, key string) (bool, bool) {
	v, ok := o[key].(bool)
	return v, ok
}
