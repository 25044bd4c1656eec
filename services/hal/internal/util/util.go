package util

import (
	"encoding/json"
	"fmt"
	"time"

	"imunode-go/x/mathx"
)

func ResetTimer(t *time.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if !t.Stop() {
		DrainTimer(t)
	}
	t.Reset(d)
}

func DrainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}

// DecodeJSON converts a loosely typed params value (raw JSON, or the
// map[string]any produced by YAML/viper decoding) into dst.
func DecodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case nil:
		return nil
	case T:
		*dst = v
		return nil
	case *T:
		if v != nil {
			*dst = *v
		}
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(normalise(v))
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

// normalise rewrites map[any]any (yaml.v2 style) into map[string]any so that
// encoding/json accepts it.
func normalise(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[fmt.Sprint(k)] = normalise(e)
		}
		return m
	case map[string]any:
		for k, e := range x {
			x[k] = normalise(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalise(e)
		}
		return x
	default:
		return v
	}
}

func Errf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// ClampDuration limits d to [lo, hi].
func ClampDuration(d, lo, hi time.Duration) time.Duration {
	return mathx.Clamp(d, lo, hi)
}

// PeriodMS converts a millisecond setting to a clamped period; ms <= 0
// selects def.
func PeriodMS(ms, def, lo, hi int) time.Duration {
	if ms <= 0 {
		ms = def
	}
	return time.Duration(mathx.Clamp(ms, lo, hi)) * time.Millisecond
}
