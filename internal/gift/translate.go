// Package gift turns raw live gift payloads into bottle contributions.
package gift

import (
	"math"
	"strings"

	"github.com/hazixroland-ai/tiktoklive/internal/domain"
	"github.com/spf13/cast"
)

const (
	defaultSender = "viewer"
	defaultGift   = "Gift"

	// maxFactor bounds each multiplication factor so points never overflow.
	maxFactor = 1_000_000
)

// Translate never fails: malformed or missing fields fall back to defaults.
func Translate(raw map[string]any) domain.Contribution {
	return domain.Contribution{
		Sender: firstLabel(defaultSender,
			field(raw, "uniqueId"),
			field(raw, "nickname"),
			nested(raw, "user", "uniqueId"),
		),
		Gift: firstLabel(defaultGift,
			field(raw, "giftName"),
			nested(raw, "gift", "name"),
		),
		Points: Points(raw),
	}
}

// Points is max(1, intensity) * max(1, repeatCount). Intensity is read from
// diamondCount, falling back to gift.diamondCount.
func Points(raw map[string]any) int {
	intensity := factor(field(raw, "diamondCount"))
	if intensity == 0 {
		intensity = factor(nested(raw, "gift", "diamondCount"))
	}
	repeat := factor(field(raw, "repeatCount"))
	return max(1, intensity) * max(1, repeat)
}

// factor returns 0 for anything that is not a positive finite number.
func factor(v any) int {
	if v == nil {
		return 0
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || f < 1 {
		return 0
	}
	if f > maxFactor {
		return maxFactor
	}
	return int(f)
}

func field(raw map[string]any, key string) any {
	if raw == nil {
		return nil
	}
	return raw[key]
}

func nested(raw map[string]any, outer, key string) any {
	inner, ok := field(raw, outer).(map[string]any)
	if !ok {
		return nil
	}
	return inner[key]
}

func firstLabel(fallback string, candidates ...any) string {
	for _, c := range candidates {
		s, ok := c.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return fallback
}
