package flight

import (
	"cmp"
	"slices"
	"strings"
)

// Rank deduplicates records, orders them by DistanceKm (nearest first, ties
// kept in input order) and keeps at most limit of them. A limit outside
// 1..MaxRanked means MaxRanked. The input slice is not modified.
func Rank(records []FlightRecord, limit int) []FlightRecord {
	if limit <= 0 || limit > MaxRanked {
		limit = MaxRanked
	}

	ranked := dedupe(records)
	slices.SortStableFunc(ranked, func(a, b FlightRecord) int {
		return cmp.Compare(a.DistanceKm, b.DistanceKm)
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// dedupe keeps the first record seen for each aircraft. Records without an
// ICAO address or callsign cannot be matched and are all kept.
func dedupe(records []FlightRecord) []FlightRecord {
	out := make([]FlightRecord, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		key := identity(r)
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}

func identity(r FlightRecord) string {
	if r.ICAO24 != "" {
		return "icao:" + strings.ToLower(r.ICAO24)
	}
	if cs := strings.TrimSpace(r.Callsign); cs != "" {
		return "cs:" + strings.ToUpper(cs)
	}
	return ""
}
