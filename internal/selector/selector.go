package selector

import (
	"time"

	"github.com/relayrotor/relayrotor/internal/model"
)

// Select picks the next relay for a client. It is a pure function over the
// pool and the client's state; all side effects (usage stamps, history)
// belong to the coordinator.
//
// Selection rules, in order:
//  1. If preferred is non-empty, only relays with exactly that location are
//     eligible. No fallback: a preferred location with no match returns none.
//  2. Otherwise, if the client has a last-vacated location, relays in that
//     location are excluded, unless the exclusion would empty the candidate
//     set (a single-location pool must not strand the client).
//  3. Among the candidates, the relay with the oldest last-usage date for
//     this client wins. A relay with no usage date is treated as older than
//     any used relay, so never-used relays always beat used ones.
//  4. Ties break by pool order: the first listed relay wins.
//
// The boolean result is false only when the candidate set is empty after
// filtering. st may be nil for a client with no prior state.
func Select(pool []model.Relay, st *model.ClientState, preferred string) (model.Relay, bool) {
	candidates := pool

	if preferred != "" {
		candidates = filterLocation(pool, preferred, true)
		if len(candidates) == 0 {
			return model.Relay{}, false
		}
	} else if st != nil && st.LastLocation != "" {
		filtered := filterLocation(candidates, st.LastLocation, false)
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	if len(candidates) == 0 {
		return model.Relay{}, false
	}

	var usage map[string]time.Time
	if st != nil {
		usage = st.UsageDates
	}

	best := candidates[0]
	bestUsed, bestHas := usage[best.Endpoint]
	for _, r := range candidates[1:] {
		used, has := usage[r.Endpoint]
		if olderThan(used, has, bestUsed, bestHas) {
			best, bestUsed, bestHas = r, used, has
		}
	}
	return best, true
}

// filterLocation keeps (or drops, when keep is false) relays whose location
// matches loc exactly.
func filterLocation(pool []model.Relay, loc string, keep bool) []model.Relay {
	out := make([]model.Relay, 0, len(pool))
	for _, r := range pool {
		if (r.Location == loc) == keep {
			out = append(out, r)
		}
	}
	return out
}

// olderThan reports whether usage (a, aHas) is strictly older than
// (b, bHas). An absent usage date is the oldest possible value. Equal dates
// are not "older", which preserves pool order on ties.
func olderThan(a time.Time, aHas bool, b time.Time, bHas bool) bool {
	switch {
	case !aHas && !bHas:
		return false
	case !aHas:
		return true
	case !bHas:
		return false
	default:
		return a.Before(b)
	}
}
