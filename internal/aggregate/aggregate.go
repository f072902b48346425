package aggregate

import (
    "time"

    "github.com/BlissPhinehas/trading-dashboard/internal/provider"
)

// Latest collapses quotes by symbol, a later entry replacing an earlier one
// whatever their timestamps, so a symbol repeated within one response resolves
// to its last entry. Output keeps first-seen order.
func Latest(quotes []provider.Quote) []provider.Quote {
    idx := make(map[string]int, len(quotes))
    out := make([]provider.Quote, 0, len(quotes))
    for _, q := range quotes {
        if i, ok := idx[q.Symbol]; ok {
            out[i] = q
            continue
        }
        idx[q.Symbol] = len(out)
        out = append(out, q)
    }
    return out
}

// Summary counts quotes per provenance.
type Summary struct {
    Live     int       `json:"live"`
    Cached   int       `json:"cached"`
    Stale    int       `json:"stale"`
    Fallback int       `json:"fallback"`
    Oldest   time.Time `json:"oldest,omitempty"`
}

func Summarize(quotes []provider.Quote) Summary {
    var s Summary
    for _, q := range quotes {
        switch q.Provenance {
        case provider.ProvenanceLive:
            s.Live++
        case provider.ProvenanceCached:
            s.Cached++
        case provider.ProvenanceStale:
            s.Stale++
        case provider.ProvenanceFallback:
            s.Fallback++
            continue
        }
        if !q.ReceivedAt.IsZero() && (s.Oldest.IsZero() || q.ReceivedAt.Before(s.Oldest)) {
            s.Oldest = q.ReceivedAt
        }
    }
    return s
}

// DataSource labels a response for dashboard consumers, e.g. "Yahoo (cached)".
func (s Summary) DataSource(providerName string) string {
    known := s.Live + s.Cached + s.Stale
    switch {
    case known == 0 && s.Fallback == 0:
        return "None"
    case known == 0:
        return "Fallback"
    case s.Fallback > 0:
        return "Mixed"
    case s.Live > 0 && s.Cached == 0 && s.Stale == 0:
        return providerName + " (live)"
    case s.Stale > 0:
        return providerName + " (stale)"
    default:
        return providerName + " (cached)"
    }
}
