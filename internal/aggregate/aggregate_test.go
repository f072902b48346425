package aggregate

import (
    "testing"
    "time"

    "github.com/BlissPhinehas/trading-dashboard/internal/provider"
)

func TestLatest_LastEntryWins(t *testing.T) {
    t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
    t2 := t1.Add(time.Minute)

    in := []provider.Quote{
        {Symbol: "AAPL", Price: 174, ReceivedAt: t2},
        {Symbol: "MSFT", Price: 330, ReceivedAt: t1},
        {Symbol: "AAPL", Price: 176, ReceivedAt: t1},
    }
    out := Latest(in)
    if len(out) != 2 {
        t.Fatalf("want 2, got %d: %+v", len(out), out)
    }
    // the later entry wins even with the older timestamp
    if out[0].Symbol != "AAPL" || out[0].Price != 176 {
        t.Fatalf("unexpected AAPL row: %+v", out[0])
    }
    if out[1].Symbol != "MSFT" {
        t.Fatalf("order not preserved: %+v", out)
    }
}

func TestLatest_ZeroTimestamps(t *testing.T) {
    out := Latest([]provider.Quote{{Symbol: "X", Price: 1}, {Symbol: "X", Price: 2}})
    if len(out) != 1 || out[0].Price != 2 {
        t.Fatalf("zero timestamps: %+v", out)
    }
}

func TestSummarize_DataSource(t *testing.T) {
    ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
    live := provider.Quote{Provenance: provider.ProvenanceLive, ReceivedAt: ts}
    cached := provider.Quote{Provenance: provider.ProvenanceCached, ReceivedAt: ts.Add(-time.Minute)}
    stale := provider.Quote{Provenance: provider.ProvenanceStale, ReceivedAt: ts.Add(-time.Hour)}
    fb := provider.Quote{Provenance: provider.ProvenanceFallback, ReceivedAt: ts.Add(-24 * time.Hour)}

    cases := []struct {
        in   []provider.Quote
        want string
    }{
        {nil, "None"},
        {[]provider.Quote{fb, fb}, "Fallback"},
        {[]provider.Quote{live, live}, "Yahoo (live)"},
        {[]provider.Quote{live, cached}, "Yahoo (cached)"},
        {[]provider.Quote{cached, stale}, "Yahoo (stale)"},
        {[]provider.Quote{cached, fb}, "Mixed"},
    }
    for _, c := range cases {
        if got := Summarize(c.in).DataSource("Yahoo"); got != c.want {
            t.Fatalf("DataSource(%+v) = %q, want %q", c.in, got, c.want)
        }
    }

    s := Summarize([]provider.Quote{live, cached, stale, fb})
    if s.Live != 1 || s.Cached != 1 || s.Stale != 1 || s.Fallback != 1 {
        t.Fatalf("counts: %+v", s)
    }
    if !s.Oldest.Equal(stale.ReceivedAt) {
        t.Fatalf("oldest should ignore fallback quotes: %v", s.Oldest)
    }
}
