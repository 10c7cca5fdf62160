package snapshot

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
)

// stablecoin bases; the quote suffix is stripped before lookup so
// USDCUSDT is rejected while DOGEUSDT is not.
var stablecoinBases = map[string]struct{}{
	"USDC":  {},
	"BUSD":  {},
	"TUSD":  {},
	"DAI":   {},
	"USDP":  {},
	"FDUSD": {},
	"USDD":  {},
	"USDE":  {},
	"EUR":   {},
	"EURI":  {},
}

var presets = map[string]models.FilterSettings{
	"all": {
		Preset:    "all",
		OnlyQuote: "USDT",
	},
	"highVolume": {
		Preset:             "highVolume",
		MinVolume24h:       50_000_000,
		OnlyQuote:          "USDT",
		ExcludeStablecoins: true,
	},
	"bigMovers": {
		Preset:             "bigMovers",
		MinVolume24h:       10_000_000,
		MinChange24h:       5,
		OnlyQuote:          "USDT",
		ExcludeStablecoins: true,
	},
	"topTier": {
		Preset:             "topTier",
		OnlyQuote:          "USDT",
		ExcludeStablecoins: true,
		Watchlist: []string{
			"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT",
			"ADAUSDT", "DOGEUSDT", "AVAXUSDT", "LINKUSDT", "DOTUSDT",
		},
	},
}

// Preset returns a copy of one of the named filter presets.
func Preset(name string) (models.FilterSettings, bool) {
	s, ok := presets[name]
	if !ok {
		return models.FilterSettings{}, false
	}
	s.Excluded = append([]string(nil), s.Excluded...)
	s.Watchlist = append([]string(nil), s.Watchlist...)
	return s, true
}

// Filter decides which symbols are visible in snapshots. Settings can be
// swapped at runtime; Pass is safe for concurrent readers.
type Filter struct {
	store *datastore.Store

	mu       sync.RWMutex
	settings models.FilterSettings
	excluded map[string]struct{}
	watch    map[string]struct{}
}

func NewFilter(store *datastore.Store, settings models.FilterSettings) *Filter {
	f := &Filter{store: store}
	f.Apply(settings)
	return f
}

// Apply replaces the active settings.
func (f *Filter) Apply(settings models.FilterSettings) {
	excluded := make(map[string]struct{}, len(settings.Excluded))
	for _, s := range settings.Excluded {
		excluded[s] = struct{}{}
	}
	watch := make(map[string]struct{}, len(settings.Watchlist))
	for _, s := range settings.Watchlist {
		watch[s] = struct{}{}
	}

	f.mu.Lock()
	f.settings = settings
	f.excluded = excluded
	f.watch = watch
	f.mu.Unlock()
}

// SetPreset switches to a named preset.
func (f *Filter) SetPreset(name string) error {
	s, ok := Preset(name)
	if !ok {
		return fmt.Errorf("unknown filter preset %q", name)
	}
	f.Apply(s)
	return nil
}

// Settings returns a copy of the active settings.
func (f *Filter) Settings() models.FilterSettings {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := f.settings
	s.Excluded = append([]string(nil), f.settings.Excluded...)
	s.Watchlist = append([]string(nil), f.settings.Watchlist...)
	return s
}

// Pass reports whether a symbol is visible under the active settings.
// A non-empty watchlist acts as an allow-list; the exclusion set wins
// over everything.
func (f *Filter) Pass(symbol string) bool {
	f.mu.RLock()
	settings := f.settings
	_, isExcluded := f.excluded[symbol]
	_, isWatched := f.watch[symbol]
	watchSize := len(f.watch)
	f.mu.RUnlock()

	if isExcluded {
		return false
	}
	if watchSize > 0 {
		return isWatched
	}
	if settings.OnlyQuote != "" && !strings.HasSuffix(symbol, settings.OnlyQuote) {
		return false
	}
	if settings.ExcludeStablecoins && isStablecoinBase(symbol, settings.OnlyQuote) {
		return false
	}

	if settings.MinVolume24h > 0 || settings.MinChange24h > 0 {
		t, ok := f.store.Ticker(symbol)
		if !ok {
			return false
		}
		if settings.MinVolume24h > 0 && t.QuoteVolume < settings.MinVolume24h {
			return false
		}
		if settings.MinChange24h > 0 && math.Abs(t.PriceChangePct) < settings.MinChange24h {
			return false
		}
	}
	return true
}

func isStablecoinBase(symbol, quote string) bool {
	base := strings.TrimSuffix(symbol, quote)
	if base == symbol || base == "" {
		return false
	}
	_, ok := stablecoinBases[base]
	return ok
}
