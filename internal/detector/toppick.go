package detector

import (
	"fmt"
	"math"
	"sort"

	"PulseScan/internal/datastore"
	"PulseScan/internal/domain/models"
	drepo "PulseScan/internal/domain/repository"
)

const (
	topPickLimit    = 10
	topPickMinScore = 40
)

// TopPick ranks symbols by a composite of the other detectors' views.
// It reads from them, never the reverse.
type TopPick struct {
	store    *datastore.Store
	clock    drepo.Clock
	volume   *Volume
	velocity *Velocity
	funding  *Funding
	oi       *OpenInterest
	mtf      *MultiTimeframe
	pattern  *Pattern
	entry    *EntryTiming
}

func NewTopPick(
	store *datastore.Store,
	clock drepo.Clock,
	volume *Volume,
	velocity *Velocity,
	funding *Funding,
	oi *OpenInterest,
	mtf *MultiTimeframe,
	pattern *Pattern,
	entry *EntryTiming,
) *TopPick {
	return &TopPick{
		store:    store,
		clock:    clock,
		volume:   volume,
		velocity: velocity,
		funding:  funding,
		oi:       oi,
		mtf:      mtf,
		pattern:  pattern,
		entry:    entry,
	}
}

func (d *TopPick) Name() string { return "top_pick" }

func (d *TopPick) Detect() []models.TopPickAlert {
	now := d.clock.Now()
	var out []models.TopPickAlert

	for _, st := range d.store.All() {
		score, reasons, dir := d.score(st)
		if score < topPickMinScore {
			continue
		}
		out = append(out, models.TopPickAlert{
			Symbol:    st.Symbol,
			Score:     score,
			Reasons:   reasons,
			Direction: dir,
			Timestamp: now,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Symbol < out[j].Symbol
	})
	if len(out) > topPickLimit {
		out = out[:topPickLimit]
	}
	return out
}

// score sums capped contributions from each detector's current view.
// The long/short lean follows the sign-weighted majority of the inputs.
func (d *TopPick) score(st datastore.SymbolState) (float64, []string, models.Direction) {
	t := st.Current
	var score, lean float64
	var reasons []string

	if abs := math.Abs(t.PriceChangePct); abs >= 5 {
		pts := math.Min(abs, 25)
		score += pts
		lean += signOf(t.PriceChangePct) * pts
		reasons = append(reasons, fmt.Sprintf("24h move %.1f%%", t.PriceChangePct))
	}

	if mult, ok := d.volume.MultiplierFor(st.Symbol); ok && mult >= 2 {
		pts := math.Min(mult*5, 20)
		score += pts
		lean += signOf(t.PriceChangePct) * pts
		reasons = append(reasons, fmt.Sprintf("volume %.1fx average", mult))
	}

	if v, ok := d.velocity.VelocityFor(st); ok && math.Abs(v) >= 0.5 {
		pts := math.Min(math.Abs(v)*10, 15)
		score += pts
		lean += signOf(v) * pts
		reasons = append(reasons, fmt.Sprintf("velocity %.2f%%/min", v))
	}

	if fr, ok := d.funding.RateFor(st.Symbol); ok {
		if sig := ClassifyFunding(fr.Rate, t.PriceChangePct); sig != models.FundingNeutral {
			score += 10
			lean += float64(FundingTradeDirection(sig).Encode()) * 10
			reasons = append(reasons, fmt.Sprintf("funding %s at %.3f", sig, fr.Rate))
		}
	}

	if change, ok := d.oi.ChangeFor(st.Symbol); ok && math.Abs(change) >= oiThreshold {
		pts := math.Min(math.Abs(change)*2, 10)
		score += pts
		lean += signOf(change) * pts
		reasons = append(reasons, fmt.Sprintf("OI change %.1f%%", change))
	}

	if mtf, ok := d.mtf.StateFor(st.Symbol); ok && mtf.Alignment != models.AlignMixed {
		score += 15
		lean += float64(mtf.Direction.Encode()) * 15
		reasons = append(reasons, fmt.Sprintf("timeframes %s", mtf.Alignment))
	}

	if pat, ok := d.pattern.PatternFor(st.Symbol); ok {
		score += 10
		lean += float64(pat.Direction.Encode()) * 10
		reasons = append(reasons, fmt.Sprintf("pattern %s", pat.Pattern))
	}

	if setup, ok := d.entry.SetupFor(st.Symbol); ok {
		score += 10
		lean += float64(setup.Direction.Encode()) * 10
		reasons = append(reasons, fmt.Sprintf("%s setup, R/R %.1f", setup.EntryType, setup.RiskReward))
	}

	dir := models.DirectionNeutral
	if lean > 0 {
		dir = models.DirectionLong
	} else if lean < 0 {
		dir = models.DirectionShort
	}
	return clamp(score, 0, 100), reasons, dir
}

func signOf(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
