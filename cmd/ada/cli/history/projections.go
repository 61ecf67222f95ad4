package history

import (
	"sort"
	"time"
)

// Confidence levels for projections, based on how many completed features
// have cost samples.
const (
	ConfidenceLow    = "low"    // fewer than 2 samples
	ConfidenceMedium = "medium" // 2-4 samples
	ConfidenceHigh   = "high"   // 5 or more
)

// Projection estimates the cost to finish the backlog.
type Projection struct {
	RemainingFeatures int     `json:"remaining_features"`
	CompletedSamples  int     `json:"completed_samples"`
	CostPerFeatureP25 float64 `json:"cost_per_feature_p25"`
	CostPerFeatureP50 float64 `json:"cost_per_feature_p50"`
	CostPerFeatureP75 float64 `json:"cost_per_feature_p75"`
	EstimateLowUSD    float64 `json:"estimate_low_usd"`
	EstimateMidUSD    float64 `json:"estimate_mid_usd"`
	EstimateHighUSD   float64 `json:"estimate_high_usd"`

	// BurnRateUSDPerDay averages spend over the trailing 7 days.
	BurnRateUSDPerDay float64 `json:"burn_rate_usd_per_day"`
	Confidence        string  `json:"confidence"`
}

// Project estimates remaining cost from completed-feature samples. Each
// completed feature's sample is the sum of all its sessions' costs.
func (s *Store) Project(completedFeatureIDs []string, remaining int) Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	completed := make(map[string]bool, len(completedFeatureIDs))
	for _, id := range completedFeatureIDs {
		completed[id] = true
	}

	perFeature := map[string]float64{}
	for _, r := range s.records {
		if completed[r.FeatureID] {
			perFeature[r.FeatureID] += r.CostUSD
		}
	}
	samples := make([]float64, 0, len(perFeature))
	for _, c := range perFeature {
		samples = append(samples, c)
	}
	sort.Float64s(samples)

	p := Projection{
		RemainingFeatures: remaining,
		CompletedSamples:  len(samples),
		BurnRateUSDPerDay: s.burnRateLocked(7),
	}
	switch {
	case len(samples) >= 5:
		p.Confidence = ConfidenceHigh
	case len(samples) >= 2:
		p.Confidence = ConfidenceMedium
	default:
		p.Confidence = ConfidenceLow
	}
	if len(samples) == 0 {
		return p
	}

	p.CostPerFeatureP25 = percentile(samples, 0.25)
	p.CostPerFeatureP50 = percentile(samples, 0.50)
	p.CostPerFeatureP75 = percentile(samples, 0.75)
	p.EstimateLowUSD = p.CostPerFeatureP25 * float64(remaining)
	p.EstimateMidUSD = p.CostPerFeatureP50 * float64(remaining)
	p.EstimateHighUSD = p.CostPerFeatureP75 * float64(remaining)
	return p
}

// percentile interpolates linearly over sorted samples.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// burnRateLocked averages spend per day over the trailing window.
// Caller holds s.mu.
func (s *Store) burnRateLocked(days int) float64 {
	cutoff := time.Now().AddDate(0, 0, -days)
	var total float64
	for _, r := range s.records {
		if r.StartedAt.After(cutoff) {
			total += r.CostUSD
		}
	}
	return total / float64(days)
}

// Segment is one session's span within a feature's timeline.
type Segment struct {
	SessionID string    `json:"session_id"`
	Outcome   string    `json:"outcome"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	CostUSD   float64   `json:"cost_usd"`
}

// FeatureTimeline is the ordered session history for one feature.
type FeatureTimeline struct {
	FeatureID     string    `json:"feature_id"`
	FeatureName   string    `json:"feature_name,omitempty"`
	Segments      []Segment `json:"segments"`
	EarliestStart time.Time `json:"earliest_start"`
	LatestEnd     time.Time `json:"latest_end"`
	TotalCostUSD  float64   `json:"total_cost_usd"`
}

// Timeline groups sessions by feature, segments sorted by start time and
// features by earliest start.
func (s *Store) Timeline() []FeatureTimeline {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byFeature := map[string]*FeatureTimeline{}
	var order []string
	for _, r := range s.records {
		ft, ok := byFeature[r.FeatureID]
		if !ok {
			ft = &FeatureTimeline{FeatureID: r.FeatureID, FeatureName: r.FeatureName}
			byFeature[r.FeatureID] = ft
			order = append(order, r.FeatureID)
		}
		if ft.FeatureName == "" {
			ft.FeatureName = r.FeatureName
		}
		ft.Segments = append(ft.Segments, Segment{
			SessionID: r.SessionID,
			Outcome:   r.Outcome,
			StartedAt: r.StartedAt,
			EndedAt:   r.EndedAt,
			CostUSD:   r.CostUSD,
		})
		ft.TotalCostUSD += r.CostUSD
	}

	out := make([]FeatureTimeline, 0, len(order))
	for _, id := range order {
		ft := byFeature[id]
		sort.Slice(ft.Segments, func(i, j int) bool {
			return ft.Segments[i].StartedAt.Before(ft.Segments[j].StartedAt)
		})
		ft.EarliestStart = ft.Segments[0].StartedAt
		ft.LatestEnd = ft.Segments[0].EndedAt
		for _, seg := range ft.Segments {
			if seg.EndedAt.After(ft.LatestEnd) {
				ft.LatestEnd = seg.EndedAt
			}
		}
		out = append(out, *ft)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EarliestStart.Before(out[j].EarliestStart)
	})
	return out
}
