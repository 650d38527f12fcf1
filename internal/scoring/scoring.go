// Package scoring derives business value and opportunity metrics on a
// merged universe. Each step declares the columns it needs and is skipped
// when they are absent.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/keyword-cli/internal/model"
)

// Weights of the opportunity score components.
type Weights struct {
	Value      float64 `yaml:"value" mapstructure:"value"`
	Difficulty float64 `yaml:"difficulty" mapstructure:"difficulty"`
	Gap        float64 `yaml:"gap" mapstructure:"gap"`
}

// Config tunes the scorer.
type Config struct {
	Weights Weights `yaml:"weights" mapstructure:"weights"`
	// NeutralDifficulty stands in for a missing difficulty.
	NeutralDifficulty float64 `yaml:"neutral_difficulty" mapstructure:"neutral_difficulty"`
}

// DefaultConfig returns the standard 50/30/20 split.
func DefaultConfig() Config {
	return Config{
		Weights:           Weights{Value: 0.5, Difficulty: 0.3, Gap: 0.2},
		NeutralDifficulty: 50,
	}
}

// Validate checks weights and the neutral difficulty.
func (c Config) Validate() error {
	var errs []string

	for name, w := range map[string]float64{
		"value":      c.Weights.Value,
		"difficulty": c.Weights.Difficulty,
		"gap":        c.Weights.Gap,
	} {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s weight must be >= 0", name))
		}
	}
	if sum := c.Weights.Value + c.Weights.Difficulty + c.Weights.Gap; math.Abs(sum-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.2f", sum))
	}
	if c.NeutralDifficulty < 0 || c.NeutralDifficulty > 100 {
		errs = append(errs, "neutral_difficulty must be between 0 and 100")
	}

	if len(errs) > 0 {
		return eris.Errorf("scoring: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Report lists which steps ran.
type Report struct {
	BusinessValue    bool      `json:"business_value"`
	OpportunityGap   bool      `json:"opportunity_gap"`
	OpportunityScore bool      `json:"opportunity_score"`
	Gaps             int       `json:"gaps"`
	Log              model.Log `json:"log"`
}

// Scorer computes derived columns in place.
type Scorer struct {
	cfg Config
}

// New creates a Scorer.
func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score runs every step against t.
func (s *Scorer) Score(t *model.Table) Report {
	var rep Report
	rep.BusinessValue = s.businessValue(t, &rep.Log)
	rep.Gaps, rep.OpportunityGap = s.opportunityGap(t, &rep.Log)
	rep.OpportunityScore = s.opportunityScore(t, &rep.Log)
	return rep
}

func (s *Scorer) businessValue(t *model.Table, log *model.Log) bool {
	if !t.Has(model.ColSearchVolume) || !t.Has(model.ColCPC) {
		log.Warnf("Missing search_volume or cpc, skipping business value calculation")
		return false
	}
	for _, r := range t.Rows {
		r.JourneyWeight = JourneyWeight(r.JourneyPhase)
		r.IntentWeight = IntentWeight(r.SearchIntent)
		r.BusinessValue = orZero(r.SearchVolume) * orZero(r.CPC) * r.JourneyWeight * r.IntentWeight
	}
	t.AddColumn(model.ColJourneyWeight)
	t.AddColumn(model.ColIntentWeight)
	t.AddColumn(model.ColBusinessValue)
	log.Infof("Calculated business values")
	return true
}

func (s *Scorer) opportunityGap(t *model.Table, log *model.Log) (int, bool) {
	t.AddColumn(model.ColCompetitorsRanking)
	t.AddColumn(model.ColOpportunityGap)

	owner, hasOwner := t.Owner()
	var competitors []string
	for _, c := range t.Competitors() {
		if c.HasField(model.ColPosition) {
			competitors = append(competitors, c.Slug)
		}
	}
	if !hasOwner || !owner.HasField(model.ColPosition) || len(competitors) == 0 {
		for _, r := range t.Rows {
			r.CompetitorsRanking = 0
			r.OpportunityGap = 0
		}
		return 0, false
	}

	gaps := 0
	for _, r := range t.Rows {
		n := 0
		for _, slug := range competitors {
			if r.RankPosition(slug) != nil {
				n++
			}
		}
		r.CompetitorsRanking = n
		r.OpportunityGap = 0
		if r.RankPosition(owner.Slug) == nil && n > 0 {
			r.OpportunityGap = 1
			gaps++
		}
	}
	log.Infof("Identified %d opportunity gaps", gaps)
	return gaps, true
}

func (s *Scorer) opportunityScore(t *model.Table, log *model.Log) bool {
	if !t.Has(model.ColBusinessValue) || !t.Has(model.ColDifficulty) {
		return false
	}
	maxValue := 0.0
	for _, r := range t.Rows {
		if r.BusinessValue > maxValue {
			maxValue = r.BusinessValue
		}
	}
	w := s.cfg.Weights
	for _, r := range t.Rows {
		valueTerm := 0.0
		if maxValue > 0 {
			valueTerm = r.BusinessValue / maxValue
		}
		difficulty := s.cfg.NeutralDifficulty
		if r.Difficulty != nil {
			difficulty = *r.Difficulty
		}
		r.OpportunityScore = 100 * (w.Value*valueTerm +
			w.Difficulty*(100-difficulty)/100 +
			w.Gap*float64(r.OpportunityGap))
	}
	t.AddColumn(model.ColOpportunityScore)
	log.Infof("Calculated opportunity scores")
	return true
}

func orZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
