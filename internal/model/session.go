package model

import "time"

// Stage is the last pipeline boundary a session completed.
type Stage string

const (
	StageCreated     Stage = "created"
	StageBuilt       Stage = "built"
	StageClassifying Stage = "classifying"
	StageClassified  Stage = "classified"
	StageFinalized   Stage = "finalized"
)

// Settings captures the pipeline configuration a session was built with.
type Settings struct {
	BrandName       string   `json:"brand_name"`
	TargetCountry   string   `json:"target_country"`
	Industry        string   `json:"industry"`
	CompetitorNames []string `json:"competitor_names,omitempty"`
	RemoveBrand     bool     `json:"remove_brand"`
	RemoveIntl      bool     `json:"remove_international"`
	RemoveUnrelated bool     `json:"remove_unrelated"`
	RemovePhone     bool     `json:"remove_phone"`
	RemoveJunk      bool     `json:"remove_junk"`
	JourneyTemplate string   `json:"journey_template,omitempty"`
	JourneyPhases   []string `json:"journey_phases,omitempty"`
	SearchIntents   []string `json:"search_intents,omitempty"`
}

// PendingRequest is one keyword awaiting classification.
type PendingRequest struct {
	ID      string `json:"id"`
	Keyword string `json:"keyword"`
}

// Session is a snapshot of the pipeline at a stage boundary. Restores are
// always full: universe, master table and settings together.
type Session struct {
	ID        string                       `json:"id"`
	Name      string                       `json:"name"`
	Stage     Stage                        `json:"stage"`
	Settings  Settings                     `json:"settings"`
	Mappings  map[string]map[string]string `json:"mappings,omitempty"`
	BatchID   string                       `json:"batch_id,omitempty"`
	Pending   []PendingRequest             `json:"pending,omitempty"`
	Universe  *Table                       `json:"universe,omitempty"`
	Master    *Table                       `json:"master,omitempty"`
	CreatedAt time.Time                    `json:"created_at"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Stage     Stage     `json:"stage"`
	Keywords  int       `json:"keywords"`
	UpdatedAt time.Time `json:"updated_at"`
}
