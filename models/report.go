package models

import "time"

// Building types produced by the classifier.
const (
	BuildingTypeFlat       = "flat"
	BuildingTypeStudioFlat = "flat-studio"
	BuildingTypeHouse      = "house"
	BuildingTypeBungalow   = "bungalow"
	BuildingTypeMaisonette = "maisonette"
	BuildingTypeCottage    = "cottage"
	BuildingTypeTownHouse  = "town-house"
	BuildingTypePenthouse  = "penthouse"
	BuildingTypeParkHome   = "park-home"
	BuildingTypeUnknown    = "unknown"
)

// Building situations produced by the classifier.
const (
	SituationDetached     = "detached"
	SituationSemiDetached = "semi-detached"
	SituationEndTerrace   = "end-terrace"
	SituationMidTerrace   = "mid-terrace"
	SituationLinkDetached = "link-detached"
	SituationGroundFloor  = "ground-floor"
	SituationFlat         = "flat"
)

// Classified is the normalised view of a Property.
type Classified struct {
	URL               string      `json:"url"`
	PropertyType      ListingKind `json:"property_type"`
	Featured          bool        `json:"featured"`
	BuildingType      string      `json:"building_type,omitempty"`
	BuildingSituation string      `json:"building_situation,omitempty"`
	NBed              int         `json:"n_bed"`
	AgentName         string      `json:"agent_name,omitempty"`
	AgentAttribute    string      `json:"agent_attribute,omitempty"`
	AddressString     string      `json:"address_string,omitempty"`
	Lat               float64     `json:"lat"`
	Lon               float64     `json:"lon"`
	AskingPrice       float64     `json:"asking_price"`
	IsRetirement      bool        `json:"is_retirement"`
	Status            string      `json:"status,omitempty"`

	// Rental only.
	PaymentFrequency string `json:"payment_frequency,omitempty"`
	IsHouseShare     bool   `json:"is_house_share,omitempty"`
	InclusiveBills   bool   `json:"inclusive_bills,omitempty"`
}

// Issue describes why a record was not accepted. An empty Issue means success.
type Issue map[string]string

const (
	IssueFailed       = "FAILED"
	IssueReason       = "failure_reason"
	IssueBuildingType = "building_type"
	IssueSituation    = "building_situation"
	IssueError        = "error"
)

// Failed reports whether the issue is a hard skip.
func (i Issue) Failed() bool { return i[IssueFailed] == "true" }

// AccessEntry is one row of the access log.
type AccessEntry struct {
	Timestamp    time.Time
	Outcode      int
	PropertyType ListingKind
	Result       string
	Success      bool
	NumRetries   int
}

// UnitOutcome is the terminal state of one outcode in a run.
type UnitOutcome struct {
	Outcode    Outcode
	Success    bool
	Stored     int
	NumRetries int
	Err        string
}

// RunReport summarises one RetrieveAll call.
type RunReport struct {
	Kind           ListingKind
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Units          int
	Succeeded      int
	Recovered      int
	GaveUp         int
	RecordsStored  int
	Issues         int
	Outcomes       []UnitOutcome
	// TopUnits holds up to five units with the most stored records.
	TopUnits []UnitOutcome
	// StoredByRegion counts stored records per postcode area ("AB", "E", ...).
	StoredByRegion map[string]int
}
