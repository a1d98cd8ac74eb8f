package testchunks

import "time"

// Config holds configuration for the chunk generator.
type Config struct {
	Store      string // chunk store destination: a directory, or a .db path
	Weights    string // weights artifact destination
	Plan       string // plan file destination
	Series     int    // number of series to generate
	Steps      int    // steps per series
	Window     int    // steps per window
	Overlap    int    // overlapping steps between consecutive windows
	Events     int    // planted events per series
	Separation int    // minimum step distance between planted events
	Seed       int64  // seed for noise and event placement
	Verbose    bool   // enable verbose logging
}

// PlannedEvent records one spike the generator planted and the
// submission row it must produce.
type PlannedEvent struct {
	SeriesKey  string  `json:"series_id"`
	Step       int     `json:"step"`        // aggregated step of the spike
	OutputStep int     `json:"output_step"` // corrected step expected in the table
	Label      string  `json:"event"`
	Score      float64 `json:"score"` // probability the model yields at the spike
}

// Plan describes everything a generated store should decode to.
type Plan struct {
	Threshold float64        `json:"threshold"`
	Hop       int            `json:"hop_length"`
	Events    []PlannedEvent `json:"events"`
}

// Stats holds generation statistics.
type Stats struct {
	SeriesGenerated int
	WindowsWritten  int
	EventsPlanted   int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
}
