package model

// Event represents one decoded event occurrence within a series.
// Step is expressed in aggregated (post-windowing) step coordinates;
// the submission layer maps it back to the native time base.
type Event struct {
	SeriesKey string  // series the event belongs to
	Step      int     // aggregated step index of the score peak
	Channel   int     // model output channel the event was decoded from
	Label     string  // event name, e.g. "onset", "wakeup"
	Score     float64 // probability at the peak
}
