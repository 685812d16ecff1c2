package domain

import "time"

// Snapshot is an opaque capture of the current page, handed to the inference
// service during healing and archived by scan tasks. The core never
// interprets the HTML itself.
type Snapshot struct {
	// ID is the artifact identifier (snap-<uuid8>).
	ID string `json:"id"`

	// URL is the page address at capture time.
	URL string `json:"url"`

	// HTML is the serialized page, truncated to the configured byte budget.
	HTML string `json:"html"`

	// CapturedAt is when the snapshot was taken (UTC).
	CapturedAt time.Time `json:"captured_at"`
}

// Truncated reports whether the snapshot HTML was cut at the byte budget.
func (s *Snapshot) Truncated(budget int) bool {
	return budget > 0 && len(s.HTML) >= budget
}
