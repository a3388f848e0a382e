package platform

// Resolution is a platform match for a user-supplied platform string.
type Resolution struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Option is one selectable platform for manual-selection UIs.
type Option struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
