package domain

// Source is one citation record embedded in assistant output via the
// SOURCES_START/SOURCES_END wire convention.
type Source struct {
	Domain      string `json:"domain"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}
