package catalog

// Game is a catalog search candidate.
type Game struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	NormalizedName string `json:"normalized_name,omitempty"`
	PlatformIDs    []int  `json:"platform_ids,omitempty"`
}

// Platform is a single entry of the platform taxonomy.
type Platform struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ParentPlatform groups platforms by family, e.g. "PlayStation" -> {PS5, PS4}.
type ParentPlatform struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Platforms []Platform `json:"platforms"`
}

// CollectionEntryRequest is the commit payload for one confirmed row.
// Attributes carries the user's collection fields (progress, rating,
// condition, ...) untouched; the pipeline never interprets them.
type CollectionEntryRequest struct {
	UserID     string      `json:"user_id"`
	GameID     int         `json:"game_id"`
	PlatformID int         `json:"platform_id,omitempty"`
	ConsoleIDs []int       `json:"console_ids,omitempty"`
	Attributes interface{} `json:"attributes,omitempty"`
}

// CollectionEntry is the catalog's record of a committed entry.
type CollectionEntry struct {
	ID         string `json:"id"`
	GameID     int    `json:"game_id"`
	PlatformID int    `json:"platform_id,omitempty"`
}
