package confluence

// Page is a Confluence content item.
type Page struct {
	ID      string   `json:"id"`
	Type    string   `json:"type"`
	Status  string   `json:"status"`
	Title   string   `json:"title"`
	Space   *Space   `json:"space,omitempty"`
	Body    *Body    `json:"body,omitempty"`
	Version *Version `json:"version,omitempty"`
	Links   *Links   `json:"_links,omitempty"`
}

// Space is a Confluence space.
type Space struct {
	ID   int64  `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Body holds the content representations of a page.
type Body struct {
	Storage *Storage `json:"storage,omitempty"`
	View    *Storage `json:"view,omitempty"`
}

// Storage is one content representation.
type Storage struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

// Version is a page version stamp.
type Version struct {
	Number int    `json:"number"`
	When   string `json:"when,omitempty"`
}

// Links carries the API's hypermedia links.
type Links struct {
	WebUI string `json:"webui,omitempty"`
	Self  string `json:"self,omitempty"`
}

// SearchResults is the response of a CQL content search.
type SearchResults struct {
	Results []Page `json:"results"`
	Start   int    `json:"start"`
	Limit   int    `json:"limit"`
	Size    int    `json:"size"`
}

// User is a Confluence user.
type User struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}
