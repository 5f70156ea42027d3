// Package search provides full-text search over clients and projects,
// served by Meilisearch with a Postgres fallback.
package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultClient  ResultType = "client"
	ResultProject ResultType = "project"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type     ResultType `json:"type"`
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Snippet  string     `json:"snippet"`
	ClientID string     `json:"clientId,omitempty"`
	Status   string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexClient(c ClientRecord) error
	IndexProject(p ProjectRecord) error
	DeleteClient(id string) error
	DeleteProject(id string) error
}

// ClientRecord is the data we index for a client.
type ClientRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Industry    string `json:"industry"`
	ContactName string `json:"contactName"`
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ProjectType string `json:"projectType"`
	Status      string `json:"status"`
	ClientID    string `json:"clientId"`
}
