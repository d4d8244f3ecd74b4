package models

// Document is one stored text and the id it was added under.
type Document struct {
	ID      string
	Content string
}

// DocumentList is the full dump of a store, ids[i] belongs to documents[i].
type DocumentList struct {
	Count     int      `json:"count"`
	IDs       []string `json:"ids"`
	Documents []string `json:"documents"`
}

// GetResult mirrors a collection get: parallel id and content slices.
type GetResult struct {
	IDs       []string
	Documents []string
}

// QueryResult holds one ranked list of contents per query text.
type QueryResult struct {
	Documents [][]string
}

type Answer struct {
	Text string `json:"answer"`
}

// Page is a crawled web page before it is chunked into documents.
type Page struct {
	URL      string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

type ProcessedPage struct {
	Page
	Chunks []string
}
