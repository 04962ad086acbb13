package db

// SearchRequest is a fully rendered FT.SEARCH invocation.
// Query is the dialect-2 query string; Params holds flat name/value pairs
// bound via PARAMS (vector blobs included).
type SearchRequest struct {
	Index        string
	Query        string
	Params       []string
	ReturnFields []string
	SortBy       string
	SortAsc      bool
	Offset       int
	Limit        int
	Dialect      int
}

// SearchResult is the parsed output of FT.SEARCH.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit. Field values arrive string-typed
// from the engine; typed coercion happens at the facade boundary.
type SearchEntry struct {
	Key    string
	Fields map[string]string
}

// AggregateRequest is a fully rendered FT.AGGREGATE pipeline with a single
// GROUPBY/REDUCE stage followed by an optional SORTBY and LIMIT.
type AggregateRequest struct {
	Index     string
	Query     string
	Params    []string
	Load      []string
	GroupBy   string // field to group on, without the @ prefix
	Reduce    string // reducer function: AVG, MIN, SUM
	ReduceArg string // reduced field, without the @ prefix
	ReduceAs  string // alias for the reduced value
	SortBy    string // sort field, without the @ prefix
	SortAsc   bool
	Limit     int
	Dialect   int
}

// AggregateResult is the parsed output of FT.AGGREGATE. Rows are flat
// name→value maps; all values are string-typed on this path.
type AggregateResult struct {
	Total int
	Rows  []map[string]string
}
