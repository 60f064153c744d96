package model

// QueuedTask is an item of the generic enrichment work queue. Name selects
// the operation that handles it.
type QueuedTask struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Scope       string `json:"scope"`
	Prompt      string `json:"prompt"`
	Description string `json:"description"`
}

// Criterion is an assessment applied to entities of type Scope; the result
// is stored as a tag named Name.
type Criterion struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Prompt  string  `json:"prompt"`
	Scope   string  `json:"scope"`
	Promise float64 `json:"promise"`
}
