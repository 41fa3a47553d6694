package semantic

// DocumentVector is one document embedding with its lookup payload.
type DocumentVector struct {
	DocumentID   string
	VIN          string
	DocumentType string
	FileName     string
	Embedding    []float32
}

// Match is the closest indexed document found by a near-duplicate search.
type Match struct {
	DocumentID   string  `json:"document_id"`
	DocumentType string  `json:"document_type"`
	FileName     string  `json:"file_name"`
	Score        float32 `json:"score"`
}
