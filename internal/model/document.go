package model

// Document is an extracted source document: an ordered sequence of pages
type Document struct {
	ID     string `json:"document_id"`      // Stable document identifier
	Source string `json:"source,omitempty"` // Issuing body or series (e.g., "erp", "budget")
	Year   int    `json:"year,omitempty"`   // Publication year
	Pages  []Page `json:"pages"`            // Pages in reading order
}

// Page is a single page of extracted text
type Page struct {
	Index int    `json:"index"` // 1-based page number
	Text  string `json:"text"`
}

// NumPages returns the number of pages in the document
func (d *Document) NumPages() int {
	return len(d.Pages)
}

// Chunk is an overlapping window of consecutive pages
type Chunk struct {
	ID         string `json:"chunk_id"`    // "<document_id>:p<start>-<end>"
	DocumentID string `json:"document_id"` // Owning document
	StartPage  int    `json:"start_page"`  // First page, 1-based inclusive
	EndPage    int    `json:"end_page"`    // Last page, 1-based inclusive
	Text       string `json:"text"`        // Page texts joined by blank lines
	TokenCount int    `json:"token_count"` // Estimated tokens
}

// Covers reports whether the chunk includes the given 1-based page
func (c Chunk) Covers(page int) bool {
	return page >= c.StartPage && page <= c.EndPage
}
