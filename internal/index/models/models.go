package models

// Record is one vector with its chunk metadata as stored by a backend.
// Seq is the insertion sequence within the namespace and breaks score
// ties (earlier-inserted wins).
type Record struct {
	ID        string
	Seq       int
	Vector    []float32
	Text      string
	SourceURL string
	Entity    string
	Section   string
	Category  string
}

// Match is one retrieval result, ranked by descending similarity.
type Match struct {
	Text      string
	Score     float32
	SourceURL string
	Entity    string
}
