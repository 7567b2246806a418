package model

// JudgesResult is the judge-extraction payload. A nil Judges means the
// bench could not be determined.
type JudgesResult struct {
	Judges *string `json:"judges"`
}

// PartiesResult is the party-extraction payload.
type PartiesResult struct {
	PartyName *string `json:"party_name"`
}

// ClassificationResult is the classification payload. Type is one of
// "Order", "Judgment", "Oral Judgment" or "Null".
type ClassificationResult struct {
	Type string `json:"type"`
}

// Classification converts the payload label. Unknown labels never reach
// here because the schema rejects them.
func (c ClassificationResult) Classification() Classification {
	cl, ok := ParseClassification(c.Type)
	if !ok {
		return ClassificationUnclassified
	}
	return cl
}

// NoveltyResult is the novelty-scoring payload. Its three fields are
// independently optional.
type NoveltyResult struct {
	Score     *NoveltyScore `json:"score"`
	Reasons   []string      `json:"reasons"`
	AreaOfLaw *AreaOfLaw    `json:"area_of_law"`
}
