package model

// Tier classifies how strongly a chunk is tied to an event
type Tier string

const (
	TierOne      Tier = "TIER1"    // Verbatim canonical passage found
	TierTwo      Tier = "TIER2"    // Name, identifier, or keyword match
	TierNegative Tier = "NEGATIVE" // No event matched
)

// Mechanism names the rule that produced a match
type Mechanism string

const (
	MechanismVerbatim      Mechanism = "verbatim"
	MechanismName          Mechanism = "name"
	MechanismConjunction   Mechanism = "conjunction"
	MechanismParenthetical Mechanism = "parenthetical"
	MechanismIdentifier    Mechanism = "identifier"
	MechanismFuzzyName     Mechanism = "fuzzy_name"
	MechanismCooccurrence  Mechanism = "cooccurrence"
	MechanismNone          Mechanism = "none"
)

// ChunkEventMatch records the tier a chunk received for an event.
// NEGATIVE records are chunk-level and carry an empty EventID.
type ChunkEventMatch struct {
	ChunkID    string    `json:"chunk_id"`
	EventID    string    `json:"event_id,omitempty"`
	Tier       Tier      `json:"tier"`
	Mechanism  Mechanism `json:"mechanism"`
	Matched    string    `json:"matched,omitempty"` // Text fragment that triggered the match
	KeyDensity float64   `json:"key_density"`       // Domain keywords per token
}

// Corpus bundles the prepared chunk and match artifacts for an evaluation run
type Corpus struct {
	Events  []Event           `json:"events"`
	Chunks  []Chunk           `json:"chunks"`
	Matches []ChunkEventMatch `json:"matches"`
}

// ChunkIndex returns chunks keyed by ID
func (c *Corpus) ChunkIndex() map[string]Chunk {
	idx := make(map[string]Chunk, len(c.Chunks))
	for _, ch := range c.Chunks {
		idx[ch.ID] = ch
	}
	return idx
}

// MatchesForEvent returns the Tier 1 and Tier 2 matches of an event
func (c *Corpus) MatchesForEvent(eventID string) []ChunkEventMatch {
	var out []ChunkEventMatch
	for _, m := range c.Matches {
		if m.EventID == eventID && (m.Tier == TierOne || m.Tier == TierTwo) {
			out = append(out, m)
		}
	}
	return out
}
