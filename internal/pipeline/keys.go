package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/shockeval/internal/chunk"
	"github.com/ppiankov/shockeval/internal/model"
	"github.com/ppiankov/shockeval/internal/store"
)

// ChunkKey addresses the chunks of one document under given parameters
func ChunkKey(documentID string, p chunk.Params) string {
	return store.Key("chunks", documentID, p.WindowSize, p.Overlap, p.MaxTokens)
}

// MatchKey addresses a match report. It changes when any input chunk set,
// the event table or the matcher configuration changes.
func MatchKey(chunkKeys []string, events []model.Event, cfg model.MatchingConfig) string {
	keys := append([]string(nil), chunkKeys...)
	sort.Strings(keys)
	cfg.Workers = 0
	return store.Key("matches", strings.Join(keys, ","), digest(events), digest(cfg))
}

// PredictionKey addresses a LOOCV run by codebook, seed and fold set
func PredictionKey(codebookHash string, seed uint64, folds []string) string {
	f := append([]string(nil), folds...)
	sort.Strings(f)
	return store.Key("predictions", codebookHash, seed, strings.Join(f, ","))
}

func digest(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
