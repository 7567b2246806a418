package pipeline

import (
	"go.uber.org/zap"

	"github.com/sells-group/judgment-cli/internal/model"
)

// Dedupe keeps the first record for each party name, in input order.
// Records without a party name are always kept. Running it twice gives the
// same result as running it once.
func Dedupe(records []model.CaseRecord) (kept []model.CaseRecord, dropped int) {
	seen := make(map[string]bool, len(records))
	kept = make([]model.CaseRecord, 0, len(records))
	for _, rec := range records {
		key, ok := rec.DedupKey()
		if ok {
			if seen[key] {
				dropped++
				continue
			}
			seen[key] = true
		}
		kept = append(kept, rec)
	}

	var pct float64
	if len(records) > 0 {
		pct = float64(dropped) / float64(len(records)) * 100
	}
	zap.L().Info("pipeline: deduplicated records",
		zap.Int("total", len(records)),
		zap.Int("kept", len(kept)),
		zap.Int("dropped", dropped),
		zap.Float64("dropped_pct", pct),
	)
	return kept, dropped
}

// FilterByClassification returns the records classified as c, in order.
func FilterByClassification(records []model.CaseRecord, c model.Classification) []model.CaseRecord {
	out := make([]model.CaseRecord, 0, len(records))
	for _, rec := range records {
		if rec.Classification == c {
			out = append(out, rec)
		}
	}
	return out
}
