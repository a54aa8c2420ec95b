package taes

import (
	"encoding/json"
	"log/slog"
	"math"
	"os"

	"github.com/axprotocol/core/pkg/contracts"
)

// defaultDomainKey is the taes_weights.json row applied to domains without a
// row of their own.
const defaultDomainKey = contracts.Domain("default")

// axisWeights is one row of taes_weights.json.
type axisWeights struct {
	Logical   float64 `json:"logical"`
	Practical float64 `json:"practical"`
	Probable  float64 `json:"probable"`
}

// LoadDomainWeights overlays the built-in domain weight table with the rows
// from path. Call once at startup, before any session runs. A missing file
// keeps the built-in table; an unreadable or malformed one is logged and
// likewise keeps it, so a broken weights config degrades rather than blocks.
func LoadDomainWeights(path string, logger *slog.Logger) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		logger.Warn("taes weights unreadable, keeping built-in table", "path", path, "error", err)
		return
	}
	var rows map[string]axisWeights
	if err := json.Unmarshal(raw, &rows); err != nil {
		logger.Warn("taes weights unparseable, keeping built-in table", "path", path, "error", err)
		return
	}
	for name, w := range rows {
		sum := w.Logical + w.Practical + w.Probable
		if w.Logical < 0 || w.Practical < 0 || w.Probable < 0 || math.Abs(sum-1) > 0.01 {
			logger.Warn("taes weights row rejected", "domain", name,
				"logical", w.Logical, "practical", w.Practical, "probable", w.Probable)
			continue
		}
		domainWeights[contracts.Domain(name)] = [3]float64{w.Logical, w.Practical, w.Probable}
	}
}
