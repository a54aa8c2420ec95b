package taes

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/axprotocol/core/pkg/contracts"
)

// IRD log rotation: rotate past maxLogBytes, keep maxGenerations rotated
// files (ird_log.csv.1 is the newest generation).
const (
	maxLogBytes    = 10 << 20
	maxGenerations = 5
)

var irdHeader = []string{
	"timestamp", "session_id", "role",
	"logical", "practical", "probable",
	"iv", "ird", "verdict",
}

// IRDLog is the append-only CSV trail of TAES evaluations.
type IRDLog struct {
	mu   sync.Mutex
	path string
}

// NewIRDLog opens (or lazily creates) the IRD log at path.
func NewIRDLog(path string) *IRDLog {
	return &IRDLog{path: path}
}

// Append writes one evaluation row, rotating first if the file is over the
// size threshold.
func (l *IRDLog) Append(sessionID string, rec contracts.TAESRecord, verdict string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateIfNeeded(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("ird log dir: %w", err)
	}

	_, statErr := os.Stat(l.path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ird log open: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(irdHeader); err != nil {
			return fmt.Errorf("ird log header: %w", err)
		}
	}
	row := []string{
		time.Now().UTC().Format(time.RFC3339),
		sessionID,
		string(rec.Role),
		formatScore(rec.Logical),
		formatScore(rec.Practical),
		formatScore(rec.Probable),
		formatScore(rec.IV),
		formatScore(rec.IRD),
		verdict,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("ird log write: %w", err)
	}
	w.Flush()
	return w.Error()
}

func (l *IRDLog) rotateIfNeeded() error {
	info, err := os.Stat(l.path)
	if err != nil || info.Size() < maxLogBytes {
		return nil
	}
	// Shift generations upward, dropping the oldest.
	oldest := fmt.Sprintf("%s.%d", l.path, maxGenerations)
	_ = os.Remove(oldest)
	for gen := maxGenerations - 1; gen >= 1; gen-- {
		from := fmt.Sprintf("%s.%d", l.path, gen)
		to := fmt.Sprintf("%s.%d", l.path, gen+1)
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, to); err != nil {
				return fmt.Errorf("ird log rotate %s: %w", from, err)
			}
		}
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return fmt.Errorf("ird log rotate: %w", err)
	}
	return nil
}

// CheckDisalignment averages IRD over the last 20 rows. A sustained average
// above the threshold means the chain keeps producing plans that grade well
// logically and keep failing the reality axis.
func (l *IRDLog) CheckDisalignment(threshold float64) contracts.DisalignmentAlert {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return contracts.DisalignmentAlert{}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil || len(records) < 2 {
		return contracts.DisalignmentAlert{}
	}

	rows := records[1:]
	if len(rows) > 20 {
		rows = rows[len(rows)-20:]
	}
	sum := 0.0
	n := 0
	for _, row := range rows {
		if len(row) < 8 {
			continue
		}
		ird, perr := strconv.ParseFloat(row[7], 64)
		if perr != nil {
			continue
		}
		sum += ird
		n++
	}
	if n == 0 {
		return contracts.DisalignmentAlert{}
	}
	avg := sum / float64(n)
	if avg > threshold {
		return contracts.DisalignmentAlert{
			Alert:  true,
			AvgIRD: round3(avg),
			Reason: fmt.Sprintf("High Reality Gap detected (Avg IRD: %.2f). Agents may be hallucinating feasibility.", avg),
		}
	}
	return contracts.DisalignmentAlert{AvgIRD: round3(avg)}
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
