package orchestration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/axprotocol/core/pkg/contracts"
)

// sessionArtifact is the opaque per-session log written under
// <logs_dir>/sessions/<session_id>.json. Not part of the trust boundary;
// exists so operators can inspect a session without replaying the ledger.
type sessionArtifact struct {
	SessionID  string                     `json:"session_id"`
	Domain     contracts.Domain           `json:"domain"`
	Objective  string                     `json:"objective"`
	ConfigHash string                     `json:"config_hash"`
	StartedAt  string                     `json:"started_at"`
	FinishedAt string                     `json:"finished_at"`
	Registry   contracts.RegistrySnapshot `json:"registry"`
	Governance contracts.GovernanceSummary `json:"governance"`
	Errors     []contracts.ChainError     `json:"errors,omitempty"`
	Redundancy map[string]float64         `json:"redundancy,omitempty"`
}

func writeSessionArtifact(dir string, art sessionArtifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sessions dir: %w", err)
	}
	art.FinishedAt = time.Now().UTC().Format(time.RFC3339)
	raw, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return fmt.Errorf("session artifact marshal: %w", err)
	}
	path := filepath.Join(dir, art.SessionID+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("session artifact write: %w", err)
	}
	return nil
}
