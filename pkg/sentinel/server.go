package sentinel

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/axprotocol/core/pkg/config"
	"github.com/axprotocol/core/pkg/contracts"
)

// maxListedReports bounds the /reports listing.
const maxListedReports = 30

// Server exposes the verifier over HTTP. It holds no kernel state: the
// ledger directory is its only input, the reports directory its only output.
type Server struct {
	LedgerPath string
	ReportsDir string
	Logger     *slog.Logger
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /verify", s.handleVerify)
	mux.HandleFunc("GET /reports", s.handleReports)
	mux.HandleFunc("GET /domains", s.handleDomains)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"ledger_path":  s.LedgerPath,
		"reports_path": s.ReportsDir,
		"version":      config.ProtocolVersion,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := Verify(s.LedgerPath)
	if err != nil {
		s.Logger.Error("verification failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if path, err := s.persistReport(report); err != nil {
		s.Logger.Warn("report persist failed", "error", err)
	} else {
		s.Logger.Info("verification report written", "path", path, "verified", report.Verified, "details", len(report.Details))
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.ReportsDir)
	if err != nil && !os.IsNotExist(err) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "verify_") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	// The timestamp in the name sorts lexicographically; newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if len(names) > maxListedReports {
		names = names[:maxListedReports]
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": names})
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"domains": contracts.Domains})
}

func (s *Server) persistReport(report *Report) (string, error) {
	if err := os.MkdirAll(s.ReportsDir, 0o755); err != nil {
		return "", err
	}
	name := "verify_" + time.Now().UTC().Format("20060102T150405Z") + ".json"
	path := filepath.Join(s.ReportsDir, name)
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
