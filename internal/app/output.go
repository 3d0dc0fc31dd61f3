package service

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/listenproof/internal/domain/types"
)

// ResultsFile is the name of the proof document in the output directory.
const ResultsFile = "results.json"

// resultsMode keeps the document readable by the host after the run exits.
const resultsMode os.FileMode = 0o644

// WriteResults writes doc to dir/results.json. The document is written to a
// temporary file and renamed so readers never see a partial proof.
func WriteResults(dir string, doc types.ProofDocument) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode proof: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".results-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp results: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write results: %w", err)
	}
	if err := tmp.Chmod(resultsMode); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("chmod results: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("sync results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close results: %w", err)
	}

	path := filepath.Join(dir, ResultsFile)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publish results: %w", err)
	}
	return path, nil
}
