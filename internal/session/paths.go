package session

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

// ProjectPaths is the persisted state layout for one workspace, rooted at
// <workspace>/.sidekick/projects/<project_id>/.
type ProjectPaths struct {
	ProjectID          string
	Root               string
	Logs               string
	AppLog             string
	AuditLog           string
	TraceLog           string
	Sessions           string
	CacheDir           string
	VectorDB           string
	Registry           string
	Approvals          string
	PromptVersionsFile string
}

// ProjectID derives a stable short id from the workspace path.
func ProjectID(workspaceRoot string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(workspaceRoot)))
	return hex.EncodeToString(sum[:])[:12]
}

// NewProjectPaths computes the layout and creates the directories.
func NewProjectPaths(workspaceRoot string) (*ProjectPaths, error) {
	id := ProjectID(workspaceRoot)
	root := filepath.Join(workspaceRoot, ".sidekick", "projects", id)
	p := &ProjectPaths{
		ProjectID:          id,
		Root:               root,
		Logs:               filepath.Join(root, "logs"),
		AppLog:             filepath.Join(root, "logs", "app.log"),
		AuditLog:           filepath.Join(root, "logs", "audit.jsonl"),
		TraceLog:           filepath.Join(root, "logs", "trace.jsonl"),
		Sessions:           filepath.Join(root, "sessions"),
		CacheDir:           filepath.Join(root, "cache", "markdown"),
		VectorDB:           filepath.Join(root, "vector_db"),
		Registry:           filepath.Join(root, "registry"),
		Approvals:          filepath.Join(root, "approvals"),
		PromptVersionsFile: filepath.Join(root, "prompt_versions.json"),
	}
	for _, dir := range []string{p.Logs, p.Sessions, p.CacheDir, p.VectorDB, p.Registry, p.Approvals} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// SessionFile is the snapshot path for a session id.
func (p *ProjectPaths) SessionFile(sessionID string) string {
	return filepath.Join(p.Sessions, sessionID+".json")
}

// JournalFile is the patch journal path for a session id.
func (p *ProjectPaths) JournalFile(sessionID string) string {
	return filepath.Join(p.Sessions, sessionID+".journal.jsonl")
}
