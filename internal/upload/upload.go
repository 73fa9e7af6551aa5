// Package upload is Upload Intake: admission control for new corpus files
// dropped into the input directory that the external indexer reads from.
package upload

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/localgraph/kg-backend/internal/apierr"
	"github.com/localgraph/kg-backend/internal/model"
)

// maxUploadBytes is the hard cap on a single uploaded file (spec.md §4.4
// validation rule 3).
const maxUploadBytes = 10 * 1024 * 1024

// allowedExtensions is the admission whitelist, checked case-insensitively.
var allowedExtensions = map[string]bool{
	".txt": true,
	".csv": true,
}

// Indexer is the subset of the Index Job Supervisor Upload Intake needs: it
// schedules indexing without importing the indexer package's full surface.
type Indexer interface {
	Start() (accepted bool, reason string)
}

// record tracks one uploaded file's lifecycle state, keyed by a
// backend-assigned ID distinct from its on-disk filename.
type record struct {
	file model.UploadedFile
}

// Intake is Upload Intake. The zero value is not usable; construct with New.
type Intake struct {
	inputDir string
	indexer  Indexer

	mu      sync.Mutex
	records map[string]*record // by ID
}

// New constructs an Intake rooted at inputDir. It does not scan the
// directory; files already present on disk before startup are not tracked
// until re-uploaded (spec.md is silent on cold-start reconciliation).
func New(inputDir string, indexer Indexer) *Intake {
	return &Intake{
		inputDir: inputDir,
		indexer:  indexer,
		records:  make(map[string]*record),
	}
}

// SetIndexer rebinds the Indexer an Intake schedules runs against. Used at
// startup to break the construction cycle between Upload Intake and the
// Index Job Supervisor: the supervisor needs the intake as its
// UploadNotifier, and the intake needs the supervisor as its Indexer.
func (in *Intake) SetIndexer(indexer Indexer) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.indexer = indexer
}

// validateFilename applies validation rules 1 and 2 (spec.md §4.4).
func validateFilename(name string) error {
	if name == "" {
		return apierr.Validationf("filename must not be empty")
	}
	if strings.ContainsAny(name, "/\\") || strings.ContainsRune(name, 0) {
		return apierr.Validationf("filename must not contain path separators or null bytes")
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] {
		return apierr.Validationf("unsupported file extension %q: allowed extensions are .txt, .csv", ext)
	}
	return nil
}

// validateSize applies validation rule 3.
func validateSize(contentLength int64) error {
	if contentLength <= 0 {
		return apierr.Validationf("content_length must be positive")
	}
	if contentLength > maxUploadBytes {
		return apierr.Validationf("content_length exceeds the %d byte limit", maxUploadBytes)
	}
	return nil
}

// Upload validates and writes a new corpus file, then schedules an
// asynchronous indexing run. The HTTP response is not expected to wait for
// that run to finish (spec.md §4.4 "Side effect").
func (in *Intake) Upload(filename string, content []byte, contentLength int64) (model.UploadedFile, error) {
	if err := validateFilename(filename); err != nil {
		return model.UploadedFile{}, err
	}
	if err := validateSize(contentLength); err != nil {
		return model.UploadedFile{}, err
	}

	targetPath := filepath.Join(in.inputDir, filename)
	finalName := filename
	if _, err := os.Stat(targetPath); err == nil {
		finalName = collisionName(filename)
		targetPath = filepath.Join(in.inputDir, finalName)
	} else if !os.IsNotExist(err) {
		return model.UploadedFile{}, apierr.Internalf(err, "failed to stat upload target")
	}

	if err := os.WriteFile(targetPath, content, 0644); err != nil {
		return model.UploadedFile{}, apierr.Internalf(err, "failed to write uploaded file")
	}

	file := model.UploadedFile{
		ID:         uuid.NewString(),
		Name:       finalName,
		Size:       contentLength,
		UploadDate: time.Now(),
		Status:     model.UploadStatusPending,
	}

	in.mu.Lock()
	in.records[file.ID] = &record{file: file}
	in.mu.Unlock()

	if accepted, reason := in.indexer.Start(); !accepted {
		slog.Info("upload stored but indexing not started", "file", finalName, "reason", reason)
	}

	return file, nil
}

// collisionName inserts a unix-timestamp suffix before the extension
// (spec.md §4.4 validation rule 4).
func collisionName(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%d%s", base, time.Now().Unix(), ext)
}

// List returns every tracked uploaded file, most recently uploaded first.
func (in *Intake) List() []model.UploadedFile {
	in.mu.Lock()
	defer in.mu.Unlock()

	out := make([]model.UploadedFile, 0, len(in.records))
	for _, r := range in.records {
		out = append(out, r.file)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadDate.After(out[j].UploadDate) })
	return out
}

// Delete removes the tracked file's on-disk copy and its record. Deleting a
// file never triggers a re-index (spec.md §9 design note): the next
// successful run simply no longer reflects it.
func (in *Intake) Delete(id string) error {
	in.mu.Lock()
	r, ok := in.records[id]
	if ok {
		delete(in.records, id)
	}
	in.mu.Unlock()

	if !ok {
		return apierr.NotFoundf("uploaded file %q not found", id)
	}

	path := filepath.Join(in.inputDir, r.file.Name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apierr.Internalf(err, "failed to delete uploaded file")
	}
	return nil
}

// OnIndexComplete implements indexer.UploadNotifier: it marks every pending
// file indexed or error according to the just-finished run's outcome.
func (in *Intake) OnIndexComplete(succeeded bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	status := model.UploadStatusIndexed
	if !succeeded {
		status = model.UploadStatusError
	}
	for _, r := range in.records {
		if r.file.Status == model.UploadStatusPending {
			r.file.Status = status
		}
	}
}
