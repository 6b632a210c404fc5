package executor

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// fetchArchive downloads a zip archive and unpacks it into the work
// directory. The body is streamed to a transient file that is removed
// regardless of outcome. Entries that would escape the work directory
// are refused.
func (e *Executor) fetchArchive(ctx context.Context, url string) string {
	ctx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Sprintf("Failed to download zip: %s", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Sprintf("Failed to download zip: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Sprintf("Failed to download zip: %d - %s", resp.StatusCode, string(body))
	}

	tmp, err := os.CreateTemp("", "runfleet-*.zip")
	if err != nil {
		return fmt.Sprintf("Failed to download zip: %s", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Sprintf("Failed to download zip: %s", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Sprintf("Failed to download zip: %s", err)
	}

	e.logger.With("url", url).With("dir", e.workDir).Info("extracting archive")
	if err := extractZip(tmp.Name(), e.workDir); err != nil {
		return fmt.Sprintf("Failed to extract zip: %s", err)
	}
	return fmt.Sprintf("Successfully downloaded and extracted zip from %s", url)
}

func extractZip(archivePath, dst string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		// OpenReader flags non-local entry names itself; the reader may
		// still be open at that point.
		if r != nil {
			r.Close()
		}
		return err
	}
	defer r.Close()

	root, err := filepath.Abs(dst)
	if err != nil {
		return err
	}
	for _, f := range r.File {
		if err := extractEntry(f, root); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, root string) error {
	target := filepath.Join(root, filepath.FromSlash(f.Name))
	// entries must stay inside the extraction root
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return fmt.Errorf("entry %q escapes extraction directory", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	w, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer w.Close()

	_, err = io.Copy(w, rc)
	return err
}
