package ingest

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// processableExtensions are the file types worth sending through the
// pipeline; everything else in a directory is skipped silently.
var processableExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
	".pdf":  true,
}

// DirectoryAdapter reads every processable file directly under a local
// directory. Used by the batch CLI; subdirectories are not descended into.
type DirectoryAdapter struct {
	Dir string
	// OriginalInfo overrides the source tag; defaults to "upload".
	OriginalInfo string
}

func (d *DirectoryAdapter) Documents() ([]Document, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", d.Dir, err)
	}

	info := d.OriginalInfo
	if info == "" {
		info = "upload"
	}

	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !processableExtensions[ext] {
			continue
		}
		body, err := os.ReadFile(filepath.Join(d.Dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		docs = append(docs, Document{
			Filename:     entry.Name(),
			Bytes:        body,
			ContentType:  mime.TypeByExtension(ext),
			OriginalInfo: info,
		})
	}
	return docs, nil
}
