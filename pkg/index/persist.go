package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/japaniel/kotoba/pkg/entry"
)

const (
	byIDFile    = "by_id.json"
	byTextFile  = "by_text.json"
	summaryFile = "summary.json"
)

// persistLocked writes the three index files. All three are staged as
// temp files before any is renamed into place, so a crash mid-write never
// leaves a torn file and the files can only diverge from each other
// inside the narrow rename window. The caller rolls back memory if this
// fails.
func (ix *Indexes) persistLocked() error {
	if ix.dir == "" {
		return nil
	}
	if err := os.MkdirAll(ix.dir, 0o755); err != nil {
		return err
	}
	files := []struct {
		name string
		v    interface{}
	}{
		{byIDFile, ix.byID},
		{byTextFile, ix.byText},
		{summaryFile, ix.summary},
	}
	tmps := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(ix.dir, f.name)
		if err := stageJSON(path+".tmp", f.v); err != nil {
			for _, tmp := range tmps {
				os.Remove(tmp)
			}
			return fmt.Errorf("persist %s: %w", f.name, err)
		}
		tmps = append(tmps, path+".tmp")
	}
	for _, f := range files {
		path := filepath.Join(ix.dir, f.name)
		if err := os.Rename(path+".tmp", path); err != nil {
			return fmt.Errorf("persist %s: %w", f.name, err)
		}
	}
	return nil
}

func (ix *Indexes) load() error {
	if ix.dir == "" {
		return nil
	}
	if err := readJSON(filepath.Join(ix.dir, byIDFile), &ix.byID); err != nil {
		return fmt.Errorf("load id index: %w", err)
	}
	if err := readJSON(filepath.Join(ix.dir, byTextFile), &ix.byText); err != nil {
		return fmt.Errorf("load text index: %w", err)
	}
	var summary []Summary
	if err := readJSON(filepath.Join(ix.dir, summaryFile), &summary); err != nil {
		return fmt.Errorf("load summary index: %w", err)
	}
	if summary != nil {
		ix.summary = summary
	}
	if ix.byID == nil {
		ix.byID = make(map[int64]*entry.Entry)
	}
	if ix.byText == nil {
		ix.byText = make(map[string]map[entry.Type]*entry.Entry)
	}
	return nil
}

func stageJSON(tmp string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tmp, data, 0o644)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
