package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/blackwell-systems/fsauditd/internal/watcher"
)

// targetsDocument is the XML watch targets file:
//
//	<config>
//	  <directory>
//	    <path>/srv/share</path>
//	    <pattern>*.docx</pattern>
//	    <recursive>false</recursive>
//	  </directory>
//	</config>
//
// filterExclude is accepted and ignored.
type targetsDocument struct {
	XMLName     xml.Name      `xml:"config"`
	Directories []targetEntry `xml:"directory" json:"directories"`
}

type targetEntry struct {
	Path          string `xml:"path" json:"path"`
	FilterExclude string `xml:"filterExclude" json:"filterExclude,omitempty"`
	Pattern       string `xml:"pattern" json:"pattern,omitempty"`
	Recursive     string `xml:"recursive" json:"-"`
	RecursiveJSON *bool  `xml:"-" json:"recursive,omitempty"`
}

// LoadTargets reads the watch targets document at path. Files ending in .json
// are decoded as {"directories": [...]}; anything else as XML. Entries with
// an empty path are skipped. A missing or unreadable file yields
// ErrConfigUnavailable.
func LoadTargets(path string) ([]watcher.WatchTarget, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
	}

	var doc targetsDocument
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrConfigUnavailable, path, err)
		}
	} else {
		if err := xml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrConfigUnavailable, path, err)
		}
	}

	targets := make([]watcher.WatchTarget, 0, len(doc.Directories))
	for i, e := range doc.Directories {
		p := strings.TrimSpace(e.Path)
		if p == "" {
			continue
		}
		recursive := true
		switch {
		case e.RecursiveJSON != nil:
			recursive = *e.RecursiveJSON
		case strings.TrimSpace(e.Recursive) != "":
			b, err := strconv.ParseBool(strings.TrimSpace(e.Recursive))
			if err != nil {
				return nil, fmt.Errorf("%w: directory %d: recursive: %v", ErrConfigUnavailable, i+1, err)
			}
			recursive = b
		}

		isDir := looksLikeDirectory(p)
		t := watcher.WatchTarget{Path: p, IsDirectory: isDir}
		if isDir {
			t.FilePattern = strings.TrimSpace(e.Pattern)
			t.Recursive = recursive
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// looksLikeDirectory reports whether p is a directory. Paths that do not
// exist yet are treated as files when they carry an extension.
func looksLikeDirectory(p string) bool {
	if info, err := os.Stat(p); err == nil {
		return info.IsDir()
	}
	return filepath.Ext(p) == ""
}
