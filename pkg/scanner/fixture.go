package scanner

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// folderFixture is the YAML shape accepted by LoadStatic.
type folderFixture struct {
	Folders []struct {
		Path      string `yaml:"path"`
		Owner     string `yaml:"owner"`
		Group     string `yaml:"group"`
		Protected bool   `yaml:"protected"`
		NoDACL    bool   `yaml:"no_dacl"`
		ModTime   string `yaml:"mod_time"` // RFC 3339, optional
		Denied    bool   `yaml:"denied"`
		ACEs      []struct {
			SID       string `yaml:"sid"`
			Deny      bool   `yaml:"deny"`
			Inherited bool   `yaml:"inherited"`
			Mask      uint32 `yaml:"mask"`
		} `yaml:"aces"`
	} `yaml:"folders"`
}

// LoadStatic reads a YAML folder fixture and returns a populated static
// source. Used by demo deployments and one-shot CLI scans where no platform
// security API is available.
//
// Fixture format:
//
//	folders:
//	  - path: C:\Shares\Finance
//	    owner: S-1-5-21-1-2-3-500
//	    mod_time: 2026-08-01T09:00:00Z
//	    aces:
//	      - sid: S-1-5-21-1-2-3-1000
//	        mask: 0x001F01FF
func LoadStatic(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder fixture: %w", err)
	}

	var f folderFixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse folder fixture: %w", err)
	}

	s := NewStatic()
	for _, folder := range f.Folders {
		if folder.Path == "" {
			return nil, fmt.Errorf("fixture folder without a path")
		}
		if folder.Denied {
			s.DenyFolder(folder.Path)
			continue
		}

		var modTime time.Time
		if folder.ModTime != "" {
			modTime, err = time.Parse(time.RFC3339, folder.ModTime)
			if err != nil {
				return nil, fmt.Errorf("fixture folder %q has invalid mod_time: %w", folder.Path, err)
			}
		}

		d := &Descriptor{
			OwnerSID:    folder.Owner,
			GroupSID:    folder.Group,
			DACLPresent: !folder.NoDACL,
			Protected:   folder.Protected,
		}
		for _, a := range folder.ACEs {
			d.ACEs = append(d.ACEs, RawACE{
				SID:       a.SID,
				Deny:      a.Deny,
				Inherited: a.Inherited,
				Mask:      a.Mask,
			})
		}
		if err := s.AddFolder(folder.Path, d, modTime); err != nil {
			return nil, fmt.Errorf("fixture folder %q: %w", folder.Path, err)
		}
	}
	return s, nil
}
