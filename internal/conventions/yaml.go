package conventions

import (
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"

	domainerrors "github.com/foldkeeper/foldkeeper/internal/errors"
)

// ExportYAML writes the store snapshot as YAML.
func (s *Store) ExportYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w, yaml.Indent(2), yaml.IndentSequence(true))
	if err := enc.Encode(s.Snapshot()); err != nil {
		return fmt.Errorf("encode conventions: %w", err)
	}
	return enc.Close()
}

// ImportYAML reads a snapshot written by ExportYAML. With replace the store
// contents and settings are swapped for the document as a restore; otherwise
// conventions whose path is not registered yet are added with auto-apply
// off and existing ones are kept. It returns the number of conventions added.
func (s *Store) ImportYAML(r io.Reader, replace bool) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read conventions: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return 0, domainerrors.Validation("empty conventions document")
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeValidation, "decode conventions")
	}
	if snap.Version > SnapshotVersion {
		return 0, domainerrors.Validationf("unsupported conventions version %d", snap.Version)
	}

	for _, c := range snap.Conventions {
		if c == nil {
			continue
		}
		c.Path = normalize(c.Path)
		if err := s.validator.Validate(c); err != nil {
			return 0, fmt.Errorf("convention %q: %w", c.Path, err)
		}
	}

	if replace {
		s.Restore(&snap)
		return s.Len(), nil
	}

	added := 0
	for _, c := range snap.Conventions {
		if c == nil {
			continue
		}
		// A merged convention is new to this store and must be opted in.
		c.AutoApply = false
		if err := s.Add(c); err != nil {
			if domainerrors.Is(err, domainerrors.ErrAlreadyExists) {
				continue
			}
			return added, err
		}
		added++
	}
	return added, nil
}
