package core

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Change detectors. Each answers "does the live artifact differ from the
// desired value" without mutating anything. A missing target is always
// update-needed, never an error; an unreadable target is an error for the
// item, not silent drift.

// ContentNeedsUpdate compares path's bytes against the fully rendered
// desired content.
func ContentNeedsUpdate(fsys FileSystem, path string, desired []byte) (bool, error) {
	current, err := fsys.ReadFile(path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	return !bytes.Equal(current, desired), nil
}

// LineMissing reports whether no line of path contains marker. Used by
// append-only targets: the mutation adds the marker, never rewrites the rest.
func LineMissing(fsys FileSystem, path, marker string) (bool, error) {
	current, err := fsys.ReadFile(path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	for _, line := range strings.Split(string(current), "\n") {
		if strings.Contains(line, marker) {
			return false, nil
		}
	}
	return true, nil
}

// ScalarNeedsUpdate extracts the current value of key inside a multi-key
// file (lines of the form key<sep>value, comments with # ignored) and
// compares it to desired. Mismatch or absence means update-needed.
func ScalarNeedsUpdate(fsys FileSystem, path, key, sep, desired string) (bool, error) {
	current, found, err := ScalarValue(fsys, path, key, sep)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return current != desired, nil
}

// ScalarValue parses path for the last non-comment line starting with
// key<sep> and returns its trimmed value. Last occurrence wins, matching how
// the consumers of these files resolve duplicates.
func ScalarValue(fsys FileSystem, path, key, sep string) (value string, found bool, err error) {
	data, err := fsys.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", path, err)
	}

	prefix := key + sep
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasPrefix(trimmed, prefix) {
			value = strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
			found = true
		}
	}
	return value, found, nil
}

// MissingElements returns the required elements absent from the installed
// set. Extra installed elements are never a mismatch: set detection is
// additive and never proposes removals.
func MissingElements(required []string, installed map[string]bool) []string {
	var missing []string
	for _, r := range required {
		if !installed[r] {
			missing = append(missing, r)
		}
	}
	return missing
}
