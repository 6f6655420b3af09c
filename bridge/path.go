package bridge

import (
	"fmt"
	"path/filepath"
	"strings"
)

// drivePrefix is the conventional mapping drive compatibility runtimes
// use for the host's root filesystem.
const drivePrefix = `Z:\`

// translatePath converts an absolute POSIX path into the worker's view of
// the filesystem. Compatibility runtimes conventionally mount the host
// root filesystem at Z:, so /foo/bar becomes Z:\foo\bar.
func translatePath(posixPath string) (string, error) {
	if !filepath.IsAbs(posixPath) {
		return "", fmt.Errorf("bridge: path %q is not absolute", posixPath)
	}

	var rel = strings.TrimPrefix(posixPath, "/")
	var winPath = strings.ReplaceAll(rel, "/", `\`)

	return drivePrefix + winPath, nil
}
