package release

import (
	"strings"

	version "github.com/hashicorp/go-version"
)

const imageExt = ".uf2"

// ParseAssetName splits an asset file name of the form
// GP2040-CE_<version>_<board>.uf2 into its version and board. Boards may
// themselves contain underscores. ok is false when the version segment is
// not a valid version.
func ParseAssetName(name string) (ver, board string, ok bool) {
	base := displayName(name)
	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 2 {
		return "", "", false
	}
	v, err := version.NewVersion(parts[1])
	if err != nil {
		return "", "", false
	}
	if len(parts) == 3 {
		board = parts[2]
	}
	return v.Original(), board, true
}

// isImage reports whether name is a flashable image file name.
func isImage(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), imageExt)
}

// displayName is the asset name without its extension.
func displayName(name string) string {
	if isImage(name) {
		return name[:len(name)-len(imageExt)]
	}
	return name
}
