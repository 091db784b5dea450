package release

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gpflash/internal/common/fsutil"
	"gpflash/pkg/types"
)

// LoadDir scans dir for cached *.uf2 images and builds descriptors from their
// file names. The erase image is skipped. Source is the bare file name and
// LocalPath the absolute path. A missing directory yields an empty list.
func LoadDir(dir, eraseImage string) ([]types.Firmware, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var fw []types.Firmware
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !isImage(name) || strings.EqualFold(name, eraseImage) || strings.HasPrefix(name, ".") {
			continue
		}
		ver, board, _ := ParseAssetName(name)
		f := types.Firmware{
			Name:      displayName(name),
			Version:   ver,
			Board:     board,
			Source:    name,
			LocalPath: filepath.Join(abs, name),
		}
		if info, err := e.Info(); err == nil {
			f.Size = info.Size()
		}
		fw = append(fw, f)
	}
	sortFirmware(fw)
	return fw, nil
}
