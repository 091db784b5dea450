package orchestrator

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"time"

	"gpflash/internal/common/fsutil"
	"gpflash/pkg/types"
)

type selectionRecord struct {
	Name      string `json:"name"`
	Source    string `json:"source"`
	SavedUnix int64  `json:"saved_unix"`
}

func (o *Orchestrator) loadLastSelection() {
	if o.statePath == "" {
		return
	}
	f, err := os.Open(o.statePath)
	if err != nil {
		return
	}
	defer f.Close()
	var rec selectionRecord
	if err := json.NewDecoder(f).Decode(&rec); err == nil {
		o.last = rec
	}
}

func (o *Orchestrator) saveLastSelection(fw types.Firmware) {
	if o.statePath == "" {
		return
	}
	o.last = selectionRecord{Name: fw.Name, Source: fw.Source, SavedUnix: time.Now().Unix()}
	b, err := json.MarshalIndent(o.last, "", "  ")
	if err != nil {
		return
	}
	if _, err := fsutil.WriteFileAtomic(o.statePath, bytes.NewReader(b)); err != nil {
		o.log.Warn().Err(err).Str("path", o.statePath).Msg("could not remember selection")
	}
}

// indexOf finds name among fw by display name or file name.
func indexOf(fw []types.Firmware, name string) int {
	if name == "" {
		return -1
	}
	for i, f := range fw {
		if strings.EqualFold(f.Name, name) || strings.EqualFold(f.FileName(), name) {
			return i
		}
	}
	return -1
}
