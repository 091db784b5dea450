package flasher

import (
	"bufio"
	"bytes"
	"strings"
)

// Program is what `picotool info` reports about the board: either no
// program (the board is blank and sitting in its bootloader) or a named one.
type Program struct {
	Name string
}

// NoProgram is the zero Program.
var NoProgram = Program{}

// Named returns a Program carrying name.
func Named(name string) Program { return Program{Name: name} }

// Present reports whether a named program was found.
func (p Program) Present() bool { return p.Name != "" }

func (p Program) String() string {
	if !p.Present() {
		return "no program"
	}
	return p.Name
}

// ParseInfo parses `key: value` lines into a map. Keys and values are
// trimmed; the first occurrence of a key wins; lines without a colon are
// skipped.
func ParseInfo(out []byte) map[string]string {
	info := make(map[string]string)
	s := bufio.NewScanner(bytes.NewReader(out))
	for s.Scan() {
		line := s.Text()
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := info[k]; dup {
			continue
		}
		info[k] = strings.TrimSpace(v)
	}
	return info
}

// programFromInfo maps parsed info output to a Program.
func programFromInfo(info map[string]string) Program {
	name := strings.TrimSpace(info["name"])
	if name == "" {
		return NoProgram
	}
	return Named(name)
}
