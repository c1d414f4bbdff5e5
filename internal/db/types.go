package db

import (
	"fmt"
	"strings"
)

// ItemKind is the closed set of item kinds stored in a symbol file or the declaration cache.
type ItemKind int

const (
	KindUnknown ItemKind = iota
	KindModule
	KindInterface
	KindProgram
	KindPackage
	KindClass
	KindTask
	KindFunction
	KindTypedef
	KindEnumerator
	KindCovergroup
	KindMacroDef
	KindMacroUndef
	KindInclude
	KindUnprocessedRegion
)

var kindNames = map[ItemKind]string{
	KindUnknown:           "unknown",
	KindModule:            "module",
	KindInterface:         "interface",
	KindProgram:           "program",
	KindPackage:           "package",
	KindClass:             "class",
	KindTask:              "task",
	KindFunction:          "function",
	KindTypedef:           "typedef",
	KindEnumerator:        "enumerator",
	KindCovergroup:        "covergroup",
	KindMacroDef:          "macro",
	KindMacroUndef:        "undef",
	KindInclude:           "include",
	KindUnprocessedRegion: "unprocessed",
}

func (k ItemKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseItemKind converts a kind name back to its ItemKind.
// Unknown names map to KindUnknown.
func ParseItemKind(s string) ItemKind {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindUnknown
}

// IsScope reports whether items of this kind contain other declarations.
func (k ItemKind) IsScope() bool {
	switch k {
	case KindModule, KindInterface, KindProgram, KindPackage, KindClass,
		KindTask, KindFunction, KindCovergroup:
		return true
	}
	return false
}

// Location identifies a position in a source file.
// FileID is the stable integer handle assigned by the owning index (0 when unassigned).
type Location struct {
	FileID int
	Path   string
	Line   int
	Pos    int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.Path, l.Line, l.Pos)
}
