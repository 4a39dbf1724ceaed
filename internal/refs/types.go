// Package refs extracts raw references from file content.
//
// Extraction is pure and never fails: malformed or unsupported content
// yields an empty or partial list.
package refs

import (
	"path/filepath"
	"strings"
)

// RefType classifies what a reference points at.
type RefType string

const (
	TypeCode       RefType = "code"
	TypeAsset      RefType = "asset"
	TypeDocument   RefType = "document"
	TypeStylesheet RefType = "stylesheet"
	TypeData       RefType = "data"
	TypeExternal   RefType = "external"
	TypeURL        RefType = "url"
)

// ImportKind is the statement form a code reference came from.
type ImportKind string

const (
	KindImport     ImportKind = "import"
	KindDynamic    ImportKind = "dynamic"
	KindRequire    ImportKind = "require"
	KindReexport   ImportKind = "reexport"
	KindExportStar ImportKind = "export-star"
	KindSideEffect ImportKind = "side-effect"
	KindLink       ImportKind = "link"
	KindMention    ImportKind = "mention"
)

// RawReference is one reference found in a file, before resolution.
type RawReference struct {
	Source  string
	Symbols []string
	// Aliases maps a local name to the imported name when they differ.
	Aliases    map[string]string
	Type       RefType
	Kind       ImportKind
	Line       int // 0 when unknown
	IsLocal    bool
	Confidence float64 // 0 when unset
	Context    string
	URL        string
}

// IsMention reports whether the reference came from loose prose rather
// than import or link syntax.
func (r RawReference) IsMention() bool {
	return r.Kind == KindMention
}

// ImportedName maps a local symbol name back to the name exported by the
// target module.
func (r RawReference) ImportedName(local string) string {
	if name, ok := r.Aliases[local]; ok {
		return name
	}
	return local
}

// Format selects the extractor for a file.
type Format int

const (
	FormatText Format = iota
	FormatCode
	FormatPython
	FormatMarkdown
	FormatCSS
	FormatHTML
	FormatEmbedded
	FormatBinary
)

func (f Format) String() string {
	switch f {
	case FormatCode:
		return "code"
	case FormatPython:
		return "python"
	case FormatMarkdown:
		return "markdown"
	case FormatCSS:
		return "css"
	case FormatHTML:
		return "html"
	case FormatEmbedded:
		return "embedded"
	case FormatBinary:
		return "binary"
	default:
		return "text"
	}
}

var formatByExt = map[string]Format{
	".ts": FormatCode, ".tsx": FormatCode, ".js": FormatCode, ".jsx": FormatCode,
	".mjs": FormatCode, ".cjs": FormatCode, ".mts": FormatCode, ".cts": FormatCode,
	".py": FormatPython, ".pyi": FormatPython,
	".md": FormatMarkdown, ".mdx": FormatMarkdown, ".markdown": FormatMarkdown,
	".css": FormatCSS, ".scss": FormatCSS, ".sass": FormatCSS, ".less": FormatCSS,
	".html": FormatHTML, ".htm": FormatHTML,
	".vue": FormatEmbedded, ".svelte": FormatEmbedded, ".astro": FormatEmbedded,
	".png": FormatBinary, ".jpg": FormatBinary, ".jpeg": FormatBinary, ".gif": FormatBinary,
	".webp": FormatBinary, ".ico": FormatBinary, ".bmp": FormatBinary, ".mp3": FormatBinary,
	".mp4": FormatBinary, ".wav": FormatBinary, ".webm": FormatBinary, ".mov": FormatBinary,
	".pdf": FormatBinary, ".zip": FormatBinary, ".gz": FormatBinary, ".woff": FormatBinary,
	".woff2": FormatBinary, ".ttf": FormatBinary, ".otf": FormatBinary, ".docx": FormatBinary,
	".xlsx": FormatBinary, ".pptx": FormatBinary, ".wasm": FormatBinary,
}

// Classify returns the format of a file from its name.
func Classify(path string) Format {
	if f, ok := formatByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return FormatText
}

// TypeForExtension maps a file extension to the reference type a link to it
// carries.
func TypeForExtension(ext string) RefType {
	switch strings.ToLower(ext) {
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".bmp",
		".mp3", ".mp4", ".wav", ".webm", ".mov", ".woff", ".woff2", ".ttf", ".otf":
		return TypeAsset
	case ".md", ".mdx", ".markdown", ".txt", ".rst", ".pdf", ".docx", ".html", ".htm":
		return TypeDocument
	case ".css", ".scss", ".sass", ".less":
		return TypeStylesheet
	case ".json", ".yaml", ".yml", ".toml", ".csv", ".xml", ".xlsx", ".tsv":
		return TypeData
	default:
		return TypeCode
	}
}
