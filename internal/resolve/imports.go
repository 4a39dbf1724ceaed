package resolve

import (
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/skelly-dev/graphloom/internal/refs"
)

// MaxReexportDepth bounds how many re-export hops a symbol lookup follows.
const MaxReexportDepth = 8

// Target is the file and name a symbol is finally defined under.
type Target struct {
	Path   string
	Symbol string
}

// ImportResolver maps module specifiers to files and follows re-export
// chains to the file that defines a symbol. It is safe for concurrent use.
type ImportResolver struct {
	resolver *Resolver
	root     string
	read     func(path string) ([]byte, error)

	mu    sync.Mutex
	files map[string]*moduleFile
}

type moduleFile struct {
	refs    []refs.RawReference
	content string
}

// NewImportResolver creates a resolver rooted at projectRoot. read defaults
// to os.ReadFile.
func NewImportResolver(resolver *Resolver, projectRoot string, read func(string) ([]byte, error)) *ImportResolver {
	if read == nil {
		read = os.ReadFile
	}
	return &ImportResolver{
		resolver: resolver,
		root:     projectRoot,
		read:     read,
		files:    make(map[string]*moduleFile),
	}
}

// ResolveModule returns the file a specifier imported from currentFile
// points at.
func (ir *ImportResolver) ResolveModule(spec, currentFile string) (string, bool) {
	return ir.resolver.ResolvePath(spec, currentFile, ir.root)
}

// ResolveSymbol returns where symbol, imported via spec from currentFile,
// is defined. When the chain cannot be followed further the last file
// reached is returned.
func (ir *ImportResolver) ResolveSymbol(spec, currentFile, symbol string) (Target, bool) {
	file, ok := ir.ResolveModule(spec, currentFile)
	if !ok {
		return Target{}, false
	}
	return ir.ResolveSymbolIn(file, symbol), true
}

// ResolveSymbolIn follows the re-exports of file to where symbol is
// defined, or returns file itself when the chain ends early.
func (ir *ImportResolver) ResolveSymbolIn(file, symbol string) Target {
	if symbol == "*" || symbol == "default" {
		return Target{Path: file, Symbol: symbol}
	}
	if target, found := ir.follow(file, symbol, 0, map[string]bool{}); found {
		return target
	}
	return Target{Path: file, Symbol: symbol}
}

func (ir *ImportResolver) follow(file, symbol string, depth int, visited map[string]bool) (Target, bool) {
	key := file + "#" + symbol
	if depth > MaxReexportDepth || visited[key] {
		return Target{}, false
	}
	visited[key] = true

	mod, err := ir.load(file)
	if err != nil {
		return Target{}, false
	}
	if defines(mod.content, symbol) {
		return Target{Path: file, Symbol: symbol}, true
	}

	for _, ref := range mod.refs {
		if ref.Kind != refs.KindReexport || !ref.IsLocal {
			continue
		}
		original, ok := reexported(ref, symbol)
		if !ok {
			continue
		}
		next, ok := ir.ResolveModule(ref.Source, file)
		if !ok {
			continue
		}
		if target, found := ir.follow(next, original, depth+1, visited); found {
			return target, true
		}
		return Target{Path: next, Symbol: original}, true
	}

	for _, ref := range mod.refs {
		if ref.Kind != refs.KindExportStar || !ref.IsLocal || len(ref.Aliases) > 0 {
			continue
		}
		next, ok := ir.ResolveModule(ref.Source, file)
		if !ok {
			continue
		}
		if target, found := ir.follow(next, symbol, depth+1, visited); found {
			return target, true
		}
	}
	return Target{}, false
}

func (ir *ImportResolver) load(file string) (*moduleFile, error) {
	ir.mu.Lock()
	mod, ok := ir.files[file]
	ir.mu.Unlock()
	if ok {
		return mod, nil
	}

	content, err := ir.read(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	mod = &moduleFile{refs: refs.ExtractFile(file, content), content: string(content)}

	ir.mu.Lock()
	ir.files[file] = mod
	ir.mu.Unlock()
	return mod, nil
}

// reexported returns the name a re-export statement imports for an
// exported symbol.
func reexported(ref refs.RawReference, symbol string) (string, bool) {
	if original, ok := ref.Aliases[symbol]; ok {
		return original, true
	}
	for _, name := range ref.Symbols {
		if name == symbol {
			if _, renamed := aliasTarget(ref.Aliases, name); renamed {
				continue
			}
			return name, true
		}
	}
	return "", false
}

func aliasTarget(aliases map[string]string, original string) (string, bool) {
	for exported, name := range aliases {
		if name == original {
			return exported, true
		}
	}
	return "", false
}

// defines reports whether content declares symbol at the top of a
// statement.
func defines(content, symbol string) bool {
	re, err := regexp.Compile(`(?m)^\s*(?:export\s+)?(?:default\s+)?(?:declare\s+)?(?:abstract\s+)?(?:async\s+)?(?:function\*?|class|const|let|var|interface|type|enum|def)\s+` + regexp.QuoteMeta(symbol) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(content)
}
