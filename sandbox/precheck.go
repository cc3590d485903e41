package sandbox

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/nexorch/toolorch/registry"
)

// syntaxError marks a pre-check failure that is a malformed submission
// rather than a capability violation. It classifies as a syntax fault, not
// a security one.
type syntaxError struct {
	reason string
}

func (e *syntaxError) Error() string {
	return "syntax error: " + e.reason
}

// precheck statically analyzes a tool's logic against the policy before
// any worker is spawned. It returns *SecurityError for capability
// violations and *syntaxError for unparsable Go source.
func (p Policy) precheck(d registry.Descriptor) error {
	switch d.EffectiveKind() {
	case registry.KindHandler:
		// Native handlers are trusted registrations; there is no source
		// to analyze.
		return nil
	case registry.KindCommand:
		return p.checkCommand(d.Name, d.Command)
	case registry.KindScript:
		if err := p.checkCommand(d.Name, []string{d.Script.Interpreter}); err != nil {
			return err
		}
		if strings.EqualFold(d.Script.Language, "go") {
			return p.checkGoSource(d.Name, d.Script.Source)
		}
		return p.checkScriptSource(d.Name, d.Script.Source)
	}
	return &SecurityError{Tool: d.Name, Reason: fmt.Sprintf("unknown logic kind %q", d.Kind)}
}

// checkCommand validates the program against the command allow-list.
func (p Policy) checkCommand(tool string, argv []string) error {
	if len(argv) == 0 || argv[0] == "" {
		return &SecurityError{Tool: tool, Reason: "empty command"}
	}
	program := argv[0]
	if strings.ContainsAny(program, "/\\") {
		return &SecurityError{Tool: tool, Reason: fmt.Sprintf("command path %q not allowed, use a bare allow-listed program name", program)}
	}
	if !p.allowsCommand(program) {
		return &SecurityError{Tool: tool, Reason: fmt.Sprintf("command %q is not allow-listed", program)}
	}
	return nil
}

// deniedGoSelectors are call targets rejected in Go sources even when
// their package slipped onto an allow-list. This is a deny-list, not
// taint tracking; it cannot catch aliased or indirect access.
var deniedGoSelectors = map[string]string{
	"exec":    "process execution",
	"syscall": "raw system calls",
	"plugin":  "dynamic code loading",
	"unsafe":  "unsafe memory access",
}

// checkGoSource parses src as a Go file and walks the syntax tree for
// disallowed imports and denied call targets.
func (p Policy) checkGoSource(tool, src string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, tool+".go", src, 0)
	if err != nil {
		return &syntaxError{reason: err.Error()}
	}

	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			path = imp.Path.Value
		}
		if !p.allowsImport(path) {
			return &SecurityError{Tool: tool, Reason: fmt.Sprintf("import of disallowed package %q", path)}
		}
	}

	var violation *SecurityError
	ast.Inspect(file, func(n ast.Node) bool {
		if violation != nil {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		ident, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		if why, denied := deniedGoSelectors[ident.Name]; denied {
			violation = &SecurityError{
				Tool:   tool,
				Reason: fmt.Sprintf("call to %s.%s is not allowed (%s)", ident.Name, sel.Sel.Name, why),
			}
			return false
		}
		return true
	})
	if violation != nil {
		return violation
	}
	return nil
}

// checkScriptSource scans non-Go script source token-wise: import and
// require statements must name allow-listed modules, and denied tokens
// reject the source outright.
func (p Policy) checkScriptSource(tool, src string) error {
	lower := strings.ToLower(src)
	for _, tok := range p.DeniedTokens {
		if strings.Contains(lower, strings.ToLower(tok)) {
			return &SecurityError{Tool: tool, Reason: fmt.Sprintf("use of %q is not allowed", strings.TrimSuffix(tok, "("))}
		}
	}

	for _, line := range strings.Split(src, "\n") {
		module := importedModule(line)
		if module == "" {
			continue
		}
		// Submodule imports are matched on their root module.
		root := module
		if i := strings.IndexAny(root, "./"); i > 0 {
			root = root[:i]
		}
		if !p.allowsImport(module) && !p.allowsImport(root) {
			return &SecurityError{Tool: tool, Reason: fmt.Sprintf("import of disallowed module %q", module)}
		}
	}
	return nil
}

// importedModule extracts the module name from an import/require line,
// returning "" for lines that import nothing.
func importedModule(line string) string {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, "import "):
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "import "))
		// "import x as y" and "import x, z" resolve to the first module.
		for _, sep := range []string{" as ", ","} {
			if i := strings.Index(rest, sep); i >= 0 {
				rest = rest[:i]
			}
		}
		return strings.TrimSpace(rest)
	case strings.HasPrefix(trimmed, "from "):
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "from "))
		if i := strings.Index(rest, " "); i >= 0 {
			rest = rest[:i]
		}
		return rest
	case strings.Contains(trimmed, "require("):
		start := strings.Index(trimmed, "require(")
		rest := trimmed[start+len("require("):]
		rest = strings.Trim(rest, `'")`+"`")
		if i := strings.IndexAny(rest, `'")`); i >= 0 {
			rest = rest[:i]
		}
		return rest
	}
	return ""
}
