// File: internal/astcheck/astcheck.go

// Package astcheck validates that a mutation candidate still parses as a
// well-formed Go source file and extracts its import set for dependency
// resolution in the build phase.
package astcheck

import (
	"context"
	"fmt"
	"go/build"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// ParseReport describes a parsed candidate.
type ParseReport struct {
	Valid      bool
	Imports    []string
	ErrorCount int
	// FirstError locates the first ERROR node, "line:col", when Valid is false.
	FirstError string
}

// Checker wraps a tree-sitter parser for Go sources. Not safe for concurrent
// use; each circuit run owns one.
type Checker struct {
	parser *sitter.Parser
}

// New builds a Checker with the Go grammar loaded.
func New() *Checker {
	p := sitter.NewParser()
	p.SetLanguage(golang.GetLanguage())
	return &Checker{parser: p}
}

// Parse analyzes source and reports syntax validity plus the declared imports.
func (c *Checker) Parse(ctx context.Context, source string) (ParseReport, error) {
	src := []byte(source)
	tree, err := c.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return ParseReport{}, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	report := ParseReport{Valid: true}
	root := tree.RootNode()
	c.walk(root, src, &report)
	return report, nil
}

func (c *Checker) walk(node *sitter.Node, src []byte, report *ParseReport) {
	if node == nil || node.IsNull() {
		return
	}

	switch {
	case node.IsError() || node.IsMissing():
		report.ErrorCount++
		if report.Valid {
			report.Valid = false
			pt := node.StartPoint()
			report.FirstError = fmt.Sprintf("%d:%d", pt.Row+1, pt.Column+1)
		}
	case node.Type() == "import_spec":
		if path := node.ChildByFieldName("path"); path != nil {
			quoted := string(src[path.StartByte():path.EndByte()])
			if imp, err := strconv.Unquote(quoted); err == nil {
				report.Imports = append(report.Imports, imp)
			}
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		c.walk(node.Child(i), src, report)
	}
}

// UnresolvedImports returns the subset of imports that resolve neither in the
// standard library nor under the module root's vendor/GOPATH context.
func UnresolvedImports(imports []string, moduleRoot string) []string {
	var unresolved []string
	for _, imp := range imports {
		if isStdlib(imp) {
			continue
		}
		if _, err := build.Default.Import(imp, moduleRoot, build.FindOnly); err != nil {
			unresolved = append(unresolved, imp)
		}
	}
	return unresolved
}

// stdlibRoots holds the top-level packages and namespaces of the standard
// library (`go list std`, first path segments). A dotless path outside this
// set is not stdlib and must resolve like any other import.
var stdlibRoots = map[string]bool{
	"archive": true, "bufio": true, "builtin": true, "bytes": true,
	"cmp": true, "compress": true, "container": true, "context": true,
	"crypto": true, "database": true, "debug": true, "embed": true,
	"encoding": true, "errors": true, "expvar": true, "flag": true,
	"fmt": true, "go": true, "hash": true, "html": true, "image": true,
	"index": true, "io": true, "iter": true, "log": true, "maps": true,
	"math": true, "mime": true, "net": true, "os": true, "path": true,
	"plugin": true, "reflect": true, "regexp": true, "runtime": true,
	"slices": true, "sort": true, "strconv": true, "strings": true,
	"structs": true, "sync": true, "syscall": true, "testing": true,
	"text": true, "time": true, "unicode": true, "unique": true,
	"unsafe": true, "weak": true,
}

// isStdlib is a fast-path set lookup on the import's first segment.
func isStdlib(imp string) bool {
	first := imp
	if i := strings.Index(imp, "/"); i >= 0 {
		first = imp[:i]
	}
	return stdlibRoots[first]
}
