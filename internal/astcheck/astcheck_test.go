// internal/astcheck/astcheck_test.go
package astcheck

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	ctx := context.Background()

	t.Run("should accept a well formed file and extract imports", func(t *testing.T) {
		src := `package foo

import (
	"fmt"
	"strings"
)

func Greet(name string) string {
	return fmt.Sprintf("hello %s", strings.TrimSpace(name))
}
`
		c := New()
		report, err := c.Parse(ctx, src)
		require.NoError(t, err)
		assert.True(t, report.Valid)
		assert.Zero(t, report.ErrorCount)
		assert.Equal(t, []string{"fmt", "strings"}, report.Imports)
	})

	t.Run("should locate the first syntax error", func(t *testing.T) {
		src := "package foo\n\nfunc Broken( {\n"
		c := New()
		report, err := c.Parse(ctx, src)
		require.NoError(t, err)
		assert.False(t, report.Valid)
		assert.Greater(t, report.ErrorCount, 0)
		assert.NotEmpty(t, report.FirstError)
	})

	t.Run("should handle a single import spec", func(t *testing.T) {
		src := "package foo\n\nimport \"os\"\n\nvar _ = os.Args\n"
		c := New()
		report, err := c.Parse(ctx, src)
		require.NoError(t, err)
		assert.True(t, report.Valid)
		assert.Equal(t, []string{"os"}, report.Imports)
	})
}

func TestUnresolvedImports(t *testing.T) {
	t.Run("should pass stdlib imports without module context", func(t *testing.T) {
		unresolved := UnresolvedImports([]string{"fmt", "net/http", "encoding/json"}, t.TempDir())
		assert.Empty(t, unresolved)
	})

	t.Run("should flag a fabricated third party import", func(t *testing.T) {
		unresolved := UnresolvedImports([]string{"example.invalid/no/such/module"}, t.TempDir())
		assert.Equal(t, []string{"example.invalid/no/such/module"}, unresolved)
	})

	t.Run("should not mistake a dotless fabrication for stdlib", func(t *testing.T) {
		assert.False(t, isStdlib("notarealpkg"))
		assert.False(t, isStdlib("notarealpkg/sub"))
		assert.True(t, isStdlib("net/http"))

		unresolved := UnresolvedImports([]string{"notarealpkg", "fmt"}, t.TempDir())
		assert.Equal(t, []string{"notarealpkg"}, unresolved)
	})
}
