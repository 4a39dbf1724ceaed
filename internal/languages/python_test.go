package languages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skelly-dev/graphloom/internal/parser"
)

const configPy = `import os
from util import foo as myfoo

MAX_RETRIES = 3
_cache = {}

@dataclass
class Config(Base, metaclass=Meta):
    name: str = "x"

    @staticmethod
    def load(path: str) -> "Config":
        return Config()

    async def refresh(self):
        pass

def run():
    myfoo()
`

func TestPythonScopes(t *testing.T) {
	file, err := NewPythonParser().Parse("config.py", []byte(configPy))
	require.NoError(t, err)
	assert.Equal(t, "python", file.Language)

	retries := findScope(t, file.Scopes, "", "MAX_RETRIES")
	assert.Equal(t, parser.ScopeConstant, retries.Kind)
	assert.Equal(t, 4, retries.StartLine)

	cache := findScope(t, file.Scopes, "", "_cache")
	assert.Equal(t, parser.ScopeVariable, cache.Kind)
	assert.False(t, cache.Exported)

	config := findScope(t, file.Scopes, "", "Config")
	assert.Equal(t, parser.ScopeClass, config.Kind)
	assert.Equal(t, 7, config.StartLine)
	assert.Equal(t, []string{"@dataclass"}, config.Decorators)
	require.NotNil(t, config.Heritage)
	assert.Equal(t, []string{"Base"}, config.Heritage.Extends)

	load := findScope(t, file.Scopes, "Config", "load")
	assert.Equal(t, parser.ScopeMethod, load.Kind)
	assert.Contains(t, load.Modifiers, "static")
	assert.Equal(t, `def load(path: str) -> "Config"`, load.Signature)

	refresh := findScope(t, file.Scopes, "Config", "refresh")
	assert.Contains(t, refresh.Modifiers, "async")

	run := findScope(t, file.Scopes, "", "run")
	assert.Equal(t, parser.ScopeFunction, run.Kind)
	assert.Equal(t, 18, run.StartLine)
	assert.Equal(t, 19, run.EndLine)

	for _, s := range file.Scopes {
		assert.NotEqual(t, "name", s.Name, "class attributes are not module bindings")
	}
}
