package languages

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skelly-dev/graphloom/internal/parser"
)

const shapesTS = `import { Base } from './base'

export interface Shape extends Named {
  area(): number
}

export abstract class Square extends Base implements Shape {
  static create(size: number): Square {
    return new Square(size)
  }

  area = (): number => this.size * this.size
}

export const DEFAULT_SIZE = 4
export const makeSquare = async (size: number) => Square.create(size)
let counter = 0

function helper<T>(value: T): T {
  return value
}

type Id = string
enum Color { Red, Green }
`

func findScope(t *testing.T, scopes []parser.Scope, parent, name string) parser.Scope {
	t.Helper()
	for _, s := range scopes {
		if s.Name == name && s.ParentName == parent {
			return s
		}
	}
	require.Failf(t, "scope not found", "%s.%s", parent, name)
	return parser.Scope{}
}

func TestTypeScriptScopes(t *testing.T) {
	file, err := NewTypeScriptParser().Parse("shapes.ts", []byte(shapesTS))
	require.NoError(t, err)
	assert.Equal(t, "typescript", file.Language)

	shape := findScope(t, file.Scopes, "", "Shape")
	assert.Equal(t, parser.ScopeInterface, shape.Kind)
	assert.True(t, shape.Exported)
	require.NotNil(t, shape.Heritage)
	assert.Equal(t, []string{"Named"}, shape.Heritage.Extends)

	square := findScope(t, file.Scopes, "", "Square")
	assert.Equal(t, parser.ScopeClass, square.Kind)
	assert.Equal(t, 7, square.StartLine)
	assert.Equal(t, 13, square.EndLine)
	assert.Contains(t, square.Modifiers, "abstract")
	require.NotNil(t, square.Heritage)
	assert.Equal(t, []string{"Base"}, square.Heritage.Extends)
	assert.Equal(t, []string{"Shape"}, square.Heritage.Implements)

	create := findScope(t, file.Scopes, "Square", "create")
	assert.Equal(t, parser.ScopeMethod, create.Kind)
	assert.Contains(t, create.Modifiers, "static")
	assert.Equal(t, "create(size: number): Square", create.Signature)

	area := findScope(t, file.Scopes, "Square", "area")
	assert.Equal(t, parser.ScopeMethod, area.Kind)

	size := findScope(t, file.Scopes, "", "DEFAULT_SIZE")
	assert.Equal(t, parser.ScopeConstant, size.Kind)
	assert.True(t, size.Exported)

	makeSquare := findScope(t, file.Scopes, "", "makeSquare")
	assert.Equal(t, parser.ScopeFunction, makeSquare.Kind)
	assert.Contains(t, makeSquare.Modifiers, "async")

	counter := findScope(t, file.Scopes, "", "counter")
	assert.Equal(t, parser.ScopeVariable, counter.Kind)
	assert.False(t, counter.Exported)

	helper := findScope(t, file.Scopes, "", "helper")
	assert.Equal(t, "function helper<T>(value: T): T", helper.Signature)
	assert.Equal(t, []string{"T"}, helper.Generics)
	assert.Equal(t, []string{"value: T"}, helper.Parameters)
	assert.Equal(t, "function helper<T>(value: T): T {\n  return value\n}", helper.Content)

	assert.Equal(t, parser.ScopeTypeAlias, findScope(t, file.Scopes, "", "Id").Kind)
	assert.Equal(t, parser.ScopeEnum, findScope(t, file.Scopes, "", "Color").Kind)
}

func TestTypeScriptSignaturesNormalizeReturnType(t *testing.T) {
	file, err := NewTypeScriptParser().Parse("main.ts", []byte(`function f(a:number): string { return ""; }
class Box {
  value(): Promise<string> { return Promise.resolve(""); }
}
`))
	require.NoError(t, err)

	assert.Equal(t, "function f(a:number): string", findScope(t, file.Scopes, "", "f").Signature)
	assert.Equal(t, "value(): Promise<string>", findScope(t, file.Scopes, "Box", "value").Signature)
}

func TestJavaScriptClassHeritage(t *testing.T) {
	file, err := NewTypeScriptParser().Parse("a.js", []byte("class A extends B {\n  run() {}\n}\n"))
	require.NoError(t, err)
	assert.Equal(t, "javascript", file.Language)

	a := findScope(t, file.Scopes, "", "A")
	require.NotNil(t, a.Heritage)
	assert.Equal(t, []string{"B"}, a.Heritage.Extends)
	assert.Empty(t, a.Heritage.Implements)
	findScope(t, file.Scopes, "A", "run")
}

func TestTypeScriptParserIsSafeForConcurrentUse(t *testing.T) {
	p := NewTypeScriptParser()
	var wg sync.WaitGroup
	errs := make([]error, 8)
	counts := make([]int, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			file, err := p.Parse("shapes.ts", []byte(shapesTS))
			errs[i] = err
			if err == nil {
				counts[i] = len(file.Scopes)
			}
		}(i)
	}
	wg.Wait()
	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, counts[0], counts[i])
	}
}
