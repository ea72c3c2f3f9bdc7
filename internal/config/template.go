package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

//go:embed default_game.cue
var defaultGameCUE []byte

// gameSchema constrains every template. Regular CUE structs are open, so
// games may carry fields the client does not know about.
const gameSchema = `
title:    string & !=""
players?: [...string]
`

// DefaultGame returns the built-in root payload for new games.
func DefaultGame() (doc.Document, error) {
	return CompileTemplate("default_game.cue", defaultGameCUE)
}

// LoadTemplate evaluates the CUE file at path into a root payload. An empty
// path selects DefaultGame.
func LoadTemplate(path string) (doc.Document, error) {
	if path == "" {
		return DefaultGame()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return CompileTemplate(path, src)
}

// CompileTemplate evaluates src, requires every field to be concrete and
// decodes the result. Reserved fields (_id, _rev, _deleted) are stripped;
// the session assigns them.
func CompileTemplate(name string, src []byte) (doc.Document, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(gameSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile game schema: %w", err)
	}

	v := ctx.CompileBytes(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile template %s: %w", name, err)
	}
	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate template %s: %w", name, err)
	}
	if k := v.IncompleteKind(); k != cue.StructKind {
		return nil, fmt.Errorf("template %s: top level must be a struct, got %v", name, k)
	}

	var fields map[string]any
	if err := v.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode template %s: %w", name, err)
	}
	d, err := doc.FromValue(fields)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	delete(d, doc.FieldID)
	delete(d, doc.FieldRev)
	delete(d, doc.FieldDeleted)
	return d, nil
}
