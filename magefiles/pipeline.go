//go:build mage

package main

import (
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Pipeline groups targets that operate on the vault.
type Pipeline mg.Namespace

// Run processes the whole vault: articles, tag consolidation, tags.
func (Pipeline) Run() error {
	return sh.RunV(binary(), "run")
}

// Articles runs only the article stages.
func (Pipeline) Articles() error {
	return sh.RunV(binary(), "articles")
}

// Tags runs only tag consolidation and the tag stages.
func (Pipeline) Tags() error {
	return sh.RunV(binary(), "tags")
}

// Import imports the Markdown files in $PAPERS (default papers/).
func (Pipeline) Import() error {
	dir := os.Getenv("PAPERS")
	if dir == "" {
		dir = "papers"
	}
	return sh.RunV(binary(), "import", dir)
}

// Status lists vault articles and tags.
func (Pipeline) Status() error {
	return sh.RunV(binary(), "status")
}

// Run is the top-level shortcut for pipeline:run.
func Run() error {
	return Pipeline{}.Run()
}

// Index refreshes the SQLite catalog and writes the YAML export.
func Index() error {
	mg.Deps(Init)
	return sh.RunV(binary(), "index")
}
