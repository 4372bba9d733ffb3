package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/mp4chapters/pkg/mp4"
)

func main() {
	log := logger.New()

	var opts struct {
		Depth int `short:"d" long:"depth" default:"-1" description:"How many container levels to descend into (-1 for all)"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 1 {
		printUsage(os.Stderr, os.Args[0])
		os.Exit(1)
	}

	if err := printTree(os.Stdout, args[0], opts.Depth); err != nil {
		log.Err(err).Fatal("print atoms error")
	}
}

func printUsage(w io.Writer, program string) {
	fmt.Fprintf(w, "Usage: %s [--depth N] <m4b-file>\n", program)
}

// printTree prints every top-level atom of the file at path, descending into
// containers up to maxDepth levels (all of them when maxDepth is negative).
func printTree(w io.Writer, path string, maxDepth int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	c, err := mp4.NewCursor(f)
	if err != nil {
		return err
	}

	atoms, err := mp4.SiblingAtoms(c, mp4.Unbounded)
	if err != nil {
		return err
	}
	return printAtoms(w, c, atoms, 0, maxDepth)
}

func printAtoms(w io.Writer, c *mp4.Cursor, atoms []mp4.Atom, level, maxDepth int) error {
	for _, atom := range atoms {
		fmt.Fprintf(w, "%s%s offset=%d size=%d\n", strings.Repeat("  ", level), atom.TypeName(), atom.Offset, atom.Size)

		if !mp4.IsContainer(atom.Type) || (maxDepth >= 0 && level >= maxDepth) {
			continue
		}
		children, err := mp4.ChildrenOf(c, atom)
		if err != nil {
			return err
		}
		if err := printAtoms(w, c, children, level+1, maxDepth); err != nil {
			return err
		}
	}
	return nil
}
