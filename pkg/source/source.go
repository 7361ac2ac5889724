/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: source.go
Description: Input acquisition for the parser. Reads documents from files or stdin and
optionally reduces HTML documents to the text of the elements matching a CSS selector.
*/

package source

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kleascm/akaylee-parser/pkg/core"
	"github.com/spf13/afero"
)

// Stdin is the path that selects standard input
const Stdin = "-"

// Reader loads parser inputs
type Reader struct {
	Fs    afero.Fs
	Stdin io.Reader
	// Selector, when set, treats every document as HTML and keeps the text
	// of the matching elements, one element per line.
	Selector string
}

// NewReader returns a Reader on the OS filesystem and process stdin
func NewReader(selector string) *Reader {
	return &Reader{Fs: afero.NewOsFs(), Stdin: os.Stdin, Selector: selector}
}

// Read loads one document. Path "-" reads standard input.
func (r *Reader) Read(path string) (core.Input, error) {
	var (
		data []byte
		err  error
		name = path
	)
	if path == Stdin {
		name = "<stdin>"
		data, err = io.ReadAll(r.Stdin)
	} else {
		data, err = afero.ReadFile(r.Fs, path)
	}
	if err != nil {
		return core.Input{}, fmt.Errorf("failed to read %s: %w", name, err)
	}

	if r.Selector != "" {
		text, err := ExtractText(data, r.Selector)
		if err != nil {
			return core.Input{}, fmt.Errorf("%s: %w", name, err)
		}
		data = []byte(text)
	}
	return core.Input{Name: name, Data: data}, nil
}

// ReadAll loads every path in order. Directories contribute their regular
// files, sorted by name.
func (r *Reader) ReadAll(paths []string) ([]core.Input, error) {
	var inputs []core.Input
	for _, p := range paths {
		if p != Stdin {
			if info, err := r.Fs.Stat(p); err == nil && info.IsDir() {
				files, err := r.dirFiles(p)
				if err != nil {
					return nil, err
				}
				for _, f := range files {
					in, err := r.Read(f)
					if err != nil {
						return nil, err
					}
					inputs = append(inputs, in)
				}
				continue
			}
		}
		in, err := r.Read(p)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func (r *Reader) dirFiles(dir string) ([]string, error) {
	entries, err := afero.ReadDir(r.Fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.Mode().IsRegular() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// ExtractText returns the text of the elements of an HTML document matching
// selector, trimmed and joined with newlines. No match is an error.
func ExtractText(html []byte, selector string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return "", fmt.Errorf("selector %q matched no elements", selector)
	}
	parts := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n"), nil
}
