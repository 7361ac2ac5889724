/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: source_test.go
Description: Tests for input acquisition and HTML text extraction.
*/

package source

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<h1>Readings</h1>
<ul>
  <li class="reading"> 45a6 </li>
  <li class="reading">12</li>
  <li class="note">ignored</li>
  <li class="reading">   </li>
</ul>
</body></html>`

func TestExtractText(t *testing.T) {
	t.Parallel()

	text, err := ExtractText([]byte(page), "li.reading")
	require.NoError(t, err)
	assert.Equal(t, "45a6\n12", text)

	_, err = ExtractText([]byte(page), "table td")
	assert.ErrorContains(t, err, `selector "table td" matched no elements`)
}

func TestReader(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "docs/b.txt", []byte("7"), 0644))
	require.NoError(t, afero.WriteFile(fs, "docs/a.txt", []byte("45a6"), 0644))
	require.NoError(t, afero.WriteFile(fs, "page.html", []byte(page), 0644))

	r := &Reader{Fs: fs, Stdin: strings.NewReader("123")}
	inputs, err := r.ReadAll([]string{"docs", Stdin})
	require.NoError(t, err)
	require.Len(t, inputs, 3)
	assert.Equal(t, "docs/a.txt", inputs[0].Name)
	assert.Equal(t, "45a6", string(inputs[0].Data))
	assert.Equal(t, "docs/b.txt", inputs[1].Name)
	assert.Equal(t, "<stdin>", inputs[2].Name)
	assert.Equal(t, "123", string(inputs[2].Data))

	_, err = r.Read("missing.txt")
	assert.ErrorContains(t, err, "failed to read missing.txt")

	r.Selector = "li.reading"
	in, err := r.Read("page.html")
	require.NoError(t, err)
	assert.Equal(t, "45a6\n12", string(in.Data))

	r.Selector = "table"
	_, err = r.Read("page.html")
	assert.ErrorContains(t, err, "page.html: selector")
}
