package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/depsphere-go/internal/parsers"
)

type failingParser struct{}

func (failingParser) Parse(string, []byte) (*parsers.ParseResult, error) {
	return nil, errors.New("boom")
}

func (failingParser) Language() string { return "failing" }

func TestProcessParsing(t *testing.T) {
	t.Parallel()

	entries := []FileEntry{
		{Path: "/w/A.cs", Kind: KindSource, Content: []byte("class A {}")},
		{Path: "/w/B.cs", Kind: KindSource, Content: []byte("namespace N { class B {} }")},
		{Path: "/w/App.csproj", Kind: KindProject, Content: []byte("<Project />")},
	}

	t.Run("ParsesSourceEntries", func(t *testing.T) {
		t.Parallel()
		data, err := ProcessParsing(t.Context(), entries, parsers.NewCSharpParser(), 2)
		require.NoError(t, err)

		assert.Equal(t, []string{"/w/A.cs", "/w/B.cs"}, data.Paths())
		b, ok := data.Get("/w/B.cs")
		require.True(t, ok)
		require.Len(t, b.Types, 1)
		assert.Equal(t, "N.B", b.Types[0].ID())

		_, ok = data.Get("/w/App.csproj")
		assert.False(t, ok)
	})

	t.Run("ParserError", func(t *testing.T) {
		t.Parallel()
		_, err := ProcessParsing(t.Context(), entries, failingParser{}, 0)
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("Cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		_, err := ProcessParsing(ctx, entries, parsers.NewCSharpParser(), 1)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
