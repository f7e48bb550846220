package analysis

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-auditor/internal/llm"
)

func TestSplitChunksPrefersStructuralBoundaries(t *testing.T) {
	t.Parallel()

	table := "<table>" + strings.Repeat("<tr><td>x</td></tr>", 5) + "</table>"
	text := table + "tail text that goes on " + table + "more"
	chunks := SplitChunks(text, len(table)+10)

	require.Greater(t, len(chunks), 1)
	require.True(t, strings.HasSuffix(chunks[0], "</table>"), chunks[0])
	require.Equal(t, text, strings.Join(chunks, ""))
	for _, c := range chunks {
		require.LessOrEqual(t, len(c), len(table)+10)
	}
}

func TestSplitChunksSmallInput(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"abc"}, SplitChunks("abc", 10))
	require.Equal(t, []string{"abc"}, SplitChunks("abc", 0))
}

func TestConsolidateRemovesBoundaryDuplicates(t *testing.T) {
	t.Parallel()

	got := Consolidate([]string{
		"intro\nshared line\nshared two\n",
		"shared line\nshared two\nnext part",
		"final",
	})
	require.Equal(t, "intro\nshared line\nshared two\nnext part\nfinal", got)
}

func TestCleanupChunksKeepsFailedChunks(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{fn: func(p llm.Prompt) (string, error) {
		if strings.Contains(p.User, "bad") {
			return "", errors.New("model error")
		}
		return "clean:" + p.User[strings.Index(p.User, "\n\n")+2:], nil
	}}
	out, err := CleanupChunks(context.Background(), gen, []string{"one", "bad", "three"}, 2, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "clean:one\nbad\nclean:three", out)
	require.EqualValues(t, 3, gen.calls.Load())
}

func TestCleanupChunksCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &scriptedGenerator{fn: func(llm.Prompt) (string, error) {
		return "", context.Canceled
	}}
	_, err := CleanupChunks(ctx, gen, []string{"a", "b"}, 1, nil)
	require.ErrorIs(t, err, context.Canceled)
}

type scriptedGenerator struct {
	calls atomic.Int64
	fn    func(llm.Prompt) (string, error)
}

func (g *scriptedGenerator) Generate(_ context.Context, p llm.Prompt) (string, error) {
	g.calls.Add(1)
	return g.fn(p)
}
