package analysis

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/site-auditor/internal/llm"
)

// Structural boundaries preferred when splitting, strongest first.
var chunkBoundaries = []string{"</table>", "</section>", "</div>", "\n\n", "\n"}

const cleanupSystemPrompt = "You clean up fragments of an SEO analysis. " +
	"Fix broken formatting and JSON syntax, remove duplicated sentences, and keep every fact. " +
	"Return only the cleaned fragment with no commentary."

// SplitChunks splits text into pieces of at most size bytes, cutting after
// the strongest structural boundary available in each window.
func SplitChunks(text string, size int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	var chunks []string
	for len(text) > size {
		cut := -1
		window := text[:size]
		for _, boundary := range chunkBoundaries {
			// Ignore boundaries in the first quarter to avoid tiny chunks.
			if idx := strings.LastIndex(window, boundary); idx >= size/4 {
				cut = idx + len(boundary)
				break
			}
		}
		if cut <= 0 {
			cut = size
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if strings.TrimSpace(text) != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// CleanupChunks asks gen to clean each chunk independently, at most
// concurrency at a time. A chunk whose cleanup fails is kept as is. The
// cleaned chunks are consolidated into one text.
func CleanupChunks(ctx context.Context, gen llm.Generator, chunks []string, concurrency int, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	cleaned := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			out, err := gen.Generate(gctx, llm.Prompt{
				System: cleanupSystemPrompt,
				User:   fmt.Sprintf("Fragment %d of %d:\n\n%s", i+1, len(chunks), chunk),
			})
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return fmt.Errorf("cleanup chunk %d: %w", i, ctxErr)
				}
				logger.Warn("chunk cleanup failed; keeping original",
					zap.Int("chunk", i),
					zap.Error(err),
				)
				cleaned[i] = chunk
				return nil
			}
			cleaned[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return Consolidate(cleaned), nil
}

// Consolidate joins chunks, dropping lines repeated across a chunk
// boundary: the longest run of trailing lines of one chunk that reappears
// at the start of the next is emitted once.
func Consolidate(chunks []string) string {
	var out []string
	for _, chunk := range chunks {
		lines := strings.Split(strings.TrimRight(chunk, "\n"), "\n")
		overlap := boundaryOverlap(out, lines)
		out = append(out, lines[overlap:]...)
	}
	return strings.Join(out, "\n")
}

func boundaryOverlap(prev, next []string) int {
	maxN := len(prev)
	if len(next) < maxN {
		maxN = len(next)
	}
	for n := maxN; n > 0; n-- {
		match := true
		for i := 0; i < n; i++ {
			a := strings.TrimSpace(prev[len(prev)-n+i])
			b := strings.TrimSpace(next[i])
			if a != b {
				match = false
				break
			}
		}
		if match && !allBlank(next[:n]) {
			return n
		}
	}
	return 0
}

func allBlank(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}
