package parsers

import (
	"regexp"

	"github.com/giak/mnemolite/internal/chunking"
)

var (
	jsFunctionRe = regexp.MustCompile(`\bfunction\s*(\*?)\s*([A-Za-z_$][A-Za-z0-9_$]*)?\s*\([^)]*\)\s*\{`)
	jsClassRe    = regexp.MustCompile(`\bclass\s+([A-Za-z_$][A-Za-z0-9_$]*)\b[^{]*\{`)
	jsConstArrowRe = regexp.MustCompile(`\b(?:const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=\s*(?:async\s*)?(?:\([^)]*\)|[A-Za-z_$][A-Za-z0-9_$]*)\s*=>\s*\{`)
	jsIIFERe     = regexp.MustCompile(`\(\s*(?:async\s*)?function\s*\([^)]*\)\s*\{`)
	jsMethodRe   = regexp.MustCompile(`(?m)^[ \t]*(?:async\s+)?(?:static\s+)?([A-Za-z_$][A-Za-z0-9_$]*)\s*\([^)]*\)\s*\{`)
)

// JavaScriptParser chunks JS/JSX source into function, class, and
// arrow-function declarations via brace matching. Anonymous forms
// (IIFEs, arrow functions not bound to a name) are emitted but flagged
// Unnameable so the Graph Builder excludes them from edge construction.
type JavaScriptParser struct{ lang chunking.Language }

func NewJavaScriptParser() JavaScriptParser { return JavaScriptParser{lang: chunking.LanguageJavaScript} }

func (p JavaScriptParser) Language() chunking.Language { return p.lang }

func (p JavaScriptParser) Parse(repository, filePath string, content []byte) ([]chunking.Chunk, []chunking.DeclarationError) {
	var chunks []chunking.Chunk
	var declErrs []chunking.DeclarationError
	claimed := make([]bool, len(content)+1)

	emit := func(openBraceEnd, headerStart int, name string, unnameable bool, ctype chunking.ChunkType) {
		if claimed[headerStart] {
			return
		}
		end := matchBrace(content, openBraceEnd-1)
		for i := headerStart; i < end && i < len(claimed); i++ {
			claimed[i] = true
		}
		startLine := lineOf(content, headerStart)
		if name == "" {
			name = chunking.FallbackName(ctype, startLine)
		}
		chunks = append(chunks, chunking.Chunk{
			Repository: repository,
			FilePath:   filePath,
			Language:   p.lang,
			Type:       ctype,
			Name:       name,
			Unnameable: unnameable,
			Body:       string(content[headerStart:end]),
			StartByte:  headerStart,
			EndByte:    end,
			StartLine:  startLine,
			EndLine:    lineOf(content, end),
		})
	}

	for _, m := range jsClassRe.FindAllSubmatchIndex(content, -1) {
		emit(m[1], m[0], string(content[m[2]:m[3]]), false, chunking.ChunkClass)
	}
	for _, m := range jsFunctionRe.FindAllSubmatchIndex(content, -1) {
		name := ""
		if m[4] >= 0 {
			name = string(content[m[4]:m[5]])
		}
		emit(m[1], m[0], name, name == "", chunking.ChunkFunction)
	}
	for _, m := range jsConstArrowRe.FindAllSubmatchIndex(content, -1) {
		emit(m[1], m[0], string(content[m[2]:m[3]]), false, chunking.ChunkFunction)
	}
	for _, m := range jsIIFERe.FindAllSubmatchIndex(content, -1) {
		emit(m[1], m[0], "", true, chunking.ChunkFunction)
	}
	for _, m := range jsMethodRe.FindAllSubmatchIndex(content, -1) {
		name := string(content[m[2]:m[3]])
		if name == "if" || name == "for" || name == "while" || name == "switch" || name == "catch" {
			continue
		}
		emit(m[1], m[0], name, false, chunking.ChunkMethod)
	}

	if len(chunks) == 0 {
		declErrs = append(declErrs, chunking.DeclarationError{StartLine: 1, Message: "no recognizable declarations found"})
	}

	return sortChunksBySource(chunks), declErrs
}

func sortChunksBySource(chunks []chunking.Chunk) []chunking.Chunk {
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && chunks[j-1].StartByte > chunks[j].StartByte; j-- {
			chunks[j-1], chunks[j] = chunks[j], chunks[j-1]
		}
	}
	return chunks
}
