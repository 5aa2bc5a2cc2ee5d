package parsers

import (
	"regexp"

	"github.com/giak/mnemolite/internal/chunking"
)

var (
	tsInterfaceRe = regexp.MustCompile(`\binterface\s+([A-Za-z_$][A-Za-z0-9_$]*)\b[^{]*\{`)
	tsEnumRe      = regexp.MustCompile(`\benum\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*\{`)
	tsTypeAliasRe = regexp.MustCompile(`(?m)^[ \t]*(?:export\s+)?type\s+([A-Za-z_$][A-Za-z0-9_$]*)[^=]*=`)
)

// TypeScriptParser extends JavaScriptParser's declaration forms with
// interface, enum, and type-alias declarations.
type TypeScriptParser struct {
	js JavaScriptParser
}

func NewTypeScriptParser() TypeScriptParser {
	return TypeScriptParser{js: JavaScriptParser{lang: chunking.LanguageTypeScript}}
}

func (TypeScriptParser) Language() chunking.Language { return chunking.LanguageTypeScript }

func (p TypeScriptParser) Parse(repository, filePath string, content []byte) ([]chunking.Chunk, []chunking.DeclarationError) {
	chunks, declErrs := p.js.Parse(repository, filePath, content)

	for _, m := range tsInterfaceRe.FindAllSubmatchIndex(content, -1) {
		name := string(content[m[2]:m[3]])
		end := matchBrace(content, m[1]-1)
		chunks = append(chunks, makeChunk(repository, filePath, chunking.LanguageTypeScript, chunking.ChunkInterface, name, content, m[0], end))
	}
	for _, m := range tsEnumRe.FindAllSubmatchIndex(content, -1) {
		name := string(content[m[2]:m[3]])
		end := matchBrace(content, m[1]-1)
		chunks = append(chunks, makeChunk(repository, filePath, chunking.LanguageTypeScript, chunking.ChunkEnum, name, content, m[0], end))
	}
	for _, m := range tsTypeAliasRe.FindAllSubmatchIndex(content, -1) {
		name := string(content[m[2]:m[3]])
		end := indexByteOrEnd(content, m[1], ';')
		chunks = append(chunks, makeChunk(repository, filePath, chunking.LanguageTypeScript, chunking.ChunkTypeAlias, name, content, m[0], end))
	}

	return sortChunksBySource(chunks), declErrs
}

func makeChunk(repository, filePath string, lang chunking.Language, ctype chunking.ChunkType, name string, content []byte, start, end int) chunking.Chunk {
	return chunking.Chunk{
		Repository: repository,
		FilePath:   filePath,
		Language:   lang,
		Type:       ctype,
		Name:       name,
		Body:       string(content[start:end]),
		StartByte:  start,
		EndByte:    end,
		StartLine:  lineOf(content, start),
		EndLine:    lineOf(content, end),
	}
}

func indexByteOrEnd(content []byte, from int, b byte) int {
	for i := from; i < len(content); i++ {
		if content[i] == b {
			return i + 1
		}
	}
	return len(content)
}
