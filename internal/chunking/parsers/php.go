package parsers

import (
	"regexp"

	"github.com/giak/mnemolite/internal/chunking"
)

var (
	phpClassRe     = regexp.MustCompile(`\bclass\s+([A-Za-z_][A-Za-z0-9_]*)\b[^{]*\{`)
	phpInterfaceRe = regexp.MustCompile(`\binterface\s+([A-Za-z_][A-Za-z0-9_]*)\b[^{]*\{`)
	phpTraitRe     = regexp.MustCompile(`\btrait\s+([A-Za-z_][A-Za-z0-9_]*)\b[^{]*\{`)
	phpFunctionRe  = regexp.MustCompile(`\bfunction\s+(&\s*)?([A-Za-z_][A-Za-z0-9_]*)\s*\([^)]*\)[^{;]*\{`)
)

// PHPParser chunks PHP source into class, interface, trait, and
// function/method declarations via brace matching.
type PHPParser struct{}

func (PHPParser) Language() chunking.Language { return chunking.LanguagePHP }

func (PHPParser) Parse(repository, filePath string, content []byte) ([]chunking.Chunk, []chunking.DeclarationError) {
	var chunks []chunking.Chunk
	var declErrs []chunking.DeclarationError

	for _, m := range phpClassRe.FindAllSubmatchIndex(content, -1) {
		end := matchBrace(content, m[1]-1)
		chunks = append(chunks, makeChunk(repository, filePath, chunking.LanguagePHP, chunking.ChunkClass, string(content[m[2]:m[3]]), content, m[0], end))
	}
	for _, m := range phpInterfaceRe.FindAllSubmatchIndex(content, -1) {
		end := matchBrace(content, m[1]-1)
		chunks = append(chunks, makeChunk(repository, filePath, chunking.LanguagePHP, chunking.ChunkInterface, string(content[m[2]:m[3]]), content, m[0], end))
	}
	for _, m := range phpTraitRe.FindAllSubmatchIndex(content, -1) {
		end := matchBrace(content, m[1]-1)
		chunks = append(chunks, makeChunk(repository, filePath, chunking.LanguagePHP, chunking.ChunkTrait, string(content[m[2]:m[3]]), content, m[0], end))
	}
	for _, m := range phpFunctionRe.FindAllSubmatchIndex(content, -1) {
		name := string(content[m[4]:m[5]])
		braceIdx := indexByteOrEnd(content, m[1]-1, '{')
		if braceIdx >= len(content) {
			declErrs = append(declErrs, chunking.DeclarationError{StartLine: lineOf(content, m[0]), Message: "abstract/interface method has no body: " + name})
			continue
		}
		end := matchBrace(content, braceIdx-1)
		ctype := chunking.ChunkFunction
		if indentOf(content, m[0]) > 0 {
			ctype = chunking.ChunkMethod
		}
		chunks = append(chunks, makeChunk(repository, filePath, chunking.LanguagePHP, ctype, name, content, m[0], end))
	}

	return sortChunksBySource(chunks), declErrs
}
