package parsers

import (
	"regexp"

	"github.com/giak/mnemolite/internal/chunking"
)

var vueSectionRe = regexp.MustCompile(`(?s)<(template|script|style)\b[^>]*>(.*?)</(template|script|style)>`)

// VueParser splits a single-file component into its template/script/style
// sections, emitting one ComponentBlock chunk per section present, then
// delegates the script section's body to the TypeScript parser so
// function/class declarations inside `<script>` still surface as their
// own chunks.
type VueParser struct {
	script TypeScriptParser
}

func NewVueParser() VueParser { return VueParser{script: NewTypeScriptParser()} }

func (VueParser) Language() chunking.Language { return chunking.LanguageVue }

func (p VueParser) Parse(repository, filePath string, content []byte) ([]chunking.Chunk, []chunking.DeclarationError) {
	var chunks []chunking.Chunk
	var declErrs []chunking.DeclarationError

	matches := vueSectionRe.FindAllSubmatchIndex(content, -1)
	if len(matches) == 0 {
		declErrs = append(declErrs, chunking.DeclarationError{StartLine: 1, Message: "no template/script/style section found"})
		return chunks, declErrs
	}

	for _, m := range matches {
		section := string(content[m[2]:m[3]])
		bodyStart, bodyEnd := m[4], m[5]
		chunk := makeChunk(repository, filePath, chunking.LanguageVue, chunking.ChunkComponentBlock, section+"@"+filePath, content, m[0], m[1])
		chunk.Metadata = map[string]string{"section": section}
		chunks = append(chunks, chunk)

		if section == "script" {
			inner, innerErrs := p.script.Parse(repository, filePath, content[bodyStart:bodyEnd])
			for i := range inner {
				inner[i].StartByte += bodyStart
				inner[i].EndByte += bodyStart
				inner[i].StartLine = lineOf(content, inner[i].StartByte)
				inner[i].EndLine = lineOf(content, inner[i].EndByte)
				inner[i].Language = chunking.LanguageVue
			}
			chunks = append(chunks, inner...)
			declErrs = append(declErrs, innerErrs...)
		}
	}

	return sortChunksBySource(chunks), declErrs
}
