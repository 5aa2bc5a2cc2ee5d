package parsers

import (
	"regexp"

	"github.com/giak/mnemolite/internal/chunking"
)

var pythonDeclRe = regexp.MustCompile(`(?m)^([ \t]*)(class|def|async def)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// PythonParser chunks Python source into class and function/method
// declarations, using indentation (not braces) to find body extent.
type PythonParser struct{}

func (PythonParser) Language() chunking.Language { return chunking.LanguagePython }

func (PythonParser) Parse(repository, filePath string, content []byte) ([]chunking.Chunk, []chunking.DeclarationError) {
	var chunks []chunking.Chunk
	var declErrs []chunking.DeclarationError

	matches := pythonDeclRe.FindAllSubmatchIndex(content, -1)
	for _, m := range matches {
		headerStart := m[0]
		indent := m[3] - m[2]
		keyword := string(content[m[4]:m[5]])
		name := string(content[m[6]:m[7]])

		startLine := lineOf(content, headerStart)
		bodyStart := lineStart(content, headerStart)
		// advance bodyStart past the header line itself.
		if nl := indexNewlineFrom(content, headerStart); nl >= 0 {
			bodyStart = nl + 1
		} else {
			bodyStart = len(content)
		}

		endOffset := blockEndByIndent(content, bodyStart, indent)
		if endOffset <= headerStart {
			declErrs = append(declErrs, chunking.DeclarationError{
				StartLine: startLine,
				Message:   "could not determine body extent for " + name,
			})
			continue
		}

		chunkType := chunking.ChunkFunction
		if keyword == "class" {
			chunkType = chunking.ChunkClass
		} else if indent > 0 {
			chunkType = chunking.ChunkMethod
		}

		chunks = append(chunks, chunking.Chunk{
			Repository: repository,
			FilePath:   filePath,
			Language:   chunking.LanguagePython,
			Type:       chunkType,
			Name:       name,
			Body:       string(content[headerStart:endOffset]),
			StartByte:  headerStart,
			EndByte:    endOffset,
			StartLine:  startLine,
			EndLine:    lineOf(content, endOffset),
		})
	}

	return chunks, declErrs
}

func indexNewlineFrom(content []byte, from int) int {
	for i := from; i < len(content); i++ {
		if content[i] == '\n' {
			return i
		}
	}
	return -1
}
