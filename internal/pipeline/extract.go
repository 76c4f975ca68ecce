package pipeline

import (
	"strings"
)

// ExtractCode strips conversational wrapping from model output. The coding
// prompt instructs the model to emit code only, but it cannot be trusted to
// comply, so fenced blocks are pulled out when present and the raw text is
// returned otherwise.
func ExtractCode(text string) string {
	idx := strings.Index(text, "```")
	if idx == -1 {
		return strings.TrimSpace(text)
	}

	var blocks []string
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start == -1 {
			break
		}
		rest = rest[start+3:]
		// Skip the language tag on the fence line
		if nl := strings.Index(rest, "\n"); nl != -1 {
			rest = rest[nl+1:]
		}
		end := strings.Index(rest, "```")
		if end == -1 {
			blocks = append(blocks, strings.TrimSpace(rest))
			break
		}
		blocks = append(blocks, strings.TrimSpace(rest[:end]))
		rest = rest[end+3:]
	}

	return strings.Join(blocks, "\n\n")
}

const defaultFilePath = "app/main.js"

// ParseFiles splits generated code into a file list. A line of the form
// "// file: path" (or "# file: path") starts a new file; output without
// markers becomes a single file at the default path.
func ParseFiles(code string) []File {
	if strings.TrimSpace(code) == "" {
		return nil
	}

	lines := strings.Split(code, "\n")
	var files []File
	var current *File

	for _, line := range lines {
		if path, ok := fileMarker(line); ok {
			if current != nil {
				current.Content = strings.TrimSpace(current.Content) + "\n"
				files = append(files, *current)
			}
			current = &File{Path: path}
			continue
		}
		if current != nil {
			current.Content += line + "\n"
		} else {
			current = &File{Path: defaultFilePath, Content: line + "\n"}
		}
	}
	if current != nil {
		current.Content = strings.TrimSpace(current.Content) + "\n"
		files = append(files, *current)
	}
	return files
}

func fileMarker(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"// file:", "# file:", "/* file:", "<!-- file:"} {
		if strings.HasPrefix(strings.ToLower(trimmed), prefix) {
			path := strings.TrimSpace(trimmed[len(prefix):])
			path = strings.TrimSuffix(path, "*/")
			path = strings.TrimSuffix(path, "-->")
			path = strings.TrimSpace(path)
			if path != "" {
				return path, true
			}
		}
	}
	return "", false
}
