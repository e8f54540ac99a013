package prompts

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/buildloop/buildloop/internal/logging"
	"github.com/buildloop/buildloop/internal/ports"
)

// AgentsDir is the sub-directory holding sub-agent fragments
const AgentsDir = "agents"

var frontMatterDelim = []byte("---")

// FileSource reads prompt fragments from a directory. Reads are not cached.
type FileSource struct {
	dir string
}

// Verify interface compliance at compile time
var _ ports.PromptSource = (*FileSource)(nil)

// NewFileSource creates a source rooted at dir
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// Dir returns the prompt directory
func (s *FileSource) Dir() string {
	return s.dir
}

// Fragment returns the trimmed content of the first existing, non-empty file
func (s *FileSource) Fragment(names ...string) (string, bool) {
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			if !os.IsNotExist(err) {
				logging.Logger.Warn("Failed to read prompt fragment", "file", name, "error", err)
			}
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			return text, true
		}
	}
	return "", false
}

// Agent returns the sub-agent fragment agents/<name>.md
func (s *FileSource) Agent(name string) (ports.AgentFragment, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || strings.ContainsAny(name, `/\`) {
		return ports.AgentFragment{}, false
	}
	return s.readAgent(filepath.Join(s.dir, AgentsDir, name+".md"))
}

// Agents lists every sub-agent fragment ordered by name
func (s *FileSource) Agents() []ports.AgentFragment {
	entries, err := os.ReadDir(filepath.Join(s.dir, AgentsDir))
	if err != nil {
		return nil
	}
	var agents []ports.AgentFragment
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		if agent, ok := s.readAgent(filepath.Join(s.dir, AgentsDir, entry.Name())); ok {
			agents = append(agents, agent)
		}
	}
	slices.SortFunc(agents, func(a, b ports.AgentFragment) int { return strings.Compare(a.Name, b.Name) })
	return agents
}

func (s *FileSource) readAgent(path string) (ports.AgentFragment, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ports.AgentFragment{}, false
	}

	agent := ports.AgentFragment{Name: strings.TrimSuffix(filepath.Base(path), ".md")}
	meta, body := splitFrontMatter(data)
	if meta != nil {
		var fm struct {
			Keywords []string `yaml:"keywords"`
			Name     string   `yaml:"name"`
		}
		if err := yaml.Unmarshal(meta, &fm); err != nil {
			logging.Logger.Warn("Ignoring malformed front matter", "file", path, "error", err)
		} else {
			agent.Keywords = fm.Keywords
		}
	}
	agent.Body = strings.TrimSpace(string(body))
	if agent.Body == "" {
		return ports.AgentFragment{}, false
	}
	return agent, true
}

// splitFrontMatter separates a leading "---" delimited YAML block from the body
func splitFrontMatter(data []byte) (meta, body []byte) {
	trimmed := bytes.TrimLeft(data, "\ufeff \t\r\n")
	if !bytes.HasPrefix(trimmed, frontMatterDelim) {
		return nil, data
	}
	rest := trimmed[len(frontMatterDelim):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		return nil, data
	}
	rest = rest[nl+1:]
	for offset := 0; offset < len(rest); {
		end := bytes.IndexByte(rest[offset:], '\n')
		line := rest[offset:]
		if end >= 0 {
			line = rest[offset : offset+end]
		}
		if bytes.Equal(bytes.TrimSpace(line), frontMatterDelim) {
			if end < 0 {
				return rest[:offset], nil
			}
			return rest[:offset], rest[offset+end+1:]
		}
		if end < 0 {
			break
		}
		offset += end + 1
	}
	return nil, data
}
