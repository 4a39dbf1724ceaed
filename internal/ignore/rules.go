package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// LoadRules reads the root .gitignore and IgnoreFile of a project, in that
// order, so project-specific rules win. Missing files are skipped.
func LoadRules(root string) ([]string, error) {
	var rules []string
	for _, name := range []string{".gitignore", IgnoreFile} {
		lines, err := readLines(filepath.Join(root, name))
		if err != nil {
			return nil, err
		}
		rules = append(rules, lines...)
	}
	return rules, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
