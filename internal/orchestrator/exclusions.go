package orchestrator

import (
	"bufio"
	"os"
	"strings"
)

// loadExclusions reads a newline-delimited domain list, skipping blank
// lines and #-comments. A missing path (the common case — exclude-file is
// optional) is not an error.
func loadExclusions(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var domains []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domains = append(domains, line)
	}
	return domains, scanner.Err()
}
