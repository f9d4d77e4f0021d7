package server

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Properties is the parsed server.properties key/value set.
type Properties map[string]string

// ReadProperties parses server.properties from the server directory.
func ReadProperties(serverDir string) (Properties, error) {
	path := filepath.Join(serverDir, "server.properties")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read server properties: %w", err)
	}
	defer f.Close()

	props := make(Properties)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return props, nil
}

func (p Properties) Get(key, fallback string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return fallback
}

// RconAddr derives the RCON endpoint from the properties. Returns an error
// when RCON is disabled or unconfigured.
func (p Properties) RconAddr() (addr, password string, err error) {
	if p.Get("enable-rcon", "false") != "true" {
		return "", "", fmt.Errorf("rcon is disabled in server.properties")
	}
	password = p.Get("rcon.password", "")
	if password == "" {
		return "", "", fmt.Errorf("rcon.password is not set")
	}
	return "localhost:" + p.Get("rcon.port", "25575"), password, nil
}

// WorldDir resolves the world directory from level-name.
func (p Properties) WorldDir(serverDir string) string {
	return filepath.Join(serverDir, p.Get("level-name", "world"))
}
