package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"name-redaction-service/internal/client"
	"name-redaction-service/internal/config"
)

const clientTimeout = 60 * time.Second

func isClientCommand(name string) bool {
	return name == "redact" || name == "deanonymize"
}

// runClient calls a running service instead of starting one. Text is read
// from stdin.
//
//	redactor redact [-url URL] [-token TOKEN] < note.txt > redacted.json
//	redactor deanonymize -mapping redacted.json < reply.txt
//
// -mapping accepts either the JSON printed by redact or a bare alias -> name
// object.
func runClient(ctx context.Context, cfg *config.Config, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 || !isClientCommand(args[0]) {
		return errors.New("usage: redactor redact|deanonymize [options]")
	}
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	url := fs.String("url", fmt.Sprintf("http://localhost:%d", cfg.ListenPort), "base URL of the redaction service")
	token := fs.String("token", cfg.APIToken, "bearer token (default: API_TOKEN)")
	mappingFile := fs.String("mapping", "", "JSON file holding the name mapping (deanonymize)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	input, err := io.ReadAll(stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	c := client.New(*url, *token, &http.Client{Timeout: clientTimeout})

	switch args[0] {
	case "redact":
		res, err := c.Redact(ctx, string(input))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)

	default:
		if *mappingFile == "" {
			return errors.New("deanonymize needs -mapping")
		}
		mapping, err := readMapping(*mappingFile)
		if err != nil {
			return err
		}
		text, err := c.Deanonymize(ctx, string(input), mapping)
		if err != nil {
			return err
		}
		_, err = io.WriteString(stdout, text)
		return err
	}
}

func readMapping(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path from the command line
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	var wrapped struct {
		NameMapping map[string]string `json:"name_mapping"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.NameMapping != nil {
		return wrapped.NameMapping, nil
	}
	var mapping map[string]string
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", path, err)
	}
	return mapping, nil
}
