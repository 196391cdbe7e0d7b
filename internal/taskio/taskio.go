// Package taskio reads task batches, labeled batches and tracker cache entries from
// JSON, YAML or TOML files, and writes engine results back out.
//
// JSON and YAML files may hold either a bare list or an object wrapping the list under
// its key ("tasks", "batches" or "entries"). TOML has no top-level arrays, so TOML
// files always use the wrapped form.
package taskio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/minutes/internal/types"
)

// Format is a supported file encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Stdin is the path that reads JSON from standard input
const Stdin = "-"

// FormatFor picks the format from a file extension
func FormatFor(path string) (Format, error) {
	if path == Stdin {
		return FormatJSON, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unsupported file format %q (want .json, .yaml, .yml or .toml)", filepath.Ext(path))
}

type taskFile struct {
	Tasks []types.Task `json:"tasks" yaml:"tasks" toml:"tasks"`
}

type batchFile struct {
	Batches []types.LabeledBatch `json:"batches" yaml:"batches" toml:"batches"`
}

type entryFile struct {
	Entries []types.CacheEntry `json:"entries" yaml:"entries" toml:"entries"`
}

// ReadTasks loads one batch of tasks. Priorities are normalized and every task is
// validated; the first invalid task is reported by index.
func ReadTasks(path string) ([]types.Task, error) {
	var list []types.Task
	var wrapped taskFile
	if err := read(path, &list, &wrapped); err != nil {
		return nil, err
	}
	if list == nil {
		list = wrapped.Tasks
	}
	if err := normalizeTasks(list, ""); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return nonNil(list), nil
}

// ReadBatches loads labeled batches for the merge resolver. Every batch needs a
// label; tasks are normalized and validated as in ReadTasks.
func ReadBatches(path string) ([]types.LabeledBatch, error) {
	var list []types.LabeledBatch
	var wrapped batchFile
	if err := read(path, &list, &wrapped); err != nil {
		return nil, err
	}
	if list == nil {
		list = wrapped.Batches
	}
	for i := range list {
		b := &list[i]
		b.Label = strings.TrimSpace(b.Label)
		if b.Label == "" {
			return nil, fmt.Errorf("%s: batch %d: label is required", path, i)
		}
		if err := normalizeTasks(b.Tasks, b.Label+" "); err != nil {
			return nil, fmt.Errorf("%s: batch %d: %w", path, i, err)
		}
	}
	return nonNil(list), nil
}

// ReadCacheEntries loads a tracker snapshot. Entries need an external id and a title.
func ReadCacheEntries(path string) ([]types.CacheEntry, error) {
	var list []types.CacheEntry
	var wrapped entryFile
	if err := read(path, &list, &wrapped); err != nil {
		return nil, err
	}
	if list == nil {
		list = wrapped.Entries
	}
	for i, e := range list {
		if strings.TrimSpace(e.ExternalID) == "" {
			return nil, fmt.Errorf("%s: entry %d: external_id is required", path, i)
		}
		if strings.TrimSpace(e.Title) == "" {
			return nil, fmt.Errorf("%s: entry %d: title is required", path, i)
		}
	}
	return nonNil(list), nil
}

func normalizeTasks(tasks []types.Task, prefix string) error {
	for i := range tasks {
		t := &tasks[i]
		t.Title = strings.TrimSpace(t.Title)
		if t.Priority == "" {
			t.Priority = types.PriorityNormal
		} else if p, err := types.ParsePriority(string(t.Priority)); err == nil {
			t.Priority = p
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%stask %d: %w", prefix, i, err)
		}
	}
	return nil
}

// read decodes path into list when the document is a bare list, otherwise into
// wrapped. list stays nil in the wrapped case.
func read(path string, list, wrapped any) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}

	var data []byte
	if path == Stdin {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch format {
	case FormatJSON:
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
			err = json.Unmarshal(trimmed, list)
		} else {
			err = json.Unmarshal(data, wrapped)
		}
	case FormatYAML:
		var node yaml.Node
		if err = yaml.Unmarshal(data, &node); err != nil {
			break
		}
		if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
			err = node.Decode(list)
		} else {
			err = yaml.Unmarshal(data, wrapped)
		}
	case FormatTOML:
		err = toml.Unmarshal(data, wrapped)
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s as %s: %w", path, format, err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// WriteJSON writes v as indented JSON followed by a newline
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// WriteTasks writes tasks to path in the format its extension names, in the same
// shape ReadTasks accepts.
func WriteTasks(path string, tasks []types.Task) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	tasks = nonNil(tasks)

	var buf bytes.Buffer
	switch format {
	case FormatJSON:
		err = WriteJSON(&buf, tasks)
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(tasks); err == nil {
			err = enc.Close()
		}
	case FormatTOML:
		err = toml.NewEncoder(&buf).Encode(taskFile{Tasks: tasks})
	}
	if err != nil {
		return fmt.Errorf("failed to encode tasks as %s: %w", format, err)
	}

	if path == Stdin {
		_, err = os.Stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
