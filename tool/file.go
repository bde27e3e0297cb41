package tool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/agentroom/logging"
)

// Built-in tool names.
const (
	ReadFileToolName   = "ReadFileTool"
	SaveToFileToolName = "SaveToFileTool"
	DummyToolName      = "FileTool"
)

// FileArgs is the argument shape shared by the file tools.
type FileArgs struct {
	Filename  string `json:"filename" description:"Name of the file, no wildcards"`
	Directory string `json:"directory" description:"Directory relative to the workspace"`
	Content   string `json:"content,omitempty" description:"Content to write"`
}

// NewReadFileTool returns a tool reading one file below root.
func NewReadFileTool(root string, logger logging.Logger) *FunctionTool {
	return NewFunctionToolFromStruct(
		ReadFileToolName,
		"A tool to read one file from specified directory with given filenames. No wildcard usage possible.",
		struct {
			Filename  string `json:"filename" description:"Name of the file, no wildcards"`
			Directory string `json:"directory" description:"Directory relative to the workspace"`
		}{},
		func(_ context.Context, args map[string]any) (Result, error) {
			path, err := resolve(root, args)
			if err != nil {
				return Result{}, err
			}
			data, err := os.ReadFile(path) //nolint:gosec // path is confined to root
			if errors.Is(err, fs.ErrNotExist) {
				return Result{Output: fmt.Sprintf("%s does not exist.", path)}, nil
			}
			if err != nil {
				return Result{}, err
			}
			return Result{Output: string(data), Completed: true}, nil
		},
		func(o *FunctionToolOptions) { o.Logger = logger },
	)
}

// NewSaveToFileTool returns a tool writing content to one file below root.
func NewSaveToFileTool(root string, logger logging.Logger) *FunctionTool {
	return NewFunctionToolFromStruct(
		SaveToFileToolName,
		"A tool to save content to a file in a specified directory.",
		FileArgs{},
		func(_ context.Context, args map[string]any) (Result, error) {
			path, err := resolve(root, args)
			if err != nil {
				return Result{}, err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return Result{}, err
			}
			content, _ := args["content"].(string)
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				return Result{}, err
			}
			return Result{Output: fmt.Sprintf("Content saved to %s.", path), Completed: true}, nil
		},
		func(o *FunctionToolOptions) { o.Logger = logger },
	)
}

// NewDummyTool returns a placeholder file tool that answers every query.
func NewDummyTool() *FunctionTool {
	return NewFunctionTool(
		DummyToolName,
		"A file tool for reading and writing files in the file system.",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []string{"query"},
		},
		func(_ context.Context, args map[string]any) (Result, error) {
			return Result{Output: fmt.Sprintf("File tool response for query: %v", args["query"]), Completed: true}, nil
		},
	)
}

// resolve joins directory and filename below root and rejects escapes.
func resolve(root string, args map[string]any) (string, error) {
	name, _ := args["filename"].(string)
	dir, _ := args["directory"].(string)
	if name == "" || strings.ContainsAny(name, "*?[") {
		return "", NewToolError("file", fmt.Sprintf("invalid filename %q", name), "VALIDATION_ERROR")
	}
	base := filepath.Clean(root)
	path := filepath.Join(base, dir, name)
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", NewToolError("file", fmt.Sprintf("path %q escapes workspace", path), "VALIDATION_ERROR")
	}
	return path, nil
}

// DefaultRegistry returns a registry with the built-in tools rooted at workdir.
func DefaultRegistry(workdir string, logger logging.Logger) *Registry {
	r := NewRegistry()
	r.Register(ReadFileToolName, func() Tool { return NewReadFileTool(workdir, logger) })
	r.Register(SaveToFileToolName, func() Tool { return NewSaveToFileTool(workdir, logger) })
	r.Register(DummyToolName, func() Tool { return NewDummyTool() })
	return r
}
