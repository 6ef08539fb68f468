package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/v0xg/steprec/internal/action"
	"gopkg.in/yaml.v3"
)

const ext = ".yaml"

// Dir keeps each sequence in its own YAML file, for hand editing and review
type Dir struct {
	root string
}

// NewDir creates the directory if needed
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Close() error { return nil }

func (d *Dir) path(name string) string {
	return filepath.Join(d.root, name+ext)
}

func (d *Dir) Save(ctx context.Context, name string, seq *action.Sequence) error {
	if err := checkName(name); err != nil {
		return &Error{Op: "save", Key: name, Err: err}
	}
	data, err := yaml.Marshal(seq)
	if err != nil {
		return &Error{Op: "save", Key: name, Err: fmt.Errorf("failed to marshal sequence: %w", err)}
	}

	// write then rename so readers never see a partial file
	tmp, err := os.CreateTemp(d.root, "."+name+"-*")
	if err != nil {
		return &Error{Op: "save", Key: name, Err: err}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &Error{Op: "save", Key: name, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Op: "save", Key: name, Err: err}
	}
	if err := os.Rename(tmp.Name(), d.path(name)); err != nil {
		return &Error{Op: "save", Key: name, Err: err}
	}
	return nil
}

func (d *Dir) Load(ctx context.Context, name string) (*action.Sequence, error) {
	if err := checkName(name); err != nil {
		return nil, &Error{Op: "load", Key: name, Err: err}
	}
	seq, err := d.read(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Op: "load", Key: name, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &Error{Op: "load", Key: name, Err: err}
	}
	return seq, nil
}

func (d *Dir) read(path string) (*action.Sequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	seq := &action.Sequence{}
	if err := yaml.Unmarshal(data, seq); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return seq, nil
}

func (d *Dir) List(ctx context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}

	var out []Summary
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ext)
		if !ok || e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seq, err := d.read(filepath.Join(d.root, e.Name()))
		if err != nil {
			return nil, &Error{Op: "list", Key: name, Err: err}
		}
		info, err := e.Info()
		if err != nil {
			return nil, &Error{Op: "list", Key: name, Err: err}
		}
		out = append(out, Summary{Name: name, Origin: seq.Origin, Actions: seq.Len(), UpdatedAt: info.ModTime().UTC()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *Dir) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return &Error{Op: "delete", Key: name, Err: err}
	}
	err := os.Remove(d.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return &Error{Op: "delete", Key: name, Err: ErrNotFound}
	}
	if err != nil {
		return &Error{Op: "delete", Key: name, Err: err}
	}
	return nil
}
