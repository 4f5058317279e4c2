package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/zeu5/crm/util"
)

// FileTableStore keeps one JSON file per table in a directory
type FileTableStore struct {
	dir string
}

var _ TableStore = &FileTableStore{}

func NewFileTableStore(dir string) *FileTableStore {
	return &FileTableStore{dir: dir}
}

func (f *FileTableStore) file(name string) string {
	return path.Join(f.dir, name+".qtable.json")
}

func (f *FileTableStore) SaveTable(_ context.Context, name string, table map[string][]float64) error {
	return util.WriteJSON(f.file(name), table)
}

func (f *FileTableStore) LoadTable(_ context.Context, name string) (map[string][]float64, error) {
	table := make(map[string][]float64)
	if err := util.ReadJSON(f.file(name), &table); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("table %s: %w", name, ErrNotFound)
		}
		return nil, err
	}
	return table, nil
}
