package util

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates dir and its parents if missing
func EnsureDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0777)
}

// takes a save path and a variable number of strings and writes them to file separated by new lines
func WriteToFile(savePath string, content ...string) error {
	if err := EnsureDir(filepath.Dir(savePath)); err != nil {
		return err
	}
	return os.WriteFile(savePath, []byte(strings.Join(content, "\n")+"\n"), 0644)
}

func AppendToFile(savePath string, content ...string) error {
	if err := EnsureDir(filepath.Dir(savePath)); err != nil {
		return err
	}
	f, err := os.OpenFile(savePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return err
	}

	defer f.Close()

	for _, s := range content {
		if _, err = f.WriteString(s + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON marshals v to savePath, creating parent directories
func WriteJSON(savePath string, v interface{}) error {
	bs, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := EnsureDir(filepath.Dir(savePath)); err != nil {
		return err
	}
	return os.WriteFile(savePath, bs, 0644)
}

// ReadJSON unmarshals the file at path into v
func ReadJSON(path string, v interface{}) error {
	bs, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(bs, v)
}
