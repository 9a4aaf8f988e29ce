package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"storyteller/server/internal/model"
)

type templateFile struct {
	Templates []model.StoryTemplate `yaml:"templates"`
}

// LoadFile 从 YAML 文件加载额外的故事模板。
func LoadFile(path string) ([]model.StoryTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}

	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return f.Templates, nil
}

// Open 内置目录加上 path 中的模板；path 为空时等同 NewBuiltin。
// 文件中的模板与内置模板一起校验，ID 不允许重复。
func Open(path string) (*Store, error) {
	if path == "" {
		return NewBuiltin(), nil
	}
	extra, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return New(append(Builtin(), extra...)...)
}
