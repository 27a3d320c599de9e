package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogNode is the YAML shape of one tree node. FullName may be omitted;
// it is then derived by dotting the names down from the root.
type catalogNode struct {
	Name     string        `yaml:"name"`
	FullName string        `yaml:"full_name,omitempty"`
	Children []catalogNode `yaml:"children,omitempty"`
}

type catalogFile struct {
	Modes map[string][]catalogNode `yaml:"modes"`
}

// LoadTrees reads a YAML test catalog and builds one tree per execution
// mode. The mode key itself becomes the root node of that mode's tree.
func LoadTrees(path string) (map[string]*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse test catalog %s: %w", path, err)
	}
	if len(file.Modes) == 0 {
		return nil, fmt.Errorf("test catalog %s defines no modes", path)
	}

	trees := make(map[string]*Node, len(file.Modes))
	for mode, nodes := range file.Modes {
		root := &Node{
			Name:        mode,
			FullName:    mode,
			HasChildren: len(nodes) > 0,
		}
		for _, child := range nodes {
			root.Children = append(root.Children, buildNode(child, ""))
		}
		trees[mode] = root
	}
	return trees, nil
}

func buildNode(src catalogNode, parentFull string) *Node {
	full := src.FullName
	if full == "" {
		if parentFull == "" {
			full = src.Name
		} else {
			full = parentFull + "." + src.Name
		}
	}
	n := &Node{
		Name:        src.Name,
		FullName:    full,
		HasChildren: len(src.Children) > 0,
	}
	for _, child := range src.Children {
		n.Children = append(n.Children, buildNode(child, full))
	}
	return n
}
