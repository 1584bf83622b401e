// Package index builds a browsable hierarchy of everything in the cache tree.
// Scan turns one schema root into sorted nodes, Merge combines schema trees with
// the first one winning file collisions, and Normalize collapses single-file
// directories so that every remaining directory holds more than one file.
package index

import (
	"encoding/json"
	"strings"
)

// Kind 区分目录与文件节点。
type Kind string

const (
	KindDirectory Kind = "directory"
	KindFile      Kind = "file"
)

// IndexName 是目录自身资源（URL 路径与目录路径相同）在规范化后的名字。
const IndexName = "<index>"

// selfName 标记扫描阶段尚未命名的目录自身资源，只在包内流转。
// "\x00" 保证它在同类节点中排在最前。
const selfName = "\x00"

// Node 是索引树的节点。文件节点使用 ContentType/Schema，目录节点使用 Children/NFiles。
type Node struct {
	Kind        Kind
	Name        string
	Path        string
	Size        int64
	ContentType string
	Schema      string
	Children    []Node
	NFiles      int
}

// IsDir 报告节点是否为目录。
func (n Node) IsDir() bool {
	return n.Kind == KindDirectory
}

func (n Node) fileCount() int {
	if n.IsDir() {
		return n.NFiles
	}
	return 1
}

type fileJSON struct {
	Type        Kind   `json:"type"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Schema      string `json:"schema"`
	Path        string `json:"path"`
}

type directoryJSON struct {
	Type     Kind   `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Children []Node `json:"children"`
	NFiles   int    `json:"nFiles"`
	Size     int64  `json:"size"`
}

// MarshalJSON 按节点类型输出不同的字段集合。
func (n Node) MarshalJSON() ([]byte, error) {
	if n.IsDir() {
		children := n.Children
		if children == nil {
			children = []Node{}
		}
		return json.Marshal(directoryJSON{
			Type:     KindDirectory,
			Name:     n.Name,
			Path:     n.Path,
			Children: children,
			NFiles:   n.NFiles,
			Size:     n.Size,
		})
	}
	return json.Marshal(fileJSON{
		Type:        KindFile,
		Name:        n.Name,
		ContentType: n.ContentType,
		Size:        n.Size,
		Schema:      n.Schema,
		Path:        n.Path,
	})
}

// compareNodes 先按类型（目录在前）再按名字做大小写敏感比较。
func compareNodes(a, b Node) int {
	if a.IsDir() != b.IsDir() {
		if a.IsDir() {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Name, b.Name)
}
