package index

import "slices"

// Normalize 后序处理单个节点：只含一个文件的目录折叠为该文件，
// 文件名为 "<dir>"（目录自身资源）或 "<dir>/<file>"；其余目录中的自身资源
// 改名为 IndexName。空目录原样返回，由 NormalizeAll 丢弃。
func Normalize(n Node) Node {
	if !n.IsDir() {
		return n
	}

	children := normalizeChildren(n.Children)
	if n.NFiles == 1 && len(children) == 1 && !children[0].IsDir() {
		file := children[0]
		if file.Name == selfName {
			file.Name = n.Name
		} else {
			file.Name = n.Name + "/" + file.Name
		}
		return file
	}

	n.Children = finishLevel(children)
	return n
}

// NormalizeAll 规范化一个同级序列，丢弃不含文件的目录并重新排序。
func NormalizeAll(nodes []Node) []Node {
	return finishLevel(normalizeChildren(nodes))
}

func normalizeChildren(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, node := range nodes {
		if node.IsDir() && node.NFiles == 0 {
			continue
		}
		out = append(out, Normalize(node))
	}
	return out
}

// finishLevel 给剩余的自身资源命名，并在名字确定后排序。
func finishLevel(nodes []Node) []Node {
	for i := range nodes {
		if !nodes[i].IsDir() && nodes[i].Name == selfName {
			nodes[i].Name = IndexName
		}
	}
	slices.SortStableFunc(nodes, compareNodes)
	return nodes
}
