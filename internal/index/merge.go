package index

// Merge 对两个已排序的同级序列做双指针合并。同名目录递归合并，计数与大小按合并后的
// 子节点重新累加，被丢弃的重复文件不计入；同名文件保留 a 中的节点。
func Merge(a, b []Node) []Node {
	merged := make([]Node, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch c := compareNodes(a[i], b[j]); {
		case c < 0:
			merged = append(merged, a[i])
			i++
		case c > 0:
			merged = append(merged, b[j])
			j++
		default:
			if a[i].IsDir() {
				dir := a[i]
				dir.Children = Merge(a[i].Children, b[j].Children)
				dir.NFiles, dir.Size = 0, 0
				for _, child := range dir.Children {
					dir.NFiles += child.fileCount()
					dir.Size += child.Size
				}
				merged = append(merged, dir)
			} else {
				merged = append(merged, a[i])
			}
			i++
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)
	return merged
}
