package lineage

// Assemble rebuilds the forest from a flat record sequence.
//
// All tree nodes live in one arena slice; an index from id to arena position
// links every record to its parent. Roots and the children of each parent keep
// the order of records. A record whose parent is not among records is an
// orphan and is left out of the result, as is anything below it. Duplicate ids
// keep their first occurrence.
func Assemble(records []Node) []*TreeNode {
	arena := make([]TreeNode, len(records))
	index := make(map[int64]int, len(records))
	for i := range records {
		if _, dup := index[records[i].ID]; dup {
			continue
		}
		index[records[i].ID] = i
		arena[i].Node = records[i]
		arena[i].Children = []*TreeNode{}
	}

	roots := make([]*TreeNode, 0)
	for i := range records {
		if index[records[i].ID] != i {
			continue
		}
		n := &arena[i]
		if n.ParentID == nil {
			roots = append(roots, n)
			continue
		}
		pos, ok := index[*n.ParentID]
		if !ok || pos == i {
			continue
		}
		arena[pos].Children = append(arena[pos].Children, n)
	}
	return roots
}

// Count returns the number of nodes reachable from roots.
func Count(roots []*TreeNode) int {
	total := 0
	stack := append([]*TreeNode(nil), roots...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total++
		stack = append(stack, n.Children...)
	}
	return total
}
