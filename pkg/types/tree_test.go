package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionContains(t *testing.T) {
	root := Position{TreeID: "t", Left: 1, Right: 10}
	child := Position{TreeID: "t", Left: 2, Right: 5}
	other := Position{TreeID: "u", Left: 2, Right: 5}

	assert.True(t, root.Contains(child))
	assert.False(t, child.Contains(root))
	assert.False(t, root.Contains(root), "containment is strict")
	assert.False(t, root.Contains(other), "different trees never nest")
	assert.Equal(t, int64(10), root.Width())
	assert.True(t, Position{Left: 3, Right: 4}.IsLeaf())
}

func TestNodeFilterMatch(t *testing.T) {
	plain := &TreeNode{Visible: true}
	hidden := &TreeNode{Visible: false}
	virtual := &TreeNode{Visible: true, Virtual: true}

	tests := []struct {
		name   string
		filter NodeFilter
		node   *TreeNode
		want   bool
	}{
		{"default keeps plain", NodeFilter{}, plain, true},
		{"default drops invisible", NodeFilter{}, hidden, false},
		{"default drops virtual", NodeFilter{}, virtual, false},
		{"show invisible keeps invisible", NodeFilter{ShowInvisible: true}, hidden, true},
		{"show invisible still drops virtual", NodeFilter{ShowInvisible: true}, virtual, false},
		{"show virtual keeps virtual", NodeFilter{ShowVirtual: true}, virtual, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.node))
		})
	}
}

func TestTreeWalkAndSize(t *testing.T) {
	leaf := &Tree{Children: []*Tree{}}
	mid := &Tree{Children: []*Tree{leaf}}
	root := &Tree{Children: []*Tree{mid, {Children: []*Tree{}}}}

	assert.Equal(t, 3, root.Size())
	assert.Equal(t, 0, leaf.Size())

	var levels []int
	root.Walk(func(_ *Tree, level int) bool {
		levels = append(levels, level)
		return true
	})
	assert.Equal(t, []int{0, 1, 2, 1}, levels)

	var pruned int
	root.Walk(func(tr *Tree, level int) bool {
		pruned++
		return tr != mid
	})
	assert.Equal(t, 3, pruned, "returning false skips the children")
}
