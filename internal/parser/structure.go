package parser

import (
	"strings"

	"github.com/nhle/webmail/internal/model"
)

// dispositionAttachment is the only disposition counted as an attachment.
// A part's MIME type alone is never treated as evidence.
const dispositionAttachment = "attachment"

// HasAttachments reports whether any leaf in tree has an attachment
// disposition. A nil tree has none.
func HasAttachments(tree *model.StructNode) bool {
	found := false
	walkLeaves(tree, func(leaf *model.StructNode) bool {
		if isAttachment(leaf) {
			found = true
			return false
		}
		return true
	})
	return found
}

// CountAttachments returns the number of leaves in tree with an attachment
// disposition.
func CountAttachments(tree *model.StructNode) int {
	count := 0
	walkLeaves(tree, func(leaf *model.StructNode) bool {
		if isAttachment(leaf) {
			count++
		}
		return true
	})
	return count
}

func isAttachment(leaf *model.StructNode) bool {
	return strings.EqualFold(strings.TrimSpace(leaf.Disposition), dispositionAttachment)
}

// walkLeaves visits every leaf of tree depth-first with an explicit stack
// until visit returns false.
func walkLeaves(tree *model.StructNode, visit func(*model.StructNode) bool) {
	if tree == nil {
		return
	}

	stack := []*model.StructNode{tree}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if node == nil {
			continue
		}

		if node.Kind == model.NodeBranch {
			for i := len(node.Children) - 1; i >= 0; i-- {
				stack = append(stack, node.Children[i])
			}
			continue
		}

		if !visit(node) {
			return
		}
	}
}
