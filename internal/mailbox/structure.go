package mailbox

import (
	"strings"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/webmail/internal/model"
)

// structureFromIMAP converts a BODYSTRUCTURE response into a StructNode
// tree. The walk uses an explicit stack so hostile nesting depth cannot
// exhaust the goroutine stack.
func structureFromIMAP(bs imap.BodyStructure) *model.StructNode {
	if bs == nil {
		return nil
	}

	type pending struct {
		src imap.BodyStructure
		dst *model.StructNode
	}

	root := &model.StructNode{}
	stack := []pending{{src: bs, dst: root}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch part := top.src.(type) {
		case *imap.BodyStructureMultiPart:
			top.dst.Kind = model.NodeBranch
			top.dst.Children = make([]*model.StructNode, len(part.Children))
			for i, child := range part.Children {
				node := &model.StructNode{}
				top.dst.Children[i] = node
				stack = append(stack, pending{src: child, dst: node})
			}

		case *imap.BodyStructureSinglePart:
			top.dst.Kind = model.NodeLeaf
			top.dst.Type = strings.ToLower(part.Type)
			top.dst.Subtype = strings.ToLower(part.Subtype)
			if part.Extended != nil && part.Extended.Disposition != nil {
				top.dst.Disposition = strings.ToLower(part.Extended.Disposition.Value)
			}

		default:
			top.dst.Kind = model.NodeLeaf
		}
	}

	return root
}
