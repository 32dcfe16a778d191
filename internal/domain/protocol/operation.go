package protocol

import "fmt"

// OpType discriminates the operation union
type OpType string

const (
	OpCreateElement    OpType = "createElement"
	OpSetAttribute     OpType = "setAttribute"
	OpAppendChild      OpType = "appendChild"
	OpRemoveChild      OpType = "removeChild"
	OpSetTextContent   OpType = "setTextContent"
	OpAddEventListener OpType = "addEventListener"
)

// RootNodeID addresses the renderer's mount point. Fragments attach their
// top-level elements to it.
const RootNodeID = "root"

// OpTypes lists every operation variant
func OpTypes() []OpType {
	return []OpType{
		OpCreateElement,
		OpSetAttribute,
		OpAppendChild,
		OpRemoveChild,
		OpSetTextContent,
		OpAddEventListener,
	}
}

// Operation is a single DOM-mutation instruction addressed by logical node
// ids. Only the fields of the active variant are populated.
type Operation struct {
	Type OpType `json:"type"`

	// createElement
	TagName string `json:"tagName,omitempty"`

	// createElement, setAttribute, setTextContent, addEventListener
	NodeID string `json:"nodeId,omitempty"`

	// appendChild, removeChild
	ParentID string `json:"parentId,omitempty"`
	ChildID  string `json:"childId,omitempty"`

	// setAttribute
	AttributeName  string `json:"attributeName,omitempty"`
	AttributeValue string `json:"attributeValue,omitempty"`

	// setTextContent
	TextContent string `json:"textContent,omitempty"`

	// addEventListener
	EventType     string `json:"eventType,omitempty"`
	EventListener string `json:"eventListener,omitempty"`
}

// CreateElement builds a createElement operation
func CreateElement(tagName, nodeID string) Operation {
	return Operation{Type: OpCreateElement, TagName: tagName, NodeID: nodeID}
}

// SetAttribute builds a setAttribute operation
func SetAttribute(nodeID, name, value string) Operation {
	return Operation{Type: OpSetAttribute, NodeID: nodeID, AttributeName: name, AttributeValue: value}
}

// AppendChild builds an appendChild operation
func AppendChild(parentID, childID string) Operation {
	return Operation{Type: OpAppendChild, ParentID: parentID, ChildID: childID}
}

// RemoveChild builds a removeChild operation
func RemoveChild(parentID, childID string) Operation {
	return Operation{Type: OpRemoveChild, ParentID: parentID, ChildID: childID}
}

// SetTextContent builds a setTextContent operation
func SetTextContent(nodeID, text string) Operation {
	return Operation{Type: OpSetTextContent, NodeID: nodeID, TextContent: text}
}

// AddEventListener builds an addEventListener operation
func AddEventListener(nodeID, eventType, listener string) Operation {
	return Operation{Type: OpAddEventListener, NodeID: nodeID, EventType: eventType, EventListener: listener}
}

// Validate checks the variant's required fields. Node ids are opaque;
// transport only requires them to be present.
func (op Operation) Validate() error {
	switch op.Type {
	case OpCreateElement:
		if op.TagName == "" {
			return fmt.Errorf("createElement requires tagName")
		}
		if op.NodeID == "" {
			return fmt.Errorf("createElement requires nodeId")
		}
	case OpSetAttribute:
		if op.NodeID == "" {
			return fmt.Errorf("setAttribute requires nodeId")
		}
		if op.AttributeName == "" {
			return fmt.Errorf("setAttribute requires attributeName")
		}
	case OpAppendChild, OpRemoveChild:
		if op.ParentID == "" {
			return fmt.Errorf("%s requires parentId", op.Type)
		}
		if op.ChildID == "" {
			return fmt.Errorf("%s requires childId", op.Type)
		}
	case OpSetTextContent:
		if op.NodeID == "" {
			return fmt.Errorf("setTextContent requires nodeId")
		}
	case OpAddEventListener:
		if op.NodeID == "" {
			return fmt.Errorf("addEventListener requires nodeId")
		}
		if op.EventType == "" {
			return fmt.Errorf("addEventListener requires eventType")
		}
		if op.EventListener == "" {
			return fmt.Errorf("addEventListener requires eventListener")
		}
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
	return nil
}
