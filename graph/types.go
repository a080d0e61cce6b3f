// ABOUTME: Core data types for the heap object graph
// ABOUTME: Objects are identified by their heap address; address 0 is the super-root

package graph

// ObjID identifies a heap object by its address. 0 is never a valid address and is
// used for the synthetic super-root that points at every root.
type ObjID uint64

// Object is one node of the graph.
type Object struct {
	ID   ObjID   // heap address
	Kind string  // layout name or slice element type, e.g. "Instance", "Slice<Value>"
	Size uint64  // bytes, header included
	Ptrs []ObjID // outgoing references in field order
}

// Roots are the objects referenced from root slots.
type Roots struct {
	IDs []ObjID
}
