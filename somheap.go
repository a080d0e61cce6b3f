// ABOUTME: Root package of the SOM runtime memory manager carrying version information
// ABOUTME: The manager lives in heap, values in value, backend root providers under mutator

// Package somheap is a precise semispace memory manager for a SOM-style runtime.
// Objects are bump-allocated in the active space and survivors of a collection are
// copied to the other space, starting from the slots the interpreter backends report
// as roots. The graph and heapdump packages analyze heap snapshots offline.
package somheap

// Version is the semantic version of the module
const Version = "0.1.0-dev"
