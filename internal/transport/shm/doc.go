// Package shm implements the cross-process shared-memory ring transport
// used by the pipeline package's Publisher and Subscriber Nodes.
//
// A named, fixed-size region is memory-mapped by one publisher and any
// number of subscribers. The region holds a header (incarnation cookie,
// segment size, liveness flag, ring lock, two wake sequences, a slot
// table) followed by a payload area that the slot table's offsets index
// into. Synchronization is built from two primitives, both avoiding cgo:
// a PID-tagged compare-and-swap lock that recovers when its holder has
// died (the Go-native substitute for a pthread robust mutex's
// EOWNERDEAD), and a futex-based sequence wait/wake standing in for a
// process-shared condition variable.
package shm
