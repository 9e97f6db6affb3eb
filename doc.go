// Package pipeline implements a packet dataflow runtime: directed graphs of
// Nodes that exchange Packets through named Pads.
//
// A Pipeline owns Nodes; Nodes own Pads; Pads forward Packets to a linked
// peer (OUTPUT) or queue them for the owning Node's ProcessPacket hook
// (INPUT). Graphs are assembled before Start and may span process
// boundaries through the shared-memory publisher/subscriber pair in
// internal/transport/shm.
package pipeline
