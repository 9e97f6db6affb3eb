// Command shmstat inspects a running publisher's shared-memory segment: its
// valid flag, incarnation cookie, and ring counters (capacity, occupancy,
// head/tail). It does not report the ring lock's state. It's a read-only diagnostic
// tool, grounded on the same kind of ad hoc capacity probe developers reach
// for when a ring looks stuck.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/lexus2k/pipeline/internal/transport/shm"
)

func main() {
	name := flag.String("name", "", "segment name (required)")
	watch := flag.Duration("watch", 0, "if set, re-print stats every interval until interrupted")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "shmstat: -name is required")
		os.Exit(2)
	}

	if *watch <= 0 {
		if err := printOnce(*name); err != nil {
			log.Fatalf("shmstat: %v", err)
		}
		return
	}

	for {
		if err := printOnce(*name); err != nil {
			log.Printf("shmstat: %v", err)
		}
		fmt.Println("---")
		time.Sleep(*watch)
	}
}

func printOnce(name string) error {
	seg, err := shm.OpenSegment(name)
	if err != nil {
		return fmt.Errorf("open segment %q: %w", name, err)
	}
	defer seg.Close()

	ring := shm.NewRing(seg)
	state := ring.DebugState()

	fmt.Printf("segment:   %s\n", name)
	fmt.Printf("valid:     %t\n", seg.Valid())
	fmt.Printf("version:   %d\n", seg.Version())
	fmt.Printf("capacity:  %d slots\n", state.Capacity)
	fmt.Printf("occupancy: %d/%d\n", state.Count, state.Capacity)
	fmt.Printf("head/tail: %d/%d\n", state.Head, state.Tail)
	return nil
}
