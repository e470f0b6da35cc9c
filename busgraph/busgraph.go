// Package busgraph implements the optional bus-layout dump named by
// SPEC_FULL.md §2's "Bus graph dump" component: a `.dot`-renderable graph
// of a live Bus's regions and peripherals, for debugging a manifest before
// committing firmware to it. Built on the teacher's own
// `github.com/bradleyjkemp/memviz` dependency, used in the teacher's test
// suite (`debugger/terminal/commandline/parser_test.go`) the same way:
// `memviz.Map(w, v)` walks v's fields by reflection and writes a Graphviz
// dot graph to w.
package busgraph

import (
	"fmt"
	"io"

	"github.com/bradleyjkemp/memviz"

	"github.com/opsilicon/firmsim/hardware/memory/bus"
)

// layout is the shape memviz actually walks -- a summary of a Bus's
// regions and peripherals with each region's backing Data omitted, since a
// flash or RAM region's raw bytes would dwarf the graph and contribute
// nothing to visualizing the address-space layout itself.
type layout struct {
	Regions     []regionNode
	Peripherals []peripheralNode
}

type regionNode struct {
	Name string
	Base uint32
	Size uint32
	ROM  bool
}

type peripheralNode struct {
	Name string
	Base uint32
	Size uint32
	IRQ  int
	Type string
}

// Dump writes a Graphviz dot graph of b's region and peripheral layout to
// w. The graph is a debugging aid only -- it is never read back.
func Dump(w io.Writer, b *bus.Bus) {
	l := layout{}
	for _, r := range b.Regions() {
		l.Regions = append(l.Regions, regionNode{Name: r.Name, Base: r.Base, Size: r.Size, ROM: r.ROM})
	}
	for _, p := range b.Peripherals() {
		l.Peripherals = append(l.Peripherals, peripheralNode{
			Name: p.Name,
			Base: p.Base,
			Size: p.Size,
			IRQ:  p.IRQ,
			Type: deviceTypeName(p),
		})
	}
	memviz.Map(w, &l)
}

func deviceTypeName(p bus.PeripheralEntry) string {
	if p.Device == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", p.Device)
}
