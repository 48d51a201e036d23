// Command kernelsim boots the hosted simulation of the kernel and runs
// the mutual-exclusion seed scenario (spec §8 "S1"): two threads race
// to increment a shared counter through a Mutex[int], and the final
// count must equal exactly the sum of both threads' iterations.
package main

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/joeycumines/go-microkernel/arch/sim"
	"github.com/joeycumines/go-microkernel/console"
	"github.com/joeycumines/go-microkernel/internal/kconfig"
	"github.com/joeycumines/go-microkernel/internal/klog"
	"github.com/joeycumines/go-microkernel/kernel"
	"github.com/joeycumines/go-microkernel/kobject"
	"github.com/joeycumines/go-microkernel/ksync"
	"github.com/joeycumines/go-microkernel/memregion"
)

const itersPerWorker = 500

func main() {
	sink := console.NewSink(os.Stdout, 5*time.Millisecond)
	defer sink.Close()

	writeln(sink, fmt.Sprintf("kernelsim: booting (host avx2=%v)", cpu.X86.HasAVX2))

	cfg := kconfig.Resolve(kconfig.WithTimesliceTicks(2))
	capability := sim.New()
	sched := kernel.NewScheduler(capability, cfg)

	proc := kernel.NewProcess("demo", memregion.Config{}, true)
	proc.Handles = kobject.NewHandleTable(cfg.MaxHandlesPerProcess)

	tickSource := sim.NewTicker(sched.Tick)
	defer tickSource.Stop()

	counter := ksync.NewMutex(sched, 0)
	done := make(chan struct{}, 2)

	spawnWorker := func(name string) {
		sched.NewThread(name, proc, func() {
			for i := 0; i < itersPerWorker; i++ {
				g := counter.Lock()
				*g.Get()++
				g.Unlock()
				sched.CheckPoint()
			}
			writeln(sink, name+": finished")
			done <- struct{}{}
		}).Start()
	}

	spawnWorker("worker-a")
	spawnWorker("worker-b")

	go sched.Boot(proc)

	for i := 0; i < 2; i++ {
		<-done
	}

	g := counter.Lock()
	final := *g.Get()
	g.Unlock()

	want := 2 * itersPerWorker
	writeln(sink, fmt.Sprintf("kernelsim: final counter = %d (want %d)", final, want))
	if final != want {
		klog.PanicErr("kernelsim: mutual exclusion violated", fmt.Errorf("counter = %d, want %d", final, want))
	}
}

func writeln(sink *console.Sink, line string) {
	_ = sink.WriteAll([]byte(line + "\n"))
}
