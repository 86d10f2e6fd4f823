// Command nexakernel boots the simulated kernel: bring up the console,
// physical memory, the interrupt table, the legacy PIC and timer, the
// scheduler and idle task, a couple of demo tasks, then hand off to the
// scheduler forever.
package main

import (
	"os"
	"time"

	"github.com/varunaditya27/nexakernel/bootinfo"
	"github.com/varunaditya27/nexakernel/config"
	"github.com/varunaditya27/nexakernel/console"
	"github.com/varunaditya27/nexakernel/ctxswitch"
	"github.com/varunaditya27/nexakernel/interrupt"
	"github.com/varunaditya27/nexakernel/ioport"
	"github.com/varunaditya27/nexakernel/irq"
	"github.com/varunaditya27/nexakernel/mm/frame"
	"github.com/varunaditya27/nexakernel/mm/heap"
	"github.com/varunaditya27/nexakernel/pic"
	"github.com/varunaditya27/nexakernel/sched"
	"github.com/varunaditya27/nexakernel/task"
	"github.com/varunaditya27/nexakernel/timer"
)

func main() {
	con := console.New(os.Stdout)
	con.Clear(console.ColorGray)
	con.Printf("NexaKernel booting\n")

	info := bootinfo.Info{Flags: bootinfo.MemInfoFlag, LowerKB: 640, UpperKB: 131072}
	con.Printf("usable memory: %d KiB\n", info.UsableBytes()/1024)

	if err := frame.Default.Init(0x200000, info.UsableBytes()); err != 0 {
		con.Panicf("main", 0, "frame.Init failed: %v", err)
	}
	frame.Default.Reserve(0, 0x200000) // kernel image + legacy BIOS/video region

	if err := heap.Default.Init(mustAllocFrame(con), config.KernelHeapSize); err != 0 {
		con.Panicf("main", 0, "heap.Init failed: %v", err)
	}

	tbl := interrupt.Default
	tbl.Install(interrupt.DefaultHandler(con))
	con.Printf("interrupt table installed\n")

	bus := ioport.NewFake() // stands in for real IN/OUT on this host
	pic.Default.Init(bus)
	dispatcher := irq.Default
	dispatcher.Install(tbl, pic.Default)

	timer.Default.Init(bus, config.SchedulerTickHz)
	dispatcher.RegisterHandler(0, func(f *interrupt.Frame) {
		timer.Default.Tick()
	})
	pic.Default.Enable(0)
	con.Printf("timer: %d Hz\n", config.SchedulerTickHz)

	scheduler := sched.Default
	sw := ctxswitch.NewSwitcher()
	scheduler.Init(task.Default, sw, sched.PolicyRoundRobin, config.MaxTasks,
		heap.Default.Alloc, heap.Default.Free)
	timer.Default.OnTick(scheduler.OnTick)

	scheduler.CreateTask("greeter", func(arg any) {
		con.Printf("hello from task %v\n", arg)
	}, "greeter", config.DefaultPriority, config.DefaultStackSize, timer.Default.Ticks(), heap.Default.Alloc)

	scheduler.CreateTask("ticker", func(arg any) {
		for i := 0; i < 5; i++ {
			con.Printf("ticker: tick %d\n", i)
			scheduler.Yield()
		}
	}, nil, config.DefaultPriority, config.DefaultStackSize, timer.Default.Ticks(), heap.Default.Alloc)

	con.Printf("handing off to scheduler\n")
	go simulateTimerInterrupts(dispatcher)
	scheduler.Run() // never returns
}

// mustAllocFrame hands the heap its backing span: one contiguous run large
// enough for config.KernelHeapSize, taken from the frame pool like any
// other kernel allocation would be.
func mustAllocFrame(con *console.Console) uintptr {
	frames := (config.KernelHeapSize + config.PageSize - 1) / config.PageSize
	addr := frame.Default.AllocContiguous(frames)
	if addr == 0 {
		con.Panicf("main", 0, "out of physical memory for kernel heap")
	}
	return uintptr(addr)
}

// simulateTimerInterrupts stands in for the hardware timer actually
// raising IRQ0: on real silicon the CPU traps into the shared IRQ entry
// on its own schedule. Hosted under `go test`/`go run`, nothing raises
// that trap, so boot wires a goroutine that periodically drives the same
// dispatch path a real vector-32 trap would.
func simulateTimerInterrupts(d *irq.Dispatcher) {
	tickInterval := time.Second / time.Duration(config.SchedulerTickHz)
	for range time.Tick(tickInterval) {
		d.Dispatch(0, &interrupt.Frame{Vector: config.IRQVectorBase})
	}
}
