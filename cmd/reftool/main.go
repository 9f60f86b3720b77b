package main

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/ethereum/go-ethereum/common"
	cli "github.com/urfave/cli"
	"github.com/urfave/cli/altsrc"

	"github.com/harkal/refptr"
	"github.com/harkal/refptr/balloc"
)

// probe counts how many times the teardown hooks run.
type probe struct {
	refptr.RefTarget
	released  int32
	destroyed int32
}

func (p *probe) ReleaseResources() { atomic.AddInt32(&p.released, 1) }
func (p *probe) Deallocate()       { atomic.AddInt32(&p.destroyed, 1) }

func stressCmd(c *cli.Context) error {
	workers := c.Int("workers")
	iterations := c.Int("iterations")
	lockers := c.Int("lockers")

	obj := &probe{}
	ref := refptr.Make(obj)
	weak := refptr.WeakOf(ref)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		r := ref.Clone()
		go func() {
			defer wg.Done()
			for n := 0; n < iterations; n++ {
				s := r.Clone()
				s.Release()
			}
			r.Release()
		}()
	}
	for i := 0; i < lockers; i++ {
		wg.Add(1)
		w := weak.Clone()
		go func() {
			defer wg.Done()
			for n := 0; n < iterations; n++ {
				if s := w.Lock(); !s.IsNull() {
					s.Release()
				}
			}
			w.Release()
		}()
	}
	wg.Wait()
	ref.Release()
	weak.Release()
	elapsed := time.Since(start)

	ops := (workers + lockers) * iterations
	released := atomic.LoadInt32(&obj.released)
	destroyed := atomic.LoadInt32(&obj.destroyed)

	fmt.Println("  Stress ")
	fmt.Println("=================================")
	fmt.Printf(" Workers    : %d (+%d weak lockers)\n", workers, lockers)
	fmt.Printf(" Operations : %d\n", ops)
	fmt.Printf(" Elapsed    : %v\n", common.PrettyDuration(elapsed))
	fmt.Printf(" Throughput : %.0f ops/s\n", float64(ops)/elapsed.Seconds())
	fmt.Printf(" Released   : %d\n", released)
	fmt.Printf(" Destroyed  : %d\n", destroyed)
	fmt.Println("=================================")

	if released != 1 || destroyed != 1 {
		return fmt.Errorf("teardown ran %d/%d times, want exactly once", released, destroyed)
	}
	return nil
}

func benchCmd(c *cli.Context) error {
	iterations := c.Int("iterations")
	size := c.Int("size")
	arena := c.Int("arena") * 1024 * 1024

	buffer := make([]byte, arena)
	mm, err := balloc.NewBufferAllocator(unsafe.Pointer(&buffer[0]), uint64(arena))
	if err != nil {
		return err
	}

	data := make([]byte, size)
	start := time.Now()
	for i := 0; i < iterations; i++ {
		ref, err := refptr.NewBlob(mm, data)
		if err != nil {
			return err
		}
		ref.Release()
	}
	elapsed := time.Since(start)

	fmt.Println("  Bench ")
	fmt.Println("=================================")
	fmt.Printf(" Iterations : %d\n", iterations)
	fmt.Printf(" Blob size  : %v\n", common.StorageSize(size))
	fmt.Printf(" Arena      : %v (%v still used)\n",
		common.StorageSize(arena), common.StorageSize(mm.GetUsed()))
	fmt.Printf(" Elapsed    : %v\n", common.PrettyDuration(elapsed))
	fmt.Printf(" Throughput : %.0f blobs/s\n", float64(iterations)/elapsed.Seconds())
	fmt.Println("=================================")

	if mm.GetUsed() != 0 {
		return fmt.Errorf("arena leaked %d bytes", mm.GetUsed())
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "refptr Tool"
	app.Version = "0.0.1"
	app.Usage = "Exercise the intrusive pointer machinery from the command line"

	genericFlags := []cli.Flag{
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  "iterations",
			Usage: "Iterations per worker",
			Value: 100000,
		}),
	}

	stressFlags := append([]cli.Flag{
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  "workers",
			Usage: "Concurrent strong-reference workers",
			Value: 8,
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  "lockers",
			Usage: "Concurrent weak-lock workers",
			Value: 2,
		}),
	}, genericFlags...)

	benchFlags := append([]cli.Flag{
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  "size",
			Usage: "Blob payload size in bytes",
			Value: 1024,
		}),
		altsrc.NewIntFlag(cli.IntFlag{
			Name:  "arena",
			Usage: "Arena size in MiB",
			Value: 64,
		}),
	}, genericFlags...)

	app.Commands = []cli.Command{
		{
			Name:    "stress",
			Aliases: []string{"s"},
			Usage:   "Hammer one shared object from many goroutines",
			Flags:   stressFlags,
			Action:  stressCmd,
		},
		{
			Name:    "bench",
			Aliases: []string{"b"},
			Usage:   "Measure arena-backed blob create/release throughput",
			Flags:   benchFlags,
			Action:  benchCmd,
		},
	}

	app.Run(os.Args)
}
