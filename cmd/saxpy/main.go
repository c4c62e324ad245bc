// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Command saxpy demonstrates the elementwise SAXPY scenario: y[i] =
// alpha*x[i] + y[i] over a Vulkan compute device, uploading x and y,
// dispatching the kernel with an inferred global thread count, and
// reading y back for verification against a CPU reference.
//
// The kernel descriptor blob is produced by the offline kernel compiler,
// which this module does not implement, and is consumed here as opaque
// bytes loaded from the path given by -kernel.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gogpu/krnl"
	"github.com/gogpu/krnl/scalar"
)

const (
	alpha = float32(0.5)
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

func run() error {
	kernelPath := flag.String("kernel", "saxpy.kdesc", "path to the compiled saxpy kernel-descriptor blob")
	deviceIndex := flag.Int("device", 0, "device index to open")
	flag.Parse()

	x := []float32{1.0, 2.0, 3.0, 4.0}
	y := []float32{10.0, 20.0, 30.0, 40.0}
	want := []float32{10.5, 21.0, 31.5, 42.0}

	fmt.Println("=== SAXPY: y = alpha*x + y ===")
	fmt.Println()

	fmt.Print("1. Opening device... ")
	device, err := krnl.NewBuilder().Index(*deviceIndex).Build()
	if err != nil {
		return fmt.Errorf("build device: %w", err)
	}
	info := device.Info()
	fmt.Printf("OK (%s)\n", info.Name)

	fmt.Print("2. Loading kernel descriptor... ")
	blob, err := os.Open(*kernelPath)
	if err != nil {
		return fmt.Errorf("open kernel descriptor: %w", err)
	}
	defer blob.Close()
	builder, err := krnl.NewKernelBuilder(blob)
	if err != nil {
		return fmt.Errorf("decode kernel descriptor: %w", err)
	}
	fmt.Println("OK")

	fmt.Print("3. Specializing workgroup size (threads_x = 64)... ")
	if _, err := builder.Specialize([]scalar.Elem{scalar.ElemU32(64)}); err != nil {
		return fmt.Errorf("specialize: %w", err)
	}
	fmt.Println("OK")

	fmt.Print("4. Building pipeline... ")
	kernel, err := builder.Build(device)
	if err != nil {
		return fmt.Errorf("build kernel: %w", err)
	}
	fmt.Println("OK")

	fmt.Print("5. Uploading x, y... ")
	xBuf, err := krnl.FromVec(x)
	if err != nil {
		return fmt.Errorf("x: from_vec: %w", err)
	}
	xFuture, err := xBuf.IntoDevice(device)
	if err != nil {
		return fmt.Errorf("x: into_device: %w", err)
	}
	xDev, err := xFuture.Wait()
	if err != nil {
		return fmt.Errorf("x: upload: %w", err)
	}

	yBuf, err := krnl.FromVec(y)
	if err != nil {
		return fmt.Errorf("y: from_vec: %w", err)
	}
	yFuture, err := yBuf.IntoDevice(device)
	if err != nil {
		return fmt.Errorf("y: into_device: %w", err)
	}
	yDev, err := yFuture.Wait()
	if err != nil {
		return fmt.Errorf("y: upload: %w", err)
	}
	fmt.Println("OK")

	fmt.Print("6. Dispatching (global_threads inferred from item length)... ")
	args := []krnl.Arg{krnl.BindBuffer(xDev), krnl.BindBuffer(yDev)}
	pushes := []krnl.Push{krnl.PushValue(scalar.ElemF32(alpha))}
	completion, err := kernel.Dispatch([3]uint32{}, args, pushes)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if err := completion.Wait(); err != nil {
		return fmt.Errorf("await dispatch: %w", err)
	}
	fmt.Println("OK")

	fmt.Print("7. Reading back y... ")
	got, err := yDev.IntoVec()
	if err != nil {
		return fmt.Errorf("y: into_vec: %w", err)
	}
	fmt.Println("OK")

	return verify(want, got)
}

func verify(want, got []float32) error {
	fmt.Println()
	fmt.Printf("want: %v\n", want)
	fmt.Printf("got:  %v\n", got)

	if len(got) != len(want) {
		return fmt.Errorf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("mismatch at %d: got %v, want %v", i, got[i], want[i])
		}
	}
	fmt.Println("PASS: y matches alpha*x + y")
	return nil
}
