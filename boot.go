package main

import "github.com/ryanbreen/breenix/kernel/kmain"

var multibootInfoPtr uintptr

// main makes a dummy call to the actual kernel entrypoint function. It is
// intentionally defined to prevent the Go compiler from optimizing away
// the real kernel code as it's not aware of the presence of the rt0 code.
//
// A global variable is passed as an argument to Kmain to prevent the
// compiler from inlining the actual call and removing Kmain from the
// generated .o file. At runtime the rt0 assembly code invokes kmain.Kmain
// directly, after setting up the GDT and a minimal g0 struct, passing the
// multiboot info pointer and kernel image bounds the bootloader handed
// over.
//
// main is not expected to return. If it does, the rt0 code will halt the
// CPU.
func main() {
	kmain.Kmain(multibootInfoPtr, 0, 0)
}
