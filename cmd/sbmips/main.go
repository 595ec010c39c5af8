package main

import (
	"flag"
	"log"
	"os"

	"github.com/sbvm/sbmips/emulator"
	"github.com/sbvm/sbmips/sbin"
)

func main() {
	var compile string
	var output string
	var stack uint
	var heap uint
	var verbose bool

	flag.StringVar(&compile, "c", "", ".s file to assemble")
	flag.StringVar(&output, "o", "", "write SBIN image, do not execute")
	flag.UintVar(&stack, "s", emulator.DefaultStackSize, "guest stack size in bytes")
	flag.UintVar(&heap, "m", emulator.DefaultHeapSize, "guest heap size in bytes")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")

	flag.Parse()

	if flag.NArg() > 1 {
		log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args()[1:])
	}

	emu := emulator.NewEmulator()
	emu.Verbose = verbose
	emu.StackSize = uint32(stack)
	emu.HeapSize = uint32(heap)
	emu.Console.Output = os.Stdout

	// Assemble a new program.
	if len(compile) != 0 {
		inf, err := os.Open(compile)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
		defer inf.Close()

		err = emu.Assemble(inf)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
	}

	// Write an SBIN image instead of running.
	if len(output) != 0 {
		if len(compile) == 0 {
			log.Fatalf("%v: -o requires -c", os.Args[0])
		}
		ouf, err := os.Create(output)
		if err != nil {
			log.Fatalf("%v: %v", output, err)
		}
		defer ouf.Close()

		image := emu.Program.Image(emu.StackSize, emu.HeapSize)
		_, err = image.WriteTo(ouf)
		if err != nil {
			log.Fatalf("%v: %v", output, err)
		}
		return
	}

	// Run a pre-built image given as the sole argument.
	if flag.NArg() == 1 {
		inf, err := os.Open(flag.Arg(0))
		if err != nil {
			log.Fatalf("%v: %v", flag.Arg(0), err)
		}
		defer inf.Close()

		image, err := sbin.Read(inf)
		if err != nil {
			log.Fatalf("%v: %v", flag.Arg(0), err)
		}

		m, err := image.Boot()
		if err != nil {
			log.Fatal(err)
		}
		m.Verbose = verbose

		err = emu.Console.Attach(m)
		if err != nil {
			log.Fatal(err)
		}

		m.Run()
		if fault := m.Fault(); fault != nil {
			log.Fatal(fault)
		}
		return
	}

	if len(compile) == 0 {
		log.Fatalf("%v: nothing to do, need -c or an image file", os.Args[0])
	}

	err := emu.Reset()
	if err != nil {
		log.Fatal(err)
	}
	err = emu.Run()
	if err != nil {
		log.Fatal(err)
	}
}
