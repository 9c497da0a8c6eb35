// Command kernel is the image entry point: it wires an application into
// package boot and lets boot's assembly _start carry the board the rest of
// the way. There is no scheduler and no demo application here — every
// userland snake-game-style program this kernel could host is out of
// scope; this just proves the core boots by printing a heartbeat line
// once a second of counter time.
package main

import (
	"github.com/rimekernel/ember/boot"
	"github.com/rimekernel/ember/serial"
	"github.com/rimekernel/ember/timer"
)

func init() {
	boot.App = run
}

func run() {
	serial.Write("kernel core up\n")
	var last uint64
	for {
		ms, ok := timer.Millis()
		if ok && ms-last >= 1000 {
			last = ms
			serial.Write("tick\n")
		}
	}
}

func main() {}
