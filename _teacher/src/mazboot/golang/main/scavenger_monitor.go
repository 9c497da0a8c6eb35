package main

import (
	"sync/atomic"
	_ "unsafe"
)

// CRITICAL: These types must match runtime internal structures exactly
// Based on runtime/mgcscavenge.go:279-293 (Go 1.25.5)

// Disabled - runtime.scavenger not accessible in c-archive mode
// go:linkname scavenger runtime.scavenger
var scavenger scavengerState // Dummy declaration to avoid compilation errors

type scavengerState struct {
	lock       mutex
	g          guintptr
	parked     bool
	timer      *timer
	sysmonWake atomic.Uint32 // From sync/atomic - uses LDARW/STLRW ARM64 instructions
}

type mutex struct {
	lockRankStruct
	key uintptr
}

type lockRankStruct struct{}

// guintptr is defined in runtime_types.go

type timer struct {
	// Approximate timer structure - details don't matter for our use
	pp      uintptr
	when    int64
	period  int64
	f       uintptr
	arg     uintptr
	seq     uintptr
	nextwhen int64
	status  uint32
}

// Disabled - runtime.(*scavengerState).wake not accessible in c-archive mode
// go:linkname wakeScavenger runtime.(*scavengerState).wake
// func wakeScavenger(s *scavengerState)

var scavengerMonitorEnabled = false // Disabled - runtime.scavenger not accessible in c-archive mode

func startScavengerMonitor() {
	if !scavengerMonitorEnabled {
		print("Scavenger Monitor: disabled\r\n")
		return
	}
	go scavengerMonitorLoop()
}

func scavengerMonitorLoop() {
	print("Scavenger Monitor: started (disabled - runtime.scavenger not accessible)\r\n")

	// Note: Even though we're polling, the actual scavenger wake functionality
	// is disabled because runtime.scavenger is not accessible in c-archive mode
	_ = timerTickCount
	// wakeCount := 0
	// for {
	// 	currentTick := timerTickCount.Load()
	// 	// Load sysmonWake flag using atomic load (compiles to LDARW on ARM64)
	// 	// This matches runtime/proc.go:6373 which uses .Load()
	// 	// if scavenger.sysmonWake.Load() != 0 {
	// 	// 	wakeCount++
	// 	// 	print("Scavenger Monitor: waking at interrupt #", currentTick)
	// 	// 	print(" (wake #", wakeCount, ")\r\n")
	// 	// 	wakeScavenger(&scavenger)
	// 	// }
	// 	runtime.Gosched()
	// }
}
