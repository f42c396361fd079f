// MetaMAC: online MAC-protocol selection daemon
// Copyright (C) 2026  MetaMAC Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// metamacsim drives the control loop against an in-memory device.Sim
// instead of real hardware, synthesizing slot traffic at a configurable
// pattern. It exists so the pipeline can be exercised end-to-end without
// a programmable MAC device attached.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"metamac/internal/command"
	"metamac/internal/config"
	"metamac/internal/device"
	"metamac/internal/display"
	"metamac/internal/processor"
	"metamac/internal/protocol"
	"metamac/internal/queueing"
	"metamac/internal/reader"
	"metamac/internal/slotcache"
	"metamac/internal/supervisor"
)

const (
	commandPort   = 8400
	defaultReadUs = 500
	defaultSlotUs = 1000
)

var (
	verbose    = flag.Bool("verbose", true, "show a live console display")
	readonly   = flag.Bool("readonly", false, "observe and score, but never write device bytecode")
	cycle      = flag.Bool("cycle", false, "rotate protocols once per second instead of selecting the argmax")
	etaOverride = flag.Float64("eta", 0, "override the configured learning rate (must be > 0)")
	usebusy    = flag.Bool("usebusy", false, "include BUSY_SLOT in channel_busy")
	duration   = flag.Duration("duration", 0, "stop automatically after this long (0 = run until interrupted)")
	trafficMod = flag.Uint("traffic-mod", 4, "idle slots occur when slot_num mod this value == traffic-offset")
	trafficOff = flag.Uint("traffic-offset", 1, "offset within the traffic-mod cycle treated as idle")
)

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: metamacsim [flags] CONFIG")
		os.Exit(1)
	}
	configPath := flag.Arg(0)

	eta, initialProtocolID, protocols, err := config.Load(configPath)
	if err != nil {
		log.Printf("configuration invalid: %v", err)
		os.Exit(1)
	}
	if *etaOverride > 0 {
		eta = *etaOverride
	}

	suite, err := protocol.New(protocols, eta, *cycle)
	if err != nil {
		log.Printf("memory exhaustion building protocol suite: %v", err)
		os.Exit(1)
	}

	sim := device.NewSim(defaultSlotUs)

	slots := slotcache.New(sim, *readonly)
	if err := slots.InitialLoad(suite, initialProtocolID); err != nil {
		log.Printf("device I/O error during initial load: %v", err)
		os.Exit(1)
	}

	q := queueing.New(queueing.DefaultCapacity)
	mailbox := command.NewMailbox()

	recv, err := command.Listen(commandPort, mailbox, len(suite.Protocols), suite.LastAlohaIndex)
	if err != nil {
		log.Printf("device I/O error opening command endpoint: %v", err)
		os.Exit(1)
	}

	var sink processor.DisplaySink
	if *verbose {
		sink = display.Console{}
	}

	rd := reader.New(sim, q, reader.Config{
		ReadIntervalUs: defaultReadUs,
		SlotTimeUs:     defaultSlotUs,
		UseBusy:        *usebusy,
	})
	pr := processor.New(suite, q, slots, mailbox, nil, nil, sink, processor.Config{
		Readonly:  *readonly,
		BatchSize: processor.BatchSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if *duration > 0 {
		time.AfterFunc(*duration, cancel)
	}
	go generateTraffic(ctx, sim, uint64(*trafficMod), uint64(*trafficOff))

	sup := supervisor.New(rd, pr, recv)
	reason := sup.Run(ctx)
	cancel()
	if reason != "" {
		log.Printf("fatal: %s", reason)
		os.Exit(1)
	}
}

// generateTraffic advances sim once per nominal slot, marking slots idle
// on the configured (mod, offset) pattern and busy-with-a-successful-
// transmission otherwise, with an occasional collision thrown in so the
// estimator has something to discriminate against.
func generateTraffic(ctx context.Context, sim *device.Sim, mod, offset uint64) {
	ticker := time.NewTicker(sim.SlotTime())
	defer ticker.Stop()
	var slotNum uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		idle := mod > 0 && slotNum%mod == offset
		ev := device.SlotEvent{}
		if !idle {
			ev.PacketQueued = true
			ev.Transmitted = true
			if rand.Float64() < 0.1 {
				ev.TransmitOther = true
			} else {
				ev.TransmitSuccess = true
			}
		}
		sim.Advance(ev)
		slotNum++
	}
}
