// MetaMAC: online MAC-protocol selection daemon
// Copyright (C) 2026  MetaMAC Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

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
	"metamac/internal/telemetry"
)

const (
	commandPort   = 8400
	defaultReadUs = 500
	defaultSlotUs = 1000
)

var (
	verbose       = flag.Bool("verbose", false, "show a live console/TUI display instead of plain log lines")
	logfile       = flag.String("logfile", "", "path to a local CSV observation log (empty = disabled)")
	readonly      = flag.Bool("readonly", false, "observe and score, but never write device bytecode")
	cycle         = flag.Bool("cycle", false, "rotate protocols once per second instead of selecting the argmax")
	etaOverride   = flag.Float64("eta", 0, "override the configured learning rate (must be > 0)")
	usebusy       = flag.Bool("usebusy", false, "include BUSY_SLOT in channel_busy")
	remotelogging = flag.String("remotelogging", "", "IP address to send UDP telemetry to, port 4321 (empty = disabled)")
	statusAddr    = flag.String("status-addr", "", "address to serve a JSON status page on, e.g. 127.0.0.1:8401 (empty = disabled)")
)

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: metamacd [flags] CONFIG")
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

	dev, err := device.OpenUSB()
	if err != nil {
		log.Printf("device I/O error: %v", err)
		os.Exit(1)
	}
	defer dev.Close()

	slots := slotcache.New(dev, *readonly)
	if err := slots.InitialLoad(suite, initialProtocolID); err != nil {
		log.Printf("device I/O error during initial load: %v", err)
		os.Exit(1)
	}

	q := queueing.New(queueing.DefaultCapacity)
	mailbox := command.NewMailbox()

	var csvLogger *telemetry.CSVLogger
	if *logfile != "" {
		csvLogger, err = telemetry.NewCSVLogger(*logfile, suite)
		if err != nil {
			log.Printf("configuration invalid: %v", err)
			os.Exit(1)
		}
		defer csvLogger.Close()
	}

	var telem *telemetry.Emitter
	if *remotelogging != "" {
		telem, err = telemetry.Dial(*remotelogging)
		if err != nil {
			log.Printf("configuration invalid: %v", err)
			os.Exit(1)
		}
		defer telem.Close()
	}

	var recv *command.Receiver
	recv, err = command.Listen(commandPort, mailbox, len(suite.Protocols), suite.LastAlohaIndex)
	if err != nil {
		log.Printf("device I/O error opening command endpoint: %v", err)
		os.Exit(1)
	}

	var sinks display.MultiSink
	if *verbose {
		tuiSink := display.NewTUISink()
		sinks = append(sinks, tuiSink)
		prog := display.NewProgram(tuiSink)
		go func() {
			if _, err := prog.Run(); err != nil {
				log.Printf("display: tui exited: %v", err)
			}
		}()
	} else {
		sinks = append(sinks, display.Console{})
	}
	var statusSrv *display.StatusServer
	if *statusAddr != "" {
		statusSrv = display.NewStatusServer(*statusAddr)
		sinks = append(sinks, statusSrv)
		go func() {
			if err := statusSrv.Serve(context.Background()); err != nil {
				log.Printf("display: status server stopped: %v", err)
			}
		}()
	}
	var sink processor.DisplaySink
	if len(sinks) > 0 {
		sink = sinks
	}

	rd := reader.New(dev, q, reader.Config{
		ReadIntervalUs: defaultReadUs,
		SlotTimeUs:     defaultSlotUs,
		UseBusy:        *usebusy,
	})
	pr := processor.New(suite, q, slots, mailbox, csvLogger, telem, sink, processor.Config{
		Readonly:  *readonly,
		BatchSize: processor.BatchSize,
	})

	sup := supervisor.New(rd, pr, recv)
	reason := sup.Run(context.Background())
	if reason != "" {
		log.Printf("fatal: %s", reason)
		os.Exit(1)
	}
	os.Exit(0)
}
