// Command journalctl drives an in-memory Journal test harness and prints
// its debug snapshot, the way ublk-mem drives an in-memory block device.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/pflag"

	journal "github.com/cowfs/cowjournal"
	"github.com/cowfs/cowjournal/internal/devices"
	"github.com/cowfs/cowjournal/internal/logging"
)

func main() {
	var (
		deviceSize = pflag.Int64("device-size", 64<<20, "size in bytes of each simulated journal device")
		numDevices = pflag.Int("devices", 2, "number of simulated journal devices")
		buckets    = pflag.Int("buckets", 16, "target journal bucket count per device")
		entries    = pflag.Int("entries", 3, "number of meta() barriers to write before snapshotting")
		verbose    = pflag.Bool("v", false, "verbose output")
	)
	pflag.Parse()

	cfg := journal.DefaultConfig()

	logLevel := logging.LevelInfo
	if *verbose {
		logLevel = logging.LevelDebug
	}
	appLogger := logging.NewLogger(&logging.Config{Level: logLevel, Output: os.Stderr})

	devs := make([]journal.Device, *numDevices)
	for i := range devs {
		devs[i] = devices.NewMemory(*deviceSize)
		appLogger.WithDevice(i).Debugf("simulated device ready: size=%d", *deviceSize)
	}

	j, err := journal.FsJournalInit(cfg, devs, &journal.Options{Logger: appLogger})
	if err != nil {
		log.Fatalf("fs_journal_init: %v", err)
	}
	defer j.FsJournalExit()

	if err := j.SetNrJournalBuckets(*buckets); err != nil {
		log.Fatalf("set_nr_journal_buckets: %v", err)
	}
	if err := j.FsJournalStart(cfg, nil); err != nil {
		log.Fatalf("fs_journal_start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	metaLogger := appLogger.WithOp("meta")
	for i := 0; i < *entries; i++ {
		if err := j.Meta(ctx); err != nil {
			metaLogger.WithError(err).Errorf("meta() #%d failed", i)
			log.Fatalf("meta() #%d: %v", i, err)
		}
		metaLogger.Debugf("meta() #%d durable", i)
		if *verbose {
			fmt.Printf("meta() #%d durable\n", i)
		}
	}

	fmt.Println()
	j.Core().RenderReservationState(os.Stdout)
	fmt.Println()
	j.Core().RenderPinLists(os.Stdout)

	snap := j.Metrics().Snapshot()
	fmt.Printf("\nswitches=%d reservations_granted=%d device_write_ops=%d device_write_bytes=%d\n",
		snap.Switches, snap.ReservationsGranted, snap.DeviceWriteOps, snap.DeviceWriteBytes)
}
