package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pihealth/pihealth/database"
	"github.com/pihealth/pihealth/database/sqlite"
	"github.com/pihealth/pihealth/sampler"
)

func _main() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("Could not load configuration file: %v", err)
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version         : %v", version())
	log.Infof("Home dir        : %v", cfg.HomeDir)
	log.Infof("Database        : %v", cfg.DBPath)
	log.Infof("Interval        : %v", cfg.Interval)

	// Prepare database.
	sqlite.UseLogger(dbLog)
	db, err := sqlite.New(database.Config{Path: cfg.DBPath})
	if err != nil {
		return err
	}
	if err := db.Open(); err != nil {
		return err
	}
	defer db.Close()
	log.Infof("Database version: %v", database.Version)

	sampler.UseLogger(smpLog)
	smp := sampler.New(sampler.WithDiskPath(cfg.DiskPath))

	// Setup OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Sampling loop.  A failed collection or insert is logged and the loop
	// continues; a single bad tick must never terminate the daemon.
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		m, network, err := smp.Collect()
		if err != nil {
			log.Errorf("collect: %v", err)
		} else if err := db.Insert(m, network); err != nil {
			log.Errorf("insert: %v", err)
		} else {
			log.Debugf("logged snapshot %v at %v with %v interfaces",
				m.ID, m.Timestamp, len(network))
			log.Tracef("snapshot: %v", spew.Sdump(m))
		}

		select {
		case sig := <-sigs:
			log.Infof("Terminating with %v", sig)
			return nil
		case <-ticker.C:
		}
	}
}

func main() {
	if err := _main(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
