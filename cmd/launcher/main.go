package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"dmx/internal/channel"
	"dmx/internal/config"
	"dmx/internal/coordinator"
	"dmx/internal/dispatcher"
	"dmx/internal/ioutils"
	"dmx/internal/logging"
	"dmx/internal/process"
	"dmx/internal/worker"
)

// actor bundles one process of the topology with the infrastructure it owns,
// so the launcher can tear everything down in one place.
type actor struct {
	id   process.ID
	ch   channel.Channel
	disp dispatcher.Dispatcher
	run  func() error
	stop func()
}

// Runs the full eight-actor topology (two coordinators, six workers) inside a
// single OS process, over real TCP loopback connections.
func main() {
	confFlag := flag.String("config", "", "path to a JSON configuration file")
	flag.Parse()

	conf := config.Default()
	if *confFlag != "" {
		var err error
		conf, err = config.Load(*confFlag)
		if err != nil {
			log.Fatalf("Failed to read config file %s: %v", *confFlag, err)
		}
	}

	stream := ioutils.NewStdStream()

	var actors []*actor
	for _, group := range []process.Group{process.GroupA, process.GroupB} {
		a, err := makeCoordinator(conf, stream, group)
		if err != nil {
			log.Fatal("Failed to start ", process.NewCoordinator(group), ": ", err)
		}
		actors = append(actors, a)

		for n := 1; n <= process.WorkersPerGroup; n++ {
			a, err := makeWorker(conf, stream, group, n)
			if err != nil {
				log.Fatal("Failed to start ", process.NewWorker(group, n), ": ", err)
			}
			actors = append(actors, a)
		}
	}

	var wg sync.WaitGroup
	failures := make(chan error, len(actors))
	for _, a := range actors {
		wg.Add(1)
		go func(a *actor) {
			defer wg.Done()
			if err := a.run(); err != nil {
				failures <- fmt.Errorf("%v: %w", a.id, err)
			}
		}(a)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigs:
		log.Print("Stop signal received; shutting down")
	case err := <-failures:
		log.Print("Actor failed: ", err)
		exitCode = 1
	}

	for _, a := range actors {
		a.stop()
		a.disp.Close()
		a.ch.Close()
	}
	wg.Wait()
	os.Exit(exitCode)
}

func makeLogger(conf config.Config, stream ioutils.IOStream, id process.ID) *logging.Logger {
	var logFile *logging.LogFile
	if conf.LogPath != "" {
		logFile = logging.NewLogFile(fmt.Sprintf("%s/%v.log", conf.LogPath, id))
	}
	return logging.NewLogger(stream, logFile, id.String(), logFile != nil && !conf.Debug)
}

func makeCoordinator(conf config.Config, stream ioutils.IOStream, group process.Group) (*actor, error) {
	self := process.NewCoordinator(group)
	logger := makeLogger(conf, stream, self)

	ch, err := channel.NewTCP(logger.WithPostfix("chan"), self, conf)
	if err != nil {
		return nil, err
	}
	d := dispatcher.New(logger.WithPostfix("disp").WithLogLevel(logging.WARN), ch)
	c := coordinator.New(logger, conf, group, ch, d, group == process.GroupA)

	return &actor{id: self, ch: ch, disp: d, run: c.Run, stop: c.Close}, nil
}

func makeWorker(conf config.Config, stream ioutils.IOStream, group process.Group, number int) (*actor, error) {
	self := process.NewWorker(group, number)
	logger := makeLogger(conf, stream, self)

	ch, err := channel.NewTCP(logger.WithPostfix("chan"), self, conf)
	if err != nil {
		return nil, err
	}
	d := dispatcher.New(logger.WithPostfix("disp").WithLogLevel(logging.WARN), ch)
	w, err := worker.New(logger, conf, self, ch, d, stream, nil)
	if err != nil {
		d.Close()
		ch.Close()
		return nil, err
	}

	return &actor{id: self, ch: ch, disp: d, run: w.Run, stop: w.Close}, nil
}
