package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dmx/internal/channel"
	"dmx/internal/config"
	"dmx/internal/coordinator"
	"dmx/internal/dispatcher"
	"dmx/internal/ioutils"
	"dmx/internal/logging"
	"dmx/internal/process"
)

func main() {
	groupFlag := flag.String("group", "", "process group (A or B)")
	portFlag := flag.Uint("port", 0, "listen port; must match the deterministic scheme (0 = derive)")
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

	self := process.NewCoordinator(process.Group(*groupFlag))
	if err := self.Validate(); err != nil {
		log.Fatal("Invalid identity: ", err)
	}
	if *portFlag != 0 && uint16(*portFlag) != self.Port(conf.BasePort) {
		log.Fatalf("Port %d does not match the addressing scheme (%v listens on %d)", *portFlag, self, self.Port(conf.BasePort))
	}

	var logFile *logging.LogFile
	if conf.LogPath != "" {
		logFile = logging.NewLogFile(fmt.Sprintf("%s/%v.log", conf.LogPath, self))
	}
	logger := logging.NewLogger(ioutils.NewStdStream(), logFile, self.String(), logFile != nil && !conf.Debug)

	ch, err := channel.NewTCP(logger.WithPostfix("chan"), self, conf)
	if err != nil {
		log.Fatal("Failed to open the message channel: ", err)
	}
	d := dispatcher.New(logger.WithPostfix("disp").WithLogLevel(logging.WARN), ch)

	c := coordinator.New(logger, conf, self.Group, ch, d, self.Group == process.GroupA)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Warn("Stop signal received; shutting down")
		c.Close()
		d.Close()
		ch.Close()
	}()

	if err := c.Run(); err != nil {
		logger.Error("Coordinator stopped: ", err)
		os.Exit(1)
	}
}
