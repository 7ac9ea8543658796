package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	logrus_stack "github.com/Gurpartap/logrus-stack"
	"github.com/sirupsen/logrus"

	"github.com/mongoftp/mongoftpd/mftp"
	"github.com/mongoftp/mongoftpd/mongostore"
)

var ftpServer *mftp.FtpServer

func init() {
	logrus.SetLevel(logrus.InfoLevel)
	stackLevels := []logrus.Level{logrus.PanicLevel, logrus.FatalLevel}
	logrus.AddHook(logrus_stack.NewHook(stackLevels, stackLevels))
}

func main() {
	confFile := flag.String("config", "./example.toml", "path to configuration file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	store, err := mongostore.NewFromConfig(*confFile)
	if err != nil {
		logrus.Fatal(err)
	}

	ftpServer, err = mftp.NewFtpServer(*confFile, store, mongostore.NewAuditLog(store))
	if err != nil {
		logrus.Fatal(err)
	}

	go signalHandler()

	if err := ftpServer.ListenAndServe(); err != nil {
		logrus.Fatal(err)
	}
}

func signalHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
	for {
		switch <-ch {
		case syscall.SIGTERM, syscall.SIGINT:
			ftpServer.Stop()
		}
	}
}
