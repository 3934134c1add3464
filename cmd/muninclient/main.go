// Copyright (c) Munin contributors. All rights reserved. Use of this
// source code is governed by the MIT license that can be found in the
// LICENSE file.

// Command muninclient is a minimal demonstration of the munin client
// engine: it connects to a single server, joins a channel, and echoes
// "pong" for any message containing "ping". It exists to exercise
// New/Connect end to end, not as a full-featured bot.
package main

import (
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	munin "github.com/muninirc/core"
)

func main() {
	var (
		server  = flag.String("server", "irc.libera.chat", "server hostname")
		port    = flag.Int("port", 6697, "server port")
		nick    = flag.String("nick", "muninclient", "nickname")
		user    = flag.String("user", "muninclient", "ident/username")
		channel = flag.String("channel", "", "channel to join on connect, e.g. #munin")
		ssl     = flag.Bool("ssl", true, "connect over TLS")
		debug   = flag.Bool("debug", false, "log raw protocol traffic to stderr")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var debugOut io.Writer
	if *debug {
		debugOut = os.Stderr
	}

	client := munin.New(munin.Config{
		Server: *server,
		Port:   *port,
		Nick:   *nick,
		User:   *user,
		Name:   "munin client demo",
		SSL:    *ssl,
		Debug:  debugOut,
	})

	client.Handlers.AddHandler(munin.CONNECTED, munin.HandlerFunc(func(c *munin.Client, e munin.Event) {
		log.WithField("server", c.Server()).Info("connected")
		if *channel != "" {
			if err := c.Cmd.Join(*channel); err != nil {
				log.WithError(err).Error("join failed")
			}
		}
	}))

	client.Handlers.AddHandler(munin.PRIVMSG, munin.HandlerFunc(func(c *munin.Client, e munin.Event) {
		if e.Source == nil || len(e.Params) == 0 {
			return
		}
		if strings.Contains(strings.ToLower(e.Last()), "ping") {
			target := e.Params[0]
			if target == c.GetNick() {
				target = e.Source.Name
			}
			if err := c.Cmd.Message(target, "pong"); err != nil {
				log.WithError(err).Error("reply failed")
			}
		}
	}))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		client.Close()
	}()

	if err := client.Connect(); err != nil {
		log.WithError(err).Fatal("connection ended")
	}
}
