package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"PosPrint/app/agent"
)

func main() {
	port := flag.Int("port", 8080, "port to serve the print window endpoint on")
	flag.Parse()

	server := agent.NewServer(*port)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("Shutting down print agent")
		server.Stop()
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("print agent failed: %v", err)
	}
}
