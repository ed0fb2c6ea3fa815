package main

import (
	"fmt"
	"log"
	"net/url"

	"github.com/fairyhunter13/imagegen-dispatch/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Mode: '%s'\n", cfg.Mode)
	fmt.Printf("NodeID: '%s'\n", cfg.NodeID)
	fmt.Printf("PostgresDSN: '%s'\n", masked(cfg.PostgresDSN()))
	fmt.Printf("BrokerURL: '%s' (vhost '%s', queue '%s')\n", masked(cfg.BrokerURL()), cfg.RabbitMQVHost, cfg.RabbitMQQueue)
	fmt.Printf("DiscardThreshold: %v\n", cfg.DiscardThreshold())
	fmt.Printf("GeneratorURL: '%s'\n", cfg.GeneratorURL)
}

func masked(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User(u.User.Username())
	return u.String()
}
