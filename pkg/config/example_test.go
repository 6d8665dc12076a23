package config_test

import (
	"fmt"

	"github.com/wonny/aegis-screener/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("Server running on port: %s\n", cfg.Port)
	fmt.Printf("Screening workers: %d\n", cfg.Screening.Workers)
	fmt.Printf("Max page size: %d\n", cfg.Screening.MaxPageSize)

	if err := cfg.RequireDatabase(); err != nil {
		fmt.Println("running without Postgres")
	}
}
