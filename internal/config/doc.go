// Package config provides configuration management for the Tattva API service.
//
// Configuration is loaded from environment variables using the env package.
// Defaults match the container image: the service listens on 8080, reads
// Swiss Ephemeris data from /app/ephe and runs two workers.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.HTTPAddr())
package config
