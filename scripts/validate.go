package main

import (
	"flag"
	"log/slog"
	"os"

	"staybook/internal/validation"
)

func main() {
	var opts validation.Options
	flag.StringVar(&opts.BaseURL, "url", "http://localhost:8081", "Base URL for API validation")
	flag.StringVar(&opts.Email, "email", "guest1@example.com", "Account used for the checks")
	flag.StringVar(&opts.Password, "password", "password123", "Password of the account")
	flag.StringVar(&opts.ListingID, "listing", "", "Listing to book during the checks")
	flag.Parse()

	if opts.ListingID == "" {
		slog.Error("A listing id is required, see cmd/generator")
		os.Exit(2)
	}

	slog.Info("Starting API validation", "url", opts.BaseURL)

	validator := validation.NewSpecValidator(opts)
	if err := validator.ValidateAll(); err != nil {
		slog.Error("Validation failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Validation passed")
}
