// Package config provides configuration structures and utilities for chaincrawl.
// It defines the crawl limits, label provider credentials, cache location and
// output preferences, and loads overrides from the .chaincrawl YAML file.
package config
