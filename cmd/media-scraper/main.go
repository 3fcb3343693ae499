// Package main provides the media-scraper CLI.
//
// Usage:
//
//	media-scraper crawl --url https://example.com --types images,documents
//	media-scraper crawl --config config.yaml --all-sites
//	media-scraper validate --config config.yaml
//
// See --help for all available options.
package main

func main() {
	Execute()
}
