// Package main is responsible for the main func of snipy. The actual work is
// done in the app package.
package main

import "github.com/ameshkov/snipy/internal/app"

func main() {
	app.Main()
}
