package main

import (
	"os"

	"quilt.news/quilt/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
