package main

import (
	"os"

	"horse.fit/whittle/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
