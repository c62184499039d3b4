// Command bandhub serves the BandHub JSON API.
package main

import (
	"context"
	"log"

	"github.com/dalemusser/bandhub/internal/app/bootstrap"
	"github.com/dalemusser/waffle/app"
)

func main() {
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		log.Fatal(err)
	}
}
