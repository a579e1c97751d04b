// Command transcriptor-web serves the local license API.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/enrferaba/Grabadora-Intento4/internal/app"
)

func main() {
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("transcriptor-web %s (built %s)\n", app.Version, app.BuildTime)
		return
	}

	application, err := app.NewApplication()
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.RunUntilSignal(); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
