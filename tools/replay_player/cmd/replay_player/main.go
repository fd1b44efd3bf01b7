package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	replayplayer "forefront/arena/tools/replay_player"
)

func main() {
	path := flag.String("path", "", "Path to a replay directory or manifest.json")
	verify := flag.Bool("verify", false, "Replay terrain destruction and print a summary instead of the timeline")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}

	bundle, err := replayplayer.ReplayBundle(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	var payload any = bundle
	if *verify {
		result, err := bundle.Verify()
		if err != nil {
			fmt.Fprintln(os.Stderr, "verify error:", err)
			os.Exit(2)
		}
		payload = result
	}

	//1.- Render as JSON so callers can pipe the output elsewhere.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
}
