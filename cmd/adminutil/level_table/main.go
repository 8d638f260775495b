package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/skillswap/internal/config"
	"github.com/sudo-init-do/skillswap/internal/logger"
	"github.com/sudo-init-do/skillswap/internal/progression"
)

func main() {
	xp := flag.Int64("xp", -1, "Derive the level for this XP total")
	flag.Parse()

	logger.Init("warn", true)

	// Only the level widths matter here, so a config that fails validation
	// for other settings still yields a usable table.
	table := progression.DefaultTable()
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("config incomplete, showing the built-in table")
	} else if len(cfg.LevelWidths) > 0 {
		if table, err = progression.NewTable(cfg.LevelWidths); err != nil {
			log.Fatal().Err(err).Msg("invalid level table")
		}
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tFLOOR\tWIDTH")
	for i, w := range table.Widths() {
		fmt.Fprintf(tw, "%d\t%d\t%d\n", i+1, table.Floor(i+1), w)
	}
	tw.Flush()
	fmt.Printf("ceiling: %d XP\n", table.Ceiling())

	if *xp >= 0 {
		l := table.Derive(*xp)
		fmt.Printf("\n%d XP -> level %d, %d/%d into the level (%.0f%%)", *xp, l.Level, l.XPInLevel, l.Width, l.Progress()*100)
		if l.Maxed {
			fmt.Print(", maxed")
		}
		fmt.Println()
	}
}
