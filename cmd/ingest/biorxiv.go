package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/paperview/backend-go/internal/biorxiv"
	"github.com/andresuchdata/paperview/backend-go/internal/config"
)

func newBiorxivDetailsCommand() *cli.Command {
	return &cli.Command{
		Name:  "biorxiv-details",
		Usage: "Fetch article metadata from the bioRxiv API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "doi",
				Usage: "Fetch every posted version of one DOI",
			},
			&cli.StringFlag{
				Name:  "start",
				Usage: "Interval start date (YYYY-MM-DD)",
			},
			&cli.StringFlag{
				Name:  "end",
				Usage: "Interval end date (YYYY-MM-DD)",
			},
			&cli.IntFlag{
				Name:  "max",
				Usage: "Stop after this many articles (0 for all)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			client := biorxiv.NewClient(cfg.Biorxiv)

			ctx, stop := signalContext(c)
			defer stop()

			var (
				articles []biorxiv.ArticleDetail
				err      error
			)
			switch {
			case c.String("doi") != "":
				articles, err = client.Details(ctx, c.String("doi"))
			case c.String("start") != "" && c.String("end") != "":
				articles, err = client.DetailsByInterval(ctx, c.String("start"), c.String("end"), c.Int("max"))
			default:
				return fmt.Errorf("either --doi or both --start and --end are required")
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(articles)
		},
	}
}
