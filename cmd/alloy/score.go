package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/alloynmt/alloy/internal/logger"
)

func scoreCmd() *cli.Command {
	var (
		model  string
		domain int64
		tokens string
		seed   int64
	)

	return &cli.Command{
		Name:  "score",
		Usage: "Compute the log-likelihood of a token sequence",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "path to the model spec YAML",
				Destination: &model,
			},
			&cli.Int64Flag{
				Name:        "domain",
				Aliases:     []string{"d"},
				Usage:       "domain id to score in",
				Destination: &domain,
			},
			&cli.StringFlag{
				Name:        "tokens",
				Usage:       "comma-separated token ids",
				Destination: &tokens,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "random seed",
				Value:       42,
				Destination: &seed,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			if cfg.ModelPath != "" && !cmd.IsSet("model") {
				model = cfg.ModelPath
			}
			if cfg.Seed != nil && !cmd.IsSet("seed") {
				seed = *cfg.Seed
			}

			ids, err := parseTokenList(tokens)
			if err != nil {
				return err
			}
			if len(ids) < 2 {
				return fmt.Errorf("pass at least two token ids with --tokens")
			}

			m, err := loadModel(model, seed, log)
			if err != nil {
				return err
			}
			scores, total, err := m.Score(ids, int(domain), nil)
			if err != nil {
				return err
			}
			for i, sc := range scores {
				fmt.Printf("token %d: %.4f\n", ids[i+1], sc)
			}
			fmt.Printf("total:   %.4f\n", total)
			return nil
		},
	}
}
