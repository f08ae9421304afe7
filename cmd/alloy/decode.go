package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/alloynmt/alloy/internal/logger"
	"github.com/alloynmt/alloy/internal/logits"
)

func decodeCmd() *cli.Command {
	var (
		model  string
		domain int64
		prompt string
		steps  int64
		temp   float64
		topK   int64
		topP   float64
		seed   int64
	)

	return &cli.Command{
		Name:  "decode",
		Usage: "Generate tokens from a prompt",
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
				Usage:       "domain id to decode in",
				Destination: &domain,
			},
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "comma-separated prompt token ids",
				Destination: &prompt,
			},
			&cli.Int64Flag{
				Name:        "steps",
				Aliases:     []string{"n"},
				Usage:       "number of tokens to generate",
				Value:       16,
				Destination: &steps,
			},
			&cli.Float64Flag{
				Name:        "temperature",
				Aliases:     []string{"t"},
				Usage:       "sampling temperature, 0 for greedy",
				Destination: &temp,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Usage:       "top-k shortlist size",
				Value:       40,
				Destination: &topK,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Usage:       "nucleus sampling cutoff",
				Value:       1.0,
				Destination: &topP,
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
			applyDecodeConfig(cmd, LoadConfig(), &model, &temp, &topK, &topP, &steps, &seed)

			tokens, err := parseTokenList(prompt)
			if err != nil {
				return err
			}
			if len(tokens) == 0 {
				return fmt.Errorf("pass a prompt with --prompt, e.g. --prompt 3,17,4")
			}

			m, err := loadModel(model, seed, log)
			if err != nil {
				return err
			}
			sampler := logits.NewSampler(logits.SamplerConfig{
				Seed:        seed,
				Temperature: float32(temp),
				TopK:        int(topK),
				TopP:        float32(topP),
			})
			sess, err := m.NewSession(int(domain), nil, sampler)
			if err != nil {
				return err
			}

			_, stats, err := sess.Generate(ctx, tokens, int(steps), func(tok int) {
				fmt.Printf("%d ", tok)
			})
			fmt.Println()
			if err != nil {
				return err
			}
			log.Info("decode complete",
				"tokens", stats.TokensGenerated,
				"duration", stats.Duration.Round(time.Millisecond),
				"tps", fmt.Sprintf("%.1f", stats.TPS))
			return nil
		},
	}
}

func parseTokenList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	tokens := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q", p)
		}
		tokens = append(tokens, id)
	}
	return tokens, nil
}
