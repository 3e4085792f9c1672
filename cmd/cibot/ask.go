package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/compintel/cibot/config"
	"github.com/compintel/cibot/internal/pipeline"
	srv "github.com/compintel/cibot/internal/server"
	"github.com/compintel/cibot/internal/telemetry"
)

// stage labels shown while the pipeline makes progress.
var stageLabels = map[pipeline.Stage]string{
	pipeline.StageIntent:   "[1/7] Extracting entities",
	pipeline.StageAcquire:  "[2/7] Acquiring sources",
	pipeline.StageChunk:    "[3/7] Chunking and embedding",
	pipeline.StageUpsert:   "[4/7] Indexing vectors",
	pipeline.StageRetrieve: "[5/7] Retrieving context",
	pipeline.StageGenerate: "[6/7] Generating comparison",
	pipeline.StageCleanup:  "[7/7] Cleaning up",
}

func askCMD() *cobra.Command {
	var cfgPath string
	var ask = &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Run one comparison query from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			prompt := strings.Join(args, " ")

			tele := telemetry.New(prometheus.NewRegistry())
			orch, err := srv.BuildOrchestrator(cfg, tele)
			if err != nil {
				return err
			}
			orch.SetObserver(pipeline.ObserverFunc(func(requestID string, stage pipeline.Stage, detail string) {
				fmt.Printf("%s: %s\n", stageLabels[stage], detail)
			}))

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.General.DefaultTimeout)
			defer cancel()
			result, err := orch.Run(ctx, prompt)
			if err != nil {
				return err
			}

			fmt.Println()
			fmt.Println(result.Answer)
			if len(result.Sources) > 0 {
				fmt.Println()
				fmt.Println("Sources:")
				for _, s := range result.Sources {
					fmt.Printf("  - %s\n", s)
				}
			}
			return nil
		},
	}
	ask.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return ask
}
