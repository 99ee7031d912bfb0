package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"go-face-analyzer/internal/factory"
	"go-face-analyzer/internal/imagedata"
	"go-face-analyzer/internal/observer"
	"go-face-analyzer/internal/orchestrator"
	"go-face-analyzer/internal/provider"
	"go-face-analyzer/internal/repository"
	"go-face-analyzer/internal/session"
	"go-face-analyzer/internal/synthetic"
	"go-face-analyzer/pkg/models"
)

const spinnerInterval = 100 * time.Millisecond

type analyzeOptions struct {
	SourceURL    string
	Synthetic    bool
	Resemblance  bool
	Timeout      time.Duration
	IncludeImage bool
}

var analyzeOpts analyzeOptions

// errAnalysisFailed signals a finished attempt that produced no result. The
// notification has already been printed.
var errAnalysisFailed = errors.New("analysis failed")

var analyzeCmd = &cobra.Command{
	Use:   "analyze [image-file]",
	Short: "Analyze a face photo and print the result as JSON",
	Args: func(cmd *cobra.Command, args []string) error {
		if analyzeOpts.SourceURL == "" && len(args) != 1 {
			return errors.New("provide exactly one image file or --url")
		}
		if analyzeOpts.SourceURL != "" && len(args) != 0 {
			return errors.New("an image file and --url are mutually exclusive")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		err := runAnalyze(cmd.Context(), path, analyzeOpts)
		if errors.Is(err, errAnalysisFailed) {
			os.Exit(1)
		}
		return err
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeOpts.SourceURL, "url", "", "fetch the image from this http(s) URL instead of a file")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.Synthetic, "synthetic", false, "skip the remote provider and return a synthetic result")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.Resemblance, "resemblance", false, "attach a synthetic resemblance block to synthetic results")
	analyzeCmd.Flags().DurationVar(&analyzeOpts.Timeout, "timeout", 0, "analysis timeout (default from ANALYSIS_TIMEOUT)")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.IncludeImage, "include-image", false, "print the stored image data URL alongside the result")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(ctx context.Context, path string, opts analyzeOptions) error {
	if opts.Timeout > 0 {
		cfg.AnalysisTimeout = opts.Timeout
	}

	events := observer.NewSyncEventPublisher()
	synthOpts := []synthetic.Option{}
	if opts.Resemblance {
		synthOpts = append(synthOpts, synthetic.WithResemblance())
	}
	components := factory.NewComponentFactory(cfg, synthetic.New(synthOpts...), events)

	providerType := factory.FacePPProvider
	if opts.Synthetic {
		providerType = factory.SyntheticProvider
	}
	adapter, err := components.ProviderFactory.CreateAdapter(providerType)
	if err != nil {
		return err
	}

	encoded, err := loadImage(ctx, components, path, opts.SourceURL)
	if err != nil {
		return err
	}

	store := session.NewMemoryStore()
	pipeline := orchestrator.New(store, adapter,
		orchestrator.WithEvents(events),
		orchestrator.WithTimeout(cfg.AnalysisTimeout),
		orchestrator.WithBaseContext(ctx),
	)
	if err := pipeline.OnImageReady(models.AnalysisRequest{ImageData: encoded}); err != nil {
		return err
	}

	st, err := awaitWithSpinner(ctx, pipeline, adapter)
	if err != nil {
		pipeline.Abandon()
		return err
	}

	if st.Phase == orchestrator.PhaseFailed {
		printNotification(st.Notification)
		return errAnalysisFailed
	}

	data, err := orchestrator.Display(store)
	if err != nil {
		return err
	}
	var out interface{} = data.Result
	if opts.IncludeImage {
		out = models.ResultsResponse{ImageData: data.ImageData, Result: data.Result}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func loadImage(ctx context.Context, components *factory.ComponentFactory, path, sourceURL string) (string, error) {
	if sourceURL == "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read image: %w", err)
		}
		return imagedata.Encode(raw)
	}

	httpSource, err := components.SourceFactory.CreateSource(factory.HTTPSource)
	if err != nil {
		return "", err
	}
	repo := repository.NewSourceImageRepository(httpSource, nil, components.SourceFactory.Validator(), nil)

	fetchCtx, cancel := context.WithTimeout(ctx, cfg.ImageFetchTimeout)
	defer cancel()
	encoded, _, err := repo.FetchImage(fetchCtx, repository.Reference{URL: sourceURL})
	return encoded, err
}

func awaitWithSpinner(ctx context.Context, pipeline *orchestrator.Orchestrator, adapter provider.Adapter) (orchestrator.PipelineState, error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(fmt.Sprintf("Analyzing with %s", adapter.Name())),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	defer bar.Finish()

	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	var (
		st  orchestrator.PipelineState
		err error
	)
	go func() {
		st, err = pipeline.Await(ctx)
		close(done)
	}()

	for {
		select {
		case <-done:
			return st, err
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
}

func printNotification(n *models.Notification) {
	if n == nil {
		fmt.Fprintln(os.Stderr, "Analysis failed")
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %s\n", n.Title, n.Message)
	if n.Retryable {
		fmt.Fprintln(os.Stderr, "Try again with another photo.")
	}
}
