package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"storepulse/api/aggregator"
	"storepulse/api/capture"
	"storepulse/api/channel"
	"storepulse/api/dispatch"
	"storepulse/api/models"
	"storepulse/api/store"
	"storepulse/api/utils"
)

var (
	captureURL       string
	captureEndpoint  string
	captureClicks    []string
	captureSubmits   []string
	captureUnload    bool
	captureAggregate bool
)

var captureCmd = &cobra.Command{
	Use:   "capture <page.html>",
	Short: "Run the storefront instrumentation against a local HTML page",
	Long: `Parse an HTML page, install the tracker, replay the given interactions and
print every dispatched event as a JSON line.

Example:
  storepulse capture product.html --click "button.add" --submit "#checkout" --unload --aggregate`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().StringVar(&captureURL, "url", "https://shop.example/", "URL the page is treated as served from")
	captureCmd.Flags().StringVar(&captureEndpoint, "endpoint", "", "also POST events to this ingestion endpoint")
	captureCmd.Flags().StringArrayVar(&captureClicks, "click", nil, "selector to click, in order (repeatable)")
	captureCmd.Flags().StringArrayVar(&captureSubmits, "submit", nil, "form selector to submit, after clicks (repeatable)")
	captureCmd.Flags().BoolVar(&captureUnload, "unload", false, "unload the page at the end")
	captureCmd.Flags().BoolVar(&captureAggregate, "aggregate", false, "print the resulting metrics snapshot")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()

	page, err := capture.ParsePage(f, captureURL, capture.PageInfo{UserAgent: "storepulse-cli", Language: "en"})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sinks := []dispatch.Sink{printSink{w: out}}

	var agg *aggregator.Aggregator
	if captureAggregate {
		bus := channel.NewBus(channel.DefaultTopic)
		agg = aggregator.New(
			aggregator.WithStoreID(cfg.DefaultStoreID),
			aggregator.WithProducts(store.DemoProducts()),
		)
		defer bus.Subscribe(agg.Apply)()
		sinks = append(sinks, dispatch.ChannelSink{Channel: bus})
	}
	if captureEndpoint != "" {
		sinks = append(sinks, dispatch.NewHTTPSink(captureEndpoint))
	}

	d := dispatch.New(dispatch.Config{
		StoreID:   cfg.DefaultStoreID,
		Platform:  cfg.Platform,
		SessionID: utils.NewSessionID(),
	}, sinks...)

	tracker := capture.NewTracker(page, d)
	tracker.Install()
	page.MarkComplete()

	for _, sel := range captureClicks {
		if err := page.Click(sel); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "click %q: %v\n", sel, err)
		}
	}
	for _, sel := range captureSubmits {
		if err := page.Submit(sel); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "submit %q: %v\n", sel, err)
		}
	}
	if captureUnload {
		page.Unload()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		return fmt.Errorf("dispatcher did not drain: %w", err)
	}

	stats := d.Stats()
	fmt.Fprintf(cmd.ErrOrStderr(), "sent=%d dropped=%d failed=%d\n", stats.Sent, stats.Dropped, stats.Failed)

	if agg != nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(agg.Snapshot())
	}
	return nil
}

type printSink struct {
	w io.Writer
}

func (s printSink) Send(_ context.Context, env models.Envelope) error {
	return json.NewEncoder(s.w).Encode(env)
}
