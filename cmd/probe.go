package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-ui/internal/config"
	"github.com/xkilldash9x/scalpel-ui/internal/observability"
	"github.com/xkilldash9x/scalpel-ui/internal/traffic"
	"github.com/xkilldash9x/scalpel-ui/pkg/browser"
	"github.com/xkilldash9x/scalpel-ui/pkg/element"

	// Backends register themselves with the browser package.
	_ "github.com/xkilldash9x/scalpel-ui/pkg/browser/drivers"
)

type probeOptions struct {
	driver       string
	headless     bool
	timeout      int
	troubleshoot bool
	name         string
	screenshot   string
	harPath      string
}

// apply copies the flags the user set onto cfg.
func (o probeOptions) apply(cmd *cobra.Command, cfg config.Interface) {
	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.SetBrowserDriver(o.driver)
	}
	if flags.Changed("headless") {
		cfg.SetBrowserHeadless(o.headless)
	}
	if flags.Changed("timeout") {
		cfg.SetWaitDefaultConditionTimeout(o.timeout)
	}
	if flags.Changed("troubleshoot") {
		cfg.SetWaitTroubleshooting(o.troubleshoot)
	}
	if o.harPath != "" {
		cfg.SetTrafficEnabled(true)
	}
}

func newProbeCmd() *cobra.Command {
	var opts probeOptions
	probeCmd := &cobra.Command{
		Use:   "probe <url> <locator>",
		Short: "Open a page and wait for an element to be displayed",
		Long: `Opens url, waits for the page to load and then for the element at locator
to be displayed, for up to the default condition timeout. The command fails
when the element does not appear.

Locators use the strategy=value notation: css=, id=, link= or xpath=. A bare
value is taken as CSS, or as XPath when it starts with "/" or "(".`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if opts.name == "" {
				opts.name = args[1]
			}
			return runProbe(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], args[1], opts)
		},
	}

	probeCmd.Flags().StringVar(&opts.driver, "driver", config.DriverCDP, "browser backend: cdp or remote")
	probeCmd.Flags().BoolVar(&opts.headless, "headless", true, "run the browser without a window")
	probeCmd.Flags().IntVarP(&opts.timeout, "timeout", "t", 180, "condition timeout in seconds")
	probeCmd.Flags().BoolVar(&opts.troubleshoot, "troubleshoot", false, "suggest a nearby locator when the element is absent")
	probeCmd.Flags().StringVar(&opts.name, "name", "", "element name used in messages (default is the locator)")
	probeCmd.Flags().StringVar(&opts.screenshot, "screenshot", "", "write a PNG screenshot to this file")
	probeCmd.Flags().StringVar(&opts.harPath, "har", "", "record traffic and write the HAR to this file")
	return probeCmd
}

func runProbe(ctx context.Context, out io.Writer, cfg config.Interface, url, rawLocator string, opts probeOptions) error {
	logger := observability.GetLogger()
	loc, err := browser.ParseLocator(rawLocator)
	if err != nil {
		return fmt.Errorf("invalid locator: %w", err)
	}

	var rec *traffic.Recorder
	var proxyURL string
	if cfg.Traffic().Enabled {
		rec = traffic.NewRecorder(cfg.Traffic(), logger)
		if err := rec.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := rec.Stop(stopCtx); err != nil {
				logger.Warn("Failed to stop traffic recorder.", zap.Error(err))
			}
		}()
		rec.NewHAR(url)
		proxyURL = rec.URL()
	}

	s, err := browser.Open(ctx, cfg, proxyURL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to close browser.", zap.Error(err))
		}
	}()

	if err := s.Navigate(ctx, url); err != nil {
		return err
	}
	browser.WaitForPageToLoad(ctx, s)

	el := element.New(s, element.KindLabel, loc, opts.name)
	started := time.Now()
	present := el.IsPresent(ctx)
	elapsed := time.Since(started).Round(time.Millisecond)

	if opts.screenshot != "" {
		png, err := s.Screenshot(ctx)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.screenshot, png, 0o644); err != nil {
			return fmt.Errorf("failed to write screenshot: %w", err)
		}
	}

	if rec != nil {
		har := rec.HAR()
		traffic.Analyze(har, cfg.Traffic().LoadTimeLimit, logger)
		if err := traffic.WriteHAR(opts.harPath, har); err != nil {
			return err
		}
	}

	if present {
		fmt.Fprintf(out, "%s is present (%s)\n", el, elapsed)
		return nil
	}

	fmt.Fprintf(out, "%s is absent after %s\n", el, elapsed)
	if cfg.Wait().Troubleshooting {
		if alt, ok := el.Troubleshoot(ctx); ok {
			fmt.Fprintf(out, "Closest match: %s\n", alt)
		}
	}
	return fmt.Errorf("%s: %w", el, element.ErrNotPresent)
}
