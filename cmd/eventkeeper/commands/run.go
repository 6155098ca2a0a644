/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/eventkeeper/internal/cleanup"
	"github.com/mikelane/eventkeeper/internal/config"
	"github.com/mikelane/eventkeeper/internal/discord"
	"github.com/mikelane/eventkeeper/internal/event"
	"github.com/mikelane/eventkeeper/internal/provision"
	"github.com/mikelane/eventkeeper/internal/timepolicy"
	"github.com/mikelane/eventkeeper/internal/tracker"
	"github.com/mikelane/eventkeeper/internal/webhook"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Discord and manage event channels",
	Long: `Connect to the Discord gateway, provision channels for active events and
sweep expired channels every minute until interrupted.

Examples:
  # Run with the token from .env (bot_token=...)
  eventkeeper run

  # Keep state in a ConfigMap when running in a cluster
  EVENTKEEPER_STORE_BACKEND=configmap eventkeeper run

  # Exercise the lifecycle without touching Discord
  eventkeeper run --dry-run --webhook`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "use an in-memory provisioner instead of Discord")
	runCmd.Flags().Bool("webhook", false, "serve signed HTTP notifications, /healthz and /metrics")
	runCmd.Flags().Int("webhook-port", 0, "port of the webhook server")
	runCmd.Flags().Duration("sweep-interval", 0, "time between retention sweeps")
	bindLocalFlag(runCmd, "dry_run", "dry-run")
	bindLocalFlag(runCmd, "webhook.enabled", "webhook")
	bindLocalFlag(runCmd, "webhook.port", "webhook-port")
	bindLocalFlag(runCmd, "sweep_interval", "sweep-interval")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireToken(); err != nil {
		return err
	}
	policy, err := newPolicy(cfg)
	if err != nil {
		return err
	}

	logger := logf.Log.WithName("eventkeeper")
	ctx := logf.IntoContext(ctrl.SetupSignalHandler(), logger)

	st, closeStore, err := newStore(ctx, cfg, policy)
	if err != nil {
		return err
	}
	defer closeStore()

	var session *discordgo.Session
	var provisioner provision.Provisioner
	if cfg.DryRun {
		logger.Info("Dry run: channels are kept in memory")
		provisioner = provision.NewMemory()
	} else {
		session, err = discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			return fmt.Errorf("failed to create discord session: %w", err)
		}
		session.Identify.Intents = discord.Intents
		provisioner = discord.NewProvisioner(session, nil)
	}

	tr := tracker.New(st, provisioner, policy, tracker.Options{
		Retention: cfg.Retention,
		Lookahead: cfg.Lookahead,
	})
	if err := tr.Load(ctx); err != nil {
		var corrupt *event.CorruptStateError
		if errors.As(err, &corrupt) {
			return fmt.Errorf("refusing to start with unreadable state: %w", err)
		}
		return fmt.Errorf("failed to load state: %w", err)
	}

	logger.Info("Starting eventkeeper",
		"version", Version,
		"timezone", policy.Location().String(),
		"store", cfg.Store.Backend,
		"records", tr.Len(),
		"sweepInterval", cfg.SweepInterval)

	if session != nil {
		gateway := discord.NewGateway(tr, session, policy)
		defer gateway.Register(session)()
		if err := session.Open(); err != nil {
			return fmt.Errorf("failed to open discord gateway: %w", err)
		}
		defer session.Close() //nolint:errcheck
		logger.Info("Connected to discord gateway")
	}

	return serve(ctx, cfg, tr, policy)
}

// serve runs the scheduler and, when enabled, the webhook server until ctx
// is done or one of them fails.
func serve(ctx context.Context, cfg *config.Config, tr *tracker.Tracker, policy *timepolicy.Policy) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 2)
	running := 1

	scheduler := cleanup.NewScheduler(tr, cfg.SweepInterval, cleanup.WithRunOnStart())
	go func() {
		errChan <- scheduler.Start(ctx)
	}()

	if cfg.Webhook.Enabled {
		running++
		server := webhook.NewServer(cfg.Webhook.Addr, cfg.Webhook.Port, tr, policy, cfg.Webhook.Secret)
		go func() {
			errChan <- server.Start(ctx)
		}()
	}

	var firstErr error
	for ; running > 0; running-- {
		if err := <-errChan; err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
	}
	return firstErr
}
