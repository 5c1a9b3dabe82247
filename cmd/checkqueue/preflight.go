package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hamed0406/checkqueue/internal/config"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check the environment before serving",
	Long: `Read the configuration from the environment, validate it and print what
serve would use. Exits non-zero when the configuration is invalid.`,
	RunE: runPreflight,
}

func init() {
	rootCmd.AddCommand(preflightCmd)
}

func runPreflight(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	warn := func(msg string) { fmt.Fprintln(out, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(out, "✔", msg) }

	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(out, "✖", err)
		return err
	}

	ok("API_ADDR=" + cfg.Addr)
	ok(fmt.Sprintf("CHECKING_LIMIT=%d IP_LIMIT=%d", cfg.CheckingLimit, cfg.IPLimit))
	ok(fmt.Sprintf("pull every %s, service every %s", cfg.PullInterval, cfg.ServiceInterval))
	ok(fmt.Sprintf("connection timeout %s, dns timeout %s", cfg.ConnectionTimeout, cfg.DNSTimeout))
	ok("ALLOWED_CLIENTS=" + strings.Join(cfg.AllowedClients, ","))
	if len(cfg.TrustedProxies) == 0 {
		ok("X-Forwarded-For ignored (TRUSTED_PROXIES empty)")
	} else {
		ok("TRUSTED_PROXIES=" + strings.Join(cfg.TrustedProxies, ","))
	}

	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty: checks are kept in memory and lost on restart.")
	} else {
		ok("DATABASE_URL present")
	}
	if cfg.SlackWebhookURL == "" {
		warn("SLACK_WEBHOOK_URL empty: failure alerts are disabled.")
	} else {
		ok(fmt.Sprintf("Slack alerts on, cooldown %s", cfg.AlertCooldown))
	}
	if len(cfg.KafkaBrokers) == 0 {
		warn("KAFKA_BROKERS empty: transitions are not published to Kafka.")
	} else {
		ok(fmt.Sprintf("Kafka topic %s on %s", cfg.KafkaTopic, strings.Join(cfg.KafkaBrokers, ",")))
	}

	ok("preflight passed")
	return nil
}
