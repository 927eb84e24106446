// Package main provides the CLI entry point for the udpchan tool.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/stormlink/udpchan"
	"github.com/stormlink/udpchan/internal/config"
	"github.com/stormlink/udpchan/internal/logging"
)

var (
	// Version is set at build time
	Version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "udpchan",
		Short: "udpchan - storm-suppressing UDP channel tool",
		Long: `udpchan binds a packet-oriented IPv4 UDP channel, optionally joins a
multicast group, and either prints arriving datagrams or transmits
staged ones. Duplicate datagrams arriving within the suppression
window are dropped before they reach the output.`,
		Version: Version,
	}

	rootCmd.AddCommand(listenCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(floodCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the optional config file and applies flag overrides.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildChannel(cfg *config.Config) *udpchan.Channel {
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	return udpchan.New(
		udpchan.WithLogger(logger),
		udpchan.WithSendBufferSize(cfg.Channel.SendBufferSize),
		udpchan.WithRecvBufferSize(cfg.Channel.RecvBufferSize),
		udpchan.WithDedupWindow(cfg.Channel.DedupWindow),
	)
}

func listenCmd() *cobra.Command {
	var (
		configPath string
		port       uint16
		group      string
		ifaceAddr  string
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Bind a channel and print arriving datagrams",
		Long: `Bind the channel on a port (joining a multicast group when one is
configured) and poll for datagrams until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("port") {
				cfg.Channel.Port = port
			}
			if cmd.Flags().Changed("group") {
				cfg.Channel.MulticastGroup = group
			}
			if cmd.Flags().Changed("interface") {
				cfg.Channel.MulticastInterface = ifaceAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
			ch := buildChannel(cfg)
			defer ch.Stop()

			if cfg.Channel.MulticastGroup != "" {
				if !ch.BeginMulticastAddrs(cfg.Channel.MulticastGroup, cfg.Channel.MulticastInterface, cfg.Channel.Port) {
					return fmt.Errorf("failed to bind multicast %s on port %d", cfg.Channel.MulticastGroup, cfg.Channel.Port)
				}
			} else if !ch.Begin(cfg.Channel.Port) {
				return fmt.Errorf("failed to bind port %d", cfg.Channel.Port)
			}
			if cfg.Channel.ReadTimeout > 0 {
				ch.SetTimeout(int(cfg.Channel.ReadTimeout / time.Millisecond))
			}

			if cfg.Metrics.Enabled {
				go func() {
					http.Handle("/metrics", promhttp.Handler())
					if err := http.ListenAndServe(cfg.Metrics.Address, nil); err != nil {
						logger.Warn("metrics server stopped", logging.KeyError, err)
					}
				}()
				logger.Info("metrics endpoint up", "address", cfg.Metrics.Address)
			}

			fmt.Printf("Listening on %s:%d\n", ch.LocalIP(), ch.LocalPort())

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var datagrams, bytes uint64
			ticker := time.NewTicker(5 * time.Millisecond)
			defer ticker.Stop()

			buf := make([]byte, cfg.Channel.RecvBufferSize)
			for {
				select {
				case <-ctx.Done():
					fmt.Printf("Received %s in %d datagrams\n", humanize.Bytes(bytes), datagrams)
					return nil
				case <-ticker.C:
					for {
						n := ch.ParsePacket()
						if n == 0 {
							break
						}
						got := ch.ReadBytes(buf[:n])
						datagrams++
						bytes += uint64(got)
						fmt.Printf("%s:%d %d bytes: %q\n", ch.RemoteIP(), ch.RemotePort(), got, buf[:got])
					}
				}
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().Uint16VarP(&port, "port", "p", 4447, "Port to bind")
	cmd.Flags().StringVarP(&group, "group", "g", "", "Multicast group to join")
	cmd.Flags().StringVarP(&ifaceAddr, "interface", "i", "", "Interface address for the multicast join")

	return cmd
}

func sendCmd() *cobra.Command {
	var (
		configPath string
		dest       string
		port       uint16
		message    string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one datagram",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ch := buildChannel(cfg)
			defer ch.Stop()

			if !ch.Begin(0) {
				return fmt.Errorf("failed to open channel")
			}
			if !ch.BeginPacketString(dest, port) {
				return fmt.Errorf("invalid destination %s:%d", dest, port)
			}
			if n := ch.WriteString(message); n != len(message) {
				return fmt.Errorf("message truncated to %d of %d bytes; raise send_buffer_size", n, len(message))
			}
			if !ch.EndPacket() {
				return fmt.Errorf("send to %s:%d failed", dest, port)
			}

			fmt.Printf("Sent %s to %s:%d\n", humanize.Bytes(uint64(len(message))), dest, port)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "Destination address")
	cmd.Flags().Uint16VarP(&port, "port", "p", 4447, "Destination port")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Payload to send")
	_ = cmd.MarkFlagRequired("dest")
	_ = cmd.MarkFlagRequired("message")

	return cmd
}

func floodCmd() *cobra.Command {
	var (
		configPath string
		dest       string
		port       uint16
		message    string
		count      int
		pps        float64
	)

	cmd := &cobra.Command{
		Use:   "flood",
		Short: "Send repeated copies of a datagram at a fixed rate",
		Long: `Send count copies of the payload, paced at the given rate. Useful for
exercising a listener's storm suppression: copies landing inside the
dedup window are dropped by the receiving channel.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if count <= 0 {
				return fmt.Errorf("count must be positive, got %d", count)
			}
			if pps <= 0 {
				return fmt.Errorf("rate must be positive, got %v", pps)
			}

			ch := buildChannel(cfg)
			defer ch.Stop()

			if !ch.Begin(0) {
				return fmt.Errorf("failed to open channel")
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			limiter := rate.NewLimiter(rate.Limit(pps), 1)
			sent := 0
			start := time.Now()
			for ; sent < count; sent++ {
				if err := limiter.Wait(ctx); err != nil {
					break
				}
				if !ch.BeginPacketString(dest, port) {
					return fmt.Errorf("invalid destination %s:%d", dest, port)
				}
				ch.WriteString(message)
				if !ch.EndPacket() {
					return fmt.Errorf("send to %s:%d failed after %d datagrams", dest, port, sent)
				}
			}

			elapsed := time.Since(start)
			fmt.Printf("Sent %d datagrams (%s) in %v\n",
				sent, humanize.Bytes(uint64(sent*len(message))), elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "Destination address")
	cmd.Flags().Uint16VarP(&port, "port", "p", 4447, "Destination port")
	cmd.Flags().StringVarP(&message, "message", "m", "X", "Payload to send")
	cmd.Flags().IntVarP(&count, "count", "n", 10, "Number of datagrams")
	cmd.Flags().Float64VarP(&pps, "rate", "r", 100, "Datagrams per second")
	_ = cmd.MarkFlagRequired("dest")

	return cmd
}
