package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"

	"github.com/yanet-platform/sdnctl/common/go/logging"
	"github.com/yanet-platform/sdnctl/common/go/xcmd"
	"github.com/yanet-platform/sdnctl/controlplane/internal/controller"
	"github.com/yanet-platform/sdnctl/controlplane/internal/southbound"
)

var attachCmdArgs struct {
	Endpoint   string
	EventsPath string
}

var attachCmd = &cobra.Command{
	Use:   "attach",
	Short: "Attach to the controller as an event runtime",
	Long: `Attach to the controller southbound channel, deliver events read from
a YAML file and print every command the controller sends back.

The connection is kept up until interrupted, reconnecting with exponential
backoff.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runAttach(); err != nil {
			if errors.As(err, &xcmd.Interrupted{}) {
				return
			}

			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	attachCmd.Flags().StringVarP(&attachCmdArgs.Endpoint, "endpoint", "e", "[::1]:6653", "Gateway endpoint")
	attachCmd.Flags().StringVar(&attachCmdArgs.EventsPath, "events", "", "Path to a YAML list of events to deliver (required)")
	attachCmd.MarkFlagRequired("events")
}

// loadEvents reads events in their wire form from a YAML list.
func loadEvents(path string) ([]controller.Event, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read events file: %w", err)
	}

	var raw []map[string]any
	if err := yaml.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("failed to deserialize events: %w", err)
	}

	events := make([]controller.Event, 0, len(raw))
	for idx, fields := range raw {
		msg, err := structpb.NewStruct(fields)
		if err != nil {
			return nil, fmt.Errorf("failed to convert event #%d: %w", idx, err)
		}
		ev, err := southbound.DecodeEvent(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to decode event #%d: %w", idx, err)
		}
		events = append(events, ev)
	}

	return events, nil
}

func runAttach() error {
	events, err := loadEvents(attachCmdArgs.EventsPath)
	if err != nil {
		return err
	}

	cfg := logging.DefaultConfig()
	log, _, err := logging.Init(&cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer log.Sync()

	conn, err := grpc.NewClient(
		attachCmdArgs.Endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to gateway: %w", err)
	}
	defer conn.Close()

	client := southbound.NewClient(conn, func(cmd *southbound.Command) {
		if cmd.Raw != nil {
			fmt.Printf("%s: raw_packet(port=%d, len=%d)\n", cmd.Device, cmd.Raw.Port, len(cmd.Raw.Data))
			return
		}
		fmt.Printf("%s: %s\n", cmd.Device, cmd.Message)
	}, southbound.WithClientLog(log))

	wg, ctx := errgroup.WithContext(context.Background())
	wg.Go(func() error {
		return client.Run(ctx)
	})
	wg.Go(func() error {
		for _, ev := range events {
			if err := client.Send(ctx, ev); err != nil {
				return err
			}
		}
		log.Infow("all events queued", "count", len(events))
		return nil
	})
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infof("caught signal: %v", err)
		return err
	})

	return wg.Wait()
}
