package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/yanet-platform/sdnctl/controlplane/sdnpb"
)

const requestTimeout = 10 * time.Second

var gatewayEndpoint string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the controller state",
}

var inspectTopologyCmd = &cobra.Command{
	Use:   "topology",
	Short: "Show the topology graph",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(withInspectClient(func(ctx context.Context, client *sdnpb.InspectServiceClient) (proto.Message, error) {
			return client.ShowTopology(ctx, &emptypb.Empty{})
		}))
	},
}

var inspectHostsCmd = &cobra.Command{
	Use:   "hosts [PATTERN]",
	Short: "List learned hosts, optionally filtered by an address glob",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pattern := ""
		if len(args) > 0 {
			pattern = args[0]
		}

		exitOnError(withInspectClient(func(ctx context.Context, client *sdnpb.InspectServiceClient) (proto.Message, error) {
			return client.ListHosts(ctx, wrapperspb.String(pattern))
		}))
	},
}

var inspectFlowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "List installed forwarding rules",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(withInspectClient(func(ctx context.Context, client *sdnpb.InspectServiceClient) (proto.Message, error) {
			return client.ListFlows(ctx, &emptypb.Empty{})
		}))
	},
}

var logLevelCmd = &cobra.Command{
	Use:   "log-level LEVEL",
	Short: "Change the controller logging level at runtime",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(withConn(func(ctx context.Context, conn *grpc.ClientConn) error {
			_, err := sdnpb.NewLoggingClient(conn).UpdateLevel(ctx, wrapperspb.String(args[0]))
			if err != nil {
				return fmt.Errorf("failed to update log level: %w", err)
			}
			return nil
		}))
	},
}

func init() {
	for _, cmd := range []*cobra.Command{inspectCmd, logLevelCmd} {
		cmd.PersistentFlags().StringVarP(&gatewayEndpoint, "endpoint", "e", "[::1]:6653", "Gateway endpoint")
	}

	inspectCmd.AddCommand(inspectTopologyCmd)
	inspectCmd.AddCommand(inspectHostsCmd)
	inspectCmd.AddCommand(inspectFlowsCmd)
}

func withConn(fn func(ctx context.Context, conn *grpc.ClientConn) error) error {
	conn, err := grpc.NewClient(
		gatewayEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to gateway: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	return fn(ctx, conn)
}

func withInspectClient(fn func(ctx context.Context, client *sdnpb.InspectServiceClient) (proto.Message, error)) error {
	return withConn(func(ctx context.Context, conn *grpc.ClientConn) error {
		resp, err := fn(ctx, sdnpb.NewInspectServiceClient(conn))
		if err != nil {
			return fmt.Errorf("failed to inspect: %w", err)
		}

		buf, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(resp)
		if err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
		fmt.Println(string(buf))
		return nil
	})
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}
