package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hackshare/clustercomm/transport"
	"github.com/hackshare/clustercomm/transport/addr"
	"github.com/hackshare/clustercomm/transport/conn"
)

var dialCmd = &cobra.Command{
	Use:   "dial",
	Short: "Connect to a clustercomm server and echo one string",
	RunE:  runDial,
}

var dialAddr string
var dialEcho string

func init() {
	dialCmd.Flags().StringVar(&dialAddr, "addr", "127.0.0.1:7070", "address to dial")
	dialCmd.Flags().StringVar(&dialEcho, "echo", "Hello world!", "string to send")
}

func runDial(cmd *cobra.Command, args []string) error {
	address, err := addr.Parse(dialAddr)
	if err != nil {
		return fmt.Errorf("parse --addr: %w", err)
	}

	tr := transport.NewNetworkTransport()
	defer waitFuture(tr.Close())
	client := tr.Client("clustercommd-cli")
	l := tr.Control()

	var result any
	var opErr error
	l.Run(func(ctx context.Context) {
		connectFut, err := client.Connect(ctx, address)
		if err != nil {
			opErr = err
			return
		}
		v, err := connectFut.Wait(ctx)
		if err != nil {
			opErr = err
			return
		}
		c := v.(*conn.Connection)

		sendFut, err := c.Send(ctx, dialEcho)
		if err != nil {
			opErr = err
			return
		}
		result, opErr = sendFut.Wait(ctx)
	})
	if opErr != nil {
		return opErr
	}

	fmt.Println(result)
	return nil
}
