package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hackshare/clustercomm/transport/bufpool"
	"github.com/hackshare/clustercomm/transport/codec"
	"github.com/hackshare/clustercomm/transport/conn"
	"github.com/hackshare/clustercomm/transport/local"
	"github.com/hackshare/clustercomm/transport/loop"
)

var localDemoCmd = &cobra.Command{
	Use:   "local-demo",
	Short: "Run the echo scenario over the in-process local transport",
	RunE:  runLocalDemo,
}

var localDemoEcho string

func init() {
	localDemoCmd.Flags().StringVar(&localDemoEcho, "echo", "Hello world!", "string to send")
}

func runLocalDemo(cmd *cobra.Command, args []string) error {
	serverLoop := loop.New(64)
	clientLoop := loop.New(64)
	defer serverLoop.Stop()
	defer clientLoop.Stop()

	alloc := bufpool.NewAllocator()
	ser := codec.NewGobSerializer()
	reg := local.NewRegistry()

	srv := local.NewLocalServer("clustercommd-local", reg, serverLoop, alloc, ser, nil)
	serverCtx := serverLoop.Context()
	if _, err := srv.Listen(serverCtx, echoAccept); err != nil {
		return err
	}
	defer waitFuture(srv.Close())

	client := local.NewLocalClient(reg, clientLoop, alloc, ser, nil)
	defer waitFuture(client.Close())

	// Connect and Send are driven from this goroutine, not from inside
	// clientLoop.Run: Send posts its work back onto clientLoop, and
	// clientLoop has only one worker goroutine, so blocking that worker on
	// the result would wait on a task it can never get back to running.
	clientCtx := clientLoop.Context()
	connectFut, err := client.Connect(clientCtx, "clustercommd-local")
	if err != nil {
		return err
	}
	v, err := connectFut.Wait(clientCtx)
	if err != nil {
		return err
	}
	c := v.(*conn.Connection)

	sendFut, err := c.Send(clientCtx, localDemoEcho)
	if err != nil {
		return err
	}
	result, err := sendFut.Wait(clientCtx)
	if err != nil {
		return err
	}

	fmt.Println(result)
	return nil
}
