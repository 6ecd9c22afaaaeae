package main

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danmuck/articgate/internal/client"
	"github.com/danmuck/articgate/internal/gateway"
	"github.com/danmuck/articgate/internal/native"
	"github.com/danmuck/articgate/internal/observability"
	"github.com/danmuck/articgate/internal/rpc"
	"github.com/spf13/cobra"
)

// readChunk is the FSFILE_Read size used by get-file.
const readChunk = 1 << 20

type globals struct {
	addr    string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "articctl",
		Short:         "Call a running articd gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			observability.InitLogger("articctl")
		},
	}
	root.PersistentFlags().StringVarP(&g.addr, "addr", "a", "127.0.0.1:5543", "gateway address")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "per-command timeout")

	root.AddCommand(
		newMethodsCmd(),
		newCallCmd(g),
		newGetFileCmd(g),
		newSystemFileCmd(g),
	)
	return root
}

func (g *globals) dial(ctx context.Context) (*client.Client, error) {
	cfg := client.DefaultConfig()
	cfg.Address = g.addr
	return client.Dial(ctx, cfg)
}

func (g *globals) context() (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), g.timeout)
}

func newMethodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the gateway method catalogue",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range gateway.Catalogue() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func newCallCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "call METHOD [kind:value ...]",
		Short: "Call one method and print the status and result buffers",
		Long: `Call one method. Parameters are kind:value pairs in the order the
method reads them: s8:N s32:N s64:N hex:BYTES empty ascii:TEXT utf16:TEXT
binary:W,W,...`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			ctx, cancel := g.context()
			defer cancel()
			c, err := g.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Call(ctx, args[0], params)
			if err != nil {
				return err
			}
			printResponse(cmd.OutOrStdout(), resp)
			return nil
		},
	}
}

func printResponse(w io.Writer, resp rpc.Response) {
	fmt.Fprintf(w, "status: %d (0x%08X)\n", int32(resp.Status), uint32(resp.Status))
	for i, b := range resp.Buffers {
		fmt.Fprintf(w, "buffer %d: %d bytes\n", i, len(b))
		if len(b) > 0 {
			fmt.Fprint(w, hex.Dump(b))
		}
	}
}

func newGetFileCmd(g *globals) *cobra.Command {
	var archive uint32
	var out string
	cmd := &cobra.Command{
		Use:   "get-file PATH",
		Short: "Copy a file out of an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.context()
			defer cancel()
			c, err := g.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			data, err := fetchFile(ctx, c, native.ArchiveID(archive), args[0])
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	cmd.Flags().Uint32Var(&archive, "archive", uint32(native.ArchiveSDMC), "archive id")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	return cmd
}

// fetchFile opens path directly, reads it in chunks and closes it.
func fetchFile(ctx context.Context, c *client.Client, archive native.ArchiveID, path string) ([]byte, error) {
	open := rpc.NewParams().
		S32(int32(archive)).
		Buffer(native.EmptyPath().Encode()).
		Buffer(native.ASCIIPath(path).Encode()).
		S32(int32(native.OpenRead)).
		S32(0)
	resp, err := c.Call(ctx, gateway.MethodOpenFileDirectly, open)
	if err := statusErr(gateway.MethodOpenFileDirectly, resp, err); err != nil {
		return nil, err
	}
	handle := int32(binary.LittleEndian.Uint64(resp.Buffers[0]))
	defer c.Call(ctx, gateway.MethodFileClose, rpc.NewParams().S32(handle))

	resp, err = c.Call(ctx, gateway.MethodFileGetSize, rpc.NewParams().S32(handle))
	if err := statusErr(gateway.MethodFileGetSize, resp, err); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint64(resp.Buffers[0])

	data := make([]byte, 0, size)
	for uint64(len(data)) < size {
		chunk := min(size-uint64(len(data)), readChunk)
		resp, err = c.Call(ctx, gateway.MethodFileRead, rpc.NewParams().S32(handle).S64(int64(len(data))).S32(int32(chunk)))
		if err := statusErr(gateway.MethodFileRead, resp, err); err != nil {
			return nil, err
		}
		if len(resp.Buffers[0]) == 0 {
			break
		}
		data = append(data, resp.Buffers[0]...)
	}
	return data, nil
}

func newSystemFileCmd(g *globals) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "system-file SELECTOR",
		Short: "Fetch a system secret (0 SecureInfo, 1 friend seed, 2 movable, 3 OTP, 4 console id, 5 MAC)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams([]string{"s8:" + args[0]})
			if err != nil {
				return err
			}
			ctx, cancel := g.context()
			defer cancel()
			c, err := g.dial(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Call(ctx, gateway.MethodGetSystemFile, params)
			if err := statusErr(gateway.MethodGetSystemFile, resp, err); err != nil {
				return err
			}
			if out == "" {
				fmt.Fprint(cmd.OutOrStdout(), hex.Dump(resp.Buffers[0]))
				return nil
			}
			return os.WriteFile(out, resp.Buffers[0], 0o600)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default hex dump to stdout)")
	return cmd
}

func statusErr(method string, resp rpc.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Status != rpc.StatusOK {
		return fmt.Errorf("%s: status %d (0x%08X)", method, int32(resp.Status), uint32(resp.Status))
	}
	if len(resp.Buffers) == 0 {
		return fmt.Errorf("%s: no result buffer", method)
	}
	return nil
}
