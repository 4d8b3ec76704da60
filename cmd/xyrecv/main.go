package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/diggernet/XYModem/xmodem"
)

const versionString = "xyrecv 0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "xyrecv",
		Short: "Receive files via XMODEM/YMODEM",
	}
	root.AddCommand(newReceiveCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(versionString)
			return nil
		},
	}
}

func newReceiveCmd() *cobra.Command {
	var (
		configPath    string
		transport     string
		serialName    string
		baud          int
		sshHost       string
		sshUser       string
		sshPassword   string
		sshKeyFile    string
		outDir        string
		overrunPolicy string
		verbose       bool
	)

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Receive one or more files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.Transport != "" {
				transport = cfg.Transport
			}
			if cfg.Serial.Port != "" {
				serialName = cfg.Serial.Port
			}
			if cfg.Serial.Baud != 0 {
				baud = cfg.Serial.Baud
			}
			if cfg.SSH.Host != "" {
				sshHost = cfg.SSH.Host
			}
			if cfg.SSH.User != "" {
				sshUser = cfg.SSH.User
			}
			if cfg.SSH.Password != "" {
				sshPassword = cfg.SSH.Password
			}
			if cfg.SSH.KeyFile != "" {
				sshKeyFile = cfg.SSH.KeyFile
			}
			if cfg.OutDir != "" {
				outDir = cfg.OutDir
			}
			if cfg.OverrunPolicy != "" {
				overrunPolicy = cfg.OverrunPolicy
			}

			log := logrus.New()
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}

			var port xmodem.IOPort
			var closer func() error
			switch transport {
			case "ssh":
				sp, err := dialSSHPort(sshHost, sshUser, sshPassword, sshKeyFile)
				if err != nil {
					return err
				}
				port, closer = sp, sp.Close
			case "local":
				lp, err := openLocalPort()
				if err != nil {
					return err
				}
				port, closer = lp, lp.Close
			default:
				sp, err := openSerialPort(serialName, baud)
				if err != nil {
					return err
				}
				port, closer = sp, sp.Close
			}
			defer closer()

			ctx, cancel := signalContext()
			defer cancel()

			showProgress := term.IsTerminal(int(os.Stdout.Fd()))
			session := xmodem.NewSession(port,
				xmodem.WithDir(outDir),
				xmodem.WithOverrunPolicy(parseOverrunPolicy(overrunPolicy)),
				xmodem.WithLogger(xmodem.NewLogrusLogger(log)),
				xmodem.WithCallbacks(xmodem.Callbacks{
					OnLog: func(msg string) { log.Info(msg) },
					OnProgress: func(bytesSoFar, declaredTotal int64) {
						if !showProgress {
							return
						}
						if declaredTotal > 0 {
							fmt.Fprintf(os.Stderr, "\r%d/%d bytes", bytesSoFar, declaredTotal)
						} else {
							fmt.Fprintf(os.Stderr, "\r%d bytes", bytesSoFar)
						}
					},
					OnReceived: func(dl xmodem.Download) {
						fmt.Fprintln(os.Stderr)
						log.Infof("received %q (%d bytes)", dl.Name, dl.Length)
					},
				}),
			)

			downloads, err := session.Receive(ctx)
			if err != nil {
				return err
			}
			log.Infof("transfer complete: %d file(s)", len(downloads))
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&transport, "transport", "serial", "transport to use: serial, ssh, or local")
	cmd.Flags().StringVar(&serialName, "port", "", "serial port device path")
	cmd.Flags().IntVar(&baud, "baud", 115200, "serial baud rate")
	cmd.Flags().StringVar(&sshHost, "ssh-host", "", "SSH host:port")
	cmd.Flags().StringVar(&sshUser, "ssh-user", "", "SSH username")
	cmd.Flags().StringVar(&sshPassword, "ssh-password", "", "SSH password")
	cmd.Flags().StringVar(&sshKeyFile, "ssh-key", "", "SSH private key file")
	cmd.Flags().StringVar(&outDir, "dir", ".", "directory to write received files into")
	cmd.Flags().StringVar(&overrunPolicy, "overrun", "ignore", "overrun policy: ignore, error, accept, mixed")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
