package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"xdao.co/vaultseed/storage"
	"xdao.co/vaultseed/storage/casconfig"
	"xdao.co/vaultseed/storage/casregistry"
	"xdao.co/vaultseed/storage/grpccas"

	_ "xdao.co/vaultseed/storage/ipfs"
	_ "xdao.co/vaultseed/storage/localfs"
	_ "xdao.co/vaultseed/storage/memcas"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("vaultseed-recordd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "record store backend name")
	configPath := fs.String("config", "", "multi-backend config file (overrides --backend)")
	maxMsg := fs.Int("max-msg-bytes", 0, "max gRPC message size (0 = grpc default)")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: errOut, NoColor: true}).With().Timestamp().Logger()

	var (
		cas     storage.CAS
		closeFn func() error
		err     error
	)
	if *configPath != "" {
		cfg, lerr := casconfig.LoadFile(*configPath)
		if lerr != nil {
			fmt.Fprintln(errOut, lerr)
			return 2
		}
		cas, closeFn, err = cfg.Open(casregistry.UsageDaemon)
	} else {
		cas, closeFn, err = casregistry.Open(*backend, casregistry.UsageDaemon)
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	var opts []grpc.ServerOption
	if *maxMsg > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(*maxMsg), grpc.MaxSendMsgSize(*maxMsg))
	}
	s := grpc.NewServer(opts...)
	grpccas.RegisterRecordsServer(s, &grpccas.Server{CAS: cas})

	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	log.Info().Str("addr", lis.Addr().String()).Str("backend", *backend).Msg("vaultseed-recordd listening")
	if err := s.Serve(lis); err != nil {
		log.Error().Err(err).Msg("serve")
		return 1
	}
	return 0
}
