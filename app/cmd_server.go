package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/NPRA/geofence-converter/adapter"
	"github.com/NPRA/geofence-converter/broker"
	"github.com/NPRA/geofence-converter/cache"
	"github.com/NPRA/geofence-converter/registry"
	"github.com/NPRA/geofence-converter/s3"
	"github.com/NPRA/geofence-converter/version"
)

func NewCmdServer(logger logrus.FieldLogger, config *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the application server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.WithField("v", version.VERSION).Info("Starting server...")
			return doServer(logger, config)
		},
	}

	flags := cmd.Flags()
	flags.String("broker-url", "", "AMQP URL of the interchange")
	flags.String("sender", "", "Queue documents are sent to")
	flags.String("receiver", "", "Queue used to verify the connection")
	flags.String("username", "", "SASL username")
	flags.String("password", "", "SASL password")
	flags.String("tls-key", "", "Client private key (amqps)")
	flags.String("tls-cert", "", "Client certificate (amqps)")
	flags.Int("interval", int(adapter.DefaultInterval.Seconds()), "Seconds between cycles")

	return cmd
}

func doServer(logger logrus.FieldLogger, config *Config) error {
	if err := config.ValidateServer(appFs); err != nil {
		return err
	}

	var g run.Group
	var a *adapter.Adapter
	{
		var (
			closer func()
			err    error
		)
		a, closer, err = server(logger, config, prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		defer closer()

		g.Add(func() error {
			a.Run()
			return nil
		}, func(error) {
			a.Stop()
		})
	}
	{
		ln, err := net.Listen("tcp", config.Server.Listen)
		if err != nil {
			return err
		}
		logger.WithField("addr", ln.Addr().String()).Info("HTTP server listening")

		g.Add(func() error {
			return http.Serve(ln, newServeMux())
		}, func(error) {
			ln.Close()
		})
	}
	{
		cancel := make(chan struct{})

		g.Add(func() error {
			err := interrupt(cancel, a)
			logger.Warn("Shutting down...")
			return err
		}, func(error) {
			close(cancel)
		})
	}

	return g.Run()
}

func newServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	// Prometheus metrics.
	mux.Handle("/metrics", promhttp.Handler())

	// Profiling data.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/pprof/block", pprof.Handler("block"))
	mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	mux.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))

	return mux
}

// server wires the adapter. The interchange must be reachable: a failed first
// connection is fatal.
func server(logger logrus.FieldLogger, config *Config, reg prometheus.Registerer) (*adapter.Adapter, func(), error) {
	ctx := context.Background()

	store, err := openStore(ctx, logger, config)
	if err != nil {
		return nil, nil, err
	}

	var fetcher *registry.Client
	{
		query := registry.DefaultQuery
		if config.Registry.BoundingBox != "" {
			query.BoundingBox = config.Registry.BoundingBox
		}
		fetcher, err = registry.New(
			registry.NewHTTPClient(config.Registry.Timeout),
			config.Registry.BaseURL,
			config.Registry.ObjectType,
			registry.SetQuery(query),
			registry.SetMaxPages(config.Registry.MaxPages),
			registry.SetRetries(config.Registry.Retries),
			registry.SetUserAgent(version.AppVersion()),
			registry.SetLogger(logger.WithField("component", "registry")))
		if err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	var archive s3.ObjectStorage
	if config.Archive.Destination != "" {
		sess, err := awsSession(logger, config.AWS.S3Profile, config.AWS.S3Endpoint)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		archive, err = s3.New(sess, config.Archive.Destination)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
	}

	ic := broker.New(logger.WithField("component", "interchange"), config.InterchangeOptions(), nil)
	if err := ic.Connect(ctx); err != nil {
		store.Close()
		return nil, nil, errors.Wrap(err, "unable to connect to the interchange")
	}

	a := adapter.New(
		logger.WithField("component", "adapter"),
		fetcher, ic, store, archive,
		adapter.NewMetrics(reg),
		adapter.Config{
			Interval:       config.Interval(),
			ReconnectDelay: config.Interchange.ReconnectDelay,
			Projection:     config.UTMProjection(),
		})

	// Rows written before centroids were cached.
	if _, err := a.BackfillCentroids(ctx); err != nil {
		logger.WithError(err).Error("Centroid backfill failed")
	}

	closer := func() {
		if err := ic.Close(); err != nil {
			logger.WithError(err).Warn("Error closing the interchange link")
		}
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("Error closing the cache")
		}
	}

	return a, closer, nil
}

// openStore opens the configured cache backend.
func openStore(ctx context.Context, logger logrus.FieldLogger, config *Config) (cache.Store, error) {
	switch config.Cache.Backend {
	case "dynamodb":
		sess, err := awsSession(logger, config.AWS.DynamoDBProfile, config.AWS.DynamoDBEndpoint)
		if err != nil {
			return nil, err
		}
		return cache.NewDynamoDB(dynamodb.New(sess), config.Cache.DynamoDBTable), nil
	default:
		return cache.OpenSQLite(ctx, config.Cache.Path)
	}
}

type logrusProxy struct {
	logger logrus.FieldLogger
}

func (l logrusProxy) Log(args ...interface{}) {
	l.logger.WithField("client", "aws").Debug(args...)
}

// awsSession returns a session using NewSessionWithOptions meaning that it
// relies on the SDK defaults but also the user config files and environment.
//
// AWS_S3_FORCE_PATH_STYLE is a made-up environment string that the SDK does
// not look up.
func awsSession(logger logrus.FieldLogger, profile, endpoint string) (*session.Session, error) {
	options := session.Options{}
	if profile != "" {
		options.Profile = profile
	}
	if endpoint != "" {
		options.Config.WithEndpoint(endpoint)
	}
	if res, ok := os.LookupEnv("AWS_S3_FORCE_PATH_STYLE"); ok {
		enabled, _ := strconv.ParseBool(res)
		options.Config.WithS3ForcePathStyle(enabled)
	}
	if logrus.GetLevel() == logrus.DebugLevel {
		options.Config.WithCredentialsChainVerboseErrors(true)
	}
	options.Config.WithLogger(logrusProxy{logger: logger})
	return session.NewSessionWithOptions(options)
}
