package app

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/NPRA/geofence-converter/broker"
	"github.com/NPRA/geofence-converter/geom"
)

const envPrefix = "GEOFENCE_CONVERTER"

const defaultConfig = `# Geofence Converter

################################## LOGGING ####################################

[logging]

#
# Logging verbosity level.
# Supported values: "DEBUG", "INFO", "WARN", "ERROR", "FATAL" or "PANIC".
#
level = "INFO"

################################## REGISTRY ###################################

[registry]

#
# NVDB API root. Objects are listed from {base_url}/vegobjekter/{object_type}.
#
base_url = "https://www.vegvesen.no/nvdb/api/v2"
object_type = 911

#
# Every request, connection set-up included, must complete within timeout.
#
timeout = "2s"

#
# Transient failures (network errors, 5xx) are retried this many times.
#
retries = 2

#
# Pagination stops after max_pages. An incomplete listing is still processed
# but deleted geofences are not detected. Zero means no limit.
#
max_pages = 100

#
# Bounding box (kartutsnitt) in UTM 33N.
#
bbox = "-621912,6250000,1821912,8189887"

################################## INTERCHANGE ################################

[interchange]

#
# AMQP 1.0 broker, e.g. "amqps://interchange.example.com:5671". An amqps URL
# requires tls_key_file and tls_cert_file.
#
broker_url = ""
sender = ""
receiver = ""
username = ""
password = ""

tls_key_file = ""
tls_cert_file = ""
tls_ca_file = ""

#
# The interchange presents certificates issued for IP addresses. The chain is
# verified even when the hostname check is skipped.
#
skip_hostname_check = true

send_timeout = "10s"
reconnect_delay = "5s"

################################## ADAPTER ####################################

[adapter]

#
# Seconds between reconciliation cycles.
#
interval = 300

################################## PROJECTION #################################

[projection]

zone = 33
zone_letter = "N"

################################## CACHE ######################################

[cache]

#
# Supported backends: "sqlite" (path) or "dynamodb" (dynamodb_table).
#
backend = "sqlite"
path = "database.db"
dynamodb_table = "geofence_converter_cache"

################################## ARCHIVE ####################################

[archive]

#
# Copy of every delivered document, e.g. "s3://bucket/prefix". Disabled when
# empty.
#
destination = ""

################################## AWS ########################################

[aws]

s3_profile = ""
s3_endpoint = ""

dynamodb_profile = ""
dynamodb_endpoint = ""

################################## SERVER #####################################

[server]

#
# Health checks, Prometheus metrics and profiling data.
#
listen = ":6060"
`

// serverFlags maps server command flags to configuration keys.
var serverFlags = map[string]string{
	"broker-url": "interchange.broker_url",
	"sender":     "interchange.sender",
	"receiver":   "interchange.receiver",
	"username":   "interchange.username",
	"password":   "interchange.password",
	"tls-key":    "interchange.tls_key_file",
	"tls-cert":   "interchange.tls_cert_file",
	"interval":   "adapter.interval",
}

// ConfigError is returned when the configuration cannot be used.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "config error: " + e.Err.Error() }
func (e *ConfigError) Cause() error  { return e.Err }
func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...interface{}) error {
	return &ConfigError{Err: errors.Errorf(format, args...)}
}

type Config struct {
	v *viper.Viper

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`

	Registry struct {
		BaseURL     string        `mapstructure:"base_url"`
		ObjectType  int           `mapstructure:"object_type"`
		Timeout     time.Duration `mapstructure:"timeout"`
		Retries     uint64        `mapstructure:"retries"`
		MaxPages    int           `mapstructure:"max_pages"`
		BoundingBox string        `mapstructure:"bbox"`
	} `mapstructure:"registry"`

	Interchange struct {
		BrokerURL         string        `mapstructure:"broker_url"`
		Sender            string        `mapstructure:"sender"`
		Receiver          string        `mapstructure:"receiver"`
		Username          string        `mapstructure:"username"`
		Password          string        `mapstructure:"password"`
		TLSKeyFile        string        `mapstructure:"tls_key_file"`
		TLSCertFile       string        `mapstructure:"tls_cert_file"`
		TLSCAFile         string        `mapstructure:"tls_ca_file"`
		SkipHostnameCheck bool          `mapstructure:"skip_hostname_check"`
		SendTimeout       time.Duration `mapstructure:"send_timeout"`
		ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	} `mapstructure:"interchange"`

	Adapter struct {
		Interval int `mapstructure:"interval"`
	} `mapstructure:"adapter"`

	Projection struct {
		Zone       int    `mapstructure:"zone"`
		ZoneLetter string `mapstructure:"zone_letter"`
	} `mapstructure:"projection"`

	Cache struct {
		Backend       string `mapstructure:"backend"`
		Path          string `mapstructure:"path"`
		DynamoDBTable string `mapstructure:"dynamodb_table"`
	} `mapstructure:"cache"`

	Archive struct {
		Destination string `mapstructure:"destination"`
	} `mapstructure:"archive"`

	AWS struct {
		S3Profile        string `mapstructure:"s3_profile"`
		S3Endpoint       string `mapstructure:"s3_endpoint"`
		DynamoDBProfile  string `mapstructure:"dynamodb_profile"`
		DynamoDBEndpoint string `mapstructure:"dynamodb_endpoint"`
	} `mapstructure:"aws"`

	Server struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"server"`
}

// Validate checks the settings shared by every command.
func (c Config) Validate() error {
	if _, err := url.Parse(c.Registry.BaseURL); err != nil || c.Registry.BaseURL == "" {
		return configErrorf("registry.base_url %q is not a valid URL", c.Registry.BaseURL)
	}
	if c.Registry.MaxPages < 0 {
		return configErrorf("registry.max_pages cannot be negative")
	}
	if c.Adapter.Interval <= 0 {
		return configErrorf("adapter.interval must be a positive number of seconds")
	}
	if c.Projection.Zone < 1 || c.Projection.Zone > 60 {
		return configErrorf("projection.zone %d is out of range", c.Projection.Zone)
	}
	if l := c.Projection.ZoneLetter; len(l) != 1 || !strings.Contains("CDEFGHJKLMNPQRSTUVWX", strings.ToUpper(l)) {
		return configErrorf("projection.zone_letter %q is not a UTM latitude band", l)
	}
	switch c.Cache.Backend {
	case "sqlite":
		if c.Cache.Path == "" {
			return configErrorf("cache.path is required by the sqlite backend")
		}
	case "dynamodb":
		if c.Cache.DynamoDBTable == "" {
			return configErrorf("cache.dynamodb_table is required by the dynamodb backend")
		}
	default:
		return configErrorf("cache.backend %q is not supported", c.Cache.Backend)
	}
	if d := c.Archive.Destination; d != "" && !strings.HasPrefix(d, "s3://") {
		return configErrorf("archive.destination %q must be an s3:// URI", d)
	}
	return nil
}

// ValidateServer checks what the server needs before any network I/O.
func (c Config) ValidateServer(fs afero.Fs) error {
	opts := c.InterchangeOptions()
	if err := opts.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	if !opts.Secure() {
		return nil
	}
	for _, path := range []string{opts.TLSKeyFile, opts.TLSCertFile, opts.TLSCAFile} {
		if path == "" {
			continue
		}
		if ok, err := afero.Exists(fs, path); err != nil || !ok {
			return configErrorf("file %s does not exist", path)
		}
	}
	return nil
}

// InterchangeOptions returns the broker options.
func (c Config) InterchangeOptions() broker.Options {
	ic := c.Interchange
	return broker.Options{
		URL:               ic.BrokerURL,
		Sender:            ic.Sender,
		Receiver:          ic.Receiver,
		Username:          ic.Username,
		Password:          ic.Password,
		TLSKeyFile:        ic.TLSKeyFile,
		TLSCertFile:       ic.TLSCertFile,
		TLSCAFile:         ic.TLSCAFile,
		SkipHostnameCheck: ic.SkipHostnameCheck,
		SendTimeout:       ic.SendTimeout,
	}
}

// UTMProjection returns the projection of registry geometries.
func (c Config) UTMProjection() geom.Projection {
	return geom.Projection{
		Zone:   c.Projection.Zone,
		Letter: strings.ToUpper(c.Projection.ZoneLetter),
	}
}

// Interval between cycles.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Adapter.Interval) * time.Second
}

// String renders the configuration as TOML, password redacted.
func (c Config) String() string {
	if c.v == nil {
		return ""
	}
	fs := afero.NewMemMapFs()
	out := viper.New()
	out.SetFs(fs)
	if err := out.MergeConfigMap(c.v.AllSettings()); err != nil {
		return err.Error()
	}
	if c.Interchange.Password != "" {
		out.Set("interchange.password", "********")
	}
	const name = "/config.toml"
	if err := out.WriteConfigAs(name); err != nil {
		return err.Error()
	}
	blob, err := afero.ReadFile(fs, name)
	if err != nil {
		return err.Error()
	}
	return string(blob)
}

func loadConfig(c *Config, flags *pflag.FlagSet) error {
	// Variables already present in the environment take precedence.
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return &ConfigError{Err: errors.Wrapf(err, "cannot load %s", envFile)}
	}

	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("geofence-converter")
	v.SetConfigType("toml")
	v.AddConfigPath("$HOME/.config/")
	v.AddConfigPath("/etc/geofence-converter/")

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read our default configuration.
	if err := v.ReadConfig(strings.NewReader(defaultConfig)); err != nil {
		panic(err) // Not in the user path.
	}

	// Include configuration file provided by the user.
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return &ConfigError{Err: err}
		}
	}

	if flags != nil {
		for name, key := range serverFlags {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return errors.Wrapf(err, "cannot bind flag %s", name)
				}
			}
		}
	}

	if err := v.Unmarshal(c); err != nil {
		return &ConfigError{Err: errors.Wrap(err, "configuration unmarshaling failed")}
	}

	if err := c.Validate(); err != nil {
		return errors.Wrap(err, "config did not pass validation")
	}

	c.v = v

	return nil
}
