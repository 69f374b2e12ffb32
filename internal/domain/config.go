package domain

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"

	configKit "github.com/gookit/config/v2"
	"github.com/gookit/config/v2/yaml"
	"github.com/imdario/mergo"
	"github.com/mitchellh/mapstructure"
)

const (
	OptionName = "name"
	OptionDesc = "description"
)

// Configuration encapsulates the configuration for the integration test harness.
// These are all parsed and converted into flag arguments using the provided 'flag'
// package (i.e., the one that's part of the standard library). A YAML file specified
// via the 'yaml' option is merged over the flag values.
type Configuration struct {
	YAML string `name:"yaml" description:"Path to config file in the yml format."`

	Debug   bool `name:"debug" description:"Display debug logs."`
	Verbose bool `name:"v" description:"Display verbose logs."`

	//////////////////
	// Simulated time //
	//////////////////
	Timezone      string `name:"timezone" yaml:"timezone" json:"timezone" description:"IANA timezone in which all simulated instants are expressed for the lifetime of a session."`
	SharedDataDir string `name:"shared-data-dir" yaml:"shared-data-dir" json:"shared-data-dir" description:"Host directory bind-mounted into the service containers. The clock store file lives here."`
	ClockFileName string `name:"clock-file-name" yaml:"clock-file-name" json:"clock-file-name" description:"Name of the clock store file within the shared data directory. Read by the time-interception agents inside the containers."`

	///////////////////////
	// Container runtime //
	///////////////////////
	ComposeFile          string `name:"compose-file" yaml:"compose-file" json:"compose-file" description:"Path to the docker compose file describing the services under test."`
	ComposeProjectName   string `name:"compose-project-name" yaml:"compose-project-name" json:"compose-project-name" description:"Docker compose project name used to isolate the harness' containers."`
	HomeAssistantService string `name:"home-assistant-service" yaml:"home-assistant-service" json:"home-assistant-service" description:"Name of the Home Assistant service within the compose file."`
	AppDaemonService     string `name:"appdaemon-service" yaml:"appdaemon-service" json:"appdaemon-service" description:"Name of the AppDaemon service within the compose file."`
	HomeAssistantPort    int    `name:"home-assistant-port" yaml:"home-assistant-port" json:"home-assistant-port" description:"Container-side port on which Home Assistant listens."`
	AppDaemonPort        int    `name:"appdaemon-port" yaml:"appdaemon-port" json:"appdaemon-port" description:"Container-side port on which AppDaemon listens."`
	StartupTimeoutSec    int    `name:"startup-timeout-seconds" yaml:"startup-timeout-seconds" json:"startup-timeout-seconds" description:"How long to wait for the containers to report healthy before giving up."`

	////////////////////
	// Authentication //
	////////////////////
	RefreshToken     string `name:"refresh-token" yaml:"refresh-token" json:"refresh-token" description:"Long-lived Home Assistant refresh token. If empty, the token is read from the token file inside the Home Assistant container."`
	TokenFilePath    string `name:"token-file-path" yaml:"token-file-path" json:"token-file-path" description:"Container path of the file holding the Home Assistant refresh token."`
	AuthClientId     string `name:"auth-client-id" yaml:"auth-client-id" json:"auth-client-id" description:"OAuth client id presented when exchanging the refresh token for an access token."`
	EntityWaitSec    int    `name:"entity-wait-seconds" yaml:"entity-wait-seconds" json:"entity-wait-seconds" description:"Default timeout for entity-state assertions."`
	PersistentEntities string `name:"persistent-entities-file" yaml:"persistent-entities-file" json:"persistent-entities-file" description:"Optional YAML file defining entities staged into the Home Assistant configuration before startup."`

	PrometheusEndpoint string `name:"prometheus-endpoint" yaml:"prometheus-endpoint" json:"prometheus-endpoint" default:"/metrics"`
	ApiPort            int    `name:"api-port" yaml:"api-port" json:"api-port" description:"Port on which the harness serves its HTTP control API and metrics."`
}

func GetDefaultConfig() *Configuration {
	return &Configuration{
		Timezone:             "Europe/London",
		SharedDataDir:        "./shared_data",
		ClockFileName:        ".faketime",
		ComposeFile:          "docker-compose.yml",
		ComposeProjectName:   "ha-harness",
		HomeAssistantService: "homeassistant",
		AppDaemonService:     "appdaemon",
		HomeAssistantPort:    8123,
		AppDaemonPort:        5050,
		StartupTimeoutSec:    120,
		TokenFilePath:        "/shared_data/.ha_token",
		AuthClientId:         "http://localhost",
		EntityWaitSec:        5,
		PrometheusEndpoint:   "/metrics",
		ApiPort:              9090,
	}
}

func (opts *Configuration) String() string {
	out, err := json.MarshalIndent(opts, "", "  ")
	if err != nil {
		panic(err)
	}

	return string(out)
}

func (opts *Configuration) CheckUsage() {
	var printInfo bool
	flag.BoolVar(&printInfo, "h", false, "help info?")

	oType := reflect.TypeOf(opts).Elem()
	oVal := reflect.ValueOf(opts).Elem()
	numField := oType.NumField()
	for i := 0; i < numField; i++ {
		field := oType.Field(i)
		if field.PkgPath != "" {
			continue
		}

		name := field.Tag.Get(OptionName)
		if name == "" {
			continue
		}
		desc := field.Tag.Get(OptionDesc)
		opt := oVal.Field(i)
		switch field.Type.Kind() {
		case reflect.Bool:
			flag.BoolVar(opt.Addr().Interface().(*bool), name, opt.Bool(), desc)
		case reflect.Int:
			flag.IntVar(opt.Addr().Interface().(*int), name, int(opt.Int()), desc)
		case reflect.Int64:
			flag.Int64Var(opt.Addr().Interface().(*int64), name, opt.Int(), desc)
		case reflect.Float64:
			flag.Float64Var(opt.Addr().Interface().(*float64), name, opt.Float(), desc)
		case reflect.String:
			flag.StringVar(opt.Addr().Interface().(*string), name, opt.String(), desc)
		default:
			panic(fmt.Errorf("unsupported config type: %v", field.Type.Kind()))
		}
	}

	flag.Parse()

	if printInfo {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: ./harness [options]\n")
		_, _ = fmt.Fprintf(os.Stderr, "Available options:\n")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if opts.YAML != "" {
		fmt.Printf("Reading configuration from file: \"%s\"\n", opts.YAML)
		configKit.WithOptions(func(opt *configKit.Options) {
			opt.SetTagName(OptionName)
			// DecoderConfig initialization is due a bug in configKit: no TagName will be applied if DecoderConfig is nil.
			opt.DecoderConfig = &mapstructure.DecoderConfig{}
		})
		configKit.AddDriver(yaml.Driver)
		if err := configKit.LoadFiles(opts.YAML); err != nil {
			panic(err)
		}
		fileOpts := &Configuration{}
		if err := configKit.BindStruct("", fileOpts); err != nil {
			panic(err)
		}

		if err := mergo.Merge(opts, fileOpts, mergo.WithOverride); err != nil {
			panic(err)
		}
	}
}
