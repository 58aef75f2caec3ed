package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-things/internal/api"
	"github.com/nerrad567/gray-logic-things/internal/codec"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-things/internal/protocol"
	"github.com/nerrad567/gray-logic-things/internal/protocol/httpclient"
	"github.com/nerrad567/gray-logic-things/internal/protocol/mqttclient"
)

// options holds the persistent flags shared by every command.
type options struct {
	configPath  string
	contentType string
	accept      string
	token       string
	timeout     time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "thingctl",
		Short:         "Operate on Thing resources over HTTP or MQTT",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("THINGS_CONFIG"), "Config file for client and MQTT settings")
	root.PersistentFlags().StringVar(&opts.contentType, "content-type", codec.MediaTypeJSON, "Media type used to encode the payload")
	root.PersistentFlags().StringVar(&opts.accept, "accept", codec.MediaTypeJSON, "Media type requested for the response")
	root.PersistentFlags().StringVar(&opts.token, "token", "", "Bearer token for HTTP requests (overrides config)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "Overall command timeout")

	root.AddCommand(
		verbCmd(opts, protocol.VerbRead, "read <uri>", "Read a Thing description or property value", cobra.ExactArgs(1)),
		verbCmd(opts, protocol.VerbWrite, "write <uri> <value>", "Write a property value", cobra.ExactArgs(2)),
		verbCmd(opts, protocol.VerbInvoke, "invoke <uri> [input]", "Invoke an action or emit an event", cobra.RangeArgs(1, 2)),
		verbCmd(opts, protocol.VerbUnlink, "unlink <uri>", "Remove a Thing or one of its members", cobra.ExactArgs(1)),
		tokenCmd(opts),
	)
	return root
}

// verbCmd builds the command for one resource verb.
func verbCmd(opts *options, verb protocol.Verb, use, short string, args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			var payload protocol.Content
			if len(args) > 1 {
				payload, err = parseValue(opts.contentType, args[1])
				if err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			dispatcher, err := newDispatcher(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				//nolint:errcheck // nothing useful to do on exit
				dispatcher.Stop(context.Background())
			}()

			out, err := dispatcher.Do(protocol.WithAccept(ctx, opts.accept), verb, args[0], payload)
			if err != nil {
				return fmt.Errorf("%s %s: %w", verb, args[0], err)
			}
			return printContent(cmd.OutOrStdout(), out)
		},
	}
}

func tokenCmd(opts *options) *cobra.Command {
	var subject string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			token, err := api.IssueToken(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "thingctl", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

// loadConfig reads --config when given, otherwise the built-in defaults.
func (o *options) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if o.configPath == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if o.token != "" {
		cfg.Client.HTTP.Token = o.token
	}
	return cfg, nil
}

// newDispatcher registers the remote clients. MQTT is only registered when
// enabled in the config, since it connects on start.
func newDispatcher(ctx context.Context, cfg *config.Config, logOutput io.Writer) (*protocol.Dispatcher, error) {
	log := logging.NewWithWriter(cfg.Logging, version, logOutput)

	d := protocol.NewDispatcher()
	d.SetLogger(log)
	if _, err := d.RegisterFactory(ctx, httpclient.NewFactory(cfg.Client.HTTP)); err != nil {
		return nil, err
	}
	if cfg.MQTT.Enabled {
		mqttCfg := cfg.MQTT
		mqttCfg.Broker.ClientID = fmt.Sprintf("thingctl-%d", os.Getpid())
		f := mqttclient.NewFactory(mqttCfg)
		f.SetLogger(log)
		if _, err := d.RegisterFactory(ctx, f); err != nil {
			return nil, err
		}
	}
	if err := d.Start(ctx); err != nil {
		//nolint:errcheck // already failing
		d.Stop(context.Background())
		return nil, err
	}
	return d, nil
}

// parseValue encodes a command-line value. Valid JSON is taken as is;
// anything else is sent as a string.
func parseValue(contentType, arg string) (protocol.Content, error) {
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		v = arg
	}
	return protocol.NewContent(contentType, v)
}

// printContent writes the decoded response as indented JSON.
func printContent(w io.Writer, c protocol.Content) error {
	if c.IsEmpty() {
		return nil
	}
	v, err := c.Value()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(jsonSafe(v), "", "  ")
	if err != nil {
		return fmt.Errorf("formatting response: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// jsonSafe converts CBOR-decoded maps with non-string keys so they can be
// printed as JSON.
func jsonSafe(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = jsonSafe(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = jsonSafe(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonSafe(item)
		}
		return out
	default:
		return v
	}
}
